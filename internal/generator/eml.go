package generator

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"io"
	"strings"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"

	"github.com/YannKr/countersignal/internal/model"
	"github.com/YannKr/countersignal/internal/technique"
)

func registerEML(r *technique.Registry) error {
	for _, e := range []struct {
		tech model.Technique
		desc string
	}{
		{"x_header", "custom X-AI-Instructions header"},
		{"html_hidden", "display:none block in the HTML alternative"},
		{"attachment", "payload inside a notes.txt attachment"},
	} {
		tech := e.tech
		gen := func(ctx context.Context, in technique.Input) (*technique.Artifact, error) {
			return emlDoc(tech, in)
		}
		if err := r.Register(model.FormatEML, tech, e.desc, gen); err != nil {
			return err
		}
	}
	return nil
}

// emlDoc writes a multipart/mixed message. Boundaries are derived from the
// token so the output is stable for equal input.
func emlDoc(tech model.Technique, in technique.Input) (*technique.Artifact, error) {
	d := newDecoy(in.Seed, in.Timestamp)
	first := strings.ToLower(strings.Fields(d.Person)[0])

	var h mail.Header
	h.SetDate(in.Timestamp.UTC())
	h.SetAddressList("From", []*mail.Address{{Name: d.Person, Address: first + "@" + d.Domain}})
	h.SetAddressList("To", []*mail.Address{{Name: "Finance Team", Address: "finance@" + d.Domain}})
	h.SetSubject(d.Subject)
	h.SetMessageID(in.Token + "@" + d.Domain)
	h.Set("MIME-Version", "1.0")
	if tech == "x_header" {
		h.Set("X-AI-Instructions", in.Payload)
	}
	h.SetContentType("multipart/mixed", map[string]string{"boundary": "mixed-" + in.Token})

	var plain strings.Builder
	fmt.Fprintf(&plain, "Hi team,\n\nPlease find the %s summary below.\n\n", d.Quarter)
	for _, s := range d.Summary {
		plain.WriteString(s + "\n")
	}
	fmt.Fprintf(&plain, "\nTotal selected expenses: %s\n\nThanks,\n%s\n", d.Total, d.Person)

	var rich strings.Builder
	rich.WriteString("<html><body>\n<p>Hi team,</p>\n")
	fmt.Fprintf(&rich, "<p>Please find the %s summary below.</p>\n", html.EscapeString(d.Quarter))
	for _, s := range d.Summary {
		fmt.Fprintf(&rich, "<p>%s</p>\n", html.EscapeString(s))
	}
	if tech == "html_hidden" {
		fmt.Fprintf(&rich, "<div style=\"display:none\">%s</div>\n", in.Payload)
	}
	fmt.Fprintf(&rich, "<p>Thanks,<br>%s</p>\n</body></html>\n", html.EscapeString(d.Person))

	var buf bytes.Buffer
	mw, err := message.CreateWriter(&buf, h.Header)
	if err != nil {
		return nil, fmt.Errorf("eml: %w", err)
	}

	var alt message.Header
	alt.SetContentType("multipart/alternative", map[string]string{"boundary": "alt-" + in.Token})
	aw, err := mw.CreatePart(alt)
	if err != nil {
		return nil, fmt.Errorf("eml: %w", err)
	}
	if err := emlPart(aw, "text/plain", plain.String()); err != nil {
		return nil, err
	}
	if err := emlPart(aw, "text/html", rich.String()); err != nil {
		return nil, err
	}
	if err := aw.Close(); err != nil {
		return nil, fmt.Errorf("eml: %w", err)
	}

	if tech == "attachment" {
		var ah mail.AttachmentHeader
		ah.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
		ah.SetFilename("notes.txt")
		ah.Set("Content-Transfer-Encoding", "base64")
		w, err := mw.CreatePart(ah.Header)
		if err != nil {
			return nil, fmt.Errorf("eml: %w", err)
		}
		body := "Meeting notes - " + d.Meeting + "\n\n" + in.Payload + "\n"
		if _, err := io.WriteString(w, body); err != nil {
			return nil, fmt.Errorf("eml: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("eml: %w", err)
		}
	}

	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("eml: %w", err)
	}
	return &technique.Artifact{Data: buf.Bytes(), Ext: ".eml", MediaType: "message/rfc822"}, nil
}

func emlPart(parent *message.Writer, mediaType, body string) error {
	var ih mail.InlineHeader
	ih.SetContentType(mediaType, map[string]string{"charset": "utf-8"})
	ih.Set("Content-Disposition", "inline")
	ih.Set("Content-Transfer-Encoding", "quoted-printable")
	w, err := parent.CreatePart(ih.Header)
	if err != nil {
		return fmt.Errorf("eml: %w", err)
	}
	if _, err := io.WriteString(w, body); err != nil {
		return fmt.Errorf("eml: %w", err)
	}
	return w.Close()
}
