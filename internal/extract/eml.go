package extract

import (
	"bytes"
	"errors"
	"io"
	"strings"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
)

var standardHeaders = []string{"Subject", "From", "To", "Date", "Message-Id"}

func extractEML(r *report, data []byte) error {
	mr, err := mail.CreateReader(bytes.NewReader(data))
	if err != nil && !message.IsUnknownCharset(err) {
		return err
	}
	defer mr.Close()

	var std []string
	for _, k := range standardHeaders {
		if v := mr.Header.Get(k); v != "" {
			std = append(std, k+": "+v)
		}
	}
	var custom []string
	fields := mr.Header.Fields()
	for fields.Next() {
		if strings.HasPrefix(strings.ToUpper(fields.Key()), "X-") {
			v, err := fields.Text()
			if err != nil {
				v = fields.Value()
			}
			custom = append(custom, fields.Key()+": "+v)
		}
	}

	var plain, rich, hidden, attachments []string
	for {
		p, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil && !message.IsUnknownCharset(err) {
			return err
		}
		body, err := io.ReadAll(p.Body)
		if err != nil {
			return err
		}
		switch h := p.Header.(type) {
		case *mail.InlineHeader:
			ct, _, _ := h.ContentType()
			switch ct {
			case "text/html":
				rich = append(rich, string(body))
				var sub report
				if err := extractHTML(&sub, string(body)); err == nil {
					hidden = append(hidden, hiddenSection(sub.String()))
				}
			default:
				plain = append(plain, string(body))
			}
		case *mail.AttachmentHeader:
			ct, _, _ := h.ContentType()
			if !strings.HasPrefix(ct, "text/") {
				continue
			}
			name, _ := h.Filename()
			attachments = append(attachments, "["+name+"]\n"+string(body))
		}
	}

	r.section("Standard Headers", std...)
	r.section("Custom X-Headers", custom...)
	r.section("Plain Text Body", plain...)
	r.section("HTML Body", rich...)
	r.section("HTML Hidden Content", hidden...)
	r.section("Text Attachments", attachments...)
	return nil
}

// hiddenSection pulls the body of the [Hidden Elements] block out of an
// HTML report.
func hiddenSection(s string) string {
	const label = "[Hidden Elements]\n"
	i := strings.Index(s, label)
	if i < 0 {
		return ""
	}
	s = s[i+len(label):]
	if j := strings.Index(s, "\n["); j >= 0 {
		s = s[:j]
	}
	return s
}
