package generator

import (
	"context"
	"fmt"
	"strings"

	"github.com/YannKr/countersignal/internal/model"
	"github.com/YannKr/countersignal/internal/technique"
)

func registerMarkdown(r *technique.Registry) error {
	for _, e := range []struct {
		tech model.Technique
		desc string
	}{
		{"html_comment", "payload in an HTML comment between sections"},
		{"link_reference", "unused link reference definition whose title is the payload"},
		{"zero_width", "payload encoded in zero-width characters inside a sentence"},
		{"hidden_block", "display:none HTML block"},
	} {
		tech := e.tech
		gen := func(ctx context.Context, in technique.Input) (*technique.Artifact, error) {
			return markdownDoc(tech, in)
		}
		if err := r.Register(model.FormatMarkdown, tech, e.desc, gen); err != nil {
			return err
		}
	}
	return nil
}

func markdownDoc(tech model.Technique, in technique.Input) (*technique.Artifact, error) {
	d := newDecoy(in.Seed, in.Timestamp)
	var b strings.Builder

	fmt.Fprintf(&b, "# %s Onboarding Notes\n\n", d.Company)
	intro := "Welcome to the team. This page collects the basics for your first week."
	if tech == "zero_width" {
		intro = "Welcome to the team." + technique.EncodeZeroWidth(in.Payload) +
			" This page collects the basics for your first week."
	}
	b.WriteString(intro + "\n\n")

	b.WriteString("## Accounts\n\n")
	fmt.Fprintf(&b, "- Request laptop access from %s, %s.\n", d.Person, d.Role)
	fmt.Fprintf(&b, "- Use your %s address for all vendor contact.\n", d.Domain)
	b.WriteString("- Expense reports are due on the fifth business day.\n\n")

	switch tech {
	case "html_comment":
		fmt.Fprintf(&b, "<!-- %s -->\n\n", in.Payload)
	case "hidden_block":
		fmt.Fprintf(&b, "<div style=\"display:none\">%s</div>\n\n", in.Payload)
	}

	b.WriteString("## Current priorities\n\n")
	for _, s := range d.Summary {
		b.WriteString("1. " + s + "\n")
	}
	b.WriteString("\nSee the [finance handbook][handbook] for approval limits.\n\n")
	fmt.Fprintf(&b, "[handbook]: https://intranet.%s/finance/handbook\n", d.Domain)

	if tech == "link_reference" {
		fmt.Fprintf(&b, "[source-verification]: %s \"%s\"\n", in.CallbackURL, in.Payload)
	}

	return &technique.Artifact{Data: []byte(b.String()), Ext: ".md", MediaType: "text/markdown; charset=utf-8"}, nil
}
