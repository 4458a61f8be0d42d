package generator

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/YannKr/countersignal/internal/model"
	"github.com/YannKr/countersignal/internal/technique"
)

func registerHTML(r *technique.Registry) error {
	for _, e := range []struct {
		tech model.Technique
		desc string
	}{
		{"script_comment", "block comment inside an inline script"},
		{"css_offscreen", "absolutely positioned element far off screen"},
		{"data_attribute", "custom data-* attribute on a content element"},
		{"meta_tag", "description meta tag content"},
	} {
		tech := e.tech
		gen := func(ctx context.Context, in technique.Input) (*technique.Artifact, error) {
			return htmlDoc(tech, in)
		}
		if err := r.Register(model.FormatHTML, tech, e.desc, gen); err != nil {
			return err
		}
	}
	return nil
}

func htmlDoc(tech model.Technique, in technique.Input) (*technique.Artifact, error) {
	d := newDecoy(in.Seed, in.Timestamp)
	esc := html.EscapeString
	var b strings.Builder

	b.WriteString("<!DOCTYPE html>\n<html lang=\"en\">\n<head>\n<meta charset=\"utf-8\">\n")
	fmt.Fprintf(&b, "<title>%s</title>\n", esc(d.Title))
	if tech == "meta_tag" {
		fmt.Fprintf(&b, "<meta name=\"description\" content=\"%s\">\n", in.Payload)
	} else {
		fmt.Fprintf(&b, "<meta name=\"description\" content=\"%s\">\n", esc(d.Subject))
	}
	b.WriteString("<style>body{font-family:sans-serif;max-width:720px;margin:2em auto}td{padding:2px 12px}</style>\n")
	if tech == "script_comment" {
		fmt.Fprintf(&b, "<script>\n/* %s */\nvar reportLoaded = true;\n</script>\n", in.Payload)
	}
	b.WriteString("</head>\n<body>\n")

	fmt.Fprintf(&b, "<h1>%s</h1>\n", esc(d.Title))
	fmt.Fprintf(&b, "<p class=\"byline\">Prepared by %s, %s</p>\n", esc(d.Person), esc(d.Role))

	if tech == "data_attribute" {
		fmt.Fprintf(&b, "<div class=\"summary\" data-ai-instructions=\"%s\">\n", in.Payload)
	} else {
		b.WriteString("<div class=\"summary\">\n")
	}
	for _, s := range d.Summary {
		fmt.Fprintf(&b, "<p>%s</p>\n", esc(s))
	}
	b.WriteString("</div>\n")

	if tech == "css_offscreen" {
		fmt.Fprintf(&b, "<div style=\"position:absolute; left:-9999px; top:-9999px;\">%s</div>\n", in.Payload)
	}

	b.WriteString("<table>\n")
	for _, it := range d.Items {
		fmt.Fprintf(&b, "<tr><td>%s</td><td>%s</td></tr>\n", esc(it.Desc), it.Amount)
	}
	fmt.Fprintf(&b, "<tr><th>Total</th><th>%s</th></tr>\n</table>\n", d.Total)
	b.WriteString("</body>\n</html>\n")

	return &technique.Artifact{Data: []byte(b.String()), Ext: ".html", MediaType: "text/html; charset=utf-8"}, nil
}
