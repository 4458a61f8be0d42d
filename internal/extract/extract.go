// Package extract turns a generated artifact back into the text an ingesting
// agent would see: visible content plus every metadata and hidden channel a
// document parser commonly exposes.
package extract

import (
	"errors"
	"fmt"
	"strings"

	"github.com/YannKr/countersignal/internal/model"
)

var ErrUnsupported = errors.New("unsupported format")

// Extract returns labeled sections of text found in data.
func Extract(format model.Format, data []byte) (string, error) {
	var (
		r   report
		err error
	)
	switch format {
	case model.FormatPDF:
		err = extractPDF(&r, data)
	case model.FormatImage:
		err = extractImage(&r, data)
	case model.FormatMarkdown:
		extractMarkdown(&r, string(data))
	case model.FormatHTML:
		err = extractHTML(&r, string(data))
	case model.FormatDOCX:
		err = extractDOCX(&r, data)
	case model.FormatICS:
		err = extractICS(&r, data)
	case model.FormatEML:
		err = extractEML(&r, data)
	case model.FormatXLSX:
		err = extractXLSX(&r, data)
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupported, format)
	}
	if err != nil {
		return "", fmt.Errorf("extract %s: %w", format, err)
	}
	return r.String(), nil
}

type report struct {
	b strings.Builder
}

// section appends a labeled block. Empty lines are dropped and a section
// with nothing left is omitted.
func (r *report) section(name string, lines ...string) {
	var kept []string
	for _, l := range lines {
		if l = strings.TrimSpace(l); l != "" {
			kept = append(kept, l)
		}
	}
	if len(kept) == 0 {
		return
	}
	if r.b.Len() > 0 {
		r.b.WriteString("\n")
	}
	r.b.WriteString("[" + name + "]\n")
	for _, l := range kept {
		r.b.WriteString(l + "\n")
	}
}

func (r *report) String() string {
	return r.b.String()
}

// Carries reports whether text holds every needle once runs of whitespace
// are collapsed. Line wrapping in rendered formats splits long payloads.
func Carries(text string, needles ...string) bool {
	norm := collapse(text)
	for _, n := range needles {
		if !strings.Contains(norm, collapse(n)) {
			return false
		}
	}
	return true
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
