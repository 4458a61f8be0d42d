package extract

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/ledongthuc/pdf"
)

// extractPDF reads the text layer plus the document-level channels a
// parser can surface: info dictionary, form fields, annotations, named
// JavaScript and embedded files.
func extractPDF(r *report, data []byte) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("malformed pdf: %v", p)
		}
	}()

	rd, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return err
	}

	var text []string
	for i := 1; i <= rd.NumPage(); i++ {
		text = append(text, pageText(rd.Page(i)))
	}
	r.section("Page Text", text...)

	trailer := rd.Trailer()
	info := trailer.Key("Info")
	var infoLines []string
	for _, k := range info.Keys() {
		if v := info.Key(k); v.Kind() == pdf.String {
			infoLines = append(infoLines, k+": "+v.Text())
		}
	}
	r.section("Document Info", infoLines...)

	root := trailer.Key("Root")
	var fields []string
	formFields := root.Key("AcroForm").Key("Fields")
	for i := 0; i < formFields.Len(); i++ {
		f := formFields.Index(i)
		fields = append(fields, f.Key("T").Text()+": "+f.Key("V").Text())
	}
	r.section("Form Fields", fields...)

	var annots []string
	for i := 1; i <= rd.NumPage(); i++ {
		list := rd.Page(i).V.Key("Annots")
		for j := 0; j < list.Len(); j++ {
			a := list.Index(j)
			if s := a.Key("Contents").Text(); s != "" {
				annots = append(annots, s)
			}
			if u := a.Key("A").Key("URI"); u.Kind() == pdf.String {
				annots = append(annots, "URI: "+u.RawString())
			}
		}
	}
	r.section("Annotations", annots...)

	names := root.Key("Names")
	var scripts []string
	js := names.Key("JavaScript").Key("Names")
	for i := 1; i < js.Len(); i += 2 {
		scripts = append(scripts, pdfStringOrStream(js.Index(i).Key("JS")))
	}
	r.section("JavaScript", scripts...)

	var files []string
	ef := names.Key("EmbeddedFiles").Key("Names")
	for i := 0; i+1 < ef.Len(); i += 2 {
		spec := ef.Index(i + 1)
		name := spec.Key("UF").Text()
		if name == "" {
			name = spec.Key("F").Text()
		}
		if name == "" {
			name = ef.Index(i).Text()
		}
		files = append(files, "["+name+"]\n"+pdfStringOrStream(spec.Key("EF").Key("F")))
	}
	r.section("Embedded Files", files...)
	return nil
}

// pageText joins the page's glyphs, breaking lines when the baseline moves.
func pageText(p pdf.Page) string {
	if p.V.IsNull() {
		return ""
	}
	var b strings.Builder
	lastY := math.NaN()
	for _, t := range p.Content().Text {
		if !math.IsNaN(lastY) && math.Abs(t.Y-lastY) > 0.1 {
			b.WriteByte('\n')
		}
		lastY = t.Y
		b.WriteString(t.S)
	}
	return b.String()
}

func pdfStringOrStream(v pdf.Value) string {
	switch v.Kind() {
	case pdf.String:
		return v.Text()
	case pdf.Stream:
		rc := v.Reader()
		defer rc.Close()
		b, err := io.ReadAll(rc)
		if err != nil {
			return ""
		}
		return string(b)
	}
	return ""
}
