package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"io"
	"sort"
	"strings"
)

func extractDOCX(r *report, data []byte) error {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return err
	}
	parts := map[string]*zip.File{}
	for _, f := range zr.File {
		parts[f.Name] = f
	}

	if f, ok := parts["word/document.xml"]; ok {
		paras, err := docxParagraphs(f)
		if err != nil {
			return err
		}
		r.section("Paragraphs", paras...)
	}

	var names []string
	for name := range parts {
		if strings.HasPrefix(name, "word/header") || strings.HasPrefix(name, "word/footer") {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	var hf []string
	for _, name := range names {
		paras, err := docxParagraphs(parts[name])
		if err != nil {
			return err
		}
		label := "Header: "
		if strings.HasPrefix(name, "word/footer") {
			label = "Footer: "
		}
		for _, p := range paras {
			hf = append(hf, label+p)
		}
	}
	r.section("Headers and Footers", hf...)

	if f, ok := parts["word/comments.xml"]; ok {
		paras, err := docxParagraphs(f)
		if err != nil {
			return err
		}
		r.section("Comments", paras...)
	}

	if f, ok := parts["docProps/core.xml"]; ok {
		props, err := docxCore(f)
		if err != nil {
			return err
		}
		r.section("Core Properties", props...)
	}
	return nil
}

// docxParagraphs streams a WordprocessingML part and returns the text of
// each w:p, including runs hidden by formatting.
func docxParagraphs(f *zip.File) ([]string, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	dec := xml.NewDecoder(rc)
	var (
		paras []string
		cur   strings.Builder
		inT   bool
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "t" {
				inT = true
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inT = false
			case "p":
				paras = append(paras, cur.String())
				cur.Reset()
			}
		case xml.CharData:
			if inT {
				cur.Write(t)
			}
		}
	}
	return paras, nil
}

var coreLabels = []struct{ local, label string }{
	{"title", "Title"},
	{"subject", "Subject"},
	{"creator", "Author"},
	{"keywords", "Keywords"},
	{"description", "Comments"},
	{"category", "Category"},
}

func docxCore(f *zip.File) ([]string, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	values := map[string]string{}
	dec := xml.NewDecoder(rc)
	var field string
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			field = t.Name.Local
		case xml.EndElement:
			field = ""
		case xml.CharData:
			if field != "" {
				values[field] += string(t)
			}
		}
	}

	var out []string
	for _, c := range coreLabels {
		if v := strings.TrimSpace(values[c.local]); v != "" {
			out = append(out, c.label+": "+v)
		}
	}
	return out, nil
}
