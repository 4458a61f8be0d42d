package generator

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"strings"
	"time"

	"github.com/YannKr/countersignal/internal/model"
	"github.com/YannKr/countersignal/internal/technique"
)

const (
	nsW  = "http://schemas.openxmlformats.org/wordprocessingml/2006/main"
	nsR  = "http://schemas.openxmlformats.org/officeDocument/2006/relationships"
	nsPR = "http://schemas.openxmlformats.org/package/2006/relationships"
	relT = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/"
)

func registerDOCX(r *technique.Registry) error {
	for _, e := range []struct {
		tech model.Technique
		desc string
	}{
		{"hidden_text", "run marked with the vanish property"},
		{"tiny_text", "1pt run at the end of the body"},
		{"white_text", "white run on the white page"},
		{"comment", "reviewer comment anchored to the first paragraph"},
		{"metadata", "core properties subject, keywords and description"},
		{"header_footer", "payload in the page footer"},
	} {
		tech := e.tech
		gen := func(ctx context.Context, in technique.Input) (*technique.Artifact, error) {
			return docxDoc(tech, in)
		}
		if err := r.Register(model.FormatDOCX, tech, e.desc, gen); err != nil {
			return err
		}
	}
	return nil
}

func xmlText(s string) string {
	var b strings.Builder
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}

func docxRun(text, props string) string {
	if props != "" {
		props = "<w:rPr>" + props + "</w:rPr>"
	}
	return fmt.Sprintf(`<w:r>%s<w:t xml:space="preserve">%s</w:t></w:r>`, props, xmlText(text))
}

func docxPara(runs ...string) string {
	return "<w:p>" + strings.Join(runs, "") + "</w:p>"
}

type docxPart struct {
	name string
	body string
}

func docxDoc(tech model.Technique, in technique.Input) (*technique.Artifact, error) {
	d := newDecoy(in.Seed, in.Timestamp)

	var body strings.Builder
	body.WriteString(docxPara(docxRun(d.Title, `<w:b/><w:sz w:val="32"/>`)))
	first := docxRun("Prepared by "+d.Person+", "+d.Role, "")
	if tech == "comment" {
		first = `<w:commentRangeStart w:id="0"/>` + first + `<w:commentRangeEnd w:id="0"/>` +
			`<w:r><w:commentReference w:id="0"/></w:r>`
	}
	body.WriteString(docxPara(first))
	for _, s := range d.Summary {
		body.WriteString(docxPara(docxRun(s, "")))
	}
	for _, it := range d.Items {
		body.WriteString(docxPara(docxRun(it.Desc+"\t"+it.Amount, "")))
	}
	body.WriteString(docxPara(docxRun("Total\t"+d.Total, "<w:b/>")))

	switch tech {
	case "hidden_text":
		body.WriteString(docxPara(docxRun(in.Payload, "<w:vanish/>")))
	case "tiny_text":
		body.WriteString(docxPara(docxRun(in.Payload, `<w:sz w:val="2"/><w:szCs w:val="2"/>`)))
	case "white_text":
		body.WriteString(docxPara(docxRun(in.Payload, `<w:color w:val="FFFFFF"/>`)))
	}

	sect := ""
	if tech == "header_footer" {
		sect = `<w:sectPr><w:headerReference w:type="default" r:id="rId3"/>` +
			`<w:footerReference w:type="default" r:id="rId4"/></w:sectPr>`
	}
	document := xml.Header + fmt.Sprintf(`<w:document xmlns:w="%s" xmlns:r="%s"><w:body>%s%s</w:body></w:document>`,
		nsW, nsR, body.String(), sect)

	overrides := []string{
		`<Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/>`,
		`<Override PartName="/docProps/core.xml" ContentType="application/vnd.openxmlformats-package.core-properties+xml"/>`,
		`<Override PartName="/docProps/app.xml" ContentType="application/vnd.openxmlformats-officedocument.extended-properties+xml"/>`,
	}
	docRels := []string{
		`<Relationship Id="rId1" Type="` + relT + `settings" Target="settings.xml"/>`,
	}
	parts := []docxPart{
		{"word/settings.xml", xml.Header + `<w:settings xmlns:w="` + nsW + `"/>`},
	}
	overrides = append(overrides,
		`<Override PartName="/word/settings.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.settings+xml"/>`)

	switch tech {
	case "comment":
		overrides = append(overrides,
			`<Override PartName="/word/comments.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.comments+xml"/>`)
		docRels = append(docRels, `<Relationship Id="rId2" Type="`+relT+`comments" Target="comments.xml"/>`)
		parts = append(parts, docxPart{"word/comments.xml", xml.Header + fmt.Sprintf(
			`<w:comments xmlns:w="%s"><w:comment w:id="0" w:author="%s" w:date="%s" w:initials="RV">%s</w:comment></w:comments>`,
			nsW, xmlText(d.Person), in.Timestamp.UTC().Format(time.RFC3339), docxPara(docxRun(in.Payload, "")))})
	case "header_footer":
		overrides = append(overrides,
			`<Override PartName="/word/header1.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.header+xml"/>`,
			`<Override PartName="/word/footer1.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.footer+xml"/>`)
		docRels = append(docRels,
			`<Relationship Id="rId3" Type="`+relT+`header" Target="header1.xml"/>`,
			`<Relationship Id="rId4" Type="`+relT+`footer" Target="footer1.xml"/>`)
		parts = append(parts,
			docxPart{"word/header1.xml", xml.Header + fmt.Sprintf(`<w:hdr xmlns:w="%s">%s</w:hdr>`,
				nsW, docxPara(docxRun(d.Company+" - Confidential", "")))},
			docxPart{"word/footer1.xml", xml.Header + fmt.Sprintf(`<w:ftr xmlns:w="%s">%s</w:ftr>`,
				nsW, docxPara(docxRun(in.Payload, `<w:sz w:val="12"/>`)))})
	}

	subject, keywords, description := d.Subject, "finance, quarterly, report", ""
	if tech == "metadata" {
		subject, keywords, description = in.Payload, in.Payload, in.Payload
	}
	stamp := in.Timestamp.UTC().Format("2006-01-02T15:04:05Z")
	core := xml.Header + `<cp:coreProperties xmlns:cp="http://schemas.openxmlformats.org/package/2006/metadata/core-properties"` +
		` xmlns:dc="http://purl.org/dc/elements/1.1/" xmlns:dcterms="http://purl.org/dc/terms/"` +
		` xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance">` +
		"<dc:title>" + xmlText(d.Title) + "</dc:title>" +
		"<dc:subject>" + xmlText(subject) + "</dc:subject>" +
		"<dc:creator>" + xmlText(d.Person) + "</dc:creator>" +
		"<cp:keywords>" + xmlText(keywords) + "</cp:keywords>" +
		"<dc:description>" + xmlText(description) + "</dc:description>" +
		"<cp:category>Finance</cp:category>" +
		`<dcterms:created xsi:type="dcterms:W3CDTF">` + stamp + "</dcterms:created>" +
		`<dcterms:modified xsi:type="dcterms:W3CDTF">` + stamp + "</dcterms:modified>" +
		"</cp:coreProperties>"

	all := []docxPart{
		{"[Content_Types].xml", xml.Header + `<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">` +
			`<Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>` +
			`<Default Extension="xml" ContentType="application/xml"/>` +
			strings.Join(overrides, "") + `</Types>`},
		{"_rels/.rels", xml.Header + `<Relationships xmlns="` + nsPR + `">` +
			`<Relationship Id="rId1" Type="` + relT + `officeDocument" Target="word/document.xml"/>` +
			`<Relationship Id="rId2" Type="http://schemas.openxmlformats.org/package/2006/relationships/metadata/core-properties" Target="docProps/core.xml"/>` +
			`<Relationship Id="rId3" Type="` + relT + `extended-properties" Target="docProps/app.xml"/>` +
			`</Relationships>`},
		{"word/document.xml", document},
		{"word/_rels/document.xml.rels", xml.Header + `<Relationships xmlns="` + nsPR + `">` +
			strings.Join(docRels, "") + `</Relationships>`},
		{"docProps/core.xml", core},
		{"docProps/app.xml", xml.Header + `<Properties xmlns="http://schemas.openxmlformats.org/officeDocument/2006/extended-properties">` +
			"<Application>Microsoft Office Word</Application><Company>" + xmlText(d.Company) + "</Company></Properties>"},
	}
	all = append(all, parts...)

	data, err := zipParts(all, in.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("docx: %w", err)
	}
	return &technique.Artifact{
		Data:      data,
		Ext:       ".docx",
		MediaType: "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	}, nil
}

// zipParts writes the parts in order with a fixed modification time.
func zipParts(parts []docxPart, mod time.Time) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, p := range parts {
		w, err := zw.CreateHeader(&zip.FileHeader{Name: p.name, Method: zip.Deflate, Modified: mod.UTC()})
		if err != nil {
			return nil, err
		}
		if _, err := w.Write([]byte(p.body)); err != nil {
			return nil, err
		}
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
