package generator

import (
	"bytes"
	"context"
	"fmt"

	"github.com/go-pdf/fpdf"

	"github.com/YannKr/countersignal/internal/model"
	"github.com/YannKr/countersignal/internal/technique"
)

func registerPDF(r *technique.Registry) error {
	for _, e := range []struct {
		tech model.Technique
		desc string
		gen  technique.Generator
	}{
		{"white_ink", "1pt white text on the white page", pdfWhiteInk},
		{"off_canvas", "text drawn outside the visible page area", pdfOffCanvas},
		{"metadata", "payload in the Author, Subject and Keywords info fields", pdfMetadata},
		{"tiny_text", "0.5pt text at the page foot", pdfTinyText},
		{"white_rect", "text covered by a white filled rectangle", pdfWhiteRect},
		{"form_field", "hidden off-page AcroForm text field", pdfFormField},
		{"annotation", "hidden text note and link annotation", pdfAnnotation},
		{"javascript", "document-level JavaScript variable", pdfJavascript},
		{"embedded_file", "payload as an embedded data.txt attachment", pdfEmbeddedFile},
		{"incremental", "payload added to the info dictionary by an incremental update", pdfIncremental},
	} {
		if err := r.Register(model.FormatPDF, e.tech, e.desc, e.gen); err != nil {
			return err
		}
	}
	return nil
}

// pdfBase lays out the cover report. Compression is off and catalogs are
// sorted so identical inputs give identical bytes.
func pdfBase(in technique.Input) (*fpdf.Fpdf, decoy) {
	d := newDecoy(in.Seed, in.Timestamp)

	pdf := fpdf.New("P", "pt", "Letter", "")
	pdf.SetCompression(false)
	pdf.SetCatalogSort(true)
	pdf.SetCreationDate(in.Timestamp)
	pdf.SetModificationDate(in.Timestamp)
	pdf.SetTitle(d.Title, false)
	pdf.SetCreator(d.Company+" Finance", false)
	pdf.SetProducer("Report Builder 4.2", false)

	pdf.AddPage()
	pdf.SetTextColor(0, 0, 0)
	pdf.SetFont("Helvetica", "B", 18)
	pdf.Text(72, 90, d.Title)
	pdf.SetFont("Helvetica", "", 11)
	pdf.Text(72, 112, "Prepared by "+d.Person+", "+d.Role+", "+d.Company)

	y := 150.0
	for _, line := range d.Summary {
		pdf.Text(72, y, line)
		y += 18
	}
	y += 12
	pdf.SetFont("Helvetica", "B", 11)
	pdf.Text(72, y, "Selected expenses")
	pdf.SetFont("Helvetica", "", 11)
	y += 18
	for _, it := range d.Items {
		pdf.Text(90, y, it.Desc)
		pdf.Text(460, y, it.Amount)
		y += 16
	}
	pdf.SetFont("Helvetica", "B", 11)
	pdf.Text(90, y+4, "Total")
	pdf.Text(460, y+4, d.Total)
	pdf.SetFont("Helvetica", "", 11)
	return pdf, d
}

func pdfOutput(pdf *fpdf.Fpdf) (*technique.Artifact, error) {
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return &technique.Artifact{Data: buf.Bytes(), Ext: ".pdf", MediaType: "application/pdf"}, nil
}

func pdfWhiteInk(ctx context.Context, in technique.Input) (*technique.Artifact, error) {
	pdf, _ := pdfBase(in)
	pdf.SetTextColor(255, 255, 255)
	pdf.SetFont("Helvetica", "", 1)
	pdf.Text(72, 600, in.Payload)
	return pdfOutput(pdf)
}

func pdfOffCanvas(ctx context.Context, in technique.Input) (*technique.Artifact, error) {
	pdf, _ := pdfBase(in)
	pdf.Text(-1000, -1000, in.Payload)
	return pdfOutput(pdf)
}

func pdfMetadata(ctx context.Context, in technique.Input) (*technique.Artifact, error) {
	pdf, _ := pdfBase(in)
	pdf.SetAuthor(in.Payload, false)
	pdf.SetSubject(in.Payload, false)
	pdf.SetKeywords(in.Payload, false)
	return pdfOutput(pdf)
}

func pdfTinyText(ctx context.Context, in technique.Input) (*technique.Artifact, error) {
	pdf, _ := pdfBase(in)
	pdf.SetTextColor(40, 40, 40)
	pdf.SetFont("Helvetica", "", 0.5)
	pdf.Text(72, 760, in.Payload)
	return pdfOutput(pdf)
}

func pdfWhiteRect(ctx context.Context, in technique.Input) (*technique.Artifact, error) {
	pdf, _ := pdfBase(in)
	pdf.SetTextColor(0, 0, 0)
	pdf.SetFont("Helvetica", "", 6)
	pdf.Text(72, 680, in.Payload)
	pdf.SetFillColor(255, 255, 255)
	pdf.Rect(66, 670, 560, 16, "F")
	return pdfOutput(pdf)
}

func pdfJavascript(ctx context.Context, in technique.Input) (*technique.Artifact, error) {
	pdf, _ := pdfBase(in)
	pdf.SetJavascript(`var hiddenData = "` + in.Payload + `";`)
	return pdfOutput(pdf)
}

func pdfEmbeddedFile(ctx context.Context, in technique.Input) (*technique.Artifact, error) {
	pdf, _ := pdfBase(in)
	pdf.SetAttachments([]fpdf.Attachment{{
		Content:     []byte(in.Payload),
		Filename:    "data.txt",
		Description: "Supporting data",
	}})
	return pdfOutput(pdf)
}

func pdfFormField(ctx context.Context, in technique.Input) (*technique.Artifact, error) {
	base, err := basePDFBytes(in)
	if err != nil {
		return nil, err
	}
	u, err := newPDFUpdate(base)
	if err != nil {
		return nil, err
	}
	page, err := u.firstPage()
	if err != nil {
		return nil, err
	}

	field := u.alloc()
	u.set(field, fmt.Sprintf(
		"<< /Type /Annot /Subtype /Widget /FT /Tx /T %s /V %s /F 2 /Rect [-1000 -1000 -800 -980] /P %d 0 R >>",
		pdfString("hidden_data"), pdfString(in.Payload), page))

	if err := u.appendAnnots(page, field); err != nil {
		return nil, err
	}
	if err := u.editObject(u.root, fmt.Sprintf("/AcroForm << /Fields [%d 0 R] >>", field)); err != nil {
		return nil, err
	}
	return pdfBytes(u.bytes()), nil
}

func pdfAnnotation(ctx context.Context, in technique.Input) (*technique.Artifact, error) {
	base, err := basePDFBytes(in)
	if err != nil {
		return nil, err
	}
	u, err := newPDFUpdate(base)
	if err != nil {
		return nil, err
	}
	page, err := u.firstPage()
	if err != nil {
		return nil, err
	}

	note := u.alloc()
	u.set(note, fmt.Sprintf(
		"<< /Type /Annot /Subtype /Text /Rect [0 0 0 0] /F 2 /Open false /Contents %s >>",
		pdfString(in.Payload)))
	link := u.alloc()
	u.set(link, fmt.Sprintf(
		"<< /Type /Annot /Subtype /Link /Rect [0 0 0 0] /Border [0 0 0] /A << /S /URI /URI %s >> >>",
		pdfString(in.CallbackURL)))

	if err := u.appendAnnots(page, note, link); err != nil {
		return nil, err
	}
	return pdfBytes(u.bytes()), nil
}

func pdfIncremental(ctx context.Context, in technique.Input) (*technique.Artifact, error) {
	base, err := basePDFBytes(in)
	if err != nil {
		return nil, err
	}
	u, err := newPDFUpdate(base)
	if err != nil {
		return nil, err
	}
	if u.info == 0 {
		return nil, fmt.Errorf("pdf has no info dictionary")
	}
	note := "Revision " + in.Timestamp.UTC().Format("2006-01-02") + " adds reviewer guidance"
	if err := u.editObject(u.info, fmt.Sprintf("/Hidden %s /UpdateNote %s",
		pdfString(in.Payload), pdfString(note))); err != nil {
		return nil, err
	}
	return pdfBytes(u.bytes()), nil
}

func basePDFBytes(in technique.Input) ([]byte, error) {
	pdf, _ := pdfBase(in)
	art, err := pdfOutput(pdf)
	if err != nil {
		return nil, err
	}
	return art.Data, nil
}

func pdfBytes(b []byte) *technique.Artifact {
	return &technique.Artifact{Data: b, Ext: ".pdf", MediaType: "application/pdf"}
}
