package extract

import (
	"bytes"
	"strings"

	"github.com/xuri/excelize/v2"
)

func extractXLSX(r *report, data []byte) error {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return err
	}
	defer f.Close()

	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return err
		}
		lines := make([]string, 0, len(rows))
		for _, row := range rows {
			lines = append(lines, strings.Join(row, "\t"))
		}
		r.section("Sheet: "+sheet, lines...)

		comments, err := f.GetComments(sheet)
		if err != nil {
			return err
		}
		var notes []string
		for _, c := range comments {
			text := c.Text
			for _, run := range c.Paragraph {
				text += run.Text
			}
			notes = append(notes, c.Cell+": "+text)
		}
		r.section("Comments: "+sheet, notes...)
	}

	props, err := f.GetDocProps()
	if err != nil {
		return err
	}
	r.section("Document Properties",
		labeled("Title", props.Title),
		labeled("Subject", props.Subject),
		labeled("Creator", props.Creator),
		labeled("Keywords", props.Keywords),
		labeled("Description", props.Description),
		labeled("Category", props.Category),
	)
	return nil
}

func labeled(label, v string) string {
	if strings.TrimSpace(v) == "" {
		return ""
	}
	return label + ": " + v
}
