package generator

import (
	"context"
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/YannKr/countersignal/internal/model"
	"github.com/YannKr/countersignal/internal/technique"
)

const xlsxSheet = "Summary"

func registerXLSX(r *technique.Registry) error {
	for _, e := range []struct {
		tech model.Technique
		desc string
	}{
		{"hidden_sheet", "payload on a hidden worksheet"},
		{"cell_comment", "reviewer comment on the total cell"},
		{"white_font", "1pt white cell below the table"},
		{"metadata", "workbook subject, keywords and description"},
	} {
		tech := e.tech
		gen := func(ctx context.Context, in technique.Input) (*technique.Artifact, error) {
			return xlsxDoc(tech, in)
		}
		if err := r.Register(model.FormatXLSX, tech, e.desc, gen); err != nil {
			return err
		}
	}
	return nil
}

func xlsxDoc(tech model.Technique, in technique.Input) (*technique.Artifact, error) {
	d := newDecoy(in.Seed, in.Timestamp)

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", xlsxSheet); err != nil {
		return nil, fmt.Errorf("xlsx: %w", err)
	}
	rows := [][]interface{}{
		{d.Title},
		{"Prepared by", d.Person},
		{},
		{"Item", "Amount"},
	}
	for _, it := range d.Items {
		rows = append(rows, []interface{}{it.Desc, float64(it.cents) / 100})
	}
	rows = append(rows, []interface{}{"Total", d.Total})
	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		if err := f.SetSheetRow(xlsxSheet, fmt.Sprintf("A%d", i+1), &row); err != nil {
			return nil, fmt.Errorf("xlsx: %w", err)
		}
	}
	totalCell := fmt.Sprintf("B%d", len(rows))
	if err := f.SetColWidth(xlsxSheet, "A", "A", 32); err != nil {
		return nil, fmt.Errorf("xlsx: %w", err)
	}

	props := &excelize.DocProperties{
		Title:    d.Title,
		Creator:  d.Person,
		Category: "Finance",
		Subject:  d.Subject,
		Created:  in.Timestamp.UTC().Format("2006-01-02T15:04:05Z"),
		Modified: in.Timestamp.UTC().Format("2006-01-02T15:04:05Z"),
	}

	switch tech {
	case "hidden_sheet":
		if _, err := f.NewSheet("Notes"); err != nil {
			return nil, fmt.Errorf("xlsx: %w", err)
		}
		if err := f.SetCellValue("Notes", "A1", in.Payload); err != nil {
			return nil, fmt.Errorf("xlsx: %w", err)
		}
		if err := f.SetSheetVisible("Notes", false); err != nil {
			return nil, fmt.Errorf("xlsx: %w", err)
		}
	case "cell_comment":
		err := f.AddComment(xlsxSheet, excelize.Comment{
			Cell:      totalCell,
			Author:    d.Person,
			Paragraph: []excelize.RichTextRun{{Text: in.Payload}},
		})
		if err != nil {
			return nil, fmt.Errorf("xlsx: %w", err)
		}
	case "white_font":
		style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Color: "FFFFFF", Size: 1}})
		if err != nil {
			return nil, fmt.Errorf("xlsx: %w", err)
		}
		cell := fmt.Sprintf("A%d", len(rows)+3)
		if err := f.SetCellValue(xlsxSheet, cell, in.Payload); err != nil {
			return nil, fmt.Errorf("xlsx: %w", err)
		}
		if err := f.SetCellStyle(xlsxSheet, cell, cell, style); err != nil {
			return nil, fmt.Errorf("xlsx: %w", err)
		}
	case "metadata":
		props.Subject = in.Payload
		props.Keywords = in.Payload
		props.Description = in.Payload
	}
	if err := f.SetDocProps(props); err != nil {
		return nil, fmt.Errorf("xlsx: %w", err)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx: %w", err)
	}
	return &technique.Artifact{
		Data:      buf.Bytes(),
		Ext:       ".xlsx",
		MediaType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	}, nil
}
