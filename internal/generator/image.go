package generator

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"image/png"
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/YannKr/countersignal/internal/model"
	"github.com/YannKr/countersignal/internal/technique"
)

const (
	imgWidth      = 800
	imgHeight     = 600
	imgLineHeight = 16
	receiptBottom = 340
)

var (
	textFace     = basicfont.Face7x13
	inkBlack     = color.RGBA{0, 0, 0, 255}
	inkSubtle    = color.RGBA{220, 220, 220, 255}
	boxOutline   = color.RGBA{170, 170, 170, 255}
	paperWhite   = color.RGBA{255, 255, 255, 255}
	glyphAdvance = basicfont.Face7x13.Advance
)

func registerImage(r *technique.Registry) error {
	if err := r.Register(model.FormatImage, "visible_text",
		"payload printed as a boxed note under the receipt", imageVisibleText); err != nil {
		return err
	}
	if err := r.Register(model.FormatImage, "subtle_text",
		"low-contrast light gray text in the bottom right corner", imageSubtleText); err != nil {
		return err
	}
	return r.Register(model.FormatImage, "exif_metadata",
		"payload in EXIF description, artist, copyright, software and user comment", imageEXIF)
}

// drawReceipt paints the cover image: a plain store receipt.
func drawReceipt(in technique.Input, height int) *image.RGBA {
	d := newDecoy(in.Seed, in.Timestamp)
	img := image.NewRGBA(image.Rect(0, 0, imgWidth, height))
	draw.Draw(img, img.Bounds(), image.NewUniform(paperWhite), image.Point{}, draw.Src)

	y := 40
	line := func(x int, s string) {
		drawString(img, x, y, s, inkBlack)
		y += imgLineHeight
	}
	line(40, strings.ToUpper(d.Company))
	line(40, "Receipt for "+d.Person)
	line(40, "Date "+in.Timestamp.UTC().Format("2006-01-02 15:04"))
	y += imgLineHeight
	for _, it := range d.Items {
		drawString(img, 40, y, it.Desc, inkBlack)
		drawString(img, 400, y, it.Amount, inkBlack)
		y += imgLineHeight
	}
	y += imgLineHeight / 2
	drawString(img, 40, y, "TOTAL", inkBlack)
	drawString(img, 400, y, d.Total, inkBlack)
	y += 2 * imgLineHeight
	line(40, "Thank you for your business")
	return img
}

// drawString renders s with its baseline at y.
func drawString(dst draw.Image, x, y int, s string, c color.Color) {
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: textFace,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}

func imageVisibleText(ctx context.Context, in technique.Input) (*technique.Artifact, error) {
	lines := wrapWords(in.Payload, 100)
	const boxX, boxW, pad = 20, 760, 6
	boxTop := receiptBottom + 20
	boxH := len(lines)*imgLineHeight + 2*pad
	height := max(imgHeight, boxTop+boxH+20)

	img := drawReceipt(in, height)
	outline(img, image.Rect(boxX, boxTop, boxX+boxW, boxTop+boxH), boxOutline)
	for i, l := range lines {
		// baseline sits Ascent below the glyph top
		drawString(img, boxX+pad, boxTop+pad+textFace.Ascent+i*imgLineHeight, l, inkBlack)
	}
	return encodePNG(img)
}

func imageSubtleText(ctx context.Context, in technique.Input) (*technique.Artifact, error) {
	const cols = 60
	lines := wrapWords(in.Payload, cols)
	blockH := len(lines) * imgLineHeight
	height := max(imgHeight, receiptBottom+blockH+30)

	img := drawReceipt(in, height)
	x := imgWidth - cols*glyphAdvance - 12
	top := height - blockH - 10
	for i, l := range lines {
		drawString(img, x, top+textFace.Ascent+i*imgLineHeight, l, inkSubtle)
	}
	return encodePNG(img)
}

func imageEXIF(ctx context.Context, in technique.Input) (*technique.Artifact, error) {
	img := drawReceipt(in, imgHeight)
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	app1, err := exifSegment(exifFields{
		ImageDescription: in.Payload,
		Software:         in.Payload,
		Artist:           in.Payload,
		Copyright:        in.Payload,
		UserComment:      in.Payload,
	})
	if err != nil {
		return nil, err
	}
	data, err := insertAfterSOI(buf.Bytes(), app1)
	if err != nil {
		return nil, err
	}
	return &technique.Artifact{Data: data, Ext: ".jpg", MediaType: "image/jpeg"}, nil
}

func encodePNG(img image.Image) (*technique.Artifact, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return &technique.Artifact{Data: buf.Bytes(), Ext: ".png", MediaType: "image/png"}, nil
}

func outline(img draw.Image, r image.Rectangle, c color.Color) {
	for x := r.Min.X; x < r.Max.X; x++ {
		img.Set(x, r.Min.Y, c)
		img.Set(x, r.Max.Y-1, c)
	}
	for y := r.Min.Y; y < r.Max.Y; y++ {
		img.Set(r.Min.X, y, c)
		img.Set(r.Max.X-1, y, c)
	}
}

// wrapWords greedily breaks s into lines of at most width characters.
// Words longer than a line are split.
func wrapWords(s string, width int) []string {
	var lines []string
	var cur strings.Builder
	for _, w := range strings.Fields(s) {
		for len(w) > width {
			if cur.Len() > 0 {
				lines = append(lines, cur.String())
				cur.Reset()
			}
			lines = append(lines, w[:width])
			w = w[width:]
		}
		if cur.Len() > 0 && cur.Len()+1+len(w) > width {
			lines = append(lines, cur.String())
			cur.Reset()
		}
		if cur.Len() > 0 {
			cur.WriteByte(' ')
		}
		cur.WriteString(w)
	}
	if cur.Len() > 0 {
		lines = append(lines, cur.String())
	}
	return lines
}
