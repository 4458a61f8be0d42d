package extract

import (
	"bytes"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	"github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/tiff"
)

var exifFields = []exif.FieldName{
	exif.ImageDescription, exif.Artist, exif.Copyright, exif.Software, exif.UserComment,
}

func extractImage(r *report, data []byte) error {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return err
	}
	r.section("OCR Text", recognize(img)...)

	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		// most PNGs carry no EXIF block at all
		return nil
	}
	var lines []string
	for _, name := range exifFields {
		tag, err := x.Get(name)
		if err != nil {
			continue
		}
		if v := exifValue(tag); v != "" {
			lines = append(lines, string(name)+": "+v)
		}
	}
	r.section("EXIF Metadata", lines...)
	return nil
}

// exifValue reads ASCII and UNDEFINED tags as text. UserComment carries an
// eight byte character code prefix.
func exifValue(tag *tiff.Tag) string {
	v := string(tag.Val)
	if tag.Id == 0x9286 && len(v) >= 8 {
		v = v[8:]
	}
	return strings.TrimRight(v, "\x00 ")
}
