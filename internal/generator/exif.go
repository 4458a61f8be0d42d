package generator

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

type exifFields struct {
	ImageDescription string
	Software         string
	Artist           string
	Copyright        string
	UserComment      string
}

const (
	tagImageDescription = 0x010e
	tagSoftware         = 0x0131
	tagArtist           = 0x013b
	tagCopyright        = 0x8298
	tagExifIFD          = 0x8769
	tagUserComment      = 0x9286

	typeASCII     = 2
	typeLong      = 4
	typeUndefined = 7
)

type ifdEntry struct {
	tag  uint16
	typ  uint16
	data []byte
}

func asciiEntry(tag uint16, s string) ifdEntry {
	return ifdEntry{tag: tag, typ: typeASCII, data: append([]byte(s), 0)}
}

func (e ifdEntry) count() uint32 {
	if e.typ == typeLong {
		return uint32(len(e.data) / 4)
	}
	return uint32(len(e.data))
}

// encodeIFD lays out one little-endian IFD starting at offset start, with
// out-of-line values packed right after it. Entries must be sorted by tag.
func encodeIFD(entries []ifdEntry, start uint32) []byte {
	le := binary.LittleEndian
	head := 2 + 12*len(entries) + 4
	dataAt := start + uint32(head)

	var dir, data bytes.Buffer
	binary.Write(&dir, le, uint16(len(entries)))
	for _, e := range entries {
		binary.Write(&dir, le, e.tag)
		binary.Write(&dir, le, e.typ)
		binary.Write(&dir, le, e.count())
		if len(e.data) <= 4 {
			var v [4]byte
			copy(v[:], e.data)
			dir.Write(v[:])
			continue
		}
		binary.Write(&dir, le, dataAt+uint32(data.Len()))
		data.Write(e.data)
		if data.Len()%2 == 1 {
			data.WriteByte(0)
		}
	}
	binary.Write(&dir, le, uint32(0)) // no next IFD
	dir.Write(data.Bytes())
	return dir.Bytes()
}

// exifSegment builds a complete APP1 segment with IFD0 and an Exif sub-IFD.
func exifSegment(f exifFields) ([]byte, error) {
	le := binary.LittleEndian
	ifd0 := []ifdEntry{
		asciiEntry(tagImageDescription, f.ImageDescription),
		asciiEntry(tagSoftware, f.Software),
		asciiEntry(tagArtist, f.Artist),
		asciiEntry(tagCopyright, f.Copyright),
		{tag: tagExifIFD, typ: typeLong, data: make([]byte, 4)},
	}
	first := encodeIFD(ifd0, 8)
	exifAt := uint32(8 + len(first))
	le.PutUint32(ifd0[4].data, exifAt)
	first = encodeIFD(ifd0, 8)

	comment := append([]byte("ASCII\x00\x00\x00"), f.UserComment...)
	sub := encodeIFD([]ifdEntry{{tag: tagUserComment, typ: typeUndefined, data: comment}}, exifAt)

	var tiff bytes.Buffer
	tiff.WriteString("II")
	binary.Write(&tiff, le, uint16(42))
	binary.Write(&tiff, le, uint32(8))
	tiff.Write(first)
	tiff.Write(sub)

	body := append([]byte("Exif\x00\x00"), tiff.Bytes()...)
	if len(body)+2 > 0xffff {
		return nil, fmt.Errorf("exif segment too large: %d bytes", len(body))
	}
	seg := []byte{0xff, 0xe1, 0, 0}
	binary.BigEndian.PutUint16(seg[2:], uint16(len(body)+2))
	return append(seg, body...), nil
}

func insertAfterSOI(jpg, segment []byte) ([]byte, error) {
	if len(jpg) < 2 || jpg[0] != 0xff || jpg[1] != 0xd8 {
		return nil, fmt.Errorf("not a jpeg stream")
	}
	out := make([]byte, 0, len(jpg)+len(segment))
	out = append(out, jpg[:2]...)
	out = append(out, segment...)
	return append(out, jpg[2:]...), nil
}
