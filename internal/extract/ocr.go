package extract

import (
	"image"
	"image/color"
	"sort"
	"strings"
	"sync"

	"golang.org/x/image/font/basicfont"
)

// The generator rasterizes with the fixed 7x13 bitmap face, so recognition
// is exact template matching of glyph cells rather than general OCR.

const (
	glyphW   = 6
	glyphH   = 13
	advance  = 7
	inkLevel = 250
	minRun   = 4
	maxGap   = 2
)

type glyphKey [glyphH]uint8

var (
	templatesOnce sync.Once
	templates     map[glyphKey]rune
)

func loadTemplates() {
	face := basicfont.Face7x13
	templates = make(map[glyphKey]rune)
	for r := rune(0x21); r <= 0x7e; r++ {
		top := int(r-0x20) * (face.Ascent + face.Descent)
		var k glyphKey
		for y := 0; y < glyphH; y++ {
			for x := 0; x < glyphW; x++ {
				_, _, _, a := face.Mask.At(x, top+y).RGBA()
				if a > 0 {
					k[y] |= 1 << x
				}
			}
		}
		if _, dup := templates[k]; !dup {
			templates[k] = r
		}
	}
}

type inkMap struct {
	w, h int
	ink  []bool
}

func newInkMap(img image.Image) *inkMap {
	b := img.Bounds()
	m := &inkMap{w: b.Dx(), h: b.Dy(), ink: make([]bool, b.Dx()*b.Dy())}
	for y := 0; y < m.h; y++ {
		for x := 0; x < m.w; x++ {
			g := color.GrayModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.Gray)
			m.ink[y*m.w+x] = g.Y < inkLevel
		}
	}
	return m
}

func (m *inkMap) at(x, y int) bool {
	if x < 0 || y < 0 || x >= m.w || y >= m.h {
		return false
	}
	return m.ink[y*m.w+x]
}

func (m *inkMap) key(x, y int) glyphKey {
	var k glyphKey
	for dy := 0; dy < glyphH; dy++ {
		for dx := 0; dx < glyphW; dx++ {
			if m.at(x+dx, y+dy) {
				k[dy] |= 1 << dx
			}
		}
	}
	return k
}

// blank reports whether a full advance cell starting at x is empty.
func (m *inkMap) blank(x, y int) bool {
	for dy := 0; dy < glyphH; dy++ {
		for dx := 0; dx < advance; dx++ {
			if m.at(x+dx, y+dy) {
				return false
			}
		}
	}
	return true
}

type textRun struct {
	rect   image.Rectangle
	text   string
	glyphs int
}

// recognize returns the text lines found in img, top to bottom.
func recognize(img image.Image) []string {
	templatesOnce.Do(loadTemplates)
	m := newInkMap(img)

	var runs []textRun
	for y := 0; y+glyphH <= m.h; y++ {
		for x := 0; x+glyphW <= m.w; x++ {
			if _, ok := templates[m.key(x, y)]; !ok {
				continue
			}
			run := m.readRun(x, y)
			if run.glyphs >= minRun && strings.IndexFunc(run.text, isLetter) >= 0 {
				runs = append(runs, run)
			}
		}
	}

	// Every suffix of a line is also a run, as are the few cells a shifted
	// window happens to match. The longest run covering an area wins.
	sort.SliceStable(runs, func(i, j int) bool { return runs[i].glyphs > runs[j].glyphs })
	var kept []textRun
	for _, r := range runs {
		overlaps := false
		for _, k := range kept {
			if r.rect.Overlaps(k.rect) {
				overlaps = true
				break
			}
		}
		if !overlaps {
			kept = append(kept, r)
		}
	}
	sort.Slice(kept, func(i, j int) bool {
		if kept[i].rect.Min.Y != kept[j].rect.Min.Y {
			return kept[i].rect.Min.Y < kept[j].rect.Min.Y
		}
		return kept[i].rect.Min.X < kept[j].rect.Min.X
	})

	var lines []string
	lastY := -1
	for _, r := range kept {
		if r.rect.Min.Y == lastY && len(lines) > 0 {
			lines[len(lines)-1] += " " + r.text
			continue
		}
		lines = append(lines, r.text)
		lastY = r.rect.Min.Y
	}
	return lines
}

// readRun reads glyphs left to right from a matched cell, allowing up to
// maxGap blank cells between words.
func (m *inkMap) readRun(x0, y int) textRun {
	var b strings.Builder
	glyphs, gaps := 0, 0
	last := x0
	for x := x0; x+glyphW <= m.w; x += advance {
		if r, ok := templates[m.key(x, y)]; ok {
			if gaps > 0 {
				b.WriteString(strings.Repeat(" ", gaps))
			}
			b.WriteRune(r)
			glyphs++
			gaps = 0
			last = x
			continue
		}
		if gaps < maxGap && m.blank(x, y) {
			gaps++
			continue
		}
		break
	}
	return textRun{
		rect:   image.Rect(x0, y, last+glyphW, y+glyphH),
		text:   b.String(),
		glyphs: glyphs,
	}
}

func isLetter(r rune) bool {
	return r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z'
}
