package generator

import (
	"bytes"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// pdfUpdate appends an incremental update to an existing PDF: changed and
// new objects, a fresh xref section and a trailer chained with /Prev. The
// original bytes are left untouched.
type pdfUpdate struct {
	base    []byte
	size    int
	root    int
	info    int
	prev    int
	objects map[int]string
}

var (
	reTrailerSize = regexp.MustCompile(`/Size\s+(\d+)`)
	reTrailerRoot = regexp.MustCompile(`/Root\s+(\d+)\s+0\s+R`)
	reTrailerInfo = regexp.MustCompile(`/Info\s+(\d+)\s+0\s+R`)
	reStartXref   = regexp.MustCompile(`startxref\s+(\d+)`)
	rePagesRef    = regexp.MustCompile(`/Pages\s+(\d+)\s+0\s+R`)
	reKidsFirst   = regexp.MustCompile(`/Kids\s*\[\s*(\d+)\s+0\s+R`)
)

func newPDFUpdate(base []byte) (*pdfUpdate, error) {
	at := bytes.LastIndex(base, []byte("trailer"))
	if at < 0 {
		return nil, fmt.Errorf("pdf update: no trailer")
	}
	trailer := base[at:]

	u := &pdfUpdate{base: base, objects: make(map[int]string)}
	var err error
	if u.size, err = lastInt(reTrailerSize, trailer); err != nil {
		return nil, fmt.Errorf("pdf update: trailer /Size: %w", err)
	}
	if u.root, err = lastInt(reTrailerRoot, trailer); err != nil {
		return nil, fmt.Errorf("pdf update: trailer /Root: %w", err)
	}
	u.info, _ = lastInt(reTrailerInfo, trailer)
	if u.prev, err = lastInt(reStartXref, trailer); err != nil {
		return nil, fmt.Errorf("pdf update: startxref: %w", err)
	}
	return u, nil
}

func lastInt(re *regexp.Regexp, b []byte) (int, error) {
	m := re.FindAllSubmatch(b, -1)
	if len(m) == 0 {
		return 0, fmt.Errorf("not found")
	}
	return strconv.Atoi(string(m[len(m)-1][1]))
}

func (u *pdfUpdate) alloc() int {
	n := u.size
	u.size++
	return n
}

func (u *pdfUpdate) set(num int, body string) {
	u.objects[num] = body
}

// object returns the current body of object num, preferring a pending edit
// over the newest definition in the base file.
func (u *pdfUpdate) object(num int) (string, error) {
	if body, ok := u.objects[num]; ok {
		return body, nil
	}
	re := regexp.MustCompile(`(?s)(?:^|[\r\n])` + strconv.Itoa(num) + `\s+0\s+obj\s*(.*?)\s*endobj`)
	m := re.FindAllSubmatch(u.base, -1)
	if len(m) == 0 {
		return "", fmt.Errorf("pdf update: object %d not found", num)
	}
	body := string(m[len(m)-1][1])
	if strings.Contains(body, "stream") {
		return "", fmt.Errorf("pdf update: object %d is a stream", num)
	}
	return body, nil
}

// editObject rewrites a dictionary object with extra entries appended.
func (u *pdfUpdate) editObject(num int, entries string) error {
	body, err := u.object(num)
	if err != nil {
		return err
	}
	end := strings.LastIndex(body, ">>")
	if end < 0 {
		return fmt.Errorf("pdf update: object %d is not a dictionary", num)
	}
	u.set(num, body[:end]+"\n"+entries+"\n"+body[end:])
	return nil
}

func (u *pdfUpdate) firstPage() (int, error) {
	root, err := u.object(u.root)
	if err != nil {
		return 0, err
	}
	pagesNum, err := lastInt(rePagesRef, []byte(root))
	if err != nil {
		return 0, fmt.Errorf("pdf update: catalog has no /Pages")
	}
	pages, err := u.object(pagesNum)
	if err != nil {
		return 0, err
	}
	m := reKidsFirst.FindStringSubmatch(pages)
	if m == nil {
		return 0, fmt.Errorf("pdf update: page tree has no kids")
	}
	return strconv.Atoi(m[1])
}

func (u *pdfUpdate) appendAnnots(page int, annots ...int) error {
	refs := make([]string, len(annots))
	for i, a := range annots {
		refs[i] = fmt.Sprintf("%d 0 R", a)
	}
	body, err := u.object(page)
	if err != nil {
		return err
	}
	if i := strings.Index(body, "/Annots ["); i >= 0 {
		at := i + len("/Annots [")
		u.set(page, body[:at]+strings.Join(refs, " ")+" "+body[at:])
		return nil
	}
	return u.editObject(page, "/Annots ["+strings.Join(refs, " ")+"]")
}

func (u *pdfUpdate) bytes() []byte {
	var b bytes.Buffer
	b.Write(u.base)
	if !bytes.HasSuffix(u.base, []byte("\n")) {
		b.WriteByte('\n')
	}

	nums := make([]int, 0, len(u.objects))
	for n := range u.objects {
		nums = append(nums, n)
	}
	sort.Ints(nums)

	offsets := make(map[int]int, len(nums))
	for _, n := range nums {
		offsets[n] = b.Len()
		fmt.Fprintf(&b, "%d 0 obj\n%s\nendobj\n", n, u.objects[n])
	}

	xref := b.Len()
	b.WriteString("xref\n0 1\n0000000000 65535 f \n")
	for _, n := range nums {
		fmt.Fprintf(&b, "%d 1\n%010d 00000 n \n", n, offsets[n])
	}
	fmt.Fprintf(&b, "trailer\n<<\n/Size %d\n/Root %d 0 R\n", u.size, u.root)
	if u.info != 0 {
		fmt.Fprintf(&b, "/Info %d 0 R\n", u.info)
	}
	fmt.Fprintf(&b, "/Prev %d\n>>\nstartxref\n%d\n%%%%EOF\n", u.prev, xref)
	return b.Bytes()
}

var pdfEscaper = strings.NewReplacer(`\`, `\\`, `(`, `\(`, `)`, `\)`, "\r", `\r`, "\n", `\n`)

func pdfString(s string) string {
	return "(" + pdfEscaper.Replace(s) + ")"
}
