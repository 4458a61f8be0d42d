package extract

import (
	"regexp"

	"github.com/YannKr/countersignal/internal/technique"
)

var (
	reMDComment = regexp.MustCompile(`(?s)<!--(.*?)-->`)
	reMDLinkRef = regexp.MustCompile(`(?m)^\[([^\]]+)\]:\s*[^\s]+\s+"([^"]+)"`)
	reMDHidden  = regexp.MustCompile(`(?is)<div[^>]*style\s*=\s*"[^"]*display\s*:\s*none[^"]*"[^>]*>(.*?)</div>`)
)

func extractMarkdown(r *report, doc string) {
	r.section("Raw Content", doc)

	var comments []string
	for _, m := range reMDComment.FindAllStringSubmatch(doc, -1) {
		comments = append(comments, m[1])
	}
	r.section("HTML Comments", comments...)

	var refs []string
	for _, m := range reMDLinkRef.FindAllStringSubmatch(doc, -1) {
		refs = append(refs, m[1]+": "+m[2])
	}
	r.section("Link References", refs...)

	r.section("Zero-Width Decoded", technique.DecodeZeroWidth(doc)...)

	var hidden []string
	for _, m := range reMDHidden.FindAllStringSubmatch(doc, -1) {
		hidden = append(hidden, m[1])
	}
	r.section("Hidden Blocks", hidden...)
}
