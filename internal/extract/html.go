package extract

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var (
	reBlockComment = regexp.MustCompile(`(?s)/\*(.*?)\*/`)
	reLineComment  = regexp.MustCompile(`(?m)//(.*)$`)
	reOffscreen    = regexp.MustCompile(`(?i)(left|top|right|bottom)\s*:\s*-\d`)
	reHiddenStyle  = regexp.MustCompile(`(?i)display\s*:\s*none|visibility\s*:\s*hidden`)
)

func extractHTML(r *report, doc string) error {
	root, err := html.Parse(strings.NewReader(doc))
	if err != nil {
		return err
	}

	r.section("Raw Content", doc)

	var visible, comments, scripts, offscreen, hidden, data, meta []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.CommentNode:
			comments = append(comments, n.Data)
		case html.TextNode:
			if p := n.Parent; p != nil && (p.DataAtom == atom.Script || p.DataAtom == atom.Style) {
				break
			}
			visible = append(visible, n.Data)
		case html.ElementNode:
			style := attr(n, "style")
			if reOffscreen.MatchString(style) {
				offscreen = append(offscreen, textOf(n))
			}
			if reHiddenStyle.MatchString(style) {
				hidden = append(hidden, textOf(n))
			}
			for _, a := range n.Attr {
				if strings.HasPrefix(a.Key, "data-") {
					data = append(data, a.Key+": "+a.Val)
				}
			}
			switch n.DataAtom {
			case atom.Script:
				src := textOf(n)
				for _, m := range reBlockComment.FindAllStringSubmatch(src, -1) {
					scripts = append(scripts, m[1])
				}
				for _, m := range reLineComment.FindAllStringSubmatch(src, -1) {
					scripts = append(scripts, m[1])
				}
			case atom.Meta:
				if c := attr(n, "content"); len(c) > 50 || strings.Contains(c, "http") {
					meta = append(meta, attr(n, "name")+": "+c)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)

	r.section("Visible Text", visible...)
	r.section("HTML Comments", comments...)
	r.section("Script Comments", scripts...)
	r.section("Off-screen Elements", offscreen...)
	r.section("Hidden Elements", hidden...)
	r.section("Data Attributes", data...)
	r.section("Meta Tags", meta...)
	return nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func textOf(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}
