// Package cover renders an idea as a self-contained 9:16 HTML card and
// extracts plain-text excerpts for list views.
package cover

import (
	"bytes"
	"fmt"
	"html/template"
	"io"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/nugget/vibeplanner/internal/idea"
)

// markdown renders idea content. Raw HTML in the source is not passed
// through.
var markdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithRendererOptions(gmhtml.WithHardWraps()),
)

// safeGradient limits card backgrounds to plain CSS gradients.
var safeGradient = regexp.MustCompile(`^(linear|radial)-gradient\([#%0-9a-zA-Z .,-]+\)$`)

var cardTemplate = template.Must(template.New("card").Parse(`<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>{{.Title}}</title>
<style>
body { margin: 0; background: #0b0b0f; display: flex; justify-content: center; }
.card { width: 540px; height: 960px; box-sizing: border-box; padding: 48px; color: #fff;
  font-family: sans-serif; display: flex; flex-direction: column; gap: 24px; overflow: hidden; }
.status { align-self: flex-start; font-size: 12px; letter-spacing: .1em; text-transform: uppercase;
  padding: 4px 12px; border-radius: 999px; background: rgba(255,255,255,.15); }
h1 { font-size: 44px; line-height: 1.1; margin: 0; text-shadow: 0 2px 8px rgba(0,0,0,.4); }
.content { font-size: 18px; line-height: 1.5; opacity: .9; }
</style></head>
<body><div class="card" style="background: {{.Gradient}}">
<span class="status">{{.Status}}</span>
<h1>{{.Title}}</h1>
<div class="content">{{.Content}}</div>
</div></body></html>
`))

type card struct {
	Title    string
	Status   string
	Gradient template.CSS
	Content  template.HTML
}

// Render writes the HTML card for i to w.
func Render(w io.Writer, i idea.Idea) error {
	content, err := toHTML(i.Content)
	if err != nil {
		return err
	}
	c := card{
		Title:    i.Title,
		Status:   strings.ReplaceAll(string(i.Status.OrDefault()), "_", " "),
		Gradient: template.CSS(gradientFor(i)),
		Content:  template.HTML(content),
	}
	if err := cardTemplate.Execute(w, c); err != nil {
		return fmt.Errorf("render cover %d: %w", i.ID, err)
	}
	return nil
}

// Excerpt returns up to max characters of i's content as plain text.
func Excerpt(i idea.Idea, max int) (string, error) {
	content, err := toHTML(i.Content)
	if err != nil {
		return "", err
	}
	return PlainText(content, max), nil
}

func toHTML(md string) (string, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(md), &buf); err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return buf.String(), nil
}

func gradientFor(i idea.Idea) string {
	if g := i.Metadata.Gradient(); safeGradient.MatchString(g) {
		return g
	}
	return idea.Gradients[0]
}

// skipElements are elements whose text never belongs in an excerpt.
var skipElements = map[atom.Atom]bool{
	atom.Script: true,
	atom.Style:  true,
	atom.Head:   true,
}

// PlainText returns the visible text of an HTML fragment with
// whitespace collapsed, cut to max characters. A max of zero or less
// means no limit.
func PlainText(fragment string, max int) string {
	doc, err := html.Parse(strings.NewReader(fragment))
	if err != nil {
		return ""
	}
	var b strings.Builder
	collectText(doc, &b)

	text := strings.Join(strings.Fields(b.String()), " ")
	if max <= 0 || utf8.RuneCountInString(text) <= max {
		return text
	}
	runes := []rune(text)
	return strings.TrimSpace(string(runes[:max])) + "…"
}

func collectText(n *html.Node, w *strings.Builder) {
	if n.Type == html.ElementNode && skipElements[n.DataAtom] {
		return
	}
	if n.Type == html.TextNode {
		w.WriteString(n.Data)
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, w)
	}
	// Block boundaries separate words.
	if n.Type == html.ElementNode {
		switch n.DataAtom {
		case atom.P, atom.Br, atom.Li, atom.H1, atom.H2, atom.H3, atom.H4, atom.Div, atom.Tr, atom.Td, atom.Th:
			w.WriteByte(' ')
		}
	}
}
