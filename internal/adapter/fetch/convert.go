package fetch

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

var blankLines = regexp.MustCompile(`\n{3,}`)

// extractTitle returns the document title, or "" when there is none.
func extractTitle(htmlContent string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlContent))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}

// htmlToText strips markup and returns readable plain text. Script, style
// and other non-content elements are removed first.
func htmlToText(htmlContent string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlContent))
	if err != nil {
		return "", err
	}
	doc.Find("script, style, noscript, iframe, head").Remove()

	root := doc.Find("body")
	if root.Length() == 0 {
		root = doc.Selection
	}
	text := root.Text()

	// Collapse runs of whitespace while keeping paragraph breaks readable.
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.Join(strings.Fields(line), " ")
		lines = append(lines, line)
	}
	out := strings.Join(lines, "\n")
	out = blankLines.ReplaceAllString(out, "\n\n")
	return strings.TrimSpace(out), nil
}

// htmlToMarkdown converts a document body to Markdown, covering headings,
// paragraphs, links, emphasis, lists, code, blockquotes and rules. Anything
// unrecognized contributes its text content.
func htmlToMarkdown(htmlContent string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlContent))
	if err != nil {
		return "", err
	}
	doc.Find("script, style, noscript, iframe, head").Remove()

	root := doc.Find("body")
	if root.Length() == 0 {
		root = doc.Selection
	}

	var sb strings.Builder
	for _, n := range root.Nodes {
		renderMarkdown(&sb, n, 0)
	}
	out := blankLines.ReplaceAllString(sb.String(), "\n\n")
	return strings.TrimSpace(out), nil
}

func renderMarkdown(sb *strings.Builder, n *html.Node, listDepth int) {
	if n.Type == html.TextNode {
		text := strings.Join(strings.Fields(n.Data), " ")
		if text != "" {
			sb.WriteString(text)
			sb.WriteString(" ")
		}
		return
	}
	if n.Type != html.ElementNode && n.Type != html.DocumentNode {
		return
	}

	switch n.Data {
	case "h1", "h2", "h3", "h4", "h5", "h6":
		level := int(n.Data[1] - '0')
		sb.WriteString("\n\n")
		sb.WriteString(strings.Repeat("#", level))
		sb.WriteString(" ")
		renderChildren(sb, n, listDepth)
		sb.WriteString("\n\n")
	case "p", "div", "section", "article":
		renderChildren(sb, n, listDepth)
		sb.WriteString("\n\n")
	case "a":
		href, _ := findAttr(n, "href")
		text := collectText(n)
		if text == "" {
			text = href
		}
		if href != "" {
			fmt.Fprintf(sb, "[%s](%s) ", text, href)
		} else {
			sb.WriteString(text + " ")
		}
	case "strong", "b":
		if text := collectText(n); text != "" {
			fmt.Fprintf(sb, "**%s** ", text)
		}
	case "em", "i":
		if text := collectText(n); text != "" {
			fmt.Fprintf(sb, "*%s* ", text)
		}
	case "code":
		if text := collectText(n); text != "" {
			fmt.Fprintf(sb, "`%s` ", text)
		}
	case "pre":
		sb.WriteString("\n\n```\n")
		sb.WriteString(strings.TrimSpace(rawText(n)))
		sb.WriteString("\n```\n\n")
	case "ul", "ol":
		sb.WriteString("\n")
		item := 1
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode && c.Data == "li" {
				sb.WriteString(strings.Repeat("  ", listDepth))
				if n.Data == "ol" {
					fmt.Fprintf(sb, "%d. ", item)
					item++
				} else {
					sb.WriteString("- ")
				}
				renderChildren(sb, c, listDepth+1)
				sb.WriteString("\n")
			}
		}
		sb.WriteString("\n")
	case "blockquote":
		text := collectText(n)
		sb.WriteString("\n")
		for _, line := range strings.Split(text, "\n") {
			sb.WriteString("> " + line + "\n")
		}
		sb.WriteString("\n")
	case "hr":
		sb.WriteString("\n\n---\n\n")
	case "br":
		sb.WriteString("\n")
	default:
		renderChildren(sb, n, listDepth)
	}
}

func renderChildren(sb *strings.Builder, n *html.Node, listDepth int) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		renderMarkdown(sb, c, listDepth)
	}
}

// collectText returns the normalized text content of a node.
func collectText(n *html.Node) string {
	return strings.Join(strings.Fields(rawText(n)), " ")
}

func rawText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

func findAttr(n *html.Node, key string) (string, bool) {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val, true
		}
	}
	return "", false
}
