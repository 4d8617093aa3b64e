package osiptel

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"

	"github.com/hvborda/lineas/pkg/extract"
)

// gridID is the id of the results table on the lookup page.
const gridID = "GridConsulta"

// Placeholder texts the grid shows while loading or when a lookup has no
// rows; any row starting with one of these carries no data.
var placeholderPrefixes = []string{
	"Cargando",
	"Loading",
	"Procesando",
	"No se encontraron",
}

// parseGrid reads the response body and extracts the phone-line rows from
// the results table. A missing table is a target-missing failure; a body
// that cannot be parsed at all is a page-load failure.
func parseGrid(body io.ReadCloser) ([]extract.Record, error) {
	defer body.Close()

	doc, err := html.Parse(body)
	if err != nil {
		return nil, extract.NewError(extract.KindPageLoadError, "parsing response body", err)
	}

	table := findByID(doc, gridID)
	if table == nil {
		return nil, extract.NewError(extract.KindTargetMissing,
			fmt.Sprintf("results table #%s not found", gridID), nil)
	}

	var records []extract.Record
	for _, row := range findAll(table, "tr") {
		if strings.Contains(attr(row, "class"), "GridPager") {
			continue
		}
		cells := cellTexts(row)
		if len(cells) < 3 || cells[0] == "" || isPlaceholder(cells[0]) {
			continue
		}
		records = append(records, extract.Record{
			Modality: cells[0],
			Number:   cells[1],
			Operator: cells[2],
		})
	}
	return records, nil
}

func isPlaceholder(text string) bool {
	for _, p := range placeholderPrefixes {
		if strings.Contains(text, p) {
			return true
		}
	}
	return false
}

// cellTexts returns the trimmed inner text of each td in the row.
func cellTexts(row *html.Node) []string {
	var cells []string
	for _, td := range findAll(row, "td") {
		cells = append(cells, strings.TrimSpace(innerText(td)))
	}
	return cells
}

func findByID(n *html.Node, id string) *html.Node {
	if n.Type == html.ElementNode && attr(n, "id") == id {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findByID(c, id); found != nil {
			return found
		}
	}
	return nil
}

func findAll(n *html.Node, tag string) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.ElementNode && node.Data == tag {
			out = append(out, node)
			return
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c)
	}
	return out
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func innerText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.TextNode {
			b.WriteString(node.Data)
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}
