package rewrite

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/oklog/ulid/v2"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// TextNode is one addressable run of visible text.
type TextNode struct {
	ID   string
	Text string
	// Tag is the enclosing element, e.g. "td".
	Tag string
}

// Document is an immutable view of an HTML document as a list of text nodes.
// Node ids depend only on document order, so parsing the same markup twice
// yields the same ids and ids sort in document order.
type Document struct {
	source string
	nodes  []TextNode
	byID   map[string]int
}

// skipped elements never contribute text nodes.
var skipped = map[atom.Atom]bool{
	atom.Head:     true,
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Template: true,
}

// Parse builds a Document from HTML markup.
func Parse(markup string) (*Document, error) {
	root, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("Parse: %w", err)
	}

	doc := &Document{source: markup, byID: map[string]int{}}
	walkText(root, func(n *html.Node, i int) {
		id := nodeID(i)
		doc.byID[id] = len(doc.nodes)
		doc.nodes = append(doc.nodes, TextNode{
			ID:   id,
			Text: strings.TrimSpace(n.Data),
			Tag:  n.Parent.Data,
		})
	})
	return doc, nil
}

// Nodes returns a copy of the text nodes in document order.
func (d *Document) Nodes() []TextNode {
	return append([]TextNode(nil), d.nodes...)
}

// Node looks up a text node by id.
func (d *Document) Node(id string) (TextNode, bool) {
	i, ok := d.byID[id]
	if !ok {
		return TextNode{}, false
	}
	return d.nodes[i], true
}

// HTML returns the markup the document was parsed from.
func (d *Document) HTML() string {
	return d.source
}

// Neighbours returns the text of up to n nodes on each side of id.
func (d *Document) Neighbours(id string, n int) (before, after []string) {
	i, ok := d.byID[id]
	if !ok {
		return nil, nil
	}
	for j := max(0, i-n); j < i; j++ {
		before = append(before, d.nodes[j].Text)
	}
	for j := i + 1; j < len(d.nodes) && j <= i+n; j++ {
		after = append(after, d.nodes[j].Text)
	}
	return before, after
}

// WithText returns a new document where the given nodes carry new text.
// Surrounding whitespace of each node is preserved. The receiver is unchanged.
func (d *Document) WithText(replacements map[string]string) (*Document, error) {
	if len(replacements) == 0 {
		return d, nil
	}
	for id, text := range replacements {
		if _, ok := d.byID[id]; !ok {
			return nil, fmt.Errorf("WithText: %w: %s", ErrUnknownNode, id)
		}
		if strings.TrimSpace(text) == "" {
			return nil, fmt.Errorf("WithText: %w: %s", ErrEmptyRewrite, id)
		}
	}

	root, err := html.Parse(strings.NewReader(d.source))
	if err != nil {
		return nil, fmt.Errorf("WithText: %w", err)
	}
	walkText(root, func(n *html.Node, i int) {
		text, ok := replacements[nodeID(i)]
		if !ok {
			return
		}
		lead := n.Data[:len(n.Data)-len(strings.TrimLeft(n.Data, " \t\r\n"))]
		trail := n.Data[len(strings.TrimRight(n.Data, " \t\r\n")):]
		n.Data = lead + strings.TrimSpace(text) + trail
	})

	var buf bytes.Buffer
	if err := html.Render(&buf, root); err != nil {
		return nil, fmt.Errorf("WithText: %w", err)
	}
	return Parse(buf.String())
}

// walkText visits every non-blank text node outside skipped elements, in
// document order, with its ordinal.
func walkText(root *html.Node, visit func(n *html.Node, i int)) {
	i := 0
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && skipped[n.DataAtom] {
			return
		}
		if n.Type == html.TextNode && strings.TrimSpace(n.Data) != "" && n.Parent != nil {
			visit(n, i)
			i++
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
}

// nodeID derives a ULID from the node ordinal: zero timestamp, ordinal as
// big-endian entropy.
func nodeID(i int) string {
	var entropy [10]byte
	binary.BigEndian.PutUint64(entropy[2:], uint64(i))
	return ulid.MustNew(0, bytes.NewReader(entropy[:])).String()
}
