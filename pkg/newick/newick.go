// Package newick parses and formats Newick tree strings with BEAST-style [&key=value]
// annotations.
package newick

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrSyntax is returned for malformed Newick text.
var ErrSyntax = errors.New("newick syntax error")

// Annotation is one key=value pair of an annotation block. List values keep their braces.
type Annotation struct {
	Key   string
	Value string
}

// Node is a parsed Newick node.
type Node struct {
	Label       string
	Length      float64
	HasLength   bool
	Annotations []Annotation
	Children    []*Node
}

// Annotation returns the value of the first annotation with the given key.
func (n *Node) Annotation(key string) (string, bool) {
	for _, a := range n.Annotations {
		if a.Key == key {
			return a.Value, true
		}
	}

	return "", false
}

// SetAnnotation replaces or appends an annotation.
func (n *Node) SetAnnotation(key, value string) {
	for i := range n.Annotations {
		if n.Annotations[i].Key == key {
			n.Annotations[i].Value = value

			return
		}
	}

	n.Annotations = append(n.Annotations, Annotation{Key: key, Value: value})
}

// IsLeaf reports whether the node has no children.
func (n *Node) IsLeaf() bool {
	return len(n.Children) == 0
}

// Walk visits the subtree in preorder.
func (n *Node) Walk(fn func(*Node)) {
	fn(n)

	for _, child := range n.Children {
		child.Walk(fn)
	}
}

// Parse reads one tree. A trailing semicolon is optional.
func Parse(text string) (*Node, error) {
	p := &parser{src: text}

	root, err := p.subtree()
	if err != nil {
		return nil, err
	}

	p.skipSpace()

	if p.peek() == ';' {
		p.pos++
	}

	p.skipSpace()

	if p.pos != len(p.src) {
		return nil, p.errorf("unexpected %q after tree", p.src[p.pos])
	}

	return root, nil
}

type parser struct {
	src string
	pos int
}

func (p *parser) errorf(format string, args ...any) error {
	return fmt.Errorf("%w: offset %d: %s", ErrSyntax, p.pos, fmt.Sprintf(format, args...))
}

func (p *parser) peek() byte {
	if p.pos >= len(p.src) {
		return 0
	}

	return p.src[p.pos]
}

func (p *parser) skipSpace() {
	for p.pos < len(p.src) && strings.IndexByte(" \t\r\n", p.src[p.pos]) >= 0 {
		p.pos++
	}
}

func (p *parser) subtree() (*Node, error) {
	node := &Node{}

	p.skipSpace()

	if p.peek() == '(' {
		p.pos++

		for {
			child, err := p.subtree()
			if err != nil {
				return nil, err
			}

			node.Children = append(node.Children, child)

			p.skipSpace()

			if p.peek() == ',' {
				p.pos++

				continue
			}

			if p.peek() != ')' {
				return nil, p.errorf("expected ',' or ')'")
			}

			p.pos++

			break
		}
	}

	label, err := p.label()
	if err != nil {
		return nil, err
	}

	node.Label = label

	err = p.annotations(node)
	if err != nil {
		return nil, err
	}

	p.skipSpace()

	if p.peek() == ':' {
		p.pos++

		err = p.annotations(node)
		if err != nil {
			return nil, err
		}

		length, lenErr := p.length()
		if lenErr != nil {
			return nil, lenErr
		}

		node.Length, node.HasLength = length, true

		err = p.annotations(node)
		if err != nil {
			return nil, err
		}
	}

	if node.IsLeaf() && node.Label == "" {
		return nil, p.errorf("leaf without label")
	}

	return node, nil
}

func (p *parser) label() (string, error) {
	p.skipSpace()

	if p.peek() == '\'' {
		return p.quoted()
	}

	start := p.pos

	for p.pos < len(p.src) && !isDelimiter(p.src[p.pos]) {
		p.pos++
	}

	return p.src[start:p.pos], nil
}

func (p *parser) quoted() (string, error) {
	p.pos++

	var b strings.Builder

	for p.pos < len(p.src) {
		c := p.src[p.pos]
		p.pos++

		if c != '\'' {
			b.WriteByte(c)

			continue
		}

		if p.peek() == '\'' {
			b.WriteByte('\'')
			p.pos++

			continue
		}

		return b.String(), nil
	}

	return "", p.errorf("unterminated quoted label")
}

func (p *parser) length() (float64, error) {
	p.skipSpace()

	start := p.pos

	for p.pos < len(p.src) && !isDelimiter(p.src[p.pos]) {
		p.pos++
	}

	v, err := strconv.ParseFloat(p.src[start:p.pos], 64)
	if err != nil {
		return 0, p.errorf("bad branch length %q", p.src[start:p.pos])
	}

	return v, nil
}

// annotations reads zero or more [&...] blocks. Plain [comments] are skipped.
func (p *parser) annotations(node *Node) error {
	for {
		p.skipSpace()

		if p.peek() != '[' {
			return nil
		}

		end := p.blockEnd()
		if end < 0 {
			return p.errorf("unterminated annotation")
		}

		body := p.src[p.pos+1 : end]
		p.pos = end + 1

		if !strings.HasPrefix(body, "&") {
			continue
		}

		for _, item := range splitTopLevel(body[1:]) {
			if item == "" {
				continue
			}

			key, value, found := strings.Cut(item, "=")
			if !found {
				return p.errorf("annotation %q lacks '='", item)
			}

			node.Annotations = append(node.Annotations, Annotation{Key: strings.TrimSpace(key), Value: strings.TrimSpace(value)})
		}
	}
}

func (p *parser) blockEnd() int {
	depth := 0

	for i := p.pos; i < len(p.src); i++ {
		switch p.src[i] {
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				return i
			}
		}
	}

	return -1
}

// splitTopLevel splits on commas outside {...} lists and quoted strings.
func splitTopLevel(s string) []string {
	var (
		out    []string
		depth  int
		quoted bool
		start  int
	)

	for i := range len(s) {
		switch c := s[i]; {
		case c == '"':
			quoted = !quoted
		case quoted:
		case c == '{':
			depth++
		case c == '}':
			depth--
		case c == ',' && depth == 0:
			out = append(out, s[start:i])
			start = i + 1
		}
	}

	return append(out, s[start:])
}

func isDelimiter(c byte) bool {
	return strings.IndexByte("(),:;[] \t\r\n", c) >= 0
}
