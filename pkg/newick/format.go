package newick

import (
	"strconv"
	"strings"
)

// Format renders a tree terminated by a semicolon.
func Format(root *Node) string {
	var b strings.Builder

	writeNode(&b, root)
	b.WriteByte(';')

	return b.String()
}

// String renders the subtree without a terminating semicolon.
func (n *Node) String() string {
	var b strings.Builder

	writeNode(&b, n)

	return b.String()
}

func writeNode(b *strings.Builder, n *Node) {
	if len(n.Children) > 0 {
		b.WriteByte('(')

		for i, child := range n.Children {
			if i > 0 {
				b.WriteByte(',')
			}

			writeNode(b, child)
		}

		b.WriteByte(')')
	}

	b.WriteString(QuoteLabel(n.Label))

	if len(n.Annotations) > 0 {
		b.WriteString("[&")

		for i, a := range n.Annotations {
			if i > 0 {
				b.WriteByte(',')
			}

			b.WriteString(a.Key)
			b.WriteByte('=')
			b.WriteString(a.Value)
		}

		b.WriteByte(']')
	}

	if n.HasLength {
		b.WriteByte(':')
		b.WriteString(strconv.FormatFloat(n.Length, 'g', -1, 64))
	}
}

// QuoteLabel single-quotes a label when it contains Newick delimiters.
func QuoteLabel(label string) string {
	if !strings.ContainsAny(label, "(),:;[] \t\r\n'") {
		return label
	}

	return "'" + strings.ReplaceAll(label, "'", "''") + "'"
}
