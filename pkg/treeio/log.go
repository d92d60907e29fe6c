package treeio

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/pierrec/lz4/v4"

	"github.com/Sumatoshi-tech/sranges/pkg/newick"
	"github.com/Sumatoshi-tech/sranges/pkg/srtree"
)

// ErrLogFormat is returned for tree logs that are not NEXUS tree blocks.
var ErrLogFormat = errors.New("malformed tree log")

// statePrefix names logged trees as STATE_<iteration>.
const statePrefix = "STATE_"

// maxLogLine bounds one line of a tree log.
const maxLogLine = 64 << 20

// lz4Magic is the little-endian lz4 frame magic number.
var lz4Magic = []byte{0x04, 0x22, 0x4d, 0x18}

// LogWriter writes a NEXUS trees block. Tip labels are replaced by numeric tokens declared in
// the translate block.
type LogWriter struct {
	out    io.Writer
	zw     *lz4.Writer
	tokens map[string]string
	closed bool
}

// NewLogWriter writes the NEXUS header for the given tip labels. With compress set the whole
// log is wrapped in an lz4 frame.
func NewLogWriter(w io.Writer, labels []string, compress bool) (*LogWriter, error) {
	lw := &LogWriter{out: w, tokens: make(map[string]string, len(labels))}

	if compress {
		lw.zw = lz4.NewWriter(w)
		lw.out = lw.zw
	}

	var b strings.Builder

	b.WriteString("#NEXUS\n\nBegin trees;\n\tTranslate\n")

	for i, label := range labels {
		token := strconv.Itoa(i + 1)
		lw.tokens[label] = token

		sep := ","
		if i == len(labels)-1 {
			sep = ""
		}

		fmt.Fprintf(&b, "\t\t%s %s%s\n", token, newick.QuoteLabel(label), sep)
	}

	b.WriteString(";\n")

	_, err := io.WriteString(lw.out, b.String())
	if err != nil {
		return nil, fmt.Errorf("write log header: %w", err)
	}

	return lw, nil
}

// WriteTree appends the tree as state n.
func (lw *LogWriter) WriteTree(n int64, tree *srtree.Tree) error {
	text, err := Write(tree, WithTranslation(lw.tokens))
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(lw.out, "tree %s%d = %s\n", statePrefix, n, text)
	if err != nil {
		return fmt.Errorf("write state %d: %w", n, err)
	}

	return nil
}

// Close ends the trees block and flushes the lz4 frame. The underlying writer is not closed.
func (lw *LogWriter) Close() error {
	if lw.closed {
		return nil
	}

	lw.closed = true

	_, err := io.WriteString(lw.out, "End;\n")
	if err != nil {
		return fmt.Errorf("write log footer: %w", err)
	}

	if lw.zw != nil {
		err = lw.zw.Close()
		if err != nil {
			return fmt.Errorf("close lz4 frame: %w", err)
		}
	}

	return nil
}

// LogReader reads the trees written by LogWriter, or any NEXUS trees block with one tree per
// line. Compressed logs are detected from the lz4 frame magic.
type LogReader struct {
	scanner   *bufio.Scanner
	translate map[string]string
	pending   string
}

// NewLogReader reads the header up to the first tree.
func NewLogReader(r io.Reader) (*LogReader, error) {
	br := bufio.NewReader(r)

	var src io.Reader = br

	magic, err := br.Peek(len(lz4Magic))
	if err == nil && bytes.Equal(magic, lz4Magic) {
		src = lz4.NewReader(br)
	}

	scanner := bufio.NewScanner(src)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLogLine)

	lr := &LogReader{scanner: scanner, translate: make(map[string]string)}

	err = lr.readHeader()
	if err != nil {
		return nil, err
	}

	return lr, nil
}

// Translate returns the token to label table of the log.
func (lr *LogReader) Translate() map[string]string {
	return lr.translate
}

func (lr *LogReader) readHeader() error {
	first := true
	inTranslate := false

	for lr.scanner.Scan() {
		line := strings.TrimSpace(lr.scanner.Text())
		if line == "" {
			continue
		}

		if first {
			if !strings.EqualFold(line, "#NEXUS") {
				return fmt.Errorf("%w: missing #NEXUS header", ErrLogFormat)
			}

			first = false

			continue
		}

		switch {
		case isTreeLine(line):
			lr.pending = line

			return nil
		case strings.EqualFold(line, "translate"):
			inTranslate = true
		case inTranslate:
			done := lr.addTranslations(line)
			inTranslate = !done
		}
	}

	err := lr.scanner.Err()
	if err != nil {
		return fmt.Errorf("read log header: %w", err)
	}

	if first {
		return fmt.Errorf("%w: empty log", ErrLogFormat)
	}

	return nil
}

// addTranslations parses one translate line and reports whether it closed the block.
func (lr *LogReader) addTranslations(line string) bool {
	done := strings.HasSuffix(line, ";")
	line = strings.TrimSuffix(line, ";")

	for _, entry := range strings.Split(line, ",") {
		token, label, found := strings.Cut(strings.TrimSpace(entry), " ")
		if !found {
			continue
		}

		lr.translate[token] = unquote(strings.TrimSpace(label))
	}

	return done
}

// Next returns the next logged state and its Newick text, or io.EOF after the last tree.
func (lr *LogReader) Next() (int64, string, error) {
	line := lr.pending
	lr.pending = ""

	for line == "" {
		if !lr.scanner.Scan() {
			err := lr.scanner.Err()
			if err != nil {
				return 0, "", fmt.Errorf("read tree log: %w", err)
			}

			return 0, "", io.EOF
		}

		candidate := strings.TrimSpace(lr.scanner.Text())
		if isTreeLine(candidate) {
			line = candidate
		}
	}

	name, text, found := strings.Cut(line[len("tree"):], "=")
	if !found {
		return 0, "", fmt.Errorf("%w: tree line without '='", ErrLogFormat)
	}

	state, err := strconv.ParseInt(strings.TrimPrefix(strings.TrimSpace(name), statePrefix), 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("%w: state name %q", ErrLogFormat, strings.TrimSpace(name))
	}

	text = strings.TrimSpace(text)
	text = strings.TrimSpace(strings.TrimPrefix(text, "[&R]"))

	return state, text, nil
}

// NextTree is Next followed by ReadTranslated.
func (lr *LogReader) NextTree(opts ...srtree.Option) (int64, *srtree.Tree, error) {
	state, text, err := lr.Next()
	if err != nil {
		return 0, nil, err
	}

	tree, err := ReadTranslated(text, lr.translate, opts...)
	if err != nil {
		return 0, nil, fmt.Errorf("state %d: %w", state, err)
	}

	return state, tree, nil
}

func isTreeLine(line string) bool {
	return len(line) > len("tree ") && strings.EqualFold(line[:len("tree ")], "tree ")
}

func unquote(label string) string {
	if len(label) >= 2 && label[0] == '\'' && label[len(label)-1] == '\'' {
		return strings.ReplaceAll(label[1:len(label)-1], "''", "'")
	}

	return label
}
