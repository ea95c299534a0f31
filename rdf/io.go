package rdf

import (
	"bufio"
	"bytes"
	"io"
	"slices"
	"strings"

	"github.com/teranos/pwcmeta/errors"
)

// MaxLineBytes bounds a single N-Triples line, newline excluded. Writer
// refuses longer statements and Each reports longer lines as bad.
const MaxLineBytes = 1 << 20

// Sort orders statements by their rendered line, giving byte-identical
// output for equal sets.
func Sort(stmts []Statement) {
	type keyed struct {
		line string
		st   Statement
	}
	tmp := make([]keyed, len(stmts))
	for i, st := range stmts {
		tmp[i] = keyed{line: st.String(), st: st}
	}
	slices.SortFunc(tmp, func(a, b keyed) int { return strings.Compare(a.line, b.line) })
	for i := range tmp {
		stmts[i] = tmp[i].st
	}
}

// Writer streams statements as newline-terminated N-Triples lines.
type Writer struct {
	w     *bufio.Writer
	count int
	bytes int64
}

// NewWriter wraps w. Call Flush when done.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

// Write appends one statement.
func (w *Writer) Write(st Statement) error {
	if !st.Valid() {
		return errors.Newf("refusing to write invalid statement %s", st)
	}
	line := st.String()
	if len(line) > MaxLineBytes {
		return errors.Newf("statement about %s is %d bytes, over the %d byte line limit",
			st.Subject, len(line), MaxLineBytes)
	}
	n, err := w.w.WriteString(line)
	w.bytes += int64(n)
	if err != nil {
		return errors.Wrap(err, "write statement")
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return errors.Wrap(err, "write statement")
	}
	w.bytes++
	w.count++
	return nil
}

// WriteAll appends every statement in order.
func (w *Writer) WriteAll(stmts []Statement) error {
	for _, st := range stmts {
		if err := w.Write(st); err != nil {
			return err
		}
	}
	return nil
}

// Flush writes any buffered data to the underlying writer.
func (w *Writer) Flush() error {
	return errors.Wrap(w.w.Flush(), "flush statements")
}

// Count returns the number of statements written.
func (w *Writer) Count() int { return w.count }

// Bytes returns the number of bytes written, including newlines.
func (w *Writer) Bytes() int64 { return w.bytes }

// ErrLineTooLong is passed to onBad for lines longer than MaxLineBytes.
var ErrLineTooLong = errors.Mark(errors.Newf("line exceeds %d bytes", MaxLineBytes), errors.ErrPartialArtifact)

// Each calls fn for every statement in r. Blank and comment lines are
// skipped. Lines that fail to parse, including lines longer than
// MaxLineBytes, go to onBad (which may be nil) and do not stop the scan.
// Only read errors are returned.
func Each(r io.Reader, fn func(Statement) error, onBad func(lineNo int, line string, err error)) error {
	br := bufio.NewReaderSize(r, 64*1024)
	buf := make([]byte, 0, 64*1024)

	lineNo := 0
	for {
		raw, tooLong, rerr := readLine(br, buf[:0])
		if rerr != nil && rerr != io.EOF {
			return errors.Wrapf(rerr, "read statements after line %d", lineNo)
		}
		if rerr == io.EOF && len(raw) == 0 && !tooLong {
			return nil
		}
		buf = raw[:0]
		lineNo++

		switch {
		case tooLong:
			if onBad != nil {
				onBad(lineNo, "", ErrLineTooLong)
			}
		case IsBlankOrComment(string(raw)):
		default:
			line := string(raw)
			st, err := ParseLine(line)
			if err != nil {
				if onBad != nil {
					onBad(lineNo, line, err)
				}
				break
			}
			if err := fn(st); err != nil {
				return err
			}
		}
		if rerr == io.EOF {
			return nil
		}
	}
}

// readLine appends the next line of br to buf without its line ending. The
// rest of a line longer than MaxLineBytes is drained and dropped, and
// tooLong is set. err is io.EOF when the input ended, possibly after a
// final unterminated line.
func readLine(br *bufio.Reader, buf []byte) (line []byte, tooLong bool, err error) {
	for {
		chunk, err := br.ReadSlice('\n')
		if !tooLong {
			// room for a trailing \r\n on top of the limit
			if len(buf)+len(chunk) > MaxLineBytes+2 {
				tooLong = true
				buf = buf[:0]
			} else {
				buf = append(buf, chunk...)
			}
		}
		if err == bufio.ErrBufferFull {
			continue
		}
		buf = bytes.TrimSuffix(buf, []byte("\n"))
		buf = bytes.TrimSuffix(buf, []byte("\r"))
		if !tooLong && len(buf) > MaxLineBytes {
			tooLong = true
			buf = buf[:0]
		}
		return buf, tooLong, err
	}
}

// ReadAll collects every parseable statement in r.
func ReadAll(r io.Reader, onBad func(lineNo int, line string, err error)) ([]Statement, error) {
	var out []Statement
	err := Each(r, func(st Statement) error {
		out = append(out, st)
		return nil
	}, onBad)
	return out, err
}
