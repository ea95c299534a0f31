package ixgest

import (
	"io"
	"os"

	"github.com/teranos/pwcmeta/errors"
)

// DefaultBufferSize is the copy buffer used when BufferSize is unset.
const DefaultBufferSize = 64 << 10

// Concatenator folds artifacts into the merged store one at a time.
// It is not safe for concurrent use: the merged store has a single writer.
type Concatenator struct {
	Path       string
	BufferSize int

	buf  []byte
	size int64
}

// Reset removes any merged store left at Path and starts an empty one.
func (c *Concatenator) Reset() error {
	if err := os.Remove(c.Path); err != nil && !os.IsNotExist(err) {
		return errors.Mark(errors.Wrapf(err, "remove stale merged store %s", c.Path), errors.ErrAggregationIO)
	}
	f, err := os.OpenFile(c.Path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return errors.Mark(errors.Wrapf(err, "create merged store %s", c.Path), errors.ErrAggregationIO)
	}
	c.size = 0
	return errors.Mark(f.Close(), errors.ErrAggregationIO)
}

// Size returns the number of bytes appended since Reset.
func (c *Concatenator) Size() int64 { return c.size }

// Ingest appends the artifact to the merged store and deletes the artifact.
// It returns the number of bytes appended.
//
// The append is all-or-nothing: if copying fails the merged store is
// truncated back to its previous length. A problem with the artifact itself
// is marked ErrPartialArtifact and only loses that item; a problem with the
// merged store is marked ErrAggregationIO.
func (c *Concatenator) Ingest(artifact string) (int64, error) {
	src, err := os.Open(artifact)
	if err != nil {
		return 0, errors.Mark(errors.Wrapf(err, "open artifact %s", artifact), errors.ErrPartialArtifact)
	}
	defer src.Close()

	dst, err := os.OpenFile(c.Path, os.O_WRONLY|os.O_APPEND, 0)
	if err != nil {
		return 0, errors.Mark(errors.Wrapf(err, "open merged store %s", c.Path), errors.ErrAggregationIO)
	}

	info, err := dst.Stat()
	if err != nil {
		dst.Close()
		return 0, errors.Mark(errors.Wrap(err, "stat merged store"), errors.ErrAggregationIO)
	}
	before := info.Size()

	n, copyErr := c.copy(dst, src)
	if copyErr == nil {
		copyErr = dst.Sync()
		if copyErr != nil {
			copyErr = errors.Mark(errors.Wrap(copyErr, "sync merged store"), errors.ErrAggregationIO)
		}
	}
	if copyErr != nil {
		if terr := dst.Truncate(before); terr != nil {
			copyErr = errors.Mark(errors.CombineErrors(copyErr, terr), errors.ErrAggregationIO)
		}
		dst.Close()
		return 0, copyErr
	}
	if err := dst.Close(); err != nil {
		return 0, errors.Mark(errors.Wrap(err, "close merged store"), errors.ErrAggregationIO)
	}

	c.size += n
	src.Close()
	if err := os.Remove(artifact); err != nil {
		// the bytes are in; a leftover artifact only costs disk
		return n, errors.Wrapf(err, "remove ingested artifact %s", artifact)
	}
	return n, nil
}

// copy streams src into dst through the bounded buffer and terminates the
// appended block with a newline if the artifact lacked one.
func (c *Concatenator) copy(dst io.Writer, src io.Reader) (int64, error) {
	if c.buf == nil {
		size := c.BufferSize
		if size <= 0 {
			size = DefaultBufferSize
		}
		c.buf = make([]byte, size)
	}

	r := &trackingReader{r: src}
	w := &trackingWriter{w: dst}
	n, err := io.CopyBuffer(w, r, c.buf)
	if err != nil {
		if r.err != nil {
			return n, errors.Mark(errors.Wrap(r.err, "read artifact"), errors.ErrPartialArtifact)
		}
		return n, errors.Mark(errors.Wrap(err, "append to merged store"), errors.ErrAggregationIO)
	}

	if n > 0 && w.last != '\n' {
		if _, err := w.Write([]byte{'\n'}); err != nil {
			return n, errors.Mark(errors.Wrap(err, "append newline to merged store"), errors.ErrAggregationIO)
		}
		n++
	}
	return n, nil
}

// trackingReader records read errors and hides ReaderFrom/WriterTo so
// CopyBuffer uses the configured buffer.
type trackingReader struct {
	r   io.Reader
	err error
}

func (t *trackingReader) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if err != nil && err != io.EOF {
		t.err = err
	}
	return n, err
}

type trackingWriter struct {
	w    io.Writer
	last byte
}

func (t *trackingWriter) Write(p []byte) (int, error) {
	n, err := t.w.Write(p)
	if n > 0 {
		t.last = p[n-1]
	}
	return n, err
}
