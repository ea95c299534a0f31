package ixgest

import (
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/teranos/pwcmeta/errors"
	"github.com/teranos/pwcmeta/logger"
	"github.com/teranos/pwcmeta/rdf"
)

// UnknownSize tells Aggregate not to check the merged store length, as when
// re-aggregating a store left behind by an earlier run.
const UnknownSize int64 = -1

// Aggregator turns the merged store into the canonical store.
type Aggregator struct {
	MergedPath    string
	CanonicalPath string
	Logger        *zap.SugaredLogger
}

// AggregateStats describes one aggregation.
type AggregateStats struct {
	Bytes        int64 // merged store size
	Statements   int   // parsed statements, duplicates included
	Unique       int   // statements written to the canonical store
	PartialLines int   // lines skipped as malformed
}

// Aggregate parses the merged store, drops exact duplicates and writes the
// sorted result to CanonicalPath, replacing any previous canonical store
// only once the new one is complete on disk.
//
// expectedBytes is what the concatenator reported appending. A merged store
// that is missing or shorter than that, or that has content but not one
// parseable statement, is fatal and leaves any existing canonical store in
// place. An empty merged store with nothing expected yields an empty
// canonical store. With UnknownSize, an empty merged store is fatal.
func (a *Aggregator) Aggregate(expectedBytes int64) (AggregateStats, error) {
	log := logger.OrNop(a.Logger)
	var stats AggregateStats

	f, err := os.Open(a.MergedPath)
	if err != nil {
		return stats, aggregationErr(err, "open merged store %s", a.MergedPath)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return stats, aggregationErr(err, "stat merged store %s", a.MergedPath)
	}
	stats.Bytes = info.Size()

	switch {
	case expectedBytes == UnknownSize && stats.Bytes == 0:
		return stats, aggregationErr(errors.New("merged store is empty"), "%s", a.MergedPath)
	case expectedBytes > 0 && stats.Bytes < expectedBytes:
		return stats, aggregationErr(
			errors.Newf("merged store has %d bytes, %d were ingested", stats.Bytes, expectedBytes),
			"%s", a.MergedPath)
	}

	set := make(map[rdf.Statement]struct{})
	err = rdf.Each(f, func(st rdf.Statement) error {
		stats.Statements++
		set[st] = struct{}{}
		return nil
	}, func(lineNo int, line string, err error) {
		stats.PartialLines++
		log.Warnw("Skipping malformed line",
			logger.FieldPath, a.MergedPath,
			logger.FieldLine, lineNo,
			logger.FieldError, err)
	})
	if err != nil {
		return stats, aggregationErr(err, "read merged store %s", a.MergedPath)
	}
	if stats.Bytes > 0 && stats.Statements == 0 {
		return stats, aggregationErr(
			errors.Newf("no parseable statements in %s", humanize.IBytes(uint64(stats.Bytes))),
			"%s", a.MergedPath)
	}

	unique := make([]rdf.Statement, 0, len(set))
	for st := range set {
		unique = append(unique, st)
	}
	rdf.Sort(unique)
	stats.Unique = len(unique)

	if err := writeAtomic(a.CanonicalPath, unique); err != nil {
		return stats, err
	}

	log.Infow("Aggregated",
		logger.FieldPath, a.CanonicalPath,
		logger.FieldStatements, stats.Statements,
		"unique", stats.Unique,
		"partial_lines", stats.PartialLines,
		logger.FieldBytes, humanize.IBytes(uint64(stats.Bytes)))
	return stats, nil
}

func aggregationErr(err error, format string, args ...interface{}) error {
	return errors.WithHint(
		errors.Mark(errors.Wrapf(err, format, args...), errors.ErrAggregationIO),
		"the merged store is kept; inspect it or rerun 'pwcmeta ix aggregate'",
	)
}

// writeAtomic writes stmts to a temp file beside path, syncs it and renames
// it over path.
func writeAtomic(path string, stmts []rdf.Statement) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return aggregationErr(err, "create %s", dir)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return aggregationErr(err, "create temp canonical store in %s", dir)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	w := rdf.NewWriter(tmp)
	if err := w.WriteAll(stmts); err != nil {
		return aggregationErr(err, "write %s", tmp.Name())
	}
	if err := w.Flush(); err != nil {
		return aggregationErr(err, "write %s", tmp.Name())
	}
	if err := tmp.Sync(); err != nil {
		return aggregationErr(err, "sync %s", tmp.Name())
	}
	if err := tmp.Chmod(0644); err != nil {
		return aggregationErr(err, "chmod %s", tmp.Name())
	}
	if err := tmp.Close(); err != nil {
		return aggregationErr(err, "close %s", tmp.Name())
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return aggregationErr(err, "rename into %s", path)
	}
	return nil
}
