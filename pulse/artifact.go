package pulse

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/teranos/pwcmeta/errors"
	"github.com/teranos/pwcmeta/ixgest/types"
	"github.com/teranos/pwcmeta/rdf"
)

// ArtifactPattern returns the os.CreateTemp pattern for an item's artifact.
// The random part keeps names unique even for repeated URLs without a
// sequence number; the hash makes them greppable by URL.
func ArtifactPattern(item types.WorkItem) string {
	sum := sha1.Sum([]byte(item.RepoURL))
	return fmt.Sprintf("%06d-%s-*.nt", item.Seq, hex.EncodeToString(sum[:4]))
}

// artifactStats describes what writeArtifact put on disk.
type artifactStats struct {
	Statements int
	Bytes      int64
}

// writeArtifact creates a new artifact for the item and writes stmts into
// it, one line each. The file is closed before returning. On a write
// failure the file is truncated so the item still has exactly one (empty)
// artifact; if even that fails the file is removed and the path is empty.
func writeArtifact(dir string, item types.WorkItem, stmts []rdf.Statement) (string, artifactStats, error) {
	f, err := os.CreateTemp(dir, ArtifactPattern(item))
	if err != nil {
		return "", artifactStats{}, errors.Wrapf(err, "create artifact in %s", dir)
	}
	path := f.Name()

	stats, err := writeStatements(f, stmts)
	if err != nil {
		err = errors.Wrapf(err, "write artifact %s", path)
		stats = artifactStats{}
		if terr := f.Truncate(0); terr != nil {
			f.Close()
			os.Remove(path)
			return "", stats, errors.CombineErrors(err, terr)
		}
	}
	if cerr := f.Close(); cerr != nil {
		os.Remove(path)
		return "", artifactStats{}, errors.CombineErrors(err, errors.Wrapf(cerr, "close artifact %s", path))
	}
	return path, stats, err
}

func writeStatements(f *os.File, stmts []rdf.Statement) (artifactStats, error) {
	if len(stmts) == 0 {
		return artifactStats{}, nil
	}
	w := rdf.NewWriter(f)
	if err := w.WriteAll(stmts); err != nil {
		return artifactStats{}, err
	}
	if err := w.Flush(); err != nil {
		return artifactStats{}, err
	}
	return artifactStats{Statements: w.Count(), Bytes: w.Bytes()}, nil
}
