// Package catalog reads, filters and writes the papers-with-code link dump
// that supplies the repository URLs for an extraction run.
package catalog

import (
	"compress/gzip"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"

	"github.com/teranos/pwcmeta/errors"
	"github.com/teranos/pwcmeta/ixgest/types"
)

// Paper is one paper-to-repository link.
type Paper struct {
	PaperURL          string `json:"paper_url"`
	PaperTitle        string `json:"paper_title"`
	PaperArxivID      string `json:"paper_arxiv_id"`
	PaperURLAbs       string `json:"paper_url_abs"`
	PaperURLPDF       string `json:"paper_url_pdf"`
	RepoURL           string `json:"repo_url"`
	IsOfficial        bool   `json:"is_official"`
	MentionedInPaper  bool   `json:"mentioned_in_paper"`
	MentionedInGitHub bool   `json:"mentioned_in_github"`
	Framework         string `json:"framework"`
}

// RepoPattern selects repositories hosted on GitHub or GitLab.
var RepoPattern = regexp.MustCompile(`^https?://(www\.)?(github|gitlab)\.com/`)

// ReadPapers decodes a gzip-compressed JSON array of papers.
func ReadPapers(path string) ([]Paper, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()

	zr, err := gzip.NewReader(f)
	if err != nil {
		return nil, errors.Wrapf(err, "%s is not gzip", path)
	}
	defer zr.Close()

	var papers []Paper
	if err := json.NewDecoder(zr).Decode(&papers); err != nil {
		return nil, errors.Wrapf(err, "decode %s", path)
	}
	return papers, nil
}

// Filter truncates papers to the first max entries (0 = all) and then keeps
// those whose repository matches RepoPattern. Truncation comes first, so
// max bounds the catalog slice examined, not the result size.
func Filter(papers []Paper, max int) []Paper {
	if max > 0 && len(papers) > max {
		papers = papers[:max]
	}
	out := make([]Paper, 0, len(papers))
	for _, p := range papers {
		if RepoPattern.MatchString(p.RepoURL) {
			out = append(out, p)
		}
	}
	return out
}

// SavePapers writes papers as a gzip-compressed JSON array, replacing path
// only once the new file is complete.
func SavePapers(path string, papers []Paper) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrapf(err, "create %s", filepath.Dir(path))
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return errors.Wrap(err, "create temp file")
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	zw := gzip.NewWriter(tmp)
	if papers == nil {
		papers = []Paper{}
	}
	if err := json.NewEncoder(zw).Encode(papers); err != nil {
		return errors.Wrapf(err, "encode %s", path)
	}
	if err := zw.Close(); err != nil {
		return errors.Wrapf(err, "compress %s", path)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, "close %s", tmp.Name())
	}
	return errors.Wrapf(os.Rename(tmp.Name(), path), "rename into %s", path)
}

// WorkItems turns papers into pipeline input, numbered from 1 in catalog order.
func WorkItems(papers []Paper) []types.WorkItem {
	items := make([]types.WorkItem, len(papers))
	for i, p := range papers {
		items[i] = types.WorkItem{
			RepoURL:  p.RepoURL,
			Seq:      i + 1,
			PaperURL: p.PaperURL,
			Title:    p.PaperTitle,
		}
	}
	return items
}
