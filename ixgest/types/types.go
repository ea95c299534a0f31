// Package types holds the values passed between the dispatcher, the worker
// pool and the concatenator.
package types

import (
	"github.com/teranos/pwcmeta/fetch"
)

// WorkItem is one repository URL to process. Seq is its position in the
// input list; PaperURL and Title are carried for logs and reports only.
type WorkItem struct {
	RepoURL  string `json:"repo_url" yaml:"repo_url"`
	Seq      int    `json:"seq" yaml:"seq"`
	PaperURL string `json:"paper_url,omitempty" yaml:"paper_url,omitempty"`
	Title    string `json:"title,omitempty" yaml:"title,omitempty"`
}

// Status summarises a Result.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// Result is the single extraction result for one WorkItem. ArtifactPath
// names a file holding zero or more statements; ownership of that file
// passes to whoever receives the Result.
type Result struct {
	Item         WorkItem
	ArtifactPath string
	Statements   int
	Attempts     int
	Failure      *fetch.Failure // set when the fetch failed
	Skipped      bool           // cancelled before a final outcome
	Err          error          // local artifact I/O failure
}

// Status reports success, failed or skipped.
func (r Result) Status() Status {
	switch {
	case r.Skipped:
		return StatusSkipped
	case r.Failure != nil || r.Err != nil:
		return StatusFailed
	default:
		return StatusSuccess
	}
}
