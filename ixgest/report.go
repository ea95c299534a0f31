package ixgest

import (
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"

	"github.com/teranos/pwcmeta/errors"
	"github.com/teranos/pwcmeta/fetch"
	"github.com/teranos/pwcmeta/ixgest/types"
)

// Report summarises one pipeline run.
type Report struct {
	RunID            string         `yaml:"run_id"`
	Started          time.Time      `yaml:"started"`
	Duration         time.Duration  `yaml:"duration"`
	Items            int            `yaml:"items"`
	Succeeded        int            `yaml:"succeeded"`
	Failed           int            `yaml:"failed"`
	Skipped          int            `yaml:"skipped"`
	ByKind           map[string]int `yaml:"by_kind,omitempty"`
	Statements       int            `yaml:"statements"`
	UniqueStatements int            `yaml:"unique_statements"`
	PartialLines     int            `yaml:"partial_lines"`
	LostArtifacts    int            `yaml:"lost_artifacts"`
	BytesIngested    int64          `yaml:"bytes_ingested"`
	MergedStore      string         `yaml:"merged_store,omitempty"`
	CanonicalStore   string         `yaml:"canonical_store,omitempty"`
	Error            string         `yaml:"error,omitempty"`

	Err error `yaml:"-"`
}

// KindArtifactIO counts fetched items whose artifact could not be written.
const KindArtifactIO = "artifact_io"

func newReport(runID string) *Report {
	return &Report{RunID: runID, Started: time.Now(), ByKind: map[string]int{}}
}

func (r *Report) add(res types.Result) {
	r.Items++
	switch res.Status() {
	case types.StatusSuccess:
		r.Succeeded++
		r.Statements += res.Statements
	case types.StatusFailed:
		r.Failed++
		if res.Failure != nil {
			r.ByKind[res.Failure.Kind.String()]++
		} else {
			r.ByKind[KindArtifactIO]++
		}
	case types.StatusSkipped:
		r.Skipped++
	}
}

func (r *Report) fail(err error) {
	r.Err = err
	if err != nil {
		r.Error = err.Error()
	}
}

// Lost returns how many items had statements that never reached the merged
// store: artifacts that could not be written plus those that could not be
// ingested.
func (r *Report) Lost() int { return r.ByKind[KindArtifactIO] + r.LostArtifacts }

// Kind returns the failure count for one kind.
func (r *Report) Kind(k fetch.Kind) int { return r.ByKind[k.String()] }

// Summary is a one-line human summary.
func (r *Report) Summary() string {
	s := fmt.Sprintf("%d items: %d ok, %d failed, %d skipped; %s statements (%s unique), %s ingested in %s",
		r.Items, r.Succeeded, r.Failed, r.Skipped,
		humanize.Comma(int64(r.Statements)), humanize.Comma(int64(r.UniqueStatements)),
		humanize.IBytes(uint64(r.BytesIngested)), r.Duration.Round(time.Millisecond))
	if lost := r.Lost(); lost > 0 {
		s += fmt.Sprintf("; %d artifacts lost", lost)
	}
	if r.Err != nil {
		s += "; error: " + r.Err.Error()
	}
	return s
}

// WriteYAML writes the report to path.
func (r *Report) WriteYAML(path string) error {
	out, err := yaml.Marshal(r)
	if err != nil {
		return errors.Wrap(err, "marshal report")
	}
	if err := os.WriteFile(path, out, 0644); err != nil {
		return errors.Wrapf(err, "write report %s", path)
	}
	return nil
}
