package migration

import (
	"fmt"
	"sort"
	"time"

	"github.com/loykin/woodlandmigrate/internal/domain"
)

// Failure describes one unit that ended Failed.
type Failure struct {
	LegacyOwnerID int64            `json:"legacy_owner_id" yaml:"legacy_owner_id"`
	Kind          domain.ErrorKind `json:"kind" yaml:"kind"`
	Reason        string           `json:"reason" yaml:"reason"`
	Attempts      int              `json:"attempts" yaml:"attempts"`
}

// Summary is the outcome of a run.
type Summary struct {
	Committed   int       `json:"committed" yaml:"committed"`
	Skipped     int       `json:"skipped" yaml:"skipped"`
	Failed      int       `json:"failed" yaml:"failed"`
	Failures    []Failure `json:"failures,omitempty" yaml:"failures,omitempty"`
	FilesCopied int       `json:"files_copied" yaml:"files_copied"`
	FilesFailed int       `json:"files_failed" yaml:"files_failed"`
	// Incomplete is set when the run stopped before the source was exhausted.
	Incomplete bool          `json:"incomplete" yaml:"incomplete"`
	StartedAt  time.Time     `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time     `json:"finished_at,omitempty" yaml:"finished_at,omitempty"`
	Duration   time.Duration `json:"duration" yaml:"duration"`
}

// Processed is the number of units that reached a terminal state.
func (s Summary) Processed() int {
	return s.Committed + s.Skipped + s.Failed
}

// String renders a one-line summary for logs and the CLI.
func (s Summary) String() string {
	out := fmt.Sprintf("committed=%d skipped=%d failed=%d files_copied=%d files_failed=%d duration=%s",
		s.Committed, s.Skipped, s.Failed, s.FilesCopied, s.FilesFailed, s.Duration.Round(time.Millisecond))
	if s.Incomplete {
		out += " incomplete=true"
	}
	return out
}

func (s *Summary) add(r unitResult) {
	switch r.state {
	case domain.StateCommitted:
		s.Committed++
	case domain.StateSkipped:
		s.Skipped++
	case domain.StateFailed:
		s.Failed++
		s.Failures = append(s.Failures, Failure{
			LegacyOwnerID: r.legacyOwnerID,
			Kind:          r.kind,
			Reason:        r.reason,
			Attempts:      r.attempts,
		})
	}
	s.FilesCopied += r.filesCopied
	s.FilesFailed += r.filesFailed
}

// clone returns a copy with failures ordered by legacy owner id.
func (s Summary) clone() Summary {
	out := s
	out.Failures = append([]Failure(nil), s.Failures...)
	sort.Slice(out.Failures, func(i, j int) bool {
		return out.Failures[i].LegacyOwnerID < out.Failures[j].LegacyOwnerID
	})
	return out
}
