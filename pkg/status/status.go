package status

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/loykin/woodlandmigrate"
	"github.com/loykin/woodlandmigrate/internal/util"
)

// Status display constants
const (
	defaultFailureLimit = 10 // Default number of failed units to show
	maxReasonDisplay    = 120
)

// stateOrder is the order states are printed in.
var stateOrder = []woodlandmigrate.UnitState{"pending", "mapped", "written", "files_migrated", "committed", "failed"}

// FailureItem is a failed unit as recorded in the progress table.
// UpdatedAt is an RFC3339 timestamp in UTC.
type FailureItem struct {
	LegacyOwnerID int64
	Kind          string
	Reason        string
	Attempts      int
	UpdatedAt     string
}

// Info aggregates status information: units per state, target row counts and failures.
type Info struct {
	States   map[string]int64
	Tables   map[string]int64
	Failures []FailureItem
}

// FromTarget collects status information from an opened target store.
func FromTarget(ctx context.Context, t *woodlandmigrate.Target) (Info, error) {
	states, err := t.StateCounts(ctx)
	if err != nil {
		return Info{}, err
	}
	tables, err := t.TableCounts(ctx)
	if err != nil {
		return Info{}, err
	}
	failed, err := t.Failures(ctx, 0)
	if err != nil {
		return Info{}, err
	}

	info := Info{States: make(map[string]int64, len(states)), Tables: tables}
	for s, n := range states {
		info.States[string(s)] = n
	}
	for _, f := range failed {
		info.Failures = append(info.Failures, FailureItem{
			LegacyOwnerID: f.LegacyOwnerID,
			Kind:          string(f.ErrorKind),
			Reason:        f.Reason,
			Attempts:      f.Attempts,
			UpdatedAt:     f.UpdatedAt.UTC().Format(time.RFC3339),
		})
	}
	return info, nil
}

// FromConfig opens the configured target store, collects status, and closes it.
func FromConfig(ctx context.Context, cfg woodlandmigrate.Config) (Info, error) {
	t, err := woodlandmigrate.OpenTarget(ctx, cfg.TargetStore())
	if err != nil {
		return Info{}, err
	}
	defer func() { _ = t.Close() }()
	return FromTarget(ctx, t)
}

// Total is the number of units with a progress row.
func (i Info) Total() int64 {
	var n int64
	for _, v := range i.States {
		n += v
	}
	return n
}

// FormatHuman returns a human-friendly multiline string for CLI output.
// failures=false prints only the state and table counts.
func (i Info) FormatHuman(failures bool) string {
	return i.FormatHumanWithLimit(failures, 0, true)
}

// FormatHumanWithLimit prints status like FormatHuman, but when failures=true
// it prints at most limit failed units. If all=true every failure is printed
// and limit is ignored. Default behavior when limit<=0 is 10.
func (i Info) FormatHumanWithLimit(failures bool, limit int, all bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "units: %d\n", i.Total())
	for _, s := range stateOrder {
		fmt.Fprintf(&b, "  %s: %d\n", s, i.States[string(s)])
	}
	if len(i.Tables) > 0 {
		b.WriteString("tables:\n")
		names := make([]string, 0, len(i.Tables))
		for name := range i.Tables {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(&b, "  %s: %d\n", name, i.Tables[name])
		}
	}
	if !failures {
		return b.String()
	}
	if len(i.Failures) == 0 {
		b.WriteString("failures: \n")
		return b.String()
	}

	items := i.Failures
	if !all {
		if limit <= 0 {
			limit = defaultFailureLimit
		}
		if len(items) > limit {
			items = items[:limit]
		}
	}
	b.WriteString("failures:\n")
	for _, f := range items {
		reason := f.Reason
		if len(reason) > maxReasonDisplay {
			reason = util.TruncateUTF8(reason, maxReasonDisplay) + "..."
		}
		fmt.Fprintf(&b, "#%d kind=%s attempts=%d at=%s reason=%q\n", f.LegacyOwnerID, f.Kind, f.Attempts, f.UpdatedAt, reason)
	}
	if len(items) < len(i.Failures) {
		fmt.Fprintf(&b, "... %d more\n", len(i.Failures)-len(items))
	}
	return b.String()
}
