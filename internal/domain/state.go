package domain

// UnitState is the per-unit state machine:
// Pending -> Mapped -> Written -> FilesMigrated -> Committed, or Failed at any step.
type UnitState string

const (
	StatePending       UnitState = "pending"
	StateMapped        UnitState = "mapped"
	StateWritten       UnitState = "written"
	StateFilesMigrated UnitState = "files_migrated"
	StateCommitted     UnitState = "committed"
	StateFailed        UnitState = "failed"
	// StateSkipped is never persisted; it marks units found already committed.
	StateSkipped UnitState = "skipped"
)

// Terminal reports whether the state ends a unit's processing.
func (s UnitState) Terminal() bool {
	return s == StateCommitted || s == StateFailed || s == StateSkipped
}
