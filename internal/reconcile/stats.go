package reconcile

import (
	"fmt"

	"github.com/morgaesis/GitHub-Migrator/internal/types"
)

// State is the position of a stage in its lifecycle:
// fetching_source -> fetching_target -> mapping_built -> deciding ->
// applying -> done, or aborted from any of them.
type State string

const (
	StatePending        State = "pending"
	StateFetchingSource State = "fetching_source"
	StateFetchingTarget State = "fetching_target"
	StateMappingBuilt   State = "mapping_built"
	StateDeciding       State = "deciding"
	StateApplying       State = "applying"
	StateDone           State = "done"
	StateAborted        State = "aborted"
	// StateSkipped marks a stage not run because an earlier one aborted.
	StateSkipped State = "skipped"
)

// Stats counts the outcome of one stage.
type Stats struct {
	Created int `json:"created" yaml:"created"` // entities created on the target
	Updated int `json:"updated" yaml:"updated"` // existing target entities changed
	Skipped int `json:"skipped" yaml:"skipped"` // already in sync
	Errors  int `json:"errors" yaml:"errors"`   // writes rejected for a single entity
}

func (s *Stats) count(k types.DecisionKind) {
	switch k {
	case types.DecisionCreate:
		s.Created++
	case types.DecisionUpdate:
		s.Updated++
	case types.DecisionSkip:
		s.Skipped++
	}
}

// StageError is the reason a stage aborted.
type StageError struct {
	Stage string
	Key   string // source entity being processed, if any
	Err   error
}

func (e *StageError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("%s stage aborted at %s: %v", e.Stage, e.Key, e.Err)
	}
	return fmt.Sprintf("%s stage aborted: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// StageReport is the final state of one stage.
type StageReport struct {
	Name  string
	State State
	Stats Stats
	Err   *StageError
}

// Stage names, in pipeline order.
const (
	StageLabels     = "labels"
	StageMilestones = "milestones"
	StageIssues     = "issues"
	StageComments   = "comments"
)

var pipeline = []string{StageLabels, StageMilestones, StageIssues, StageComments}
