package migrator

import (
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/morgaesis/GitHub-Migrator/internal/project"
	"github.com/morgaesis/GitHub-Migrator/internal/reconcile"
	"github.com/morgaesis/GitHub-Migrator/internal/types"
)

// Step states of the non-reconcile steps.
const (
	StepPending = "pending"
	StepDone    = "done"
	StepFailed  = "failed"
	StepSkipped = "skipped"
)

// Report is the outcome of a run.
type Report struct {
	Source     types.RepoRef     `yaml:"source"`
	Target     types.RepoRef     `yaml:"target"`
	Mode       string            `yaml:"mode"`
	DryRun     bool              `yaml:"dry_run"`
	StartedAt  time.Time         `yaml:"started_at"`
	FinishedAt time.Time         `yaml:"finished_at"`
	Repository *RepositoryReport `yaml:"repository,omitempty"`
	Mirror     *StepReport       `yaml:"mirror,omitempty"`
	Stages     []StageSummary    `yaml:"stages,omitempty"`
	Project    *ProjectReport    `yaml:"project,omitempty"`
	Error      string            `yaml:"error,omitempty"`
}

// RepositoryReport describes the target repository.
type RepositoryReport struct {
	Created bool `yaml:"created"`
	Private bool `yaml:"private"`
}

// StepReport is the outcome of a single step.
type StepReport struct {
	State string `yaml:"state"`
	Error string `yaml:"error,omitempty"`
}

// StageSummary is the outcome of one reconcile stage.
type StageSummary struct {
	Name            string `yaml:"name"`
	State           string `yaml:"state"`
	reconcile.Stats `yaml:",inline"`
	Error           string `yaml:"error,omitempty"`
}

// ProjectReport is the outcome of project sync.
type ProjectReport struct {
	Title          string `yaml:"title"`
	Skipped        bool   `yaml:"skipped,omitempty"`
	project.Result `yaml:",inline"`
	Error          string `yaml:"error,omitempty"`
}

func (r *Report) addStages(res *reconcile.Result) {
	for _, s := range res.Stages {
		sum := StageSummary{Name: s.Name, State: string(s.State), Stats: s.Stats}
		if s.Err != nil {
			sum.Error = s.Err.Error()
		}
		r.Stages = append(r.Stages, sum)
	}
}

// Failed reports whether the run stopped early or any step failed.
func (r *Report) Failed() bool {
	if r.Error != "" {
		return true
	}
	if r.Mirror != nil && r.Mirror.State == StepFailed {
		return true
	}
	for _, s := range r.Stages {
		if s.State == string(reconcile.StateAborted) {
			return true
		}
	}
	return r.Project != nil && r.Project.Error != ""
}

// Errors sums the rejected writes of every stage and project sync.
func (r *Report) Errors() int {
	n := 0
	for _, s := range r.Stages {
		n += s.Stats.Errors
	}
	if r.Project != nil {
		n += r.Project.Result.Errors
	}
	return n
}

// WriteYAML encodes the report as YAML.
func (r *Report) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return enc.Close()
}

// SaveYAML writes the report to path.
func (r *Report) SaveYAML(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	if err := r.WriteYAML(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
