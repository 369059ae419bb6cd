// Package engine dispatches workflows to pluggable analysis
// engines by name. The registry is populated at startup from the
// workflow configuration; resolving an unregistered name fails
// immediately rather than deferring to a runtime error.
package engine

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/strand-cloud/strand/internal/hierarchy"
	"github.com/strand-cloud/strand/internal/scheduler"
)

// Level is the hierarchy level a workflow operates at.
type Level string

const (
	LevelSample Level = "sample"
	LevelSeqrun Level = "seqrun"
)

// SampleRequest asks an engine to analyze a whole sample.
type SampleRequest struct {
	Project *hierarchy.Project
	Sample  *hierarchy.Sample
}

// SeqrunRequest asks an engine to analyze one sequencing run.
type SeqrunRequest struct {
	Project *hierarchy.Project
	Sample  *hierarchy.Sample
	Libprep *hierarchy.LibraryPrep
	Seqrun  *hierarchy.SequencingRun
}

// Launch reports a successfully started job: everything the caller
// needs to insert the ledger row.
type Launch struct {
	EngineName  string
	AnalysisDir string

	// Exactly one of ProcessID and SchedulerJobID is set.
	ProcessID      int
	SchedulerJobID string
}

// Engine is one pluggable analysis capability.
type Engine interface {
	Name() string
	AnalyzeSample(ctx context.Context, req *SampleRequest) (*Launch, error)
	AnalyzeSeqrun(ctx context.Context, req *SeqrunRequest) (*Launch, error)
}

// Factory builds an engine instance for one configured workflow.
type Factory func(workflow string, cfg WorkflowConfig, sched scheduler.Client) (Engine, error)

var (
	factoryMu sync.RWMutex
	factories = map[string]Factory{}
)

// RegisterFactory associates an engine name with its factory.
func RegisterFactory(name string, f Factory) {
	if f == nil {
		panic("engine: factory must not be nil")
	}
	factoryMu.Lock()
	defer factoryMu.Unlock()
	factories[name] = f
}

// Registration binds a workflow name to its engine and level.
type Registration struct {
	Workflow string
	Level    Level
	Engine   Engine
}

// Registry resolves workflow names to engines.
type Registry struct {
	workflows map[string]*Registration
}

// BuildRegistry constructs the registry from configuration,
// failing fast on an unknown engine or scheduler name.
func BuildRegistry(cfg *Config, schedulers map[string]scheduler.Client) (*Registry, error) {
	r := &Registry{workflows: map[string]*Registration{}}

	for workflow, wcfg := range cfg.Workflows {
		factoryMu.RLock()
		factory, ok := factories[wcfg.Engine]
		factoryMu.RUnlock()
		if !ok {
			return nil, errors.Errorf(
				"workflow %v references unregistered engine %v",
				workflow, wcfg.Engine,
			)
		}

		sched, ok := schedulers[wcfg.Scheduler]
		if !ok {
			return nil, errors.Errorf(
				"workflow %v references unknown scheduler %v",
				workflow, wcfg.Scheduler,
			)
		}

		eng, err := factory(workflow, wcfg, sched)
		if err != nil {
			return nil, errors.Wrapf(err, "configure workflow %v", workflow)
		}

		r.workflows[workflow] = &Registration{
			Workflow: workflow,
			Level:    wcfg.Level,
			Engine:   eng,
		}
	}

	return r, nil
}

// Resolve returns the registration for a workflow name.
func (r *Registry) Resolve(workflow string) (*Registration, error) {
	reg, ok := r.workflows[workflow]
	if !ok {
		return nil, errors.Errorf("no engine registered for workflow %v", workflow)
	}
	return reg, nil
}

// Workflows lists the configured workflow names.
func (r *Registry) Workflows() []string {
	out := make([]string, 0, len(r.workflows))
	for name := range r.workflows {
		out = append(out, name)
	}
	return out
}
