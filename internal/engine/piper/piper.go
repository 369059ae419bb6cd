// Package piper is the reference analysis engine: it renders the
// configured command template for a scope and submits it through
// the workflow's scheduler, wrapped so the job writes its exit-code
// marker on termination.
package piper

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/strand-cloud/strand/internal/engine"
	"github.com/strand-cloud/strand/internal/models"
	"github.com/strand-cloud/strand/internal/scheduler"
	"github.com/strand-cloud/strand/internal/scheduler/local"
	"github.com/strand-cloud/strand/pkg/fsutil"
)

// Name identifies this engine in workflow configuration.
const Name = "piper"

// Factory builds a piper engine for one configured workflow.
func Factory(workflow string, cfg engine.WorkflowConfig, sched scheduler.Client) (engine.Engine, error) {
	if cfg.Command == "" {
		return nil, errors.Errorf("workflow %v has no command template", workflow)
	}
	if cfg.AnalysisRoot == "" {
		return nil, errors.Errorf("workflow %v has no analysis root", workflow)
	}

	return &piper{
		workflow:      workflow,
		cfg:           cfg,
		sched:         sched,
		schedulerName: cfg.Scheduler,
	}, nil
}

type piper struct {
	workflow      string
	cfg           engine.WorkflowConfig
	sched         scheduler.Client
	schedulerName string
}

func (p *piper) Name() string {
	return Name
}

func (p *piper) AnalyzeSample(ctx context.Context, req *engine.SampleRequest) (*engine.Launch, error) {
	dir := filepath.Join(p.cfg.AnalysisRoot, req.Project.DirName, req.Sample.DirName)

	return p.launch(ctx, dir, map[string]string{
		"project":      req.Project.ProjectID,
		"project_name": req.Project.Name,
		"sample":       req.Sample.Name,
		"analysis_dir": dir,
	})
}

func (p *piper) AnalyzeSeqrun(ctx context.Context, req *engine.SeqrunRequest) (*engine.Launch, error) {
	dir := filepath.Join(
		p.cfg.AnalysisRoot,
		req.Project.DirName,
		req.Sample.DirName,
		req.Libprep.DirName,
		req.Seqrun.DirName,
	)

	return p.launch(ctx, dir, map[string]string{
		"project":      req.Project.ProjectID,
		"project_name": req.Project.Name,
		"sample":       req.Sample.Name,
		"libprep":      req.Libprep.Name,
		"seqrun":       req.Seqrun.Name,
		"analysis_dir": dir,
		"fastq_files":  strings.Join(req.Seqrun.FastqFiles(), " "),
	})
}

func (p *piper) launch(ctx context.Context, dir string, vars map[string]string) (*engine.Launch, error) {
	if err := fsutil.EnsureDirectory(dir); err != nil {
		return nil, err
	}

	command := render(p.cfg.Command, vars)
	marker := models.ExitCodeMarker(dir, p.workflow)

	// The wrap guarantees the completion signal exists whenever
	// the job itself got to run at all.
	wrapped := fmt.Sprintf("%s; echo $? > %s", command, marker)

	handle, err := p.sched.Submit(ctx, &scheduler.SubmitRequest{
		Name:    fmt.Sprintf("strand-%s-%s", p.workflow, uuid.New().String()[:8]),
		Command: []string{"/bin/sh", "-c", wrapped},
		WorkDir: dir,
		Stdout:  filepath.Join(dir, p.workflow+".out"),
		Stderr:  filepath.Join(dir, p.workflow+".err"),
	})
	if err != nil {
		return nil, errors.Wrap(err, "submit analysis job")
	}

	l := &engine.Launch{EngineName: Name, AnalysisDir: dir}

	if p.schedulerName == local.Name {
		pid, err := strconv.Atoi(handle)
		if err != nil {
			return nil, errors.Errorf("local scheduler returned non-pid handle %q", handle)
		}
		l.ProcessID = pid
	} else {
		l.SchedulerJobID = handle
	}

	return l, nil
}

func render(template string, vars map[string]string) string {
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(template)
}
