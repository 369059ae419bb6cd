package launch

import (
	"context"

	"github.com/spf13/cobra"
	"gorm.io/datatypes"

	"github.com/strand-cloud/strand/internal/bootstrap"
	"github.com/strand-cloud/strand/internal/engine"
	"github.com/strand-cloud/strand/internal/engine/piper"
	"github.com/strand-cloud/strand/internal/gate"
	"github.com/strand-cloud/strand/internal/hierarchy"
	"github.com/strand-cloud/strand/internal/models"
	"github.com/strand-cloud/strand/internal/notify"
	"github.com/strand-cloud/strand/internal/organize"
	"github.com/strand-cloud/strand/internal/qc"
	"github.com/strand-cloud/strand/pkg/env"
	"github.com/strand-cloud/strand/pkg/log"
)

const (
	usage   = "launch <flowcell-dir>..."
	short   = "Organize flowcells and launch analysis jobs"
	long    = "This command organizes raw flowcell directories and launches the configured analysis workflows for every scope the launch gate allows"
	example = "strand launch --workflow align /data/incoming/140117_ST-E00201_0027_AH00C3ALXX"
)

var (
	// Cmd is the launch command.
	Cmd = &cobra.Command{
		Use:     usage,
		Short:   short,
		Long:    long,
		Aliases: []string{"l"},
		Example: example,
		Args:    cobra.MinimumNArgs(1),
		RunE:    run,
	}

	workflowFilter  string
	sampleFilter    string
	createFiles     bool
	outputRoot      string
	fallbackLibprep string
	restartFailed   bool
	restartFinished bool
	restartRunning  bool
)

func init() {
	Cmd.Flags().StringVar(&workflowFilter, "workflow", "", "launch only this workflow")
	Cmd.Flags().StringVar(&sampleFilter, "sample", "", "launch only this sample")
	Cmd.Flags().BoolVar(&createFiles, "create-files", true, "materialize directories and symlink fastq files")
	Cmd.Flags().StringVar(&outputRoot, "output-root", "/data/analysis", "root of the analysis tree")
	Cmd.Flags().StringVar(&fallbackLibprep, "fallback-libprep", "", "library prep to assume when no source can resolve one")
	Cmd.Flags().BoolVar(&restartFailed, "restart-failed", false, "relaunch scopes whose previous analysis failed")
	Cmd.Flags().BoolVar(&restartFinished, "restart-finished", false, "relaunch scopes whose analysis already finished")
	Cmd.Flags().BoolVar(&restartRunning, "restart-running", false, "kill and relaunch scopes currently running")
}

func run(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	auth, err := bootstrap.Authority()
	if err != nil {
		return err
	}

	ldgr, err := bootstrap.OpenLedger()
	if err != nil {
		return err
	}

	cfg, err := engine.LoadConfig(env.Variables().WorkflowConfig)
	if err != nil {
		return err
	}

	engine.RegisterFactory(piper.Name, piper.Factory)

	schedulers := bootstrap.Schedulers()
	registry, err := engine.BuildRegistry(cfg, bootstrap.SchedulerMap(schedulers))
	if err != nil {
		return err
	}

	notifier := bootstrap.Notifier()
	organizer := organize.New(auth, notifier, organize.Options{
		CreateFiles:     createFiles,
		OutputRoot:      outputRoot,
		FallbackLibprep: fallbackLibprep,
	})

	projects, err := organizer.MaterializeAll(ctx, args)
	if err != nil {
		return err
	}

	l := &launcher{
		gate:     gate.New(ldgr, auth, schedulers),
		registry: registry,
		notifier: notifier,
	}

	for _, project := range projects {
		for _, sample := range project.Samples() {
			if sampleFilter != "" && sample.Name != sampleFilter {
				continue
			}
			l.launchSample(ctx, project, sample)
		}
	}

	return nil
}

type launcher struct {
	gate     *gate.Gate
	registry *engine.Registry
	notifier notify.Notifier
}

func (l *launcher) launchSample(ctx context.Context, project *hierarchy.Project, sample *hierarchy.Sample) {
	for _, workflow := range l.registry.Workflows() {
		if workflowFilter != "" && workflow != workflowFilter {
			continue
		}

		reg, err := l.registry.Resolve(workflow)
		if err != nil {
			log.Error("workflow resolution failure", "workflow", workflow, "error", err)
			continue
		}

		switch reg.Level {
		case engine.LevelSample:
			l.launchSampleWorkflow(ctx, reg, project, sample)
		case engine.LevelSeqrun:
			for _, prep := range sample.LibraryPreps() {
				for _, seqrun := range prep.SequencingRuns() {
					l.launchSeqrunWorkflow(ctx, reg, project, sample, prep, seqrun)
				}
			}
		}
	}
}

func (l *launcher) launchSampleWorkflow(ctx context.Context, reg *engine.Registration, project *hierarchy.Project, sample *hierarchy.Sample) {
	scope := models.SampleScope(project.ProjectID, sample.Name)

	allowed := l.check(ctx, scope, reg.Workflow)
	if !allowed {
		return
	}

	launch, err := reg.Engine.AnalyzeSample(ctx, &engine.SampleRequest{
		Project: project,
		Sample:  sample,
	})
	if err != nil {
		l.launchFailed(ctx, scope, reg.Workflow, err)
		return
	}

	sample.BeingAnalyzed = true
	l.record(ctx, scope, reg.Workflow, launch, nil)
}

func (l *launcher) launchSeqrunWorkflow(ctx context.Context, reg *engine.Registration, project *hierarchy.Project, sample *hierarchy.Sample, prep *hierarchy.LibraryPrep, seqrun *hierarchy.SequencingRun) {
	scope := models.SeqrunScope(project.ProjectID, sample.Name, prep.Name, seqrun.Name)

	allowed := l.check(ctx, scope, reg.Workflow)
	if !allowed {
		return
	}

	launch, err := reg.Engine.AnalyzeSeqrun(ctx, &engine.SeqrunRequest{
		Project: project,
		Sample:  sample,
		Libprep: prep,
		Seqrun:  seqrun,
	})
	if err != nil {
		l.launchFailed(ctx, scope, reg.Workflow, err)
		return
	}

	sample.BeingAnalyzed = true

	// The lane list recorded here is what the reconciler's QC
	// aggregation treats as the complete set.
	metadata := datatypes.JSONMap{
		"lanes": qc.LanesFromFastqs(seqrun.FastqFiles()),
	}

	l.record(ctx, scope, reg.Workflow, launch, metadata)
}

func (l *launcher) check(ctx context.Context, scope, workflow string) bool {
	decision, err := l.gate.Check(ctx, &gate.Request{
		Scope:           scope,
		Workflow:        workflow,
		RestartFailed:   restartFailed,
		RestartFinished: restartFinished,
		RestartRunning:  restartRunning,
	})
	if err != nil {
		log.Error(
			"launch gate check failed, skipping scope this pass",
			"scope", scope,
			"workflow", workflow,
			"error", err,
		)
		return false
	}

	if decision.Attention {
		l.notifier.Notify(
			ctx,
			notify.SeverityWarning,
			scope,
			workflow,
			"previous analysis failed, manual attention required",
		)
	}

	return decision.Allow
}

func (l *launcher) record(ctx context.Context, scope, workflow string, launch *engine.Launch, metadata datatypes.JSONMap) {
	row := &models.LedgerRow{
		ScopePath:      scope,
		Workflow:       workflow,
		Engine:         launch.EngineName,
		AnalysisDir:    launch.AnalysisDir,
		ProcessID:      launch.ProcessID,
		SchedulerJobID: launch.SchedulerJobID,
		Metadata:       metadata,
	}

	if err := l.gate.RecordLaunch(ctx, row); err != nil {
		// The job is running but untracked: this must be visible
		// to an operator immediately.
		log.Error(
			"launched job could not be recorded",
			"scope", scope,
			"workflow", workflow,
			"error", err,
		)
		l.notifier.Notify(
			ctx,
			notify.SeverityError,
			scope,
			workflow,
			"job launched but ledger insert failed: "+err.Error(),
		)
		return
	}

	log.Info(
		"analysis launched",
		"scope", scope,
		"workflow", workflow,
		"engine", launch.EngineName,
		"analysis_dir", launch.AnalysisDir,
	)
}

func (l *launcher) launchFailed(ctx context.Context, scope, workflow string, err error) {
	log.Error(
		"analysis launch failure",
		"scope", scope,
		"workflow", workflow,
		"error", err,
	)
	l.notifier.Notify(
		ctx,
		notify.SeverityError,
		scope,
		workflow,
		"analysis launch failed: "+err.Error(),
	)
}
