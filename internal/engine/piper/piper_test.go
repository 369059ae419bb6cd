package piper

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/strand-cloud/strand/internal/engine"
	"github.com/strand-cloud/strand/internal/hierarchy"
	"github.com/strand-cloud/strand/internal/scheduler"
)

type fakeScheduler struct {
	handle    string
	submitted []*scheduler.SubmitRequest
}

func (f *fakeScheduler) Submit(ctx context.Context, req *scheduler.SubmitRequest) (string, error) {
	f.submitted = append(f.submitted, req)
	return f.handle, nil
}

func (f *fakeScheduler) Status(ctx context.Context, handle string) (*scheduler.Status, error) {
	return &scheduler.Status{State: scheduler.StateRunning}, nil
}

func (f *fakeScheduler) Kill(ctx context.Context, handle string) error { return nil }

func seqrunRequest(t *testing.T, root string) *engine.SeqrunRequest {
	t.Helper()

	project := hierarchy.NewProject("J.Doe_14_01", "J__Doe_14_01", "P100", filepath.Join(root, "J__Doe_14_01"))
	sample := project.GetOrCreateSample("S1", "S1")
	prep := sample.GetOrCreateLibraryPrep("A", "A")
	seqrun := prep.GetOrCreateSequencingRun("140117_ST-E00201_0027_AH00C3ALXX", "140117_ST-E00201_0027_AH00C3ALXX")
	seqrun.AddFastqFiles("S1_S1_L001_R1_001.fastq.gz", "S1_S1_L001_R2_001.fastq.gz")

	return &engine.SeqrunRequest{
		Project: project,
		Sample:  sample,
		Libprep: prep,
		Seqrun:  seqrun,
	}
}

func newPiper(t *testing.T, root, schedulerName, command string, sched scheduler.Client) engine.Engine {
	t.Helper()

	eng, err := Factory("align", engine.WorkflowConfig{
		Engine:       Name,
		Level:        engine.LevelSeqrun,
		Scheduler:    schedulerName,
		Command:      command,
		AnalysisRoot: root,
	}, sched)
	require.NoError(t, err)

	return eng
}

func TestFactoryRequiresCommandAndRoot(t *testing.T) {
	_, err := Factory("align", engine.WorkflowConfig{AnalysisRoot: "/data"}, &fakeScheduler{})
	require.Error(t, err)

	_, err = Factory("align", engine.WorkflowConfig{Command: "run"}, &fakeScheduler{})
	require.Error(t, err)
}

func TestAnalyzeSeqrunRendersAndWraps(t *testing.T) {
	root := t.TempDir()
	sched := &fakeScheduler{handle: "9001"}
	eng := newPiper(t, root, "slurm", "piper --sample {sample} --run {seqrun} --out {analysis_dir} --fastqs {fastq_files}", sched)

	launch, err := eng.AnalyzeSeqrun(context.Background(), seqrunRequest(t, root))
	require.NoError(t, err)

	dir := filepath.Join(root, "J__Doe_14_01", "S1", "A", "140117_ST-E00201_0027_AH00C3ALXX")
	require.Equal(t, Name, launch.EngineName)
	require.Equal(t, dir, launch.AnalysisDir)
	require.Equal(t, "9001", launch.SchedulerJobID)
	require.Zero(t, launch.ProcessID)

	// The analysis directory was created before submission.
	require.DirExists(t, dir)

	require.Len(t, sched.submitted, 1)
	req := sched.submitted[0]
	require.Equal(t, []string{"/bin/sh", "-c"}, req.Command[:2])

	wrapped := req.Command[2]
	require.Contains(t, wrapped, "--sample S1")
	require.Contains(t, wrapped, "--run 140117_ST-E00201_0027_AH00C3ALXX")
	require.Contains(t, wrapped, "--out "+dir)
	require.Contains(t, wrapped, "--fastqs S1_S1_L001_R1_001.fastq.gz S1_S1_L001_R2_001.fastq.gz")
	require.Contains(t, wrapped, "; echo $? > "+filepath.Join(dir, "align.exit_code"))

	require.Equal(t, dir, req.WorkDir)
	require.Equal(t, filepath.Join(dir, "align.out"), req.Stdout)
	require.Equal(t, filepath.Join(dir, "align.err"), req.Stderr)
	require.True(t, len(req.Name) > len("strand-align-"))
}

func TestAnalyzeSampleUsesSampleDirectory(t *testing.T) {
	root := t.TempDir()
	sched := &fakeScheduler{handle: "9002"}
	eng := newPiper(t, root, "slurm", "piper --project {project} --sample {sample}", sched)

	req := seqrunRequest(t, root)
	launch, err := eng.AnalyzeSample(context.Background(), &engine.SampleRequest{
		Project: req.Project,
		Sample:  req.Sample,
	})
	require.NoError(t, err)

	dir := filepath.Join(root, "J__Doe_14_01", "S1")
	require.Equal(t, dir, launch.AnalysisDir)
	require.Contains(t, sched.submitted[0].Command[2], "--project P100 --sample S1")
}

func TestLocalSchedulerHandleBecomesProcessID(t *testing.T) {
	root := t.TempDir()
	eng := newPiper(t, root, "local", "piper --sample {sample}", &fakeScheduler{handle: "4242"})

	req := seqrunRequest(t, root)
	launch, err := eng.AnalyzeSample(context.Background(), &engine.SampleRequest{
		Project: req.Project,
		Sample:  req.Sample,
	})
	require.NoError(t, err)
	require.Equal(t, 4242, launch.ProcessID)
	require.Empty(t, launch.SchedulerJobID)
}

func TestLocalSchedulerNonPidHandleFails(t *testing.T) {
	root := t.TempDir()
	eng := newPiper(t, root, "local", "piper --sample {sample}", &fakeScheduler{handle: "not-a-pid"})

	req := seqrunRequest(t, root)
	_, err := eng.AnalyzeSample(context.Background(), &engine.SampleRequest{
		Project: req.Project,
		Sample:  req.Sample,
	})
	require.Error(t, err)
}
