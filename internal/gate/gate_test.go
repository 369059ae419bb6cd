package gate

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/strand-cloud/strand/internal/authority"
	"github.com/strand-cloud/strand/internal/ledger"
	"github.com/strand-cloud/strand/internal/models"
	"github.com/strand-cloud/strand/internal/scheduler"
	"github.com/strand-cloud/strand/internal/testutil"
)

type fakeAuthority struct {
	statuses map[string]models.Status
	setErr   error
	setCalls []setCall
	getErr   error
}

type setCall struct {
	scope  string
	status models.Status
}

func newFakeAuthority() *fakeAuthority {
	return &fakeAuthority{statuses: map[string]models.Status{}}
}

func (f *fakeAuthority) GetStatus(ctx context.Context, scope string) (models.Status, error) {
	if f.getErr != nil {
		return "", f.getErr
	}
	if s, ok := f.statuses[scope]; ok {
		return s, nil
	}
	return models.StatusNotRunning, nil
}

func (f *fakeAuthority) SetStatus(ctx context.Context, scope string, status models.Status, extra map[string]interface{}) error {
	if f.setErr != nil {
		return f.setErr
	}
	f.statuses[scope] = status
	f.setCalls = append(f.setCalls, setCall{scope: scope, status: status})
	return nil
}

func (f *fakeAuthority) LibprepForFlowcell(ctx context.Context, projectID, sample, flowcellID string) (string, error) {
	return "", authority.ErrNotFound
}

func (f *fakeAuthority) ListLibpreps(ctx context.Context, projectID, sample string) ([]string, error) {
	return nil, nil
}

type fakeScheduler struct {
	killed []string
}

func (f *fakeScheduler) Submit(ctx context.Context, req *scheduler.SubmitRequest) (string, error) {
	return "1", nil
}

func (f *fakeScheduler) Status(ctx context.Context, handle string) (*scheduler.Status, error) {
	return &scheduler.Status{State: scheduler.StateRunning}, nil
}

func (f *fakeScheduler) Kill(ctx context.Context, handle string) error {
	f.killed = append(f.killed, handle)
	return nil
}

func testGate(t *testing.T) (*Gate, *ledger.Ledger, *fakeAuthority, *fakeScheduler) {
	t.Helper()

	db := testutil.OpenTestDB(t)
	t.Cleanup(func() { testutil.CloseDB(db) })

	l := ledger.New(db, ledger.WithRetry(2, time.Millisecond))
	auth := newFakeAuthority()
	sched := &fakeScheduler{}

	g := New(l, auth, scheduler.ClientSet{Local: sched, Batch: sched})

	return g, l, auth, sched
}

func TestAllowsFreshScope(t *testing.T) {
	g, _, _, _ := testGate(t)

	decision, err := g.Check(context.Background(), &Request{Scope: "P100/S1", Workflow: "align"})
	require.NoError(t, err)
	require.True(t, decision.Allow)
}

func TestSkipsFinishedScope(t *testing.T) {
	g, _, auth, _ := testGate(t)
	auth.statuses["P100/S1"] = models.StatusAnalyzed

	decision, err := g.Check(context.Background(), &Request{Scope: "P100/S1", Workflow: "align"})
	require.NoError(t, err)
	require.False(t, decision.Allow)
	require.False(t, decision.Attention)
}

func TestRestartFinishedAllows(t *testing.T) {
	g, _, auth, _ := testGate(t)
	auth.statuses["P100/S1"] = models.StatusAnalyzed

	decision, err := g.Check(context.Background(), &Request{
		Scope:           "P100/S1",
		Workflow:        "align",
		RestartFinished: true,
	})
	require.NoError(t, err)
	require.True(t, decision.Allow)
}

func TestSkipsRunningScope(t *testing.T) {
	g, _, auth, _ := testGate(t)
	auth.statuses["P100/S1"] = models.StatusUnderAnalysis

	decision, err := g.Check(context.Background(), &Request{Scope: "P100/S1", Workflow: "align"})
	require.NoError(t, err)
	require.False(t, decision.Allow)
}

func TestSkipsFailedScopeWithAttention(t *testing.T) {
	g, _, auth, _ := testGate(t)
	auth.statuses["P100/S1"] = models.StatusFailed

	decision, err := g.Check(context.Background(), &Request{Scope: "P100/S1", Workflow: "align"})
	require.NoError(t, err)
	require.False(t, decision.Allow)
	require.True(t, decision.Attention)
}

func TestRestartFailedAllows(t *testing.T) {
	g, _, auth, _ := testGate(t)
	auth.statuses["P100/S1"] = models.StatusFailed

	decision, err := g.Check(context.Background(), &Request{
		Scope:         "P100/S1",
		Workflow:      "align",
		RestartFailed: true,
	})
	require.NoError(t, err)
	require.True(t, decision.Allow)
}

func TestLedgerRowBlocksSecondLaunch(t *testing.T) {
	g, l, _, _ := testGate(t)

	require.NoError(t, l.Insert(&models.LedgerRow{
		ScopePath:      "P100/S1",
		Workflow:       "align",
		Engine:         "piper",
		AnalysisDir:    "/data/analysis/P100/S1",
		SchedulerJobID: "42",
	}))

	// Authority says nothing is running: the ledger alone must
	// still reject the second launch.
	decision, err := g.Check(context.Background(), &Request{Scope: "P100/S1", Workflow: "align"})
	require.NoError(t, err)
	require.False(t, decision.Allow)
}

func TestRestartRunningKillsTrackedJob(t *testing.T) {
	g, l, auth, sched := testGate(t)
	auth.statuses["P100/S1"] = models.StatusUnderAnalysis

	require.NoError(t, l.Insert(&models.LedgerRow{
		ScopePath:      "P100/S1",
		Workflow:       "align",
		Engine:         "piper",
		AnalysisDir:    "/data/analysis/P100/S1",
		SchedulerJobID: "42",
	}))

	decision, err := g.Check(context.Background(), &Request{
		Scope:          "P100/S1",
		Workflow:       "align",
		RestartRunning: true,
	})
	require.NoError(t, err)
	require.True(t, decision.Allow)
	require.Equal(t, []string{"42"}, sched.killed)

	exists, err := l.Exists("P100/S1", "align")
	require.NoError(t, err)
	require.False(t, exists)
}

func TestAuthorityFailureBlocksDecision(t *testing.T) {
	g, _, auth, _ := testGate(t)
	auth.getErr = errors.New("timeout")

	_, err := g.Check(context.Background(), &Request{Scope: "P100/S1", Workflow: "align"})
	require.Error(t, err)
}

func TestRecordLaunchInsertsThenSetsStatus(t *testing.T) {
	g, l, auth, _ := testGate(t)

	row := &models.LedgerRow{
		ScopePath:      "P100/S1/A/run",
		Workflow:       "align",
		Engine:         "piper",
		AnalysisDir:    "/data/analysis/P100/S1/A/run",
		SchedulerJobID: "42",
	}

	require.NoError(t, g.RecordLaunch(context.Background(), row))

	exists, err := l.Exists("P100/S1/A/run", "align")
	require.NoError(t, err)
	require.True(t, exists)
	require.Equal(t, models.StatusRunning, auth.statuses["P100/S1/A/run"])
}

func TestRecordLaunchSurvivesRemoteFailure(t *testing.T) {
	g, l, auth, _ := testGate(t)
	auth.setErr = errors.New("network partition")

	row := &models.LedgerRow{
		ScopePath:      "P100/S1",
		Workflow:       "align",
		Engine:         "piper",
		AnalysisDir:    "/data/analysis/P100/S1",
		SchedulerJobID: "42",
	}

	// The ledger row is the only record of the job when the
	// remote update fails; RecordLaunch must keep it and succeed.
	require.NoError(t, g.RecordLaunch(context.Background(), row))

	exists, err := l.Exists("P100/S1", "align")
	require.NoError(t, err)
	require.True(t, exists)
}

func TestRecordLaunchDuplicateSurfaces(t *testing.T) {
	g, _, _, _ := testGate(t)

	row := &models.LedgerRow{
		ScopePath:      "P100/S1",
		Workflow:       "align",
		Engine:         "piper",
		AnalysisDir:    "/data/analysis/P100/S1",
		SchedulerJobID: "42",
	}
	require.NoError(t, g.RecordLaunch(context.Background(), row))

	dup := *row
	err := g.RecordLaunch(context.Background(), &dup)
	require.ErrorIs(t, err, ledger.ErrDuplicate)
}
