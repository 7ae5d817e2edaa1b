package dag_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"disneyetl/internal/config"
	"disneyetl/internal/dag"
	"disneyetl/internal/notify"
)

type fakeModule struct {
	mu      sync.Mutex
	calls   []string
	fail    map[string]error
	params  []config.DAGParams
	block   chan struct{}
	started chan struct{}
}

func newFakeModule() *fakeModule { return &fakeModule{fail: map[string]error{}} }

func (m *fakeModule) record(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, name)
	return m.fail[name]
}

func (m *fakeModule) DAGName() string { return "fake_raw_dag" }

func (m *fakeModule) Extract(ctx context.Context, p config.DAGParams) error {
	m.mu.Lock()
	m.params = append(m.params, p)
	m.mu.Unlock()
	if m.block != nil {
		close(m.started)
		select {
		case <-m.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return m.record("extract")
}

func (m *fakeModule) Load(_ context.Context, _ config.DAGParams) error { return m.record("load") }
func (m *fakeModule) DeleteTempFile() error                            { return m.record("delete") }

type fakeNotifier struct {
	mu     sync.Mutex
	infos  []notify.TaskContext
	errors []notify.TaskContext
	urls   []string
	err    error
}

func (n *fakeNotifier) Info(_ context.Context, tc notify.TaskContext, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.infos = append(n.infos, tc)
	return n.err
}

func (n *fakeNotifier) Error(_ context.Context, tc notify.TaskContext, logURL string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.errors = append(n.errors, tc)
	n.urls = append(n.urls, logURL)
	return n.err
}

func fixedNow() time.Time { return time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC) }

func build(t *testing.T, m *fakeModule, n notify.Notifier, p config.DAGParams) *dag.DAG {
	t.Helper()
	d, err := dag.New(m, dag.Options{
		Params:     p,
		Notifier:   n,
		LogBaseURL: "https://airflow.example/log",
		Logger:     zerolog.Nop(),
		Now:        fixedNow,
	})
	require.NoError(t, err)
	return d
}

func TestNew_TaskOrder(t *testing.T) {
	t.Parallel()

	d := build(t, newFakeModule(), nil, config.DefaultDAGParams())
	require.Equal(t, "fake_raw_dag", d.Name())
	require.Equal(t, []string{
		dag.TaskStart, dag.TaskExtract, dag.TaskLoad, dag.TaskDeleteTempFile, dag.TaskEnd,
	}, d.Tasks())
}

func TestRun_Success(t *testing.T) {
	t.Parallel()

	m := newFakeModule()
	n := &fakeNotifier{}
	p := config.DefaultDAGParams()
	p.Limit = 7
	d := build(t, m, n, p)

	res, err := d.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"extract", "load", "delete"}, m.calls)
	require.Len(t, res.Done, 5)
	require.Empty(t, res.Failed)
	require.Equal(t, fixedNow(), res.ExecutionTime)
	require.Equal(t, 7, m.params[0].Limit)
	require.Empty(t, n.infos, "no success alert without alert-success")
	require.Empty(t, n.errors)
}

func TestRun_FailureStopsDownstreamAndAlerts(t *testing.T) {
	t.Parallel()

	m := newFakeModule()
	boom := errors.New("load exploded")
	m.fail["load"] = boom
	n := &fakeNotifier{}
	d := build(t, m, n, config.DefaultDAGParams())

	res, err := d.Run(context.Background())
	require.ErrorIs(t, err, boom)

	var te *dag.TaskError
	require.ErrorAs(t, err, &te)
	require.Equal(t, dag.TaskLoad, te.Task)
	require.Equal(t, dag.TaskLoad, res.Failed)
	require.Equal(t, []string{"extract", "load"}, m.calls, "delete_temp_file must not run after a failure")

	require.Len(t, n.errors, 1)
	require.Equal(t, "fake_raw_dag", n.errors[0].DAG)
	require.Equal(t, dag.TaskLoad, n.errors[0].Task)
	require.True(t, strings.HasPrefix(n.urls[0], "https://airflow.example/log?"))
	require.Contains(t, n.urls[0], "task_id=load_task")
}

func TestRun_BypassAlert(t *testing.T) {
	t.Parallel()

	m := newFakeModule()
	m.fail["extract"] = errors.New("api down")
	n := &fakeNotifier{}
	p := config.DefaultDAGParams()
	p.Flags = []string{config.FlagBypassAlert}
	d := build(t, m, n, p)

	_, err := d.Run(context.Background())
	require.Error(t, err)
	require.Empty(t, n.errors)
}

func TestRun_AlertSuccess(t *testing.T) {
	t.Parallel()

	n := &fakeNotifier{}
	p := config.DefaultDAGParams()
	p.Flags = []string{config.FlagAlertSuccess}
	d := build(t, newFakeModule(), n, p)

	_, err := d.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, n.infos, 1)
	require.Equal(t, dag.TaskEnd, n.infos[0].Task)
}

func TestRun_NotifierErrorDoesNotChangeOutcome(t *testing.T) {
	t.Parallel()

	n := &fakeNotifier{err: errors.New("slack down")}
	p := config.DefaultDAGParams()
	p.Flags = []string{config.FlagAlertSuccess}
	d := build(t, newFakeModule(), n, p)

	_, err := d.Run(context.Background())
	require.NoError(t, err)
}

func TestTimeout(t *testing.T) {
	t.Parallel()

	d := build(t, newFakeModule(), nil, config.DefaultDAGParams())
	require.Equal(t, time.Hour, d.Timeout())

	p := config.DefaultDAGParams()
	p.Flags = []string{config.FlagNoTimeout}
	d = build(t, newFakeModule(), nil, p)
	require.Zero(t, d.Timeout())
}

func TestRun_DeadlineEndsRun(t *testing.T) {
	t.Parallel()

	m := newFakeModule()
	m.block = make(chan struct{})
	m.started = make(chan struct{})
	d, err := dag.New(m, dag.Options{
		Params:  config.DefaultDAGParams(),
		Timeout: 20 * time.Millisecond,
		Logger:  zerolog.Nop(),
	})
	require.NoError(t, err)

	_, err = d.Run(context.Background())
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Empty(t, m.calls)
}

func TestRun_OneActiveRun(t *testing.T) {
	t.Parallel()

	m := newFakeModule()
	m.block = make(chan struct{})
	m.started = make(chan struct{})
	d := build(t, m, nil, config.DefaultDAGParams())

	done := make(chan error, 1)
	go func() {
		_, err := d.Run(context.Background())
		done <- err
	}()
	<-m.started

	_, err := d.Run(context.Background())
	require.ErrorIs(t, err, dag.ErrRunning)

	close(m.block)
	require.NoError(t, <-done)
}

func TestBuild_RejectsCycle(t *testing.T) {
	t.Parallel()

	noop := func(context.Context) error { return nil }
	tasks := []*dag.Task{{Name: "a", Run: noop}, {Name: "b", Run: noop}}
	_, err := dag.Build("cyclic", tasks, [][2]string{{"a", "b"}, {"b", "a"}}, dag.Options{Logger: zerolog.Nop()})
	require.Error(t, err)
}

func TestBuild_DiamondOrder(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var ran []string
	task := func(name string) *dag.Task {
		return &dag.Task{Name: name, Run: func(context.Context) error {
			mu.Lock()
			defer mu.Unlock()
			ran = append(ran, name)
			return nil
		}}
	}
	tasks := []*dag.Task{task("d"), task("c"), task("b"), task("a")}
	edges := [][2]string{{"a", "b"}, {"a", "c"}, {"b", "d"}, {"c", "d"}}
	d, err := dag.Build("diamond", tasks, edges, dag.Options{Logger: zerolog.Nop()})
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b", "c", "d"}, d.Tasks())

	_, err = d.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b", "c", "d"}, ran)
}

func TestLogURL(t *testing.T) {
	t.Parallel()

	tc := notify.TaskContext{DAG: "d", Task: "t", ExecutionTime: fixedNow()}
	require.Empty(t, dag.LogURL("", tc))
	require.Equal(t,
		"https://x/log?dag_id=d&execution_date=2026-10-14T12%3A00%3A00Z&task_id=t",
		dag.LogURL("https://x/log", tc))
}
