// Package dag runs a module as a fixed task graph:
//
//	start_task >> extract_task >> load_task >> delete_temp_file_task >> end_task
//
// A run executes the tasks in dependency order, once each. The first failing
// task ends the run; tasks downstream of it are skipped. At most one run of
// a DAG is active at a time.
//
// Flags on the DAG's parameters change the run:
//
//   - bypass-alert: no failure notification.
//   - no-timeout: no run deadline (otherwise Options.Timeout, default 1h).
//   - alert-success: an info notification when the run succeeds.
//
// Notifications are best effort; delivery errors are logged and never
// change the outcome of a run.
package dag

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"sync"
	"time"

	hdag "github.com/heimdalr/dag"
	"github.com/rs/zerolog"

	"disneyetl/internal/config"
	"disneyetl/internal/metrics"
	"disneyetl/internal/module"
	"disneyetl/internal/notify"
)

// Task IDs.
const (
	TaskStart          = "start_task"
	TaskExtract        = "extract_task"
	TaskLoad           = "load_task"
	TaskDeleteTempFile = "delete_temp_file_task"
	TaskEnd            = "end_task"
)

// ErrRunning is returned by Run while another run of the same DAG is active.
var ErrRunning = errors.New("dag: a run is already active")

// TaskError reports the task that ended a run.
type TaskError struct {
	DAG  string
	Task string
	Err  error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("dag %s: task %s: %v", e.DAG, e.Task, e.Err)
}

func (e *TaskError) Unwrap() error { return e.Err }

// TaskFunc is the body of one task.
type TaskFunc func(ctx context.Context) error

// Task is one vertex of the graph, addressed by Name.
type Task struct {
	Name string
	Run  TaskFunc
}

// Options configures a DAG.
type Options struct {
	// Params are the effective DAG parameters; see config.Pipeline.DAGParams.
	Params config.DAGParams
	// Timeout bounds a run unless the no-timeout flag is set. Zero means
	// config.DefaultRunTimeout.
	Timeout time.Duration
	// Notifier receives failure and success notifications. Nil means
	// notify.Nop.
	Notifier notify.Notifier
	// LogBaseURL, when set, is used to build the log link of failure alerts.
	LogBaseURL string
	Logger     zerolog.Logger
	// Now is the clock; nil means time.Now.
	Now func() time.Time
}

// DAG is a module wired into the task graph.
type DAG struct {
	name    string
	params  config.DAGParams
	timeout time.Duration
	notify  notify.Notifier
	logBase string
	log     zerolog.Logger
	now     func() time.Time

	graph *hdag.DAG
	order []*Task

	// running is held for the duration of a run.
	running sync.Mutex
}

// New builds the standard graph for m.
func New(m module.Module, opt Options) (*DAG, error) {
	p := opt.Params
	tasks := []*Task{
		{Name: TaskStart, Run: func(context.Context) error { return nil }},
		{Name: TaskExtract, Run: func(ctx context.Context) error { return m.Extract(ctx, p) }},
		{Name: TaskLoad, Run: func(ctx context.Context) error { return m.Load(ctx, p) }},
		{Name: TaskDeleteTempFile, Run: func(context.Context) error { return m.DeleteTempFile() }},
		{Name: TaskEnd, Run: func(context.Context) error { return nil }},
	}
	edges := [][2]string{
		{TaskStart, TaskExtract},
		{TaskExtract, TaskLoad},
		{TaskLoad, TaskDeleteTempFile},
		{TaskDeleteTempFile, TaskEnd},
	}
	return Build(m.DAGName(), tasks, edges, opt)
}

// Build assembles a DAG from arbitrary tasks and edges. Edges name task IDs;
// a cycle or an unknown ID is an error.
func Build(name string, tasks []*Task, edges [][2]string, opt Options) (*DAG, error) {
	g := hdag.NewDAG()
	for _, t := range tasks {
		if err := g.AddVertexByID(t.Name, t); err != nil {
			return nil, fmt.Errorf("dag %s: add task %s: %w", name, t.Name, err)
		}
	}
	for _, e := range edges {
		if err := g.AddEdge(e[0], e[1]); err != nil {
			return nil, fmt.Errorf("dag %s: edge %s >> %s: %w", name, e[0], e[1], err)
		}
	}
	order, err := topoOrder(g)
	if err != nil {
		return nil, fmt.Errorf("dag %s: %w", name, err)
	}

	d := &DAG{
		name:    name,
		params:  opt.Params,
		timeout: opt.Timeout,
		notify:  opt.Notifier,
		logBase: opt.LogBaseURL,
		log:     opt.Logger.With().Str("dag", name).Logger(),
		now:     opt.Now,
		graph:   g,
		order:   order,
	}
	if d.timeout <= 0 {
		d.timeout = config.DefaultRunTimeout
	}
	if d.notify == nil {
		d.notify = notify.Nop{}
	}
	if d.now == nil {
		d.now = time.Now
	}
	return d, nil
}

// topoOrder walks g from its roots, releasing a task once all its parents
// were emitted. Ties are broken by task ID so the order is stable.
func topoOrder(g *hdag.DAG) ([]*Task, error) {
	pending := map[string]int{}
	var ready []string
	for id := range g.GetRoots() {
		ready = append(ready, id)
	}
	sort.Strings(ready)

	var out []*Task
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]

		v, err := g.GetVertex(id)
		if err != nil {
			return nil, err
		}
		t, ok := v.(*Task)
		if !ok {
			return nil, fmt.Errorf("vertex %s is %T, want *Task", id, v)
		}
		out = append(out, t)

		children, err := g.GetChildren(id)
		if err != nil {
			return nil, err
		}
		var next []string
		for cid := range children {
			if _, seen := pending[cid]; !seen {
				parents, err := g.GetParents(cid)
				if err != nil {
					return nil, err
				}
				pending[cid] = len(parents)
			}
			pending[cid]--
			if pending[cid] == 0 {
				next = append(next, cid)
			}
		}
		sort.Strings(next)
		ready = append(ready, next...)
	}
	if len(out) != g.GetOrder() {
		return nil, fmt.Errorf("graph has %d tasks, only %d reachable from roots", g.GetOrder(), len(out))
	}
	return out, nil
}

// Name returns the DAG name.
func (d *DAG) Name() string { return d.name }

// Params returns the parameters the DAG was built with.
func (d *DAG) Params() config.DAGParams { return d.params }

// Tasks returns the task IDs in run order.
func (d *DAG) Tasks() []string {
	out := make([]string, len(d.order))
	for i, t := range d.order {
		out[i] = t.Name
	}
	return out
}

// Timeout returns the run deadline, or 0 when the no-timeout flag is set.
func (d *DAG) Timeout() time.Duration {
	if d.params.HasFlag(config.FlagNoTimeout) {
		return 0
	}
	return d.timeout
}

// Result summarizes a finished run.
type Result struct {
	DAG           string
	ExecutionTime time.Time
	Duration      time.Duration
	// Done lists the tasks that succeeded, in order.
	Done []string
	// Failed is the task that ended the run, empty on success.
	Failed string
}

// Run executes every task once. It returns ErrRunning if a run is already
// active and a *TaskError when a task fails.
func (d *DAG) Run(ctx context.Context) (Result, error) {
	if !d.running.TryLock() {
		return Result{DAG: d.name}, ErrRunning
	}
	defer d.running.Unlock()

	if to := d.Timeout(); to > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, to)
		defer cancel()
	}

	res := Result{DAG: d.name, ExecutionTime: d.now().UTC()}
	start := time.Now()
	d.log.Info().
		Str("scheduler", d.params.Scheduler).
		Strs("tags", d.params.Tags).
		Strs("flags", d.params.Flags).
		Dur("timeout", d.Timeout()).
		Msg("dag run started")

	var runErr error
	for _, t := range d.order {
		if err := ctx.Err(); err != nil {
			runErr = &TaskError{DAG: d.name, Task: t.Name, Err: err}
			res.Failed = t.Name
			break
		}
		ts := time.Now()
		err := t.Run(ctx)
		took := time.Since(ts)
		metrics.RecordTask(d.name, t.Name, err, took)
		if err != nil {
			d.log.Error().Err(err).Str("task", t.Name).Dur("took", took).Msg("task failed")
			runErr = &TaskError{DAG: d.name, Task: t.Name, Err: err}
			res.Failed = t.Name
			break
		}
		d.log.Debug().Str("task", t.Name).Dur("took", took).Msg("task done")
		res.Done = append(res.Done, t.Name)
	}
	res.Duration = time.Since(start)

	cancelled := runErr != nil && errors.Is(runErr, context.Canceled)
	metrics.RecordRun(d.name, runErr, cancelled, res.Duration)

	tc := notify.TaskContext{DAG: d.name, Task: res.Failed, ExecutionTime: res.ExecutionTime}
	switch {
	case runErr != nil:
		if d.params.HasFlag(config.FlagBypassAlert) {
			d.log.Info().Msg("failure alert bypassed")
		} else {
			d.deliver(func(ctx context.Context) error {
				return d.notify.Error(ctx, tc, LogURL(d.logBase, tc))
			})
		}
		d.log.Error().Err(runErr).Dur("took", res.Duration).Msg("dag run failed")
		return res, runErr
	case d.params.HasFlag(config.FlagAlertSuccess):
		tc.Task = TaskEnd
		d.deliver(func(ctx context.Context) error {
			return d.notify.Info(ctx, tc, fmt.Sprintf("dag %s finished in %s", d.name, res.Duration.Round(time.Millisecond)))
		})
	}
	d.log.Info().Dur("took", res.Duration).Msg("dag run succeeded")
	return res, nil
}

// notifyTimeout bounds one notification. Delivery does not use the run
// context, which may already be done.
const notifyTimeout = 10 * time.Second

func (d *DAG) deliver(send func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()
	if err := send(ctx); err != nil {
		d.log.Warn().Err(err).Msg("notification not delivered")
	}
}

// LogURL builds the log link of a task, or "" without a base URL:
//
//	{base}?dag_id={dag}&task_id={task}&execution_date={RFC3339}
func LogURL(base string, tc notify.TaskContext) string {
	if base == "" {
		return ""
	}
	q := url.Values{}
	q.Set("dag_id", tc.DAG)
	q.Set("task_id", tc.Task)
	q.Set("execution_date", tc.ExecutionTime.UTC().Format(time.RFC3339))
	return base + "?" + q.Encode()
}
