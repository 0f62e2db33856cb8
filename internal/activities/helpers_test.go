package activities

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rendis/waypoint/internal/clock"
	"github.com/rendis/waypoint/internal/engine"
	"github.com/rendis/waypoint/internal/expressions"
	"github.com/rendis/waypoint/pkg/schema"
)

var testEpoch = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

// recorder records the value of one variable each time it runs.
type recorder struct {
	engine.Base
	Var  string
	seen []any
}

func newRecorder(id, name string) *recorder {
	return &recorder{Base: engine.Base{ActivityID: id, ActivityType: "test.Recorder"}, Var: name}
}

func (p *recorder) Execute(ctx *engine.ExecutionContext) error {
	v, _ := ctx.Get(p.Var)
	p.seen = append(p.seen, v)
	return nil
}

func (p *recorder) ints(t *testing.T) []int {
	t.Helper()
	out := make([]int, 0, len(p.seen))
	for _, v := range p.seen {
		n, ok := v.(int)
		require.True(t, ok, "value %v is %T", v, v)
		out = append(out, n)
	}
	return out
}

// fail always faults.
type fail struct {
	engine.Base
}

func newFail(id string) *fail {
	return &fail{Base: engine.Base{ActivityID: id, ActivityType: "test.Fail"}}
}

func (f *fail) Execute(*engine.ExecutionContext) error {
	return schema.NewError(schema.ErrCodeExecution, "boom").WithActivity(f.ActivityID)
}

func evaluator(t *testing.T) engine.Evaluator {
	t.Helper()
	reg, err := expressions.NewDefaultRegistry()
	require.NoError(t, err)
	return reg
}

func workflow(root engine.Activity, vars map[string]any) *engine.Workflow {
	return &engine.Workflow{ID: "wf-test", Version: "1", Root: root, Variables: vars}
}

func run(t *testing.T, wf *engine.Workflow, opts engine.InstanceOptions) *engine.Instance {
	t.Helper()
	require.NoError(t, wf.Validate())
	if opts.Clock == nil {
		opts.Clock = clock.NewFixed(testEpoch)
	}
	if opts.Evaluator == nil {
		opts.Evaluator = evaluator(t)
	}
	in := engine.NewInstance(wf, opts)
	require.NoError(t, in.Start())
	require.NoError(t, in.RunToIdle(t.Context()))
	return in
}

func resumeHash(t *testing.T, in *engine.Instance, typeName string, payload any, input map[string]any) {
	t.Helper()
	hash, err := engine.Hash(typeName, payload)
	require.NoError(t, err)
	_, err = in.Resume(engine.BookmarkRef{Hash: hash}, input)
	require.NoError(t, err)
	require.NoError(t, in.RunToIdle(t.Context()))
}

func rootVar(t *testing.T, in *engine.Instance, name string) any {
	t.Helper()
	root := in.Root()
	require.NotNil(t, root)
	v, ok := root.Get(name)
	require.True(t, ok, "variable %s not set", name)
	return v
}

func faultCode(in *engine.Instance) string {
	if f := in.Fault(); f != nil {
		return f.Code
	}
	return ""
}
