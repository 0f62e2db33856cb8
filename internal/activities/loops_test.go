package activities

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/waypoint/internal/engine"
	"github.com/rendis/waypoint/internal/variables"
	"github.com/rendis/waypoint/pkg/schema"
)

func forLoop(id string, start, end, step int, op ForOperator, body engine.Activity) *For {
	f := NewFor(id, start, end, body)
	f.Step = engine.Literal(step)
	f.Operator = op
	return f
}

func TestFor_ValueSequences(t *testing.T) {
	cases := []struct {
		name  string
		start int
		end   int
		step  int
		op    ForOperator
		want  []int
	}{
		{"less than or equal", 0, 5, 1, LessThanOrEqual, []int{0, 1, 2, 3, 4, 5}},
		{"less than", 0, 5, 1, LessThan, []int{0, 1, 2, 3, 4}},
		{"greater than", 5, 0, -1, GreaterThan, []int{5, 4, 3, 2, 1}},
		{"greater than or equal", 5, 0, -1, GreaterThanOrEqual, []int{5, 4, 3, 2, 1, 0}},
		{"step two", 0, 5, 2, LessThanOrEqual, []int{0, 2, 4}},
		{"default operator", 1, 3, 1, "", []int{1, 2, 3}},
		{"empty range", 5, 0, 1, LessThanOrEqual, []int{}},
		{"greater than at bound", 3, 3, -1, GreaterThan, []int{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := newRecorder("recorder", DefaultCurrentValue)
			in := run(t, workflow(forLoop("loop", tc.start, tc.end, tc.step, tc.op, p), nil), engine.InstanceOptions{})

			assert.Equal(t, schema.InstanceStatusCompleted, in.Status())
			assert.Equal(t, tc.want, p.ints(t))
			assert.Empty(t, in.Bookmarks())
		})
	}
}

func TestFor_ExpressionBounds(t *testing.T) {
	p := newRecorder("recorder", "i")
	loop := NewFor("loop", 0, 0, p)
	loop.End = engine.Expr[int]("expr", "vars.limit")
	loop.CurrentValue = variables.Variable[int]{Name: "i"}

	in := run(t, workflow(loop, map[string]any{"limit": "2"}), engine.InstanceOptions{})

	assert.Equal(t, schema.InstanceStatusCompleted, in.Status())
	assert.Equal(t, []int{0, 1, 2}, p.ints(t))
}

func TestFor_ConversionFailureFaults(t *testing.T) {
	loop := NewFor("loop", 0, 0, newRecorder("recorder", "x"))
	loop.End = engine.Expr[int]("expr", "vars.limit")

	in := run(t, workflow(loop, map[string]any{"limit": "many"}), engine.InstanceOptions{})

	assert.Equal(t, schema.InstanceStatusFaulted, in.Status())
	assert.Equal(t, schema.ErrCodeConversion, faultCode(in))
	assert.Equal(t, "loop", in.Fault().ActivityID)
}

func TestFor_UnknownOperatorFaults(t *testing.T) {
	in := run(t, workflow(forLoop("loop", 0, 3, 1, "between", newRecorder("recorder", "x")), nil), engine.InstanceOptions{})

	assert.Equal(t, schema.InstanceStatusFaulted, in.Status())
	assert.Equal(t, schema.ErrCodeUnsupported, faultCode(in))
}

func TestFor_ZeroStepRunsUntilBreak(t *testing.T) {
	p := newRecorder("recorder", DefaultCurrentValue)
	body := NewSequence("body",
		p,
		NewSetVariable("inc", "n", engine.Expr[any]("expr", "vars.n + 1")),
		NewIf("check", engine.Expr[bool]("expr", "vars.n >= 4"), NewBreak("break"), nil),
	)
	in := run(t, workflow(forLoop("loop", 0, 3, 0, LessThan, body), map[string]any{"n": 0}), engine.InstanceOptions{})

	assert.Equal(t, schema.InstanceStatusCompleted, in.Status())
	assert.Equal(t, []int{0, 0, 0, 0}, p.ints(t))
}

func TestFor_ZeroStepWithFalsePredicateCompletes(t *testing.T) {
	in := run(t, workflow(forLoop("loop", 3, 0, 0, LessThan, newRecorder("recorder", "x")), nil), engine.InstanceOptions{})
	assert.Equal(t, schema.InstanceStatusCompleted, in.Status())
}

func TestFor_NilBodyCompletes(t *testing.T) {
	in := run(t, workflow(NewFor("loop", 0, 10, nil), nil), engine.InstanceOptions{})
	assert.Equal(t, schema.InstanceStatusCompleted, in.Status())
}

func TestFor_Break(t *testing.T) {
	p := newRecorder("recorder", DefaultCurrentValue)
	body := NewSequence("body",
		p,
		NewIf("check", engine.Expr[bool]("expr", "vars.current_value == 3"), NewBreak("break"), nil),
	)
	in := run(t, workflow(NewFor("loop", 0, 10, body), nil), engine.InstanceOptions{})

	assert.Equal(t, schema.InstanceStatusCompleted, in.Status())
	assert.Equal(t, []int{0, 1, 2, 3}, p.ints(t))
}

func TestFor_NestedBreakOnlyExitsInnerLoop(t *testing.T) {
	inner := NewFor("inner", 0, 5, NewSequence("inner-body",
		newRecorder("recorder-j", "j"),
		NewIf("check", engine.Expr[bool]("expr", "vars.j == 1"), NewBreak("break"), nil),
	))
	inner.CurrentValue = variables.Variable[int]{Name: "j"}
	outer := NewFor("outer", 0, 2, NewSequence("outer-body", inner, newRecorder("recorder-i", "i")))
	outer.CurrentValue = variables.Variable[int]{Name: "i"}

	in := run(t, workflow(outer, nil), engine.InstanceOptions{})

	require.Equal(t, schema.InstanceStatusCompleted, in.Status())
	pj := inner.Body.(*Sequence).Activities[0].(*recorder)
	pi := outer.Body.(*Sequence).Activities[1].(*recorder)
	assert.Equal(t, []int{0, 1, 0, 1, 0, 1}, pj.ints(t))
	assert.Equal(t, []int{0, 1, 2}, pi.ints(t))
}

func TestFor_BreakRemovesBodyBookmarks(t *testing.T) {
	body := NewFork("body", NewEvent("wait", "never"), NewBreak("break"))
	after := newRecorder("after", DefaultCurrentValue)
	in := run(t, workflow(NewSequence("main", NewFor("loop", 0, 3, body), after), nil), engine.InstanceOptions{})

	assert.Equal(t, schema.InstanceStatusCompleted, in.Status())
	assert.Empty(t, in.Bookmarks())
	assert.Len(t, after.seen, 1)
	assert.Empty(t, in.ContextsOf("wait"))
}

func TestFor_BreakOutsideLoopCompletes(t *testing.T) {
	p := newRecorder("after", "x")
	in := run(t, workflow(NewSequence("main", NewBreak("break"), p), nil), engine.InstanceOptions{})

	assert.Equal(t, schema.InstanceStatusCompleted, in.Status())
	assert.Len(t, p.seen, 1)
}

func TestFor_ResumesAfterSnapshot(t *testing.T) {
	p := newRecorder("recorder", DefaultCurrentValue)
	wf := workflow(NewFor("loop", 0, 2, NewSequence("body", p, NewEvent("wait", "tick"))), nil)
	in := run(t, wf, engine.InstanceOptions{})
	require.Equal(t, schema.InstanceStatusSuspended, in.Status())

	for range 3 {
		snap, err := in.Snapshot()
		require.NoError(t, err)
		in, err = engine.Rehydrate(wf, snap, engine.InstanceOptions{Evaluator: evaluator(t)})
		require.NoError(t, err)
		resumeHash(t, in, schema.ActivityTypeEvent, schema.EventPayload{Name: "tick"}, nil)
	}

	assert.Equal(t, schema.InstanceStatusCompleted, in.Status())
	assert.Equal(t, []int{0, 1, 2}, p.ints(t))
}

func TestWhile_CountsUp(t *testing.T) {
	body := NewSetVariable("inc", "n", engine.Expr[any]("expr", "vars.n + 1"))
	loop := NewWhile("loop", engine.Expr[bool]("expr", "vars.n < 3"), body)

	in := run(t, workflow(loop, map[string]any{"n": 0}), engine.InstanceOptions{})

	assert.Equal(t, schema.InstanceStatusCompleted, in.Status())
	n, ok, err := variables.Variable[int]{Name: "n"}.Get(in.Root().Scope())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 3, n)
}

func TestWhile_Break(t *testing.T) {
	p := newRecorder("recorder", "n")
	body := NewSequence("body",
		p,
		NewSetVariable("inc", "n", engine.Expr[any]("expr", "vars.n + 1")),
		NewIf("check", engine.Expr[bool]("expr", "vars.n >= 2"), NewBreak("break"), nil),
	)
	in := run(t, workflow(NewWhile("loop", engine.Literal(true), body), map[string]any{"n": 0}), engine.InstanceOptions{})

	assert.Equal(t, schema.InstanceStatusCompleted, in.Status())
	assert.Len(t, p.seen, 2)
}

func TestForOperator_Holds(t *testing.T) {
	ok, err := GreaterThan.Holds(3, 3)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = GreaterThanOrEqual.Holds(3, 3)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = ForOperator("nope").Holds(1, 2)
	assert.True(t, schema.IsCode(err, schema.ErrCodeUnsupported))
}
