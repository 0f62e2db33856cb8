package main

import (
	"io"
	"time"

	"github.com/rendis/waypoint/internal/activities"
	"github.com/rendis/waypoint/internal/engine"
)

// sampleWorkflows returns the workflows the host registers on start. Every
// WriteLine writes to out.
func sampleWorkflows(out io.Writer) []*engine.Workflow {
	return []*engine.Workflow{
		happinessWorkflow(out),
		countdownWorkflow(out),
		heartbeatWorkflow(out),
	}
}

func say(out io.Writer, id string, text engine.Input[string]) *activities.WriteLine {
	w := activities.NewWriteLine(id, text)
	w.Writer = out
	return w
}

// happinessWorkflow asks how the user feels until they answer "quit". Each
// answer suspends the instance on a ReadLine bookmark.
func happinessWorkflow(out io.Writer) *engine.Workflow {
	react := activities.NewIf("react",
		engine.Expr[bool]("cel", `vars.answer == "quit"`),
		activities.NewBreak("stop"),
		activities.NewIf("mood",
			engine.Expr[bool]("cel", `vars.answer == "happy"`),
			say(out, "glad", engine.Literal("Glad to hear it!")),
			say(out, "sorry", engine.Expr[string]("expr", `"Sorry you feel " + vars.answer + "."`)),
		),
	)
	ask := activities.NewWhile("ask", engine.Literal(true), activities.NewSequence("turn",
		say(out, "prompt", engine.Literal("How are you feeling? (quit to stop)")),
		activities.NewReadLine("read", "answer"),
		react,
	))
	return &engine.Workflow{
		ID:        "happiness",
		Version:   "1",
		Root:      activities.NewSequence("main", ask, say(out, "bye", engine.Literal("Bye!"))),
		Variables: map[string]any{"answer": ""},
	}
}

// countdownWorkflow counts down from input.from (default 10) and stops early
// at input.abort_at.
func countdownWorkflow(out io.Writer) *engine.Workflow {
	body := activities.NewSequence("tick",
		activities.NewIf("abort",
			engine.Expr[bool]("expr", `vars.current_value == vars.abort_at`),
			activities.NewSequence("aborting",
				say(out, "aborted", engine.Literal("aborted")),
				activities.NewBreak("break"),
			),
			nil,
		),
		say(out, "count", engine.Expr[string]("expr", `string(vars.current_value)`)),
	)
	loop := activities.NewFor("count-down", 0, 1, body)
	loop.Start = engine.Expr[int]("jq", `.input.from // .vars.from`)
	loop.Step = engine.Literal(-1)
	loop.Operator = activities.GreaterThanOrEqual
	return &engine.Workflow{
		ID:      "countdown",
		Version: "1",
		Root: activities.NewSequence("main",
			activities.NewSetVariable("abort-at", "abort_at", engine.Expr[any]("jq", `.input.abort_at // 0`)),
			loop,
			say(out, "liftoff", engine.Literal("liftoff")),
		),
		Variables: map[string]any{"from": 10, "abort_at": 0},
	}
}

// heartbeatWorkflow is started by its timer trigger every minute, then
// pauses on a delay before it reports.
func heartbeatWorkflow(out io.Writer) *engine.Workflow {
	every := activities.NewTimer("every", time.Minute)
	every.Trigger = true
	return &engine.Workflow{
		ID:      "heartbeat",
		Version: "1",
		Root: activities.NewSequence("main",
			every,
			activities.NewDelay("settle", 5*time.Second),
			say(out, "beat", engine.Expr[string]("expr", `"beat from " + workflow.id`)),
		),
	}
}
