package activities

import (
	"fmt"
	"io"
	"os"

	"github.com/rendis/waypoint/internal/engine"
	"github.com/rendis/waypoint/pkg/schema"
)

// SetVariable evaluates Value and stores it in the nearest enclosing scope
// declaring Name.
type SetVariable struct {
	engine.Base
	Name  string
	Value engine.Input[any]
}

// NewSetVariable creates a variable assignment.
func NewSetVariable(id, name string, value engine.Input[any]) *SetVariable {
	return &SetVariable{Base: engine.Base{ActivityID: id, ActivityType: TypeSetVariable}, Name: name, Value: value}
}

// Execute assigns the variable.
func (s *SetVariable) Execute(ctx *engine.ExecutionContext) error {
	if s.Name == "" {
		return schema.NewError(schema.ErrCodeValidation, "set variable requires a name").WithActivity(s.ActivityID)
	}
	v, err := s.Value.Get(ctx)
	if err != nil {
		return err
	}
	setResult(ctx, s.Name, v)
	return nil
}

// WriteLine writes a line of text, to stdout unless Writer is set.
type WriteLine struct {
	engine.Base
	Text   engine.Input[string]
	Writer io.Writer
}

// NewWriteLine creates a console writer.
func NewWriteLine(id string, text engine.Input[string]) *WriteLine {
	return &WriteLine{Base: engine.Base{ActivityID: id, ActivityType: TypeWriteLine}, Text: text}
}

// Execute writes the text.
func (w *WriteLine) Execute(ctx *engine.ExecutionContext) error {
	text, err := w.Text.Get(ctx)
	if err != nil {
		return err
	}
	out := w.Writer
	if out == nil {
		out = os.Stdout
	}
	if _, err := fmt.Fprintln(out, text); err != nil {
		return schema.NewErrorf(schema.ErrCodeExecution, "write line: %s", err.Error()).WithCause(err)
	}
	return nil
}
