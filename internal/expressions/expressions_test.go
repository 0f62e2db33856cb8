package expressions

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/waypoint/pkg/schema"
)

func sampleData() map[string]any {
	return Data(
		map[string]any{"CurrentValue": 3, "name": "pond"},
		map[string]any{"answer": "YES", "count": 2},
		map[string]any{"instance_id": "wi-1"},
	)
}

func TestDefaultRegistry_Languages(t *testing.T) {
	r, err := NewDefaultRegistry()
	require.NoError(t, err)
	for _, lang := range []string{"expr", "cel", "jq"} {
		e, ok := r.Engine(lang)
		require.True(t, ok, lang)
		assert.Equal(t, lang, e.Name())
	}
}

func TestRegistry_UnknownLanguage(t *testing.T) {
	r := NewRegistry(NewExprEngine())
	_, err := r.Evaluate(context.Background(), Expression{Language: "lua", Source: "1"}, nil)
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeUnsupported))
}

func TestExpr_ReadsVariablesAndInput(t *testing.T) {
	e := NewExprEngine()
	ctx := context.Background()

	out, err := e.Evaluate(ctx, "vars.CurrentValue * 2", sampleData())
	require.NoError(t, err)
	assert.Equal(t, 6, out)

	out, err = e.Evaluate(ctx, `input.answer == "YES" && workflow.instance_id == "wi-1"`, sampleData())
	require.NoError(t, err)
	assert.Equal(t, true, out)
}

func TestExpr_CompileError(t *testing.T) {
	e := NewExprEngine()
	_, err := e.Evaluate(context.Background(), "1 +* 2", sampleData())
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))

	_, err = e.Evaluate(context.Background(), "", nil)
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))
}

func TestCEL_Condition(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)

	out, err := e.Evaluate(context.Background(), "vars.CurrentValue < 5 && input.count == 2", sampleData())
	require.NoError(t, err)
	assert.Equal(t, true, out)

	out, err = e.Evaluate(context.Background(), "1 + 2", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(3), out)
}

func TestCEL_MissingKeyIsExecutionError(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)
	_, err = e.Evaluate(context.Background(), "vars.missing == 1", sampleData())
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeExecution))
}

func TestGoJQ_ProjectsInput(t *testing.T) {
	e := NewGoJQEngine()

	out, err := e.Evaluate(context.Background(), ".input.answer | ascii_downcase", sampleData())
	require.NoError(t, err)
	assert.Equal(t, "yes", out)

	out, err = e.Evaluate(context.Background(), ".vars | keys[]", sampleData())
	require.NoError(t, err)
	assert.Equal(t, []any{"CurrentValue", "name"}, out)

	out, err = e.Evaluate(context.Background(), "empty", sampleData())
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestGoJQ_ParseError(t *testing.T) {
	_, err := NewGoJQEngine().Evaluate(context.Background(), ".[", sampleData())
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))
}

func TestEngines_ConcurrentCacheUse(t *testing.T) {
	r, err := NewDefaultRegistry()
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := r.Evaluate(context.Background(), Expression{Language: "cel", Source: "vars.CurrentValue >= 3"}, sampleData())
			assert.NoError(t, err)
			assert.Equal(t, true, out)
		}()
	}
	wg.Wait()
}
