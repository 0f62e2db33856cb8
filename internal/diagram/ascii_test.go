package diagram

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderASCIILinear(t *testing.T) {
	model, err := Build(linearWorkflow(), nil)
	require.NoError(t, err)

	output := RenderASCII(model)
	assert.NotEmpty(t, output)

	// Verify title.
	assert.Contains(t, output, "=== greeting v2 ===")

	// Verify box-drawing characters.
	assert.Contains(t, output, "┌") // ┌
	assert.Contains(t, output, "┐") // ┐
	assert.Contains(t, output, "└") // └
	assert.Contains(t, output, "┘") // ┘
	assert.Contains(t, output, "│") // │
	assert.Contains(t, output, "─") // ─

	// Verify node labels, activity types on their own line.
	assert.Contains(t, output, "Start")
	assert.Contains(t, output, "End")
	assert.Contains(t, output, "hello")
	assert.Contains(t, output, "(WriteLine)")
	assert.Contains(t, output, "(ReadLine)")
}

func TestRenderASCIIWithStatus(t *testing.T) {
	model := &DiagramModel{
		Title: "Test",
		Nodes: []*Node{
			{ID: "s", Label: "Start", Kind: NodeKindStart},
			{ID: "a", Label: "step-a", Status: &StatusOverlay{Status: "completed"}},
			{ID: "b", Label: "step-b", Status: &StatusOverlay{Status: "faulted"}},
			{ID: "c", Label: "step-c", Status: &StatusOverlay{Status: "running"}},
			{ID: "d", Label: "step-d", Status: &StatusOverlay{Status: "suspended", Bookmarks: 2}},
			{ID: "e", Label: "step-e", Status: &StatusOverlay{Status: "cancelled"}},
			{ID: "f", Label: "step-f", Status: &StatusOverlay{Status: "pending"}},
			{ID: "end", Label: "End", Kind: NodeKindEnd},
		},
		Levels: [][]string{{"s"}, {"a", "b", "c"}, {"d", "e", "f"}, {"end"}},
	}

	output := RenderASCII(model)

	// Verify status indicators.
	assert.Contains(t, output, "[OK]")
	assert.Contains(t, output, "[FAULT]")
	assert.Contains(t, output, "[RUN]")
	assert.Contains(t, output, "[WAIT]")
	assert.Contains(t, output, "[CANCEL]")
	assert.Contains(t, output, "[PEND]")
	assert.Contains(t, output, "2 bookmarks")
}

func TestRenderASCIIWithSubgraphs(t *testing.T) {
	model, err := Build(loopWorkflow(), nil)
	require.NoError(t, err)

	output := RenderASCII(model)
	assert.Contains(t, output, "--- outer sub-steps ---")
	assert.Contains(t, output, "  [body]\n    inner\n")
	assert.Contains(t, output, "      [body]\n        stop\n")
}

func TestRenderASCIISubgraphEdges(t *testing.T) {
	model, err := Build(conditionWorkflow(), nil)
	require.NoError(t, err)

	output := RenderASCII(model)
	assert.Contains(t, output, "deploy ─→ notify")
}
