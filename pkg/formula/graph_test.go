package formula

import (
	"testing"

	"github.com/docstream/queryengine/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func output(id int64, executionOrder int, formula string) *models.Output {
	return &models.Output{ID: id, ExecutionOrder: executionOrder, Formula: formula}
}

func TestDependsOn(t *testing.T) {
	graph := NewDependencyGraph([]*models.Output{
		output(1, 1, ""),
		output(2, 2, "OUTPUT(1) * 2"),
		output(3, 3, "OUTPUT(2) + CONST(7)"),
	})

	assert.True(t, graph.DependsOn(2, 1))
	assert.True(t, graph.DependsOn(3, 1), "transitive dependency")
	assert.False(t, graph.DependsOn(1, 3))
	assert.False(t, graph.DependsOn(1, 1))
}

func TestCycleDetection(t *testing.T) {
	acyclic := NewDependencyGraph([]*models.Output{
		output(1, 1, ""),
		output(2, 2, "OUTPUT(1)"),
	})
	assert.Nil(t, acyclic.Cycle())

	cyclic := NewDependencyGraph([]*models.Output{
		output(1, 1, "OUTPUT(3)"),
		output(2, 2, "OUTPUT(1)"),
		output(3, 3, "OUTPUT(2)"),
	})

	cycle := cyclic.Cycle()
	require.NotNil(t, cycle)
	assert.ElementsMatch(t, []int64{1, 2, 3}, cycle)
}

func TestExecutionPlan(t *testing.T) {
	graph := NewDependencyGraph([]*models.Output{
		output(1, 5, ""),
		output(2, 1, ""),
		output(3, 2, "OUTPUT(1) + OUTPUT(2)"),
	})

	plan, err := graph.ExecutionPlan()
	require.NoError(t, err)

	// Independent outputs follow execution order; 3 waits on both.
	assert.Equal(t, []int64{2, 1, 3}, plan)
}

func TestExecutionPlanCycleFails(t *testing.T) {
	graph := NewDependencyGraph([]*models.Output{
		output(1, 1, "OUTPUT(2)"),
		output(2, 2, "OUTPUT(1)"),
	})

	_, err := graph.ExecutionPlan()
	assert.Error(t, err)
}

func TestForeignReferencesIgnoredInGraph(t *testing.T) {
	graph := NewDependencyGraph([]*models.Output{
		output(1, 1, "OUTPUT(999)"),
	})

	plan, err := graph.ExecutionPlan()
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, plan)
}
