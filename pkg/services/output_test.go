package services_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docstream/queryengine/pkg/models"
	"github.com/docstream/queryengine/pkg/services"
)

func TestSaveOutputRejectsSelfReference(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	query := e.createQuery(t, "Invoice Totals")

	output := e.saveOutput(t, query.ID, "Total", "FIELD(4)")

	_, err := e.outputs.Save(ctx, editor, query.ID, services.SaveOutputRequest{
		ID:       &output.ID,
		Name:     output.Name,
		Formula:  "OUTPUT(" + itoa(output.ID) + ") + 1",
		DataType: output.DataType,
		Version:  output.Version,
	})
	require.Error(t, err)
	assert.True(t, services.IsValidationError(err))

	// Rejected before anything was written.
	stored, err := e.store.Outputs().GetByID(ctx, output.ID)
	require.NoError(t, err)
	assert.Equal(t, "FIELD(4)", stored.Formula)
	assert.Equal(t, output.Version, stored.Version)
}

func TestSaveOutputRejectsForeignOutputReference(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	first := e.createQuery(t, "Invoice Totals")
	second := e.createQuery(t, "Shipping Costs")
	foreign := e.saveOutput(t, first.ID, "Subtotal", "FIELD(4)")

	_, err := e.outputs.Save(ctx, editor, second.ID, services.SaveOutputRequest{
		Name:     "Total",
		Formula:  "OUTPUT(" + itoa(foreign.ID) + ")",
		DataType: models.DataTypeNumber,
	})
	require.Error(t, err)
	assert.True(t, services.IsValidationError(err))
}

func TestSaveOutputRejectsUnbalancedMarker(t *testing.T) {
	e := newEnv(t)
	query := e.createQuery(t, "Invoice Totals")

	_, err := e.outputs.Save(context.Background(), editor, query.ID, services.SaveOutputRequest{
		Name:     "Total",
		Formula:  "CONST(7",
		DataType: models.DataTypeNumber,
	})
	require.Error(t, err)
	assert.True(t, services.IsValidationError(err))
}

func TestSaveOutputAllowsSiblingReferenceAndEmptyFormula(t *testing.T) {
	e := newEnv(t)
	query := e.createQuery(t, "Invoice Totals")

	// Drafting an output before its formula exists is fine.
	subtotal := e.saveOutput(t, query.ID, "Subtotal", "")
	e.saveOutput(t, query.ID, "Total", "OUTPUT("+itoa(subtotal.ID)+") * 1.2")
}

func TestSaveOutputRejectsDuplicateName(t *testing.T) {
	e := newEnv(t)
	query := e.createQuery(t, "Invoice Totals")
	e.saveOutput(t, query.ID, "Total", "")

	_, err := e.outputs.Save(context.Background(), editor, query.ID, services.SaveOutputRequest{
		Name:     "Total",
		DataType: models.DataTypeNumber,
	})
	require.Error(t, err)
	assert.True(t, services.IsDuplicateName(err))
}

func TestOutputExecutionPlan(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	query := e.createQuery(t, "Invoice Totals")

	subtotal := e.saveOutput(t, query.ID, "Subtotal", "FIELD(4)")
	tax := e.saveOutput(t, query.ID, "Tax", "OUTPUT("+itoa(subtotal.ID)+") * 0.2")
	total := e.saveOutput(t, query.ID, "Total", "OUTPUT("+itoa(subtotal.ID)+") + OUTPUT("+itoa(tax.ID)+")")

	plan, err := e.outputs.ExecutionPlan(ctx, query.ID)
	require.NoError(t, err)
	require.Len(t, plan, 3)
	assert.Equal(t, subtotal.ID, plan[0])
	assert.Equal(t, total.ID, plan[2])
}
