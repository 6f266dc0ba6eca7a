package services_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docstream/queryengine/pkg/models"
	"github.com/docstream/queryengine/pkg/persistence"
	"github.com/docstream/queryengine/pkg/services"
	"github.com/docstream/queryengine/pkg/token"
	"github.com/docstream/queryengine/pkg/usage"
)

// A global constant referenced from both a formula and a canvas node must
// survive the delete attempt, and the rejection must name both locations.
// After the references are removed the same delete goes through.
func TestDeleteGlobalConstantInUse(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	taxRate := e.saveGlobalConstant(t, "TAX_RATE")
	query := e.createQuery(t, "Invoice Totals")
	total := e.saveOutput(t, query.ID, "Total", "FIELD(4) * CONST("+itoa(taxRate.ID)+")")

	_, err := e.canvases.Update(ctx, editor, query.ID,
		`{"zoom":1,"nodes":{"n1":{"constantId":`+itoa(taxRate.ID)+`}}}`)
	require.NoError(t, err)

	request, err := e.constants.Delete(ctx, editor, "", taxRate.ID)
	require.Error(t, err)

	rejection, ok := services.IsRejection(err)
	require.True(t, ok)
	assert.Equal(t, services.CodeGlobalConstantInUse, rejection.Code)
	assert.Len(t, rejection.Locations, 2)
	assert.Equal(t, services.DeleteRejected, request.State)

	kinds := map[usage.LocationKind]bool{}
	for _, location := range rejection.Locations {
		kinds[location.Kind] = true
		assert.Equal(t, "Invoice Totals", location.QueryName)
	}

	assert.True(t, kinds[usage.LocationFormula])
	assert.True(t, kinds[usage.LocationCanvas])

	require.NotEmpty(t, rejection.RequiredActions)
	assert.Equal(t, "Retry the delete", rejection.RequiredActions[len(rejection.RequiredActions)-1])

	// Still there.
	_, err = e.store.Constants().GetByID(ctx, taxRate.ID)
	require.NoError(t, err)

	// Drop both references, then retry.
	updated, err := e.outputs.Save(ctx, editor, query.ID, services.SaveOutputRequest{
		ID:       &total.ID,
		Name:     total.Name,
		Formula:  "FIELD(4)",
		DataType: total.DataType,
		Version:  total.Version,
	})
	require.NoError(t, err)
	require.NotZero(t, updated.Version)

	_, err = e.canvases.Update(ctx, editor, query.ID, `{"zoom":1,"nodes":{}}`)
	require.NoError(t, err)

	request, err = e.constants.Delete(ctx, editor, "", taxRate.ID)
	require.NoError(t, err)
	assert.Equal(t, services.DeleteApplied, request.State)

	_, err = e.store.Constants().GetByID(ctx, taxRate.ID)
	assert.True(t, persistence.IsConstantNotFound(err))
}

func TestDeleteLocalConstantScopedToOwner(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	owner := e.createQuery(t, "Invoice Totals")
	other := e.createQuery(t, "Shipping Costs")

	discount, err := e.constants.Save(ctx, editor, owner.ID, services.SaveConstantRequest{
		Name:     "DISCOUNT",
		DataType: models.DataTypeNumber,
	})
	require.NoError(t, err)

	// Only the owner's entities can reference a local constant, so a
	// matching marker in another query must not block the delete.
	e.saveOutput(t, other.ID, "Noise", "CONST("+itoa(discount.ID)+")")

	_, err = e.constants.Delete(ctx, editor, other.ID, discount.ID)
	rejection, ok := services.IsRejection(err)
	require.True(t, ok)
	assert.Equal(t, services.CodeAccessDenied, rejection.Code)

	e.saveOutput(t, owner.ID, "Total", "FIELD(4) - CONST("+itoa(discount.ID)+")")

	_, err = e.constants.Delete(ctx, editor, owner.ID, discount.ID)
	rejection, ok = services.IsRejection(err)
	require.True(t, ok)
	assert.Equal(t, services.CodeLocalConstantInUse, rejection.Code)
	require.Len(t, rejection.Locations, 1)
	assert.Equal(t, owner.ID, rejection.Locations[0].QueryID)
}

func TestDeleteConstantWithContradictoryScope(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	query := e.createQuery(t, "Invoice Totals")

	// Written behind the service's back, the way real inconsistencies
	// arrive.
	broken := &models.Constant{
		Name:      "BROKEN",
		DataType:  models.DataTypeNumber,
		IsGlobal:  true,
		QueryID:   &query.ID,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	require.NoError(t, e.store.Constants().Create(ctx, broken))

	_, err := e.constants.Delete(ctx, editor, query.ID, broken.ID)
	rejection, ok := services.IsRejection(err)
	require.True(t, ok)
	assert.Equal(t, services.CodeDataInconsistency, rejection.Code)

	_, err = e.store.Constants().GetByID(ctx, broken.ID)
	require.NoError(t, err, "inconsistent data must be left for repair, not deleted")
}

func TestDeleteOutputBlockedBySiblingFormula(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	query := e.createQuery(t, "Invoice Totals")

	subtotal := e.saveOutput(t, query.ID, "Subtotal", "FIELD(4)")
	total := e.saveOutput(t, query.ID, "Total", "OUTPUT("+itoa(subtotal.ID)+") * 1.2")

	_, err := e.outputs.Delete(ctx, editor, query.ID, subtotal.ID)
	rejection, ok := services.IsRejection(err)
	require.True(t, ok)
	assert.Equal(t, services.CodeOutputInUse, rejection.Code)
	require.Len(t, rejection.Locations, 1)
	assert.Equal(t, total.Name, rejection.Locations[0].OutputName)

	// The dependent goes first, then the delete is clean.
	request, err := e.outputs.Delete(ctx, editor, query.ID, total.ID)
	require.NoError(t, err)
	assert.Equal(t, services.DeleteApplied, request.State)

	_, err = e.outputs.Delete(ctx, editor, query.ID, subtotal.ID)
	require.NoError(t, err)
}

func TestDeleteOutputBlockedByCanvasNode(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	query := e.createQuery(t, "Invoice Totals")
	output := e.saveOutput(t, query.ID, "Total", "FIELD(4)")

	_, err := e.canvases.Update(ctx, editor, query.ID,
		`{"zoom":1,"nodes":{"n1":{"outputId":`+itoa(output.ID)+`}}}`)
	require.NoError(t, err)

	_, err = e.outputs.Delete(ctx, editor, query.ID, output.ID)
	rejection, ok := services.IsRejection(err)
	require.True(t, ok)
	assert.Equal(t, services.CodeOutputInUse, rejection.Code)
	assert.Equal(t, usage.LocationCanvas, rejection.Locations[0].Kind)
}

func TestDeleteOutputFromAnotherQueryDenied(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	owner := e.createQuery(t, "Invoice Totals")
	other := e.createQuery(t, "Shipping Costs")
	output := e.saveOutput(t, owner.ID, "Total", "")

	_, err := e.outputs.Delete(ctx, editor, other.ID, output.ID)
	rejection, ok := services.IsRejection(err)
	require.True(t, ok)
	assert.Equal(t, services.CodeAccessDenied, rejection.Code)
}

func TestCheckFieldCountsOnlyActiveTemplates(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	// Field 5 belongs to the inactive template 2; a query bound to that
	// template holds the only reference.
	templateID := int64(2)
	stale, err := e.queries.Create(ctx, editor, services.CreateQueryRequest{
		Name:       "Legacy Report",
		TemplateID: &templateID,
	})
	require.NoError(t, err)
	e.saveOutput(t, stale.ID, "Old Total", "FIELD(5)")

	request, err := e.guard.CheckField(ctx, editor, 5)
	require.NoError(t, err)
	assert.Equal(t, services.DeleteApproved, request.State)
	assert.False(t, request.Report.InUse)

	// Field 4's template is active, so its reference counts.
	live := e.createQuery(t, "Invoice Totals")
	e.saveOutput(t, live.ID, "Total", "FIELD(4)")

	request, err = e.guard.CheckField(ctx, editor, 4)
	rejection, ok := services.IsRejection(err)
	require.True(t, ok)
	assert.Equal(t, services.CodeFieldInUse, rejection.Code)
	assert.Equal(t, services.DeleteRejected, request.State)
}

func TestCheckFieldUnknownField(t *testing.T) {
	e := newEnv(t)

	_, err := e.guard.CheckField(context.Background(), editor, 999)
	assert.True(t, persistence.IsFieldNotFound(err))
}

func TestDeleteConstantFailsClosedOnUnreadableCanvas(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	constant := e.saveGlobalConstant(t, "TAX_RATE")
	query := e.createQuery(t, "Invoice Totals")

	// Corrupt canvas written behind the service's back.
	require.NoError(t, e.store.Canvases().Save(ctx, &models.CanvasRecord{
		QueryID:   query.ID,
		Raw:       `{"nodes":{"n1":"garbage"}}`,
		UpdatedBy: editor.UserID,
		UpdatedAt: time.Now().UTC(),
	}))

	_, err := e.constants.Delete(ctx, editor, "", constant.ID)
	require.Error(t, err)

	var unreadable *usage.UnreadableCanvasError
	require.True(t, errors.As(err, &unreadable))
	assert.Equal(t, query.ID, unreadable.QueryID)

	_, err = e.store.Constants().GetByID(ctx, constant.ID)
	require.NoError(t, err, "unknown usage must block the delete")
}
