package services_test

import (
	"context"
	"io"
	"log/slog"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docstream/queryengine/pkg/models"
	"github.com/docstream/queryengine/pkg/persistence"
	"github.com/docstream/queryengine/pkg/persistence/file"
	"github.com/docstream/queryengine/pkg/services"
	"github.com/docstream/queryengine/pkg/token"
	"github.com/docstream/queryengine/pkg/usage"
)

var (
	editor   = models.Identity{UserID: "user-1", Name: "Pat Editor"}
	reviewer = models.Identity{UserID: "user-2", Name: "Sam Reviewer"}
)

type env struct {
	store      *file.Persistence
	queries    *services.QueryService
	constants  *services.ConstantService
	outputs    *services.OutputService
	canvases   *services.CanvasService
	activation *services.ActivationService
	guard      *services.DeletionGuard
	usage      *services.UsageService
}

func newEnv(t *testing.T) *env {
	t.Helper()

	store, err := file.NewPersistence(t.TempDir(),
		[]models.Field{
			{ID: 4, Name: "InvoiceDate", TemplateID: 1},
			{ID: 5, Name: "LegacyTotal", TemplateID: 2},
		},
		[]models.Template{
			{ID: 1, Name: "Invoice", Active: true},
			{ID: 2, Name: "OldInvoice", Active: false},
		},
	)
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	guard := services.NewDeletionGuard(store, nil, logger)

	return &env{
		store:      store,
		queries:    services.NewQueryService(store, nil, logger),
		constants:  services.NewConstantService(store, nil, guard, logger),
		outputs:    services.NewOutputService(store, nil, guard, logger),
		canvases:   services.NewCanvasService(store, nil, logger),
		activation: services.NewActivationService(store, nil, logger),
		guard:      guard,
		usage:      services.NewUsageService(store, logger),
	}
}

func (e *env) createQuery(t *testing.T, name string) *models.Query {
	t.Helper()

	query, err := e.queries.Create(context.Background(), editor, services.CreateQueryRequest{Name: name})
	require.NoError(t, err)

	return query
}

func (e *env) saveOutput(t *testing.T, queryID, name, formulaExpr string) *models.Output {
	t.Helper()

	output, err := e.outputs.Save(context.Background(), editor, queryID, services.SaveOutputRequest{
		Name:     name,
		Formula:  formulaExpr,
		DataType: models.DataTypeNumber,
	})
	require.NoError(t, err)

	return output
}

func (e *env) saveGlobalConstant(t *testing.T, name string) *models.Constant {
	t.Helper()

	constant, err := e.constants.Save(context.Background(), editor, "", services.SaveConstantRequest{
		Name:     name,
		DataType: models.DataTypeNumber,
		IsGlobal: true,
	})
	require.NoError(t, err)

	return constant
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}

func TestQueryServiceCreate(t *testing.T) {
	e := newEnv(t)

	query := e.createQuery(t, "Invoice Totals")

	assert.NotEmpty(t, query.ID)
	assert.Equal(t, models.QueryStatusDraft, query.Status)
	assert.Equal(t, 5, query.Priority)
	assert.Equal(t, editor.UserID, query.CreatedBy)
	assert.Equal(t, editor.UserID, query.UpdatedBy)
}

func TestQueryServiceCreateRejectsShortName(t *testing.T) {
	e := newEnv(t)

	_, err := e.queries.Create(context.Background(), editor, services.CreateQueryRequest{Name: "ab"})
	require.Error(t, err)
	assert.True(t, services.IsValidationError(err))
}

func TestQueryServiceDraftsMayShareNames(t *testing.T) {
	e := newEnv(t)

	e.createQuery(t, "Invoice Totals")
	e.createQuery(t, "Invoice Totals")

	queries, err := e.queries.List(context.Background(), models.QueryStatusDraft)
	require.NoError(t, err)
	assert.Len(t, queries, 2)
}

func TestQueryServiceCreateRejectsActiveNameCollision(t *testing.T) {
	e := newEnv(t)

	query := e.createQuery(t, "Invoice Totals")
	_, err := e.activation.Activate(context.Background(), editor, query.ID)
	require.NoError(t, err)

	_, err = e.queries.Create(context.Background(), editor, services.CreateQueryRequest{Name: "Invoice Totals"})
	require.Error(t, err)
	assert.True(t, services.IsDuplicateName(err))
}

func TestQueryServiceUpdate(t *testing.T) {
	e := newEnv(t)
	query := e.createQuery(t, "Invoice Totals")

	name := "Invoice Totals v2"
	priority := 9

	updated, err := e.queries.Update(context.Background(), reviewer, query.ID, services.UpdateQueryRequest{
		Name:     &name,
		Priority: &priority,
	})
	require.NoError(t, err)

	assert.Equal(t, name, updated.Name)
	assert.Equal(t, 9, updated.Priority)
	assert.Equal(t, reviewer.UserID, updated.UpdatedBy)
	assert.Equal(t, editor.UserID, updated.CreatedBy)
}

func TestQueryServiceUpdateRejectsArchived(t *testing.T) {
	e := newEnv(t)
	query := e.createQuery(t, "Invoice Totals")

	_, err := e.activation.Activate(context.Background(), editor, query.ID)
	require.NoError(t, err)
	require.NoError(t, e.activation.Archive(context.Background(), editor, query.ID))

	description := "too late"
	_, err = e.queries.Update(context.Background(), editor, query.ID, services.UpdateQueryRequest{Description: &description})
	require.ErrorIs(t, err, services.ErrQueryArchived)
}

func TestQueryServiceDeleteCascades(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	query := e.createQuery(t, "Invoice Totals")

	global := e.saveGlobalConstant(t, "TAX_RATE")

	local, err := e.constants.Save(ctx, editor, query.ID, services.SaveConstantRequest{
		Name:     "DISCOUNT",
		DataType: models.DataTypeNumber,
	})
	require.NoError(t, err)

	output := e.saveOutput(t, query.ID, "Total", "FIELD(4) * 2")

	_, err = e.canvases.Update(ctx, editor, query.ID, `{"zoom":1,"nodes":{"n1":{"fieldId":4}}}`)
	require.NoError(t, err)

	require.NoError(t, e.queries.Delete(ctx, editor, query.ID))

	_, err = e.store.Queries().GetByID(ctx, query.ID)
	assert.True(t, persistence.IsQueryNotFound(err))
	_, err = e.store.Outputs().GetByID(ctx, output.ID)
	assert.True(t, persistence.IsOutputNotFound(err))
	_, err = e.store.Constants().GetByID(ctx, local.ID)
	assert.True(t, persistence.IsConstantNotFound(err))
	_, err = e.store.Canvases().GetByQuery(ctx, query.ID)
	assert.True(t, persistence.IsCanvasNotFound(err))

	// Globals survive their users.
	_, err = e.store.Constants().GetByID(ctx, global.ID)
	require.NoError(t, err)
}

func TestCanvasServiceRoundTripsRawPayload(t *testing.T) {
	e := newEnv(t)
	query := e.createQuery(t, "Invoice Totals")

	raw := `{"zoom":0.8,"position":{"x":12,"y":-4},"nodes":{"n1":{"constantId":7,"color":"teal"}}}`

	record, err := e.canvases.Update(context.Background(), editor, query.ID, raw)
	require.NoError(t, err)
	assert.Equal(t, raw, record.Raw)
	assert.Equal(t, editor.UserID, record.UpdatedBy)
	assert.False(t, record.LastValidatedAt.IsZero())

	stored, err := e.canvases.Get(context.Background(), query.ID)
	require.NoError(t, err)
	assert.Equal(t, raw, stored.Raw)
}

func TestCanvasServiceRejectsMalformedPayload(t *testing.T) {
	e := newEnv(t)
	query := e.createQuery(t, "Invoice Totals")

	for _, raw := range []string{
		`{"nodes":{"n1":"not an object"}}`,
		`not json at all`,
		`{"nodes":[1,2,3]}`,
	} {
		_, err := e.canvases.Update(context.Background(), editor, query.ID, raw)
		require.Error(t, err, "payload %q should be rejected", raw)
	}

	_, err := e.canvases.Get(context.Background(), query.ID)
	assert.True(t, persistence.IsCanvasNotFound(err), "rejected payloads must not be stored")
}

func TestUsageServiceDetails(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	query := e.createQuery(t, "Invoice Totals")
	constant := e.saveGlobalConstant(t, "TAX_RATE")

	e.saveOutput(t, query.ID, "Total", "FIELD(4) * CONST("+itoa(constant.ID)+")")

	report, err := e.usage.Details(ctx, token.KindConstant, constant.ID, usage.GlobalScope())
	require.NoError(t, err)
	assert.True(t, report.InUse)
	require.Len(t, report.Locations, 1)
	assert.Equal(t, usage.LocationFormula, report.Locations[0].Kind)
	assert.Equal(t, query.ID, report.Locations[0].QueryID)
}

func TestUsageServiceRejectsUnknownKind(t *testing.T) {
	e := newEnv(t)

	_, err := e.usage.Details(context.Background(), token.Kind("widget"), 1, usage.GlobalScope())
	require.Error(t, err)
	assert.True(t, services.IsValidationError(err))
}
