package services_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docstream/queryengine/pkg/models"
	"github.com/docstream/queryengine/pkg/persistence"
	"github.com/docstream/queryengine/pkg/services"
)

func TestSaveConstantScopes(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	query := e.createQuery(t, "Invoice Totals")

	local, err := e.constants.Save(ctx, editor, query.ID, services.SaveConstantRequest{
		Name:     "DISCOUNT",
		DataType: models.DataTypeNumber,
	})
	require.NoError(t, err)
	require.NotNil(t, local.QueryID)
	assert.Equal(t, query.ID, *local.QueryID)
	assert.False(t, local.IsGlobal)
	assert.Equal(t, int64(1), local.Version)

	global := e.saveGlobalConstant(t, "TAX_RATE")
	assert.Nil(t, global.QueryID)
	assert.True(t, global.IsGlobal)
}

func TestSaveConstantLocalNeedsQuery(t *testing.T) {
	e := newEnv(t)

	_, err := e.constants.Save(context.Background(), editor, "", services.SaveConstantRequest{
		Name:     "DISCOUNT",
		DataType: models.DataTypeNumber,
	})
	require.Error(t, err)
	assert.True(t, services.IsValidationError(err))
}

func TestSaveConstantScopeFlipRejected(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	query := e.createQuery(t, "Invoice Totals")

	local, err := e.constants.Save(ctx, editor, query.ID, services.SaveConstantRequest{
		Name:     "DISCOUNT",
		DataType: models.DataTypeNumber,
	})
	require.NoError(t, err)

	_, err = e.constants.Save(ctx, editor, query.ID, services.SaveConstantRequest{
		ID:       &local.ID,
		Name:     "DISCOUNT",
		DataType: models.DataTypeNumber,
		IsGlobal: true,
		Version:  local.Version,
	})
	require.ErrorIs(t, err, services.ErrScopeChange)
}

func TestSaveConstantNameUniquePerScope(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	first := e.createQuery(t, "Invoice Totals")
	second := e.createQuery(t, "Shipping Costs")

	_, err := e.constants.Save(ctx, editor, first.ID, services.SaveConstantRequest{
		Name:     "DISCOUNT",
		DataType: models.DataTypeNumber,
	})
	require.NoError(t, err)

	// Same name in another query's scope is fine.
	_, err = e.constants.Save(ctx, editor, second.ID, services.SaveConstantRequest{
		Name:     "DISCOUNT",
		DataType: models.DataTypeNumber,
	})
	require.NoError(t, err)

	// Same name twice in the same scope is not.
	_, err = e.constants.Save(ctx, editor, first.ID, services.SaveConstantRequest{
		Name:     "DISCOUNT",
		DataType: models.DataTypeNumber,
	})
	require.Error(t, err)
	assert.True(t, services.IsDuplicateName(err))

	e.saveGlobalConstant(t, "TAX_RATE")

	_, err = e.constants.Save(ctx, editor, "", services.SaveConstantRequest{
		Name:     "TAX_RATE",
		DataType: models.DataTypeNumber,
		IsGlobal: true,
	})
	require.Error(t, err)
	assert.True(t, services.IsDuplicateName(err))
}

func TestSaveConstantVersionConflict(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	constant := e.saveGlobalConstant(t, "TAX_RATE")

	// First writer wins.
	updated, err := e.constants.Save(ctx, editor, "", services.SaveConstantRequest{
		ID:           &constant.ID,
		Name:         "TAX_RATE",
		DefaultValue: "0.21",
		DataType:     models.DataTypeNumber,
		IsGlobal:     true,
		Version:      constant.Version,
	})
	require.NoError(t, err)
	assert.Equal(t, constant.Version+1, updated.Version)

	// Second writer carries the stale version and loses.
	_, err = e.constants.Save(ctx, reviewer, "", services.SaveConstantRequest{
		ID:           &constant.ID,
		Name:         "TAX_RATE",
		DefaultValue: "0.19",
		DataType:     models.DataTypeNumber,
		IsGlobal:     true,
		Version:      constant.Version,
	})
	require.Error(t, err)
	assert.True(t, persistence.IsVersionConflict(err))

	current, err := e.store.Constants().GetByID(ctx, constant.ID)
	require.NoError(t, err)
	assert.Equal(t, "0.21", current.DefaultValue)
}

func TestListForQueryIncludesGlobals(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	query := e.createQuery(t, "Invoice Totals")

	_, err := e.constants.Save(ctx, editor, query.ID, services.SaveConstantRequest{
		Name:     "DISCOUNT",
		DataType: models.DataTypeNumber,
	})
	require.NoError(t, err)
	e.saveGlobalConstant(t, "TAX_RATE")

	visible, err := e.constants.ListForQuery(ctx, query.ID)
	require.NoError(t, err)
	assert.Len(t, visible, 2)
}
