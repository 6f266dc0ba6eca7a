package persistence

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQueryErrorWrapping(t *testing.T) {
	err := NewQueryError("GetByID", "q-1", ErrQueryNotFound)

	assert.True(t, IsQueryNotFound(err))
	assert.True(t, errors.Is(err, ErrQueryNotFound))
	assert.Contains(t, err.Error(), "q-1")
	assert.Contains(t, err.Error(), "GetByID")
}

func TestEntityErrorWrapping(t *testing.T) {
	err := NewEntityError("Update", "constant", 7, ErrVersionConflict)

	assert.True(t, IsVersionConflict(err))
	assert.Contains(t, err.Error(), "constant 7")
}

func TestIsNotFoundCoversAllEntities(t *testing.T) {
	for _, sentinel := range []error{
		ErrQueryNotFound,
		ErrConstantNotFound,
		ErrOutputNotFound,
		ErrCanvasNotFound,
		ErrFieldNotFound,
		ErrTemplateNotFound,
	} {
		assert.True(t, IsNotFound(fmt.Errorf("wrapped: %w", sentinel)), sentinel.Error())
	}

	assert.False(t, IsNotFound(ErrDuplicateName))
	assert.False(t, IsNotFound(nil))
}

func TestIsDuplicateName(t *testing.T) {
	assert.True(t, IsDuplicateName(fmt.Errorf("save: %w", ErrDuplicateName)))
	assert.False(t, IsDuplicateName(ErrQueryNotFound))
}
