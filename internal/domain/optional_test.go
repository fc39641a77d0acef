package domain

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptionalDistinguishesAbsentNullAndValue(t *testing.T) {
	var patch CategoryPatch
	require.NoError(t, json.Unmarshal([]byte(`{"parentId": null}`), &patch))

	assert.False(t, patch.Name.Set)
	assert.True(t, patch.ParentID.Set)
	assert.False(t, patch.ParentID.Valid)
	assert.Nil(t, patch.ParentID.Ptr())

	require.NoError(t, json.Unmarshal([]byte(`{"name": "Drinks"}`), &patch))
	name, ok := patch.Name.Get()
	assert.True(t, ok)
	assert.Equal(t, "Drinks", name)
}

func TestValidationErrorUnwrapsCauses(t *testing.T) {
	verr := &ValidationError{}
	require.NoError(t, verr.Err())

	verr.Add("items[0].productId", ErrProductNotFound, "")
	assert.True(t, errors.Is(verr, ErrNotFound))
	assert.True(t, verr.OnlyNotFound())

	verr.Add("items[1].quantity", ErrInvalidQuantity, "")
	err := verr.Err()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidQuantity))
	assert.False(t, verr.OnlyNotFound())
	assert.Contains(t, err.Error(), "items[1].quantity")
}
