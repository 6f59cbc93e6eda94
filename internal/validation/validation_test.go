package validation

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResult(t *testing.T) {
	var r Result
	assert.True(t, r.Valid())
	assert.NoError(t, r.Err())

	r.Required("appId", "  ")
	r.Required("title", "My App")
	r.Add("version", "must be major.minor.patch")

	assert.False(t, r.Valid())
	assert.Equal(t, []string{"appId", "version"}, r.Fields())
	assert.True(t, r.Has("version"))
	assert.False(t, r.Has("title"))

	err := r.Err()
	require.Error(t, err)

	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, []string{"appId", "version"}, ve.Fields())
	assert.Contains(t, err.Error(), "appId: must not be empty")
	assert.Contains(t, err.Error(), "version: must be major.minor.patch")
}

func TestMerge(t *testing.T) {
	var dest Result
	dest.Required("region", "")

	var r Result
	r.Required("authors", "")
	r.Merge("destination", dest)
	r.Merge("", Result{Errors: []FieldError{{Field: "files", Message: "empty"}}})

	assert.Equal(t, []string{"authors", "destination.region", "files"}, r.Fields())
}
