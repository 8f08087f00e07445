package mapping

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"snowflake-mask-report/pkg/types"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mask_configuration.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestResolve_CaseInsensitive(t *testing.T) {
	path := writeConfig(t, `{
		"Customers": {
			"1": {"format": "Person Name", "token_name": "Text Token"},
			"2": {"token_name": "Email Token"},
			"0": {"format": ""}
		}
	}`)

	m, err := NewResolver(path, nil).Resolve("  customers ")
	require.NoError(t, err)
	require.Len(t, m, 3)

	assert.Equal(t, "Person Name", *m[1].Format)
	assert.Equal(t, "Text Token", *m[1].TokenName)
	assert.Nil(t, m[2].Format)
	assert.Equal(t, "Email Token", *m[2].TokenName)
	assert.Nil(t, m[0].Format, "empty strings normalise to absent")
	assert.Nil(t, m[0].TokenName)
}

func TestResolve_UnconfiguredTable(t *testing.T) {
	path := writeConfig(t, `{"ORDERS": {"0": {"format": "x"}}}`)

	m, err := NewResolver(path, nil).Resolve("CUSTOMERS")
	require.NoError(t, err)
	assert.Empty(t, m)
}

func TestResolve_EmptyFile(t *testing.T) {
	path := writeConfig(t, "  \n")

	m, err := NewResolver(path, nil).Resolve("CUSTOMERS")
	require.NoError(t, err)
	assert.Empty(t, m)
}

func TestResolve_MissingFile(t *testing.T) {
	r := NewResolver(filepath.Join(t.TempDir(), "nope.json"), nil)

	_, err := r.Resolve("CUSTOMERS")
	require.Error(t, err)
	assert.Equal(t, types.KindConfig, types.KindOf(err))
	assert.Contains(t, err.Error(), "not found")
}

func TestResolve_MalformedJSON(t *testing.T) {
	path := writeConfig(t, `{"CUSTOMERS": {"0": `)

	_, err := NewResolver(path, nil).Resolve("CUSTOMERS")
	require.Error(t, err)
	assert.Equal(t, types.KindConfig, types.KindOf(err))
	assert.Contains(t, err.Error(), "invalid JSON")
}

func TestResolve_NonIntegerKey(t *testing.T) {
	path := writeConfig(t, `{"CUSTOMERS": {"email": {"format": "Email"}}}`)

	_, err := NewResolver(path, nil).Resolve("CUSTOMERS")
	require.Error(t, err)
	assert.Equal(t, types.KindConfig, types.KindOf(err))
}

func TestResolve_ReturnsCopy(t *testing.T) {
	path := writeConfig(t, `{"T": {"0": {"format": "x"}}}`)
	r := NewResolver(path, nil)

	m, err := r.Resolve("T")
	require.NoError(t, err)
	delete(m, 0)

	again, err := r.Resolve("T")
	require.NoError(t, err)
	assert.Len(t, again, 1)
}

func TestValidate(t *testing.T) {
	token := "Text Token"
	m := types.Mapping{
		5: {TokenName: &token},
		1: {},
	}

	err := Validate(m, 3)
	require.Error(t, err)
	assert.Equal(t, types.KindValidation, types.KindOf(err))
	assert.Contains(t, err.Error(), "[5]")
	assert.Contains(t, err.Error(), "3 columns")

	assert.NoError(t, Validate(m, 6))
	assert.NoError(t, Validate(types.Mapping{}, 3))
	assert.Error(t, Validate(types.Mapping{-1: {}}, 3))
}
