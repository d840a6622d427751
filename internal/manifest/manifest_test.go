package manifest

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	planerrors "github.com/conneroisu/extplan/internal/errors"
	"github.com/conneroisu/extplan/internal/plan"
)

const sample = `
bundles:
  - bundleName: popup
    indexJs: popup/index.js
    indexHtml: popup/index.html
  - bundleName: background
    indexJs: background.js
    indexHtml: null
  - bundleName: options
    indexHtml: options.html
`

func TestParse(t *testing.T) {
	m, err := Parse([]byte(sample))
	require.NoError(t, err)

	assert.Equal(t, []string{"popup", "background", "options"}, m.Names())
	assert.Equal(t, OptionalPath("popup/index.js"), m.Bundles[0].IndexJS)
	assert.Equal(t, OptionalPath(""), m.Bundles[1].IndexHTML)
	assert.Equal(t, OptionalPath(""), m.Bundles[2].IndexJS)
}

func TestParseJSON(t *testing.T) {
	m, err := Parse([]byte(`{"bundles":[{"bundleName":"popup","indexJs":"popup.js","indexHtml":null}]}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"popup"}, m.Names())
}

func TestBundlesResolvesAgainstSourceRoot(t *testing.T) {
	m, err := Parse([]byte(sample))
	require.NoError(t, err)

	assert.Equal(t, []plan.Bundle{
		{Name: "popup", IndexJS: filepath.Join("/app/src", "popup", "index.js"), IndexHTML: filepath.Join("/app/src", "popup", "index.html")},
		{Name: "background", IndexJS: filepath.Join("/app/src", "background.js")},
		{Name: "options", IndexHTML: filepath.Join("/app/src", "options.html")},
	}, m.PlanBundles("/app/src"))

	assert.Equal(t, "popup/index.js", m.PlanBundles("")[0].IndexJS)
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"not yaml", "bundles: [unclosed"},
		{"missing bundles", "other: 1"},
		{"unknown top-level key", "bundles: []\nextra: true"},
		{"missing bundle name", "bundles:\n  - indexJs: a.js"},
		{"empty bundle name", "bundles:\n  - bundleName: ''"},
		{"bad bundle name", "bundles:\n  - bundleName: 'pop up'"},
		{"leading dash", "bundles:\n  - bundleName: '-popup'"},
		{"unknown bundle key", "bundles:\n  - bundleName: popup\n    indexCss: a.css"},
		{"wrong path type", "bundles:\n  - bundleName: popup\n    indexJs: 3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			require.Error(t, err)
			assert.True(t, planerrors.HasCode(err, planerrors.ErrCodeManifestInvalid), "got %v", err)
		})
	}
}

func TestParseFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bundles.yml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))

	m, err := ParseFile(path)
	require.NoError(t, err)
	assert.Len(t, m.Bundles, 3)

	_, err = ParseFile(filepath.Join(dir, "missing.yml"))
	require.Error(t, err)
	assert.True(t, planerrors.HasCode(err, planerrors.ErrCodeFileNotFound))

	bad := filepath.Join(dir, "bad.yml")
	require.NoError(t, os.WriteFile(bad, []byte("bundles: 3"), 0o644))
	_, err = ParseFile(bad)
	require.Error(t, err)
	var pe *planerrors.PlanError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, bad, pe.Context["file"])
}

func TestReflectSchema(t *testing.T) {
	raw, err := ReflectSchema()
	require.NoError(t, err)

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Contains(t, string(raw), `"additionalProperties": false`)
	assert.Contains(t, string(raw), `^[A-Za-z0-9][A-Za-z0-9._-]*$`)
	assert.Contains(t, string(raw), `"null"`)
}
