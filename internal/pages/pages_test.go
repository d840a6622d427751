package pages

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/extplan/internal/env"
	planerrors "github.com/conneroisu/extplan/internal/errors"
	"github.com/conneroisu/extplan/internal/paths"
	"github.com/conneroisu/extplan/internal/plan"
)

const template = `<!DOCTYPE html>
<html>
  <head><title>%REACT_APP_TITLE%</title><link rel="icon" href="%PUBLIC_URL%/icon.png"></head>
  <body><div id="root"></div></body>
</html>`

func TestInterpolate(t *testing.T) {
	raw := map[string]string{"PUBLIC_URL": "/ext", "REACT_APP_TITLE": "Popup"}
	out := Interpolate("%REACT_APP_TITLE% at %PUBLIC_URL%/ and %UNKNOWN%", raw)
	assert.Equal(t, "Popup at /ext/ and %UNKNOWN%", out)
}

func TestRenderInjectsChunkScripts(t *testing.T) {
	binding := plan.PageBinding{BundleName: "popup", Filename: "popup.html", Inject: true, Chunks: []string{"popup"}}
	raw := map[string]string{"PUBLIC_URL": "", "REACT_APP_TITLE": "Popup"}

	out, err := Render([]byte(template), binding, raw, "/", ChunkAssets(binding, nil, func(string) bool { return true }))
	require.NoError(t, err)

	page := string(out)
	assert.True(t, strings.HasPrefix(page, "<!DOCTYPE html>"))
	assert.Contains(t, page, "<title>Popup</title>")
	assert.Contains(t, page, `href="/icon.png"`)
	assert.Contains(t, page, `<link href="/js/popup.css" rel="stylesheet"/>`)

	root := strings.Index(page, `<div id="root">`)
	script := strings.Index(page, `<script src="/js/popup.js"></script>`)
	closeBody := strings.Index(page, "</body>")
	require.True(t, root >= 0 && script >= 0 && closeBody >= 0, page)
	assert.Less(t, root, script)
	assert.Less(t, script, closeBody)
	assert.Less(t, strings.Index(page, "popup.css"), strings.Index(page, "</head>"))
}

func TestRenderOnlyBundleChunks(t *testing.T) {
	binding := plan.PageBinding{BundleName: "options", Inject: true, Chunks: []string{"options"}}

	out, err := Render([]byte(template), binding, nil, "./", ChunkAssets(binding, nil, nil))
	require.NoError(t, err)

	page := string(out)
	assert.Contains(t, page, `<script src="./js/options.js"></script>`)
	assert.NotContains(t, page, "popup")
	assert.NotContains(t, page, "stylesheet")
	assert.Equal(t, 1, strings.Count(page, "<script"))
}

func TestRenderWithoutInjection(t *testing.T) {
	binding := plan.PageBinding{BundleName: "popup", Chunks: []string{"popup"}}
	out, err := Render([]byte(template), binding, nil, "/", ChunkAssets(binding, nil, nil))
	require.NoError(t, err)
	assert.NotContains(t, string(out), "<script")
}

func TestEmit(t *testing.T) {
	appDir := t.TempDir()
	src := filepath.Join(appDir, "src")
	require.NoError(t, os.MkdirAll(filepath.Join(src, "popup"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "popup", "index.html"), []byte(template), 0o644))

	p, err := paths.Resolve(appDir)
	require.NoError(t, err)

	require.NoError(t, os.MkdirAll(filepath.Join(p.OutputRoot, "js"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(p.OutputRoot, "js", "popup.css"), []byte("body{}"), 0o644))

	provider := env.Static("development", map[string]string{"REACT_APP_TITLE": "Emitted"})
	bp, err := plan.NewSynthesizer(p, provider).Synthesize([]plan.Bundle{
		{Name: "popup", IndexJS: filepath.Join(src, "popup", "index.js"), IndexHTML: filepath.Join(src, "popup", "index.html")},
		{Name: "background", IndexJS: filepath.Join(src, "background.js")},
	}, plan.Options{})
	require.NoError(t, err)

	pages, err := Emit(bp)
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, "popup", pages[0].Bundle)
	assert.Equal(t, filepath.Join(p.OutputRoot, "popup.html"), pages[0].Path)

	data, err := os.ReadFile(pages[0].Path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "<title>Emitted</title>")
	assert.Contains(t, string(data), `<script src="/js/popup.js"></script>`)
	assert.Contains(t, string(data), `href="/js/popup.css"`)
}

func TestChunkAssetsSkipsMissingChunks(t *testing.T) {
	binding := plan.PageBinding{BundleName: "options", Inject: true, Chunks: []string{"options"}}
	assets := ChunkAssets(binding, func(string) bool { return false }, func(string) bool { return true })
	assert.Empty(t, assets.Scripts)
	assert.Empty(t, assets.Stylesheets)
}

func TestEmitHTMLOnlyBundle(t *testing.T) {
	appDir := t.TempDir()
	src := filepath.Join(appDir, "src")
	require.NoError(t, os.MkdirAll(src, 0o755))
	tpl := filepath.Join(src, "options.html")
	require.NoError(t, os.WriteFile(tpl, []byte(template), 0o644))

	p, err := paths.Resolve(appDir)
	require.NoError(t, err)

	bp, err := plan.NewSynthesizer(p, nil).Synthesize([]plan.Bundle{
		{Name: "options", IndexHTML: tpl},
	}, plan.Options{})
	require.NoError(t, err)
	_, hasEntry := bp.Entry().Get("options")
	require.False(t, hasEntry)

	emitted, err := Emit(bp)
	require.NoError(t, err)
	require.Len(t, emitted, 1)

	data, err := os.ReadFile(emitted[0].Path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `<div id="root"></div>`)
	assert.NotContains(t, string(data), "<script")
}

func TestEmitMissingTemplate(t *testing.T) {
	appDir := t.TempDir()
	p, err := paths.Resolve(appDir)
	require.NoError(t, err)

	bp, err := plan.NewSynthesizer(p, nil).Synthesize([]plan.Bundle{
		{Name: "popup", IndexHTML: filepath.Join(appDir, "src", "missing.html")},
	}, plan.Options{})
	require.NoError(t, err)

	_, err = Emit(bp)
	require.Error(t, err)
	assert.True(t, planerrors.HasCode(err, planerrors.ErrCodeFileNotFound))
}
