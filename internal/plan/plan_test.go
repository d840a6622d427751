package plan

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/extplan/internal/env"
	planerrors "github.com/conneroisu/extplan/internal/errors"
	"github.com/conneroisu/extplan/internal/paths"
)

func testPaths() paths.Paths {
	return paths.Paths{
		AppDir:          "/app",
		SourceRoot:      "/app/src",
		AppNodeModules:  "/app/node_modules",
		NodeModuleRoots: []string{"/app/node_modules", "/shared/lib"},
		OutputRoot:      "/app/build",
		TypeConfigPath:  "/app/tsconfig.json",
	}
}

func newTestSynthesizer(opts ...SynthesizerOption) *Synthesizer {
	return NewSynthesizer(testPaths(), env.Static("development", map[string]string{"REACT_APP_NAME": "ext"}), opts...)
}

var popup = Bundle{Name: "popup", IndexJS: "popup/index.js", IndexHTML: "popup/index.html"}

func TestScenarioPopupWithoutHotUpdate(t *testing.T) {
	p, err := newTestSynthesizer().Synthesize([]Bundle{popup}, Options{})
	require.NoError(t, err)

	entry := p.Entry()
	assert.Equal(t, []string{"popup"}, entry.Names())
	modules, ok := entry.Get("popup")
	require.True(t, ok)
	assert.Equal(t, []string{DefaultPolyfills, "popup/index.js"}, modules)

	_, ok = entry.Get(BackgroundEntryName)
	assert.False(t, ok)

	assert.Equal(t, []PageBinding{{
		BundleName: "popup",
		Template:   "popup/index.html",
		Filename:   "popup.html",
		Inject:     true,
		Chunks:     []string{"popup"},
	}}, p.PageBindings())

	assert.False(t, p.HotUpdateEnabled())
	_, ok = p.Plugin(PluginHotUpdateURL)
	assert.False(t, ok)
}

func TestScenarioPopupWithHotUpdate(t *testing.T) {
	p, err := newTestSynthesizer().Synthesize([]Bundle{popup}, Options{HotUpdateURL: "ws://localhost:9000"})
	require.NoError(t, err)

	entry := p.Entry()
	assert.Equal(t, []string{"popup", BackgroundEntryName}, entry.Names())

	modules, _ := entry.Get("popup")
	assert.Equal(t, []string{DefaultHotUpdateClient, DefaultPolyfills, "popup/index.js"}, modules)

	background, _ := entry.Get(BackgroundEntryName)
	assert.Equal(t, []string{DefaultHotUpdateBackground}, background)

	plugins := p.Plugins()
	require.NotEmpty(t, plugins)
	assert.Equal(t, Plugin{
		Name:    PluginHotUpdateURL,
		Options: map[string]string{"hotUpdateUrl": "ws://localhost:9000"},
	}, plugins[0])
	assert.True(t, p.HotUpdateEnabled())

	define, ok := p.Plugin(PluginDefine)
	require.True(t, ok)
	assert.Equal(t, `"ws://localhost:9000"`, define.Options["process.env.HOT_UPDATE_URL"])
}

func TestScenarioDuplicateBundleName(t *testing.T) {
	bundles := []Bundle{
		{Name: "options", IndexJS: "options/a.js"},
		{Name: "options", IndexHTML: "options/index.html"},
	}

	p, err := newTestSynthesizer().Synthesize(bundles, Options{})
	require.Error(t, err)
	assert.Nil(t, p)
	assert.True(t, planerrors.IsConfigurationError(err))
	assert.True(t, planerrors.HasCode(err, planerrors.ErrCodeDuplicateBundle))
}

func TestScenarioScriptOnlyBundle(t *testing.T) {
	p, err := newTestSynthesizer().Synthesize([]Bundle{{Name: "bg", IndexJS: "bg.js"}}, Options{})
	require.NoError(t, err)

	modules, ok := p.Entry().Get("bg")
	require.True(t, ok)
	assert.Equal(t, []string{DefaultPolyfills, "bg.js"}, modules)
	assert.Empty(t, p.PageBindings())
	_, ok = p.PageBinding("bg")
	assert.False(t, ok)
}

func TestPageOnlyBundle(t *testing.T) {
	p, err := newTestSynthesizer().Synthesize([]Bundle{{Name: "options", IndexHTML: "options.html"}}, Options{})
	require.NoError(t, err)

	assert.Equal(t, 0, p.Entry().Len())
	binding, ok := p.PageBinding("options")
	require.True(t, ok)
	assert.Equal(t, []string{"options"}, binding.Chunks)
}

func TestEmptyBundleIsAdvisory(t *testing.T) {
	p, err := newTestSynthesizer().Synthesize([]Bundle{{Name: "ghost"}, popup}, Options{})
	require.NoError(t, err)

	assert.Contains(t, p.Advisories(), Advisory{
		Code:    AdvisoryEmptyBundle,
		Subject: "ghost",
		Message: "bundle declares neither a script nor a page and contributes nothing",
	})
	assert.Equal(t, []string{"popup"}, p.Entry().Names())
}

func TestEmptyBundleName(t *testing.T) {
	_, err := newTestSynthesizer().Synthesize([]Bundle{popup, {IndexJS: "x.js"}}, Options{})
	require.Error(t, err)
	assert.True(t, planerrors.HasCode(err, planerrors.ErrCodeEmptyBundleName))
}

func TestReservedBundleName(t *testing.T) {
	bundles := []Bundle{popup, {Name: BackgroundEntryName, IndexJS: "bg.js"}}

	_, err := newTestSynthesizer().Synthesize(bundles, Options{HotUpdateURL: "ws://localhost:9000"})
	require.Error(t, err)
	assert.True(t, planerrors.IsConfigurationError(err))
	assert.True(t, planerrors.HasCode(err, planerrors.ErrCodeReservedBundleName))

	_, err = newTestSynthesizer().Synthesize(bundles, Options{})
	assert.NoError(t, err, "the name is only reserved while hot update is enabled")
}

func TestEnvironmentProviderReceivesHotUpdateURL(t *testing.T) {
	var calls [][2]string
	provider := EnvironmentFunc(func(publicURL, hotUpdateURL string) env.Environment {
		calls = append(calls, [2]string{publicURL, hotUpdateURL})
		return env.Static("development", nil).Environment(publicURL, hotUpdateURL)
	})
	s := NewSynthesizer(testPaths(), provider, WithPublicURL("https://cdn.example"))

	_, err := s.Synthesize([]Bundle{popup}, Options{})
	require.NoError(t, err)
	_, err = s.Synthesize([]Bundle{popup}, Options{HotUpdateURL: " ws://localhost:9000 "})
	require.NoError(t, err)

	assert.Equal(t, [][2]string{
		{"https://cdn.example", ""},
		{"https://cdn.example", "ws://localhost:9000"},
	}, calls)
}

func TestGlobalPluginOrder(t *testing.T) {
	p, err := newTestSynthesizer().Synthesize([]Bundle{popup}, Options{HotUpdateURL: "ws://localhost:9000"})
	require.NoError(t, err)

	var names []string
	for _, pl := range p.Plugins() {
		names = append(names, pl.Name)
	}
	assert.Equal(t, []string{
		PluginHotUpdateURL,
		PluginInterpolateHTML,
		PluginNamedModules,
		PluginDefine,
		PluginHotModuleReplacement,
		PluginCaseSensitivePaths,
		PluginIgnore,
	}, names)

	interpolate, _ := p.Plugin(PluginInterpolateHTML)
	assert.Equal(t, "ext", interpolate.Options["REACT_APP_NAME"])
	assert.Equal(t, "", interpolate.Options["PUBLIC_URL"])
}

func TestOutputResolutionAndDefaults(t *testing.T) {
	p, err := newTestSynthesizer().Synthesize([]Bundle{popup}, Options{SourceMaps: SourceMapStyle("cheap-module-source-map")})
	require.NoError(t, err)

	assert.Equal(t, Output{
		Path:          "/app/build",
		Pathinfo:      true,
		Filename:      "js/[name].js",
		ChunkFilename: "js/[name].[chunkhash:8].chunk.js",
		PublicPath:    "/",
	}, p.Output())
	assert.Equal(t, "cheap-module-source-map", p.Devtool().Value())

	res := p.Resolution()
	assert.Equal(t, []string{"node_modules", "/app/node_modules", "/shared/lib"}, res.Modules)
	assert.Equal(t, DefaultExtensions, res.Extensions)
	assert.Equal(t, map[string]string{"react-native": "react-native-web"}, res.Alias)
	assert.Equal(t, "/app/src", res.ModuleScope)

	assert.Equal(t, map[string]string{"dgram": "empty", "fs": "empty", "net": "empty", "tls": "empty"}, p.Node())
	assert.False(t, p.Performance().Hints)
	assert.True(t, p.StrictExportPresence())

	custom, err := newTestSynthesizer(WithPublicPath("/ext/")).Synthesize([]Bundle{popup}, Options{OutputPath: "/tmp/out"})
	require.NoError(t, err)
	assert.Equal(t, "/tmp/out", custom.Output().Path)
	assert.Equal(t, "/ext/", custom.Output().PublicPath)
	assert.Equal(t, false, custom.Devtool().Value())
}

func TestCheckImport(t *testing.T) {
	res := Resolution{ModuleScope: "/app/src"}

	assert.NoError(t, res.CheckImport("/app/src/popup/index.js", "./view.js"))
	assert.NoError(t, res.CheckImport("/app/src/popup/index.js", "../shared/util.js"))
	assert.NoError(t, res.CheckImport("/app/src/popup/index.js", "react"))
	assert.NoError(t, res.CheckImport("/app/node_modules/lib/index.js", "../../../etc/x.js"))

	err := res.CheckImport("/app/src/popup/index.js", "../../package.json")
	require.Error(t, err)
	assert.True(t, planerrors.HasCode(err, planerrors.ErrCodeImportOutsideScope))

	err = res.CheckImport("/app/src/index.js", "/app/config/secret.js")
	require.Error(t, err)

	assert.NoError(t, Resolution{}.CheckImport("/anywhere.js", "../x.js"))
}

func TestSynthesizeIsIdempotent(t *testing.T) {
	s := newTestSynthesizer(WithRules(Rule{
		Name:       "svg",
		Kind:       KindTransform,
		Extensions: []string{"svg"},
		Loaders:    []Loader{{Name: "svgr-loader", Options: map[string]interface{}{"icon": true}}},
	}))
	bundles := []Bundle{popup, {Name: "bg", IndexJS: "bg.js"}, {Name: "options", IndexHTML: "options.html"}}
	opts := Options{HotUpdateURL: "ws://localhost:9000", SourceMaps: SourceMapStyle("inline-source-map")}

	a, err := s.Synthesize(bundles, opts)
	require.NoError(t, err)
	b, err := s.Synthesize(bundles, opts)
	require.NoError(t, err)

	if diff := cmp.Diff(a, b, cmp.AllowUnexported(BuildPlan{})); diff != "" {
		t.Fatalf("plans differ (-first +second):\n%s", diff)
	}

	ja, err := json.Marshal(a)
	require.NoError(t, err)
	jb, err := json.Marshal(b)
	require.NoError(t, err)
	assert.Equal(t, string(ja), string(jb))

	ya, err := yaml.Marshal(a)
	require.NoError(t, err)
	yb, err := yaml.Marshal(b)
	require.NoError(t, err)
	assert.Equal(t, string(ya), string(yb))
}

func TestPlanEncodingKeepsEntryOrder(t *testing.T) {
	bundles := []Bundle{{Name: "zeta", IndexJS: "z.js"}, {Name: "alpha", IndexJS: "a.js"}}
	p, err := newTestSynthesizer().Synthesize(bundles, Options{})
	require.NoError(t, err)

	data, err := json.Marshal(p)
	require.NoError(t, err)
	js := string(data)
	assert.Contains(t, js, `"entry":{"zeta":["`+DefaultPolyfills+`","z.js"],"alpha":`)
	assert.Contains(t, js, `"devtool":false`)
	assert.Contains(t, js, `"strictExportPresence":true`)

	out, err := yaml.Marshal(p)
	require.NoError(t, err)
	doc := string(out)
	assert.Less(t, strings.Index(doc, "zeta:"), strings.Index(doc, "alpha:"))
	assert.Contains(t, doc, `\.(js|jsx)$`)
}

func TestPlanAccessorsReturnCopies(t *testing.T) {
	p, err := newTestSynthesizer().Synthesize([]Bundle{popup}, Options{})
	require.NoError(t, err)

	entry := p.Entry()
	entry[0].Modules[0] = "mutated"
	bindings := p.PageBindings()
	bindings[0].Chunks[0] = "mutated"
	pipeline := p.Pipeline()
	pipeline[0].Loaders[0].Options["failOnError"] = true
	res := p.Resolution()
	res.Alias["react-native"] = "mutated"
	plugins := p.Plugins()
	for _, pl := range plugins {
		if pl.Name == PluginInterpolateHTML {
			pl.Options["REACT_APP_NAME"] = "mutated"
		}
	}

	modules, _ := p.Entry().Get("popup")
	assert.Equal(t, DefaultPolyfills, modules[0])
	assert.Equal(t, []string{"popup"}, p.PageBindings()[0].Chunks)
	assert.Equal(t, false, p.Pipeline()[0].Loaders[0].Options["failOnError"])
	assert.Equal(t, "react-native-web", p.Resolution().Alias["react-native"])
	interpolate, _ := p.Plugin(PluginInterpolateHTML)
	assert.Equal(t, "ext", interpolate.Options["REACT_APP_NAME"])
}

func TestSynthesizeRejectsNegativeInlineLimit(t *testing.T) {
	_, err := newTestSynthesizer(WithInlineLimit(-1)).Synthesize([]Bundle{popup}, Options{})
	require.Error(t, err)
	assert.True(t, planerrors.HasCode(err, planerrors.ErrCodeConfigInvalid))
}

func TestCustomRuntime(t *testing.T) {
	rt := RuntimeModules{Polyfills: "poly", HotUpdateClient: "client", HotUpdateBackground: "bgreload"}
	p, err := newTestSynthesizer(WithRuntime(rt)).Synthesize([]Bundle{popup}, Options{HotUpdateURL: "ws://x"})
	require.NoError(t, err)

	modules, _ := p.Entry().Get("popup")
	assert.Equal(t, []string{"client", "poly", "popup/index.js"}, modules)
	background, _ := p.Entry().Get(BackgroundEntryName)
	assert.Equal(t, []string{"bgreload"}, background)
}

func TestParseSourceMaps(t *testing.T) {
	tests := []struct {
		in   interface{}
		want interface{}
	}{
		{nil, false},
		{false, false},
		{true, true},
		{"true", true},
		{"false", false},
		{"", false},
		{"eval", "eval"},
	}
	for _, tt := range tests {
		sm, err := ParseSourceMaps(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, sm.Value(), "input %v", tt.in)
	}

	_, err := ParseSourceMaps(3)
	assert.Error(t, err)

	var decoded SourceMaps
	require.NoError(t, json.Unmarshal([]byte(`"source-map"`), &decoded))
	assert.Equal(t, SourceMapStyle("source-map"), decoded)
	require.NoError(t, yaml.Unmarshal([]byte(`true`), &decoded))
	assert.Equal(t, SourceMaps{Enabled: true}, decoded)
}
