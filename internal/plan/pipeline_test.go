package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	planerrors "github.com/conneroisu/extplan/internal/errors"
)

func defaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		AppDir:         "/app",
		SourceRoot:     "/app/src",
		TypeConfigPath: "/app/tsconfig.json",
	}
}

func stageNames(p Pipeline) []string {
	names := make([]string, len(p))
	for i, s := range p {
		names[i] = s.Name
	}
	return names
}

func TestAssemblePipelineOrder(t *testing.T) {
	p, advisories, err := assemblePipeline(defaultPipelineConfig())
	require.NoError(t, err)
	assert.Empty(t, advisories)

	assert.Equal(t, []string{"eslint", "tslint", "url", "babel", "typescript", "css", "json", "html", "file"}, stageNames(p))

	eslint, ok := p.Stage("eslint")
	require.True(t, ok)
	assert.Equal(t, KindPreLint, eslint.Kind)
	assert.Equal(t, `\.(js|jsx)$`, eslint.Test.String())
	assert.Equal(t, []string{"/app/src/**"}, eslint.Include)

	css, _ := p.Stage("css")
	assert.Equal(t, `\.css$`, css.Test.String())
	assert.Empty(t, css.Include)
	require.Len(t, css.Loaders, 3)
	assert.Equal(t, "postcss-loader", css.Loaders[2].Name)

	url, _ := p.Stage("url")
	assert.Equal(t, KindInlineAsset, url.Kind)
	assert.Equal(t, 0, url.Loaders[0].Options["limit"])
	assert.Equal(t, "media/[name].[hash:8].[ext]", url.Loaders[0].Options["name"])

	ts, _ := p.Stage("typescript")
	require.NotNil(t, ts.Gate)
	assert.False(t, ts.Skipped())
	assert.Equal(t, "/app/tsconfig.json", ts.Loaders[0].Options["configFile"])
}

func TestFallbackExcludesEveryOwningPattern(t *testing.T) {
	p, _, err := assemblePipeline(defaultPipelineConfig())
	require.NoError(t, err)

	fallback, ok := p.Stage("file")
	require.True(t, ok)
	assert.Equal(t, KindFallback, fallback.Kind)
	assert.Nil(t, fallback.Test)

	var excluded []string
	for _, pat := range fallback.Exclude {
		excluded = append(excluded, pat.String())
	}
	// eslint and tslint share their patterns with babel and typescript.
	assert.Equal(t, []string{
		`\.(js|jsx)$`,
		`\.(ts|tsx)$`,
		`\.(bmp|gif|jpeg|jpg|png)$`,
		`\.css$`,
		`\.json$`,
		`\.html$`,
	}, excluded)
}

func TestPipelinePartition(t *testing.T) {
	p, _, err := assemblePipeline(defaultPipelineConfig())
	require.NoError(t, err)

	cases := map[string]string{
		"/app/src/index.js":           "babel",
		"/app/src/view.jsx":           "babel",
		"/app/src/types.ts":           "typescript",
		"/app/src/app.tsx":            "typescript",
		"/app/src/logo.png":           "url",
		"/app/src/photo.jpeg":         "url",
		"/app/src/main.css":           "css",
		"/app/src/data.json":          "json",
		"/app/public/popup.html":      "html",
		"/app/src/font.woff2":         "file",
		"/app/src/LICENSE":            "file",
		"/app/src/archive.js.map":     "file",
		"/app/node_modules/x/main.js": "babel",
	}
	for path, want := range cases {
		matching := p.Matching(path)
		require.Len(t, matching, 1, "path %s", path)
		assert.Equal(t, want, matching[0].Name, "path %s", path)

		owner, ok := p.StageFor(path)
		require.True(t, ok)
		assert.Equal(t, want, owner.Name)
	}
}

func TestPreStagesRespectScope(t *testing.T) {
	p, _, err := assemblePipeline(defaultPipelineConfig())
	require.NoError(t, err)

	pre := p.PreStagesFor("/app/src/index.js")
	require.Len(t, pre, 1)
	assert.Equal(t, "eslint", pre[0].Name)

	assert.Empty(t, p.PreStagesFor("/app/node_modules/lib/index.js"))
	assert.Empty(t, p.PreStagesFor("/app/src/node_modules/lib/index.js"))
	assert.Empty(t, p.PreStagesFor("/app/scripts/index.js"))
	assert.Empty(t, p.PreStagesFor("/app/src/main.css"))

	babel, _ := p.Stage("babel")
	assert.True(t, babel.InScope("/app/src/deep/nested/file.js"))
	assert.False(t, babel.InScope("/app/node_modules/react/index.js"))

	css, _ := p.Stage("css")
	assert.True(t, css.InScope("/app/node_modules/normalize.css/normalize.css"))
}

func TestIncludeScopeCompiledAtAssembly(t *testing.T) {
	_, _, err := assemblePipeline(defaultPipelineConfig())
	require.NoError(t, err)

	_, cached := scopes.Load("/app/src/**")
	assert.True(t, cached)

	broken := Stage{Name: "broken", Kind: KindTransform, Include: []string{"/app/src/[a"}}
	assert.False(t, broken.InScope("/app/src/a.js"))
}

func TestTypeGateSkipped(t *testing.T) {
	cfg := defaultPipelineConfig()
	cfg.TypeConfigPath = ""

	p, advisories, err := assemblePipeline(cfg)
	require.NoError(t, err)

	for _, name := range []string{"tslint", "typescript"} {
		s, ok := p.Stage(name)
		require.True(t, ok)
		assert.True(t, s.Skipped(), name)
		assert.Equal(t, GateTypeConfig, s.Gate.Requires)
		assert.Equal(t, "tsconfig.json was not found in /app/tsconfig.json", s.Gate.Reason)
	}
	assert.Equal(t, []Advisory{
		{Code: AdvisoryGateSkipped, Subject: "tslint", Message: "tsconfig.json was not found in /app/tsconfig.json"},
		{Code: AdvisoryGateSkipped, Subject: "typescript", Message: "tsconfig.json was not found in /app/tsconfig.json"},
	}, advisories)

	// A skipped stage still owns its files so they are not handed to the
	// fallback.
	owner, ok := p.StageFor("/app/src/a.ts")
	require.True(t, ok)
	assert.Equal(t, "typescript", owner.Name)

	ts, _ := p.Stage("typescript")
	assert.Nil(t, ts.Loaders[0].Options)
}

func TestStrictLintAndInlineLimit(t *testing.T) {
	cfg := defaultPipelineConfig()
	cfg.StrictLint = true
	cfg.InlineLimit = 10000

	p, _, err := assemblePipeline(cfg)
	require.NoError(t, err)

	eslint, _ := p.Stage("eslint")
	assert.Equal(t, true, eslint.Loaders[0].Options["failOnError"])
	tslint, _ := p.Stage("tslint")
	assert.Equal(t, true, tslint.Loaders[0].Options["failOnHint"])
	url, _ := p.Stage("url")
	assert.Equal(t, 10000, url.Loaders[0].Options["limit"])
}

func TestExtraRuleJoinsFallbackExclusion(t *testing.T) {
	cfg := defaultPipelineConfig()
	cfg.Extra = []Rule{{
		Name:       "svg",
		Kind:       KindTransform,
		Extensions: []string{".svg"},
		Loaders:    []Loader{{Name: "svgr-loader"}},
	}}

	p, _, err := assemblePipeline(cfg)
	require.NoError(t, err)

	assert.Equal(t, []string{"eslint", "tslint", "url", "babel", "typescript", "css", "svg", "json", "html", "file"}, stageNames(p))

	owner, ok := p.StageFor("/app/src/icon.svg")
	require.True(t, ok)
	assert.Equal(t, "svg", owner.Name)

	fallback, _ := p.Stage("file")
	var found bool
	for _, pat := range fallback.Exclude {
		if pat.String() == `\.svg$` {
			found = true
		}
	}
	assert.True(t, found)
}

func TestMalformedRegistry(t *testing.T) {
	tests := []struct {
		name string
		rule Rule
	}{
		{"unnamed", Rule{Kind: KindTransform, Extensions: []string{"svg"}, Loaders: []Loader{{Name: "x"}}}},
		{"reserved fallback name", Rule{Name: "file", Kind: KindTransform, Extensions: []string{"svg"}, Loaders: []Loader{{Name: "x"}}}},
		{"duplicate name", Rule{Name: "css", Kind: KindTransform, Extensions: []string{"scss"}, Loaders: []Loader{{Name: "x"}}}},
		{"unknown kind", Rule{Name: "svg", Kind: "post", Extensions: []string{"svg"}, Loaders: []Loader{{Name: "x"}}}},
		{"fallback kind", Rule{Name: "svg", Kind: KindFallback, Extensions: []string{"svg"}, Loaders: []Loader{{Name: "x"}}}},
		{"no extensions", Rule{Name: "svg", Kind: KindTransform, Loaders: []Loader{{Name: "x"}}}},
		{"wildcard extension", Rule{Name: "svg", Kind: KindTransform, Extensions: []string{"*.svg"}, Loaders: []Loader{{Name: "x"}}}},
		{"path in extension", Rule{Name: "svg", Kind: KindTransform, Extensions: []string{"a/svg"}, Loaders: []Loader{{Name: "x"}}}},
		{"empty extension", Rule{Name: "svg", Kind: KindTransform, Extensions: []string{""}, Loaders: []Loader{{Name: "x"}}}},
		{"repeated extension", Rule{Name: "svg", Kind: KindTransform, Extensions: []string{"svg", ".svg"}, Loaders: []Loader{{Name: "x"}}}},
		{"overlapping owner", Rule{Name: "postcss", Kind: KindTransform, Extensions: []string{"css"}, Loaders: []Loader{{Name: "x"}}}},
		{"no loaders", Rule{Name: "svg", Kind: KindTransform, Extensions: []string{"svg"}}},
		{"unnamed loader", Rule{Name: "svg", Kind: KindTransform, Extensions: []string{"svg"}, Loaders: []Loader{{Name: " "}}}},
		{"orphan pre stage", Rule{Name: "stylelint", Kind: KindPreLint, Extensions: []string{"scss"}, Loaders: []Loader{{Name: "x"}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultPipelineConfig()
			cfg.Extra = []Rule{tt.rule}

			p, _, err := assemblePipeline(cfg)
			require.Error(t, err)
			assert.Nil(t, p)
			assert.True(t, planerrors.IsConfigurationError(err))
			assert.True(t, planerrors.HasCode(err, planerrors.ErrCodeMalformedPatterns))
		})
	}
}

func TestPreRuleMayShareExtensions(t *testing.T) {
	cfg := defaultPipelineConfig()
	cfg.Extra = []Rule{{
		Name:       "stylelint",
		Kind:       KindPreLint,
		Extensions: []string{"css"},
		Loaders:    []Loader{{Name: "stylelint-loader"}},
	}}

	p, _, err := assemblePipeline(cfg)
	require.NoError(t, err)

	pre := p.PreStagesFor("/app/src/main.css")
	require.Len(t, pre, 1)
	assert.Equal(t, "stylelint", pre[0].Name)
}

func TestPatternMatch(t *testing.T) {
	pat := Pattern{Extensions: []string{"js", "jsx"}}
	assert.True(t, pat.Match("a.js"))
	assert.True(t, pat.Match("dir/a.jsx"))
	assert.False(t, pat.Match("a.json"))
	assert.False(t, pat.Match("js"))
	assert.False(t, pat.Match("a.mjs"))

	text, err := pat.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, `\.(js|jsx)$`, string(text))
}

func TestDefaultRulesAreFresh(t *testing.T) {
	a := DefaultRules(defaultPipelineConfig())
	a[0].Loaders[0].Options["failOnError"] = true
	a[0].Extensions[0] = "mutated"

	b := DefaultRules(defaultPipelineConfig())
	assert.Equal(t, false, b[0].Loaders[0].Options["failOnError"])
	assert.Equal(t, "js", b[0].Extensions[0])
}
