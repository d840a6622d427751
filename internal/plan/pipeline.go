package plan

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/gobwas/glob"

	planerrors "github.com/conneroisu/extplan/internal/errors"
)

// StageKind orders and classifies pipeline stages.
type StageKind string

const (
	KindPreLint      StageKind = "pre-lint"
	KindPreTypecheck StageKind = "pre-typecheck"
	KindTransform    StageKind = "transform"
	KindInlineAsset  StageKind = "inline-asset"
	KindNative       StageKind = "native"
	KindFallback     StageKind = "fallback"
)

// IsPre reports whether stages of this kind run before the loaders proper.
// Pre stages analyse files without owning them.
func (k StageKind) IsPre() bool {
	return k == KindPreLint || k == KindPreTypecheck
}

func (k StageKind) valid() bool {
	switch k {
	case KindPreLint, KindPreTypecheck, KindTransform, KindInlineAsset, KindNative:
		return true
	}
	return false
}

// Pattern matches resource paths by file extension. It is the data behind a
// stage's test expression.
type Pattern struct {
	Extensions []string
}

// String renders the pattern as the regular expression it stands for.
func (p Pattern) String() string {
	quoted := make([]string, len(p.Extensions))
	for i, ext := range p.Extensions {
		quoted[i] = regexp.QuoteMeta(ext)
	}
	if len(quoted) == 1 {
		return `\.` + quoted[0] + `$`
	}
	return `\.(` + strings.Join(quoted, "|") + `)$`
}

// Match reports whether path ends in one of the pattern's extensions.
func (p Pattern) Match(path string) bool {
	for _, ext := range p.Extensions {
		if strings.HasSuffix(path, "."+ext) {
			return true
		}
	}
	return false
}

// MarshalText renders the pattern for JSON and YAML output.
func (p Pattern) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// MarshalYAML renders the pattern as a plain scalar.
func (p Pattern) MarshalYAML() (interface{}, error) {
	return p.String(), nil
}

func (p Pattern) clone() Pattern {
	return Pattern{Extensions: append([]string(nil), p.Extensions...)}
}

// Loader is one processing step inside a stage.
type Loader struct {
	Name    string                 `json:"loader" yaml:"loader" mapstructure:"loader"`
	Options map[string]interface{} `json:"options,omitempty" yaml:"options,omitempty" mapstructure:"options"`
}

func (l Loader) clone() Loader {
	if l.Options != nil {
		l.Options = cloneValue(l.Options).(map[string]interface{})
	}
	return l
}

// Gate records a stage precondition and whether it held.
type Gate struct {
	Requires string `json:"requires" yaml:"requires"`
	Skipped  bool   `json:"skipped" yaml:"skipped"`
	Reason   string `json:"reason,omitempty" yaml:"reason,omitempty"`
}

// GateTypeConfig is satisfied when the type-configuration file exists.
const GateTypeConfig = "type-config"

// Stage is one step of the source-transformation pipeline.
type Stage struct {
	Name    string    `json:"name" yaml:"name"`
	Kind    StageKind `json:"kind" yaml:"kind"`
	Test    *Pattern  `json:"test,omitempty" yaml:"test,omitempty"`
	Include []string  `json:"include,omitempty" yaml:"include,omitempty"`
	Exclude []Pattern `json:"exclude,omitempty" yaml:"exclude,omitempty"`
	Loaders []Loader  `json:"loaders,omitempty" yaml:"loaders,omitempty"`
	Gate    *Gate     `json:"gate,omitempty" yaml:"gate,omitempty"`
}

// Matches reports whether the stage's test selects path. The fallback
// selects everything its exclusion list does not.
func (s Stage) Matches(path string) bool {
	if s.Kind == KindFallback {
		for _, p := range s.Exclude {
			if p.Match(path) {
				return false
			}
		}
		return true
	}
	return s.Test != nil && s.Test.Match(path)
}

// InScope reports whether path lies inside the stage's include scope.
// Scoped stages never apply to files under node_modules.
func (s Stage) InScope(path string) bool {
	if len(s.Include) == 0 {
		return true
	}
	slashed := filepath.ToSlash(path)
	if strings.Contains(slashed, "/node_modules/") || strings.HasPrefix(slashed, "node_modules/") {
		return false
	}
	for _, pattern := range s.Include {
		g, err := compileScope(pattern)
		if err != nil {
			return false
		}
		if g.Match(slashed) {
			return true
		}
	}
	return false
}

// scopes caches compiled include globs by pattern.
var scopes sync.Map

func compileScope(pattern string) (glob.Glob, error) {
	if g, ok := scopes.Load(pattern); ok {
		return g.(glob.Glob), nil
	}
	g, err := glob.Compile(pattern, '/')
	if err != nil {
		return nil, err
	}
	scopes.Store(pattern, g)
	return g, nil
}

// Skipped reports whether the stage's gate failed.
func (s Stage) Skipped() bool {
	return s.Gate != nil && s.Gate.Skipped
}

func (s Stage) clone() Stage {
	if s.Test != nil {
		t := s.Test.clone()
		s.Test = &t
	}
	s.Include = append([]string(nil), s.Include...)
	if s.Exclude != nil {
		ex := make([]Pattern, len(s.Exclude))
		for i, p := range s.Exclude {
			ex[i] = p.clone()
		}
		s.Exclude = ex
	}
	if s.Loaders != nil {
		ls := make([]Loader, len(s.Loaders))
		for i, l := range s.Loaders {
			ls[i] = l.clone()
		}
		s.Loaders = ls
	}
	if s.Gate != nil {
		g := *s.Gate
		s.Gate = &g
	}
	return s
}

// Pipeline is the ordered stage list.
type Pipeline []Stage

// Stage returns the stage named name.
func (p Pipeline) Stage(name string) (Stage, bool) {
	for _, s := range p {
		if s.Name == name {
			return s.clone(), true
		}
	}
	return Stage{}, false
}

// Matching returns every owning (non-pre) stage whose test selects path. For
// a well-formed pipeline the result always has exactly one element.
func (p Pipeline) Matching(path string) []Stage {
	var out []Stage
	for _, s := range p {
		if s.Kind.IsPre() {
			continue
		}
		if s.Matches(path) {
			out = append(out, s.clone())
		}
	}
	return out
}

// StageFor returns the single stage that owns path.
func (p Pipeline) StageFor(path string) (Stage, bool) {
	m := p.Matching(path)
	if len(m) != 1 {
		return Stage{}, false
	}
	return m[0], true
}

// PreStagesFor returns the pre stages that analyse path before it is loaded.
func (p Pipeline) PreStagesFor(path string) []Stage {
	var out []Stage
	for _, s := range p {
		if s.Kind.IsPre() && s.Matches(path) && s.InScope(path) {
			out = append(out, s.clone())
		}
	}
	return out
}

func (p Pipeline) clone() Pipeline {
	if p == nil {
		return nil
	}
	out := make(Pipeline, len(p))
	for i, s := range p {
		out[i] = s.clone()
	}
	return out
}

// Rule is one registry entry. Stage tests and the fallback's exclusion list
// are both derived from the registry, so adding a rule cannot leave the
// fallback out of sync.
type Rule struct {
	Name       string    `mapstructure:"name" yaml:"name"`
	Kind       StageKind `mapstructure:"kind" yaml:"kind"`
	Extensions []string  `mapstructure:"extensions" yaml:"extensions"`
	Loaders    []Loader  `mapstructure:"loaders" yaml:"loaders"`
	// Scoped restricts the stage to the source root.
	Scoped bool `mapstructure:"scoped" yaml:"scoped"`
	// RequiresTypeConfig gates the stage on the type-configuration file.
	RequiresTypeConfig bool `mapstructure:"requires_type_config" yaml:"requires_type_config"`
}

// PipelineConfig holds the inputs of pipeline assembly.
type PipelineConfig struct {
	AppDir         string
	SourceRoot     string
	TypeConfigPath string
	// InlineLimit is the byte size under which assets are inlined as data
	// URLs. Zero always emits files.
	InlineLimit int
	// StrictLint turns lint findings into build failures.
	StrictLint bool
	// Extra rules are inserted after the built-in transforms.
	Extra []Rule
}

const (
	mediaName    = "media/[name].[hash:8].[ext]"
	fallbackName = "file"
)

var autoprefixerBrowsers = []string{">1%", "last 4 versions", "Firefox ESR", "not ie < 9"}

// DefaultRules returns the built-in registry in stage order, with cfg.Extra
// placed before the native rules.
func DefaultRules(cfg PipelineConfig) []Rule {
	var tsOptions map[string]interface{}
	if cfg.TypeConfigPath != "" {
		tsOptions = map[string]interface{}{"configFile": cfg.TypeConfigPath}
	}

	rules := []Rule{
		{
			Name:       "eslint",
			Kind:       KindPreLint,
			Extensions: []string{"js", "jsx"},
			Scoped:     true,
			Loaders: []Loader{{
				Name: "eslint-loader",
				Options: map[string]interface{}{
					"formatter": "eslint-formatter",
					"baseConfig": map[string]interface{}{
						"env":     map[string]interface{}{"webextensions": true},
						"extends": []string{"eslint-config-react-app"},
					},
					"ignore":      false,
					"useEslintrc": false,
					"failOnError": cfg.StrictLint,
				},
			}},
		},
		{
			Name:               "tslint",
			Kind:               KindPreTypecheck,
			Extensions:         []string{"ts", "tsx"},
			Scoped:             true,
			RequiresTypeConfig: true,
			Loaders: []Loader{{
				Name:    "tslint-loader",
				Options: map[string]interface{}{"failOnHint": cfg.StrictLint},
			}},
		},
		{
			Name:       "url",
			Kind:       KindInlineAsset,
			Extensions: []string{"bmp", "gif", "jpeg", "jpg", "png"},
			Loaders: []Loader{{
				Name:    "url-loader",
				Options: map[string]interface{}{"limit": cfg.InlineLimit, "name": mediaName},
			}},
		},
		{
			Name:       "babel",
			Kind:       KindTransform,
			Extensions: []string{"js", "jsx"},
			Scoped:     true,
			Loaders: []Loader{{
				Name: "babel-loader",
				Options: map[string]interface{}{
					"babelrc":        false,
					"presets":        []string{"babel-preset-react-app"},
					"cacheDirectory": true,
				},
			}},
		},
		{
			Name:               "typescript",
			Kind:               KindTransform,
			Extensions:         []string{"ts", "tsx"},
			Scoped:             true,
			RequiresTypeConfig: true,
			Loaders:            []Loader{{Name: "ts-loader", Options: tsOptions}},
		},
		{
			Name:       "css",
			Kind:       KindTransform,
			Extensions: []string{"css"},
			Loaders: []Loader{
				{Name: "style-loader"},
				{Name: "css-loader", Options: map[string]interface{}{"importLoaders": 1}},
				{Name: "postcss-loader", Options: map[string]interface{}{
					"ident":   "postcss",
					"plugins": []string{"postcss-flexbugs-fixes", "autoprefixer"},
					"autoprefixer": map[string]interface{}{
						"browsers": append([]string(nil), autoprefixerBrowsers...),
						"flexbox":  "no-2009",
					},
				}},
			},
		},
	}

	for _, r := range cfg.Extra {
		rules = append(rules, r.cloneRule())
	}

	return append(rules,
		Rule{Name: "json", Kind: KindNative, Extensions: []string{"json"}},
		Rule{Name: "html", Kind: KindNative, Extensions: []string{"html"}},
	)
}

func (r Rule) cloneRule() Rule {
	r.Extensions = append([]string(nil), r.Extensions...)
	if r.Loaders != nil {
		ls := make([]Loader, len(r.Loaders))
		for i, l := range r.Loaders {
			ls[i] = l.clone()
		}
		r.Loaders = ls
	}
	return r
}

var extensionRe = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// normalizeRules validates the registry and strips leading dots from
// extensions. Any inconsistency is a configuration error.
func normalizeRules(rules []Rule) ([]Rule, error) {
	names := make(map[string]bool, len(rules))
	owners := make(map[string]string)
	out := make([]Rule, 0, len(rules))

	for _, r := range rules {
		r = r.cloneRule()
		if r.Name == "" {
			return nil, planerrors.ErrMalformedPatterns("", "pipeline rule without a name")
		}
		if r.Name == fallbackName {
			return nil, planerrors.ErrMalformedPatterns(r.Name, fmt.Sprintf("rule name %q is reserved for the fallback stage", r.Name))
		}
		if names[r.Name] {
			return nil, planerrors.ErrMalformedPatterns(r.Name, fmt.Sprintf("rule %q is declared more than once", r.Name))
		}
		names[r.Name] = true

		if !r.Kind.valid() {
			return nil, planerrors.ErrMalformedPatterns(r.Name, fmt.Sprintf("rule %q has unsupported kind %q", r.Name, r.Kind))
		}
		if len(r.Extensions) == 0 {
			return nil, planerrors.ErrMalformedPatterns(r.Name, fmt.Sprintf("rule %q matches no extensions", r.Name))
		}
		if r.Kind != KindNative && len(r.Loaders) == 0 {
			return nil, planerrors.ErrMalformedPatterns(r.Name, fmt.Sprintf("rule %q declares no loaders", r.Name))
		}
		for i, l := range r.Loaders {
			if strings.TrimSpace(l.Name) == "" {
				return nil, planerrors.ErrMalformedPatterns(r.Name, fmt.Sprintf("rule %q has an unnamed loader at position %d", r.Name, i))
			}
		}

		seen := make(map[string]bool, len(r.Extensions))
		for i, ext := range r.Extensions {
			ext = strings.TrimPrefix(strings.TrimSpace(ext), ".")
			if !extensionRe.MatchString(ext) {
				return nil, planerrors.ErrMalformedPatterns(r.Name, fmt.Sprintf("rule %q has malformed extension %q", r.Name, r.Extensions[i]))
			}
			if seen[ext] {
				return nil, planerrors.ErrMalformedPatterns(r.Name, fmt.Sprintf("rule %q lists extension %q twice", r.Name, ext))
			}
			seen[ext] = true
			r.Extensions[i] = ext

			if r.Kind.IsPre() {
				continue
			}
			if owner, ok := owners[ext]; ok {
				return nil, planerrors.ErrMalformedPatterns(r.Name, fmt.Sprintf("extension %q is claimed by both %q and %q", ext, owner, r.Name))
			}
			owners[ext] = r.Name
		}
		out = append(out, r)
	}

	for _, r := range out {
		if !r.Kind.IsPre() {
			continue
		}
		for _, ext := range r.Extensions {
			if _, ok := owners[ext]; !ok {
				return nil, planerrors.ErrMalformedPatterns(r.Name, fmt.Sprintf("pre stage %q analyses %q but no stage loads it", r.Name, ext))
			}
		}
	}

	return out, nil
}

// assemblePipeline turns the registry into ordered stages and appends the
// fallback, whose exclusion list is every earlier test pattern.
func assemblePipeline(cfg PipelineConfig) (Pipeline, []Advisory, error) {
	rules, err := normalizeRules(DefaultRules(cfg))
	if err != nil {
		return nil, nil, err
	}

	var include []string
	if cfg.SourceRoot != "" {
		include = []string{glob.QuoteMeta(filepath.ToSlash(filepath.Clean(cfg.SourceRoot))) + "/**"}
	}
	for _, pattern := range include {
		if _, err := compileScope(pattern); err != nil {
			return nil, nil, planerrors.ErrMalformedPatterns("", fmt.Sprintf("invalid include scope %q: %v", pattern, err))
		}
	}

	stages := make(Pipeline, 0, len(rules)+1)
	var advisories []Advisory
	var exclude []Pattern
	seenPatterns := make(map[string]bool)

	for _, r := range rules {
		test := Pattern{Extensions: r.Extensions}
		stage := Stage{
			Name:    r.Name,
			Kind:    r.Kind,
			Test:    &test,
			Loaders: r.Loaders,
		}
		if r.Scoped {
			stage.Include = append([]string(nil), include...)
		}
		if r.RequiresTypeConfig {
			stage.Gate = &Gate{Requires: GateTypeConfig}
			if cfg.TypeConfigPath == "" {
				stage.Gate.Skipped = true
				stage.Gate.Reason = fmt.Sprintf("tsconfig.json was not found in %s", filepath.Join(cfg.AppDir, "tsconfig.json"))
				advisories = append(advisories, Advisory{
					Code:    AdvisoryGateSkipped,
					Subject: r.Name,
					Message: stage.Gate.Reason,
				})
			}
		}
		stages = append(stages, stage)

		if !seenPatterns[test.String()] {
			seenPatterns[test.String()] = true
			exclude = append(exclude, test.clone())
		}
	}

	stages = append(stages, Stage{
		Name:    fallbackName,
		Kind:    KindFallback,
		Exclude: exclude,
		Loaders: []Loader{{
			Name:    "file-loader",
			Options: map[string]interface{}{"name": mediaName},
		}},
	})

	return stages, advisories, nil
}

// cloneValue deep-copies the value shapes used in loader options.
func cloneValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[k] = cloneValue(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = cloneValue(val)
		}
		return out
	case []string:
		return append([]string(nil), t...)
	default:
		return v
	}
}
