// Package plan synthesizes immutable build plans for multi-entry browser
// extensions.
//
// A plan is derived from a bundle manifest and a set of build options. It
// carries the entry map, per-bundle page bindings, the ordered loader
// pipeline, global plugin directives and module resolution rules. The
// bundler engine consumes the plan read-only.
package plan

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/conneroisu/extplan/internal/env"
	planerrors "github.com/conneroisu/extplan/internal/errors"
	"github.com/conneroisu/extplan/internal/paths"
)

// Advisory codes.
const (
	AdvisoryEmptyBundle = "empty-bundle"
	AdvisoryGateSkipped = "gate-skipped"
)

// Advisory is a non-fatal outcome recorded during synthesis.
type Advisory struct {
	Code    string `json:"code" yaml:"code"`
	Subject string `json:"subject" yaml:"subject"`
	Message string `json:"message" yaml:"message"`
}

// Plugin directive names, in emission order.
const (
	PluginHotUpdateURL         = "hot-update-url-template"
	PluginInterpolateHTML      = "interpolate-html"
	PluginNamedModules         = "named-modules"
	PluginDefine               = "define"
	PluginHotModuleReplacement = "hot-module-replacement"
	PluginCaseSensitivePaths   = "case-sensitive-paths"
	PluginIgnore               = "ignore"
)

// Plugin is a global directive for the bundler engine.
type Plugin struct {
	Name    string            `json:"name" yaml:"name"`
	Options map[string]string `json:"options,omitempty" yaml:"options,omitempty"`
}

func (p Plugin) clone() Plugin {
	if p.Options != nil {
		opts := make(map[string]string, len(p.Options))
		for k, v := range p.Options {
			opts[k] = v
		}
		p.Options = opts
	}
	return p
}

// Output describes where and how emitted files are named.
type Output struct {
	Path          string `json:"path" yaml:"path"`
	Pathinfo      bool   `json:"pathinfo" yaml:"pathinfo"`
	Filename      string `json:"filename" yaml:"filename"`
	ChunkFilename string `json:"chunkFilename" yaml:"chunkFilename"`
	PublicPath    string `json:"publicPath" yaml:"publicPath"`
}

// Resolution holds the module resolution rules.
type Resolution struct {
	Modules    []string          `json:"modules" yaml:"modules"`
	Extensions []string          `json:"extensions" yaml:"extensions"`
	Alias      map[string]string `json:"alias" yaml:"alias"`
	// ModuleScope is the directory that relative imports from source files
	// may not leave.
	ModuleScope string `json:"moduleScope" yaml:"moduleScope"`
}

// DefaultExtensions is the extension precedence used for resolution.
var DefaultExtensions = []string{
	".ts", ".tsx", ".web.ts", ".web.tsx", ".web.js", ".js", ".json", ".web.jsx", ".jsx",
}

// CheckImport reports an error when importer, a file inside the module
// scope, imports target from outside it. Bare module specifiers resolve
// through the module roots and are always allowed.
func (r Resolution) CheckImport(importer, target string) error {
	if r.ModuleScope == "" {
		return nil
	}
	if !filepath.IsAbs(target) && !strings.HasPrefix(target, "./") && !strings.HasPrefix(target, "../") {
		return nil
	}
	if !within(r.ModuleScope, importer) {
		return nil
	}

	resolved := target
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(filepath.Dir(importer), target)
	}
	if within(r.ModuleScope, resolved) {
		return nil
	}

	return planerrors.NewValidationError(
		planerrors.ErrCodeImportOutsideScope,
		fmt.Sprintf("%s imports %s which falls outside of %s", importer, target, r.ModuleScope),
	).WithContext("importer", importer).WithContext("target", resolved)
}

func within(root, path string) bool {
	rel, err := filepath.Rel(filepath.Clean(root), filepath.Clean(path))
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

func (r Resolution) clone() Resolution {
	r.Modules = append([]string(nil), r.Modules...)
	r.Extensions = append([]string(nil), r.Extensions...)
	alias := make(map[string]string, len(r.Alias))
	for k, v := range r.Alias {
		alias[k] = v
	}
	r.Alias = alias
	return r
}

// Performance holds the size-hint policy.
type Performance struct {
	Hints bool `json:"hints" yaml:"hints"`
}

// BuildPlan is the terminal aggregate. It is never mutated after Synthesize
// returns; every accessor hands out a copy.
type BuildPlan struct {
	devtool              SourceMaps
	entry                EntryMap
	output               Output
	pageBindings         []PageBinding
	pipeline             Pipeline
	plugins              []Plugin
	resolution           Resolution
	node                 map[string]string
	performance          Performance
	strictExportPresence bool
	advisories           []Advisory
}

// Devtool returns the source map setting.
func (p *BuildPlan) Devtool() SourceMaps { return p.devtool }

// Entry returns a copy of the entry map in manifest order.
func (p *BuildPlan) Entry() EntryMap { return p.entry.clone() }

// Output returns the output settings.
func (p *BuildPlan) Output() Output { return p.output }

// Pipeline returns a copy of the ordered pipeline stages.
func (p *BuildPlan) Pipeline() Pipeline { return p.pipeline.clone() }

// PageBindings returns a copy of the page bindings in manifest order.
func (p *BuildPlan) PageBindings() []PageBinding {
	out := make([]PageBinding, len(p.pageBindings))
	for i, b := range p.pageBindings {
		out[i] = b.clone()
	}
	return out
}

// Plugins returns a copy of the global plugin directives in order.
func (p *BuildPlan) Plugins() []Plugin {
	out := make([]Plugin, len(p.plugins))
	for i, pl := range p.plugins {
		out[i] = pl.clone()
	}
	return out
}

// Plugin returns the first directive named name.
func (p *BuildPlan) Plugin(name string) (Plugin, bool) {
	for _, pl := range p.plugins {
		if pl.Name == name {
			return pl.clone(), true
		}
	}
	return Plugin{}, false
}

// PageBinding returns the binding for a bundle.
func (p *BuildPlan) PageBinding(bundle string) (PageBinding, bool) {
	for _, b := range p.pageBindings {
		if b.BundleName == bundle {
			return b.clone(), true
		}
	}
	return PageBinding{}, false
}

// Resolution returns a copy of the module resolution rules.
func (p *BuildPlan) Resolution() Resolution { return p.resolution.clone() }

// Node returns the node core module mocks.
func (p *BuildPlan) Node() map[string]string {
	out := make(map[string]string, len(p.node))
	for k, v := range p.node {
		out[k] = v
	}
	return out
}

// Performance returns the performance hint settings.
func (p *BuildPlan) Performance() Performance { return p.performance }

// StrictExportPresence reports whether missing exports fail the build.
func (p *BuildPlan) StrictExportPresence() bool { return p.strictExportPresence }

// Advisories returns the non-fatal notes recorded during synthesis, such as
// skipped stages.
func (p *BuildPlan) Advisories() []Advisory {
	return append([]Advisory(nil), p.advisories...)
}

// HotUpdateEnabled reports whether the plan carries hot-update
// instrumentation.
func (p *BuildPlan) HotUpdateEnabled() bool {
	_, ok := p.Plugin(PluginHotUpdateURL)
	return ok
}

type moduleDocument struct {
	StrictExportPresence bool     `json:"strictExportPresence" yaml:"strictExportPresence"`
	Rules                Pipeline `json:"rules" yaml:"rules"`
}

type document struct {
	Devtool      SourceMaps        `json:"devtool" yaml:"devtool"`
	Entry        EntryMap          `json:"entry" yaml:"entry"`
	Output       Output            `json:"output" yaml:"output"`
	Resolve      Resolution        `json:"resolve" yaml:"resolve"`
	Module       moduleDocument    `json:"module" yaml:"module"`
	Plugins      []Plugin          `json:"plugins" yaml:"plugins"`
	PageBindings []PageBinding     `json:"pages" yaml:"pages"`
	Node         map[string]string `json:"node" yaml:"node"`
	Performance  Performance       `json:"performance" yaml:"performance"`
	Advisories   []Advisory        `json:"advisories,omitempty" yaml:"advisories,omitempty"`
}

func (p *BuildPlan) document() document {
	return document{
		Devtool: p.devtool,
		Entry:   p.entry,
		Output:  p.output,
		Resolve: p.resolution,
		Module: moduleDocument{
			StrictExportPresence: p.strictExportPresence,
			Rules:                p.pipeline,
		},
		Plugins:      p.plugins,
		PageBindings: p.pageBindings,
		Node:         p.node,
		Performance:  p.performance,
		Advisories:   p.advisories,
	}
}

// MarshalJSON implements json.Marshaler. Map keys are sorted by the encoder
// and every list keeps synthesis order, so equal plans encode identically.
func (p *BuildPlan) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.document())
}

// MarshalYAML implements yaml.Marshaler.
func (p *BuildPlan) MarshalYAML() (interface{}, error) {
	return p.document(), nil
}

// EnvironmentProvider supplies the client environment for a public URL and
// hot-update URL. An empty hot-update URL means hot update is disabled.
type EnvironmentProvider interface {
	Environment(publicURL, hotUpdateURL string) env.Environment
}

// EnvironmentFunc adapts a function to EnvironmentProvider.
type EnvironmentFunc func(publicURL, hotUpdateURL string) env.Environment

// Environment implements EnvironmentProvider.
func (f EnvironmentFunc) Environment(publicURL, hotUpdateURL string) env.Environment {
	return f(publicURL, hotUpdateURL)
}

// Synthesizer turns manifests into plans against one resolved app layout.
type Synthesizer struct {
	paths       paths.Paths
	env         EnvironmentProvider
	runtime     RuntimeModules
	rules       []Rule
	inlineLimit int
	strictLint  bool
	publicURL   string
	publicPath  string
}

// SynthesizerOption customises a Synthesizer.
type SynthesizerOption func(*Synthesizer)

// WithRuntime overrides the injected runtime modules.
func WithRuntime(r RuntimeModules) SynthesizerOption {
	return func(s *Synthesizer) { s.runtime = r }
}

// WithRules adds extra pipeline rules ahead of the native rules.
func WithRules(rules ...Rule) SynthesizerOption {
	return func(s *Synthesizer) { s.rules = append(s.rules, rules...) }
}

// WithInlineLimit sets the inline-asset byte threshold. Zero disables
// inlining.
func WithInlineLimit(limit int) SynthesizerOption {
	return func(s *Synthesizer) { s.inlineLimit = limit }
}

// WithStrictLint makes lint findings fail the build.
func WithStrictLint(strict bool) SynthesizerOption {
	return func(s *Synthesizer) { s.strictLint = strict }
}

// WithPublicURL sets the public URL handed to the environment provider.
func WithPublicURL(u string) SynthesizerOption {
	return func(s *Synthesizer) { s.publicURL = u }
}

// WithPublicPath sets the output public path.
func WithPublicPath(p string) SynthesizerOption {
	return func(s *Synthesizer) { s.publicPath = p }
}

// NewSynthesizer creates a Synthesizer. A nil provider yields an environment
// holding only the built-in keys.
func NewSynthesizer(p paths.Paths, provider EnvironmentProvider, opts ...SynthesizerOption) *Synthesizer {
	if provider == nil {
		provider = env.Static("development", nil)
	}
	s := &Synthesizer{
		paths:      p,
		env:        provider,
		runtime:    DefaultRuntime(),
		publicPath: "/",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Synthesize builds the plan for bundles. Any configuration error aborts
// synthesis and no plan is returned.
func (s *Synthesizer) Synthesize(bundles []Bundle, opts Options) (*BuildPlan, error) {
	if s.inlineLimit < 0 {
		return nil, planerrors.NewConfigError(planerrors.ErrCodeConfigInvalid,
			fmt.Sprintf("inline limit must not be negative, got %d", s.inlineLimit))
	}

	opts = opts.withDefaults(s.paths.OutputRoot)
	mode := ModeFor(opts)

	entries, advisories, err := synthesizeEntries(bundles, s.runtime)
	if err != nil {
		return nil, err
	}

	inst, err := instrument(mode, bundles, entries, s.runtime)
	if err != nil {
		return nil, err
	}

	bindings := synthesizePageBindings(bundles)

	environment := s.env.Environment(s.publicURL, mode.hotUpdateURL())

	pipeline, gateAdvisories, err := assemblePipeline(PipelineConfig{
		AppDir:         s.paths.AppDir,
		SourceRoot:     s.paths.SourceRoot,
		TypeConfigPath: s.paths.TypeConfigPath,
		InlineLimit:    s.inlineLimit,
		StrictLint:     s.strictLint,
		Extra:          s.rules,
	})
	if err != nil {
		return nil, err
	}

	return &BuildPlan{
		devtool:              opts.SourceMaps,
		entry:                inst.entries,
		output:               s.output(opts),
		pageBindings:         bindings,
		pipeline:             pipeline,
		plugins:              append(inst.plugins, globalPlugins(environment)...),
		resolution:           s.resolution(),
		node:                 map[string]string{"dgram": "empty", "fs": "empty", "net": "empty", "tls": "empty"},
		performance:          Performance{Hints: false},
		strictExportPresence: true,
		advisories:           append(advisories, gateAdvisories...),
	}, nil
}

func (s *Synthesizer) output(opts Options) Output {
	return Output{
		Path:          opts.OutputPath,
		Pathinfo:      true,
		Filename:      "js/[name].js",
		ChunkFilename: "js/[name].[chunkhash:8].chunk.js",
		PublicPath:    s.publicPath,
	}
}

func (s *Synthesizer) resolution() Resolution {
	modules := append([]string{"node_modules"}, s.paths.NodeModuleRoots...)
	return Resolution{
		Modules:     modules,
		Extensions:  append([]string(nil), DefaultExtensions...),
		Alias:       map[string]string{"react-native": "react-native-web"},
		ModuleScope: s.paths.SourceRoot,
	}
}

func globalPlugins(e env.Environment) []Plugin {
	return []Plugin{
		{Name: PluginInterpolateHTML, Options: e.Clone().Raw},
		{Name: PluginNamedModules},
		{Name: PluginDefine, Options: e.Clone().Stringified},
		{Name: PluginHotModuleReplacement},
		{Name: PluginCaseSensitivePaths},
		{Name: PluginIgnore, Options: map[string]string{
			"resourceRegExp": `^\./locale$`,
			"contextRegExp":  `moment$`,
		}},
	}
}
