// Package engine runs a build plan through esbuild.
//
// esbuild has no notion of loader chains, so each owning pipeline stage is
// reduced to the esbuild loader for its extensions. Plan features esbuild
// cannot express are reported as advisories instead of failing the build.
package engine

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/evanw/esbuild/pkg/api"

	planerrors "github.com/conneroisu/extplan/internal/errors"
	"github.com/conneroisu/extplan/internal/logging"
	"github.com/conneroisu/extplan/internal/plan"
)

const (
	entryNamespace   = "extplan-entry"
	runtimeNamespace = "extplan-runtime"
	emptyNamespace   = "extplan-empty"
	ignoredNamespace = "extplan-ignored"

	// AdvisoryUnsupported marks plan features the engine skips.
	AdvisoryUnsupported = "unsupported-by-engine"
)

// extensionLoaders maps extensions of transform and native stages to the
// esbuild loader that performs the same job.
var extensionLoaders = map[string]api.Loader{
	"js":   api.LoaderJSX,
	"jsx":  api.LoaderJSX,
	"mjs":  api.LoaderJS,
	"cjs":  api.LoaderJS,
	"ts":   api.LoaderTS,
	"tsx":  api.LoaderTSX,
	"css":  api.LoaderCSS,
	"json": api.LoaderJSON,
	"html": api.LoaderText,
	"txt":  api.LoaderText,
}

// Options translates bp into esbuild build options. The advisories name plan
// features that have no esbuild counterpart.
func Options(bp *plan.BuildPlan) (api.BuildOptions, []plan.Advisory) {
	out := bp.Output()
	res := bp.Resolution()
	pipeline := bp.Pipeline()

	loaders, advisories := stageLoaders(pipeline)
	advisories = append(advisories, pluginAdvisories(bp)...)

	var define map[string]string
	if p, ok := bp.Plugin(plan.PluginDefine); ok {
		define = p.Options
	}

	opts := api.BuildOptions{
		EntryPointsAdvanced: entryPoints(bp.Entry()),
		Bundle:              true,
		Write:               true,
		Metafile:            true,
		Platform:            api.PlatformBrowser,
		Format:              api.FormatIIFE,
		Target:              api.ES2017,
		LogLevel:            api.LogLevelSilent,
		Outdir:              out.Path,
		EntryNames:          "js/[name]",
		ChunkNames:          "js/[name].[hash].chunk",
		AssetNames:          "media/[name].[hash]",
		PublicPath:          out.PublicPath,
		Loader:              loaders,
		Define:              define,
		Sourcemap:           sourcemap(bp.Devtool()),
		ResolveExtensions:   res.Extensions,
		NodePaths:           nodePaths(res.Modules),
		Alias:               res.Alias,
		Plugins: []api.Plugin{
			entryPlugin(bp.Entry(), res.ModuleScope),
			runtimePlugin(),
			scopePlugin(res),
			emptyModulesPlugin(bp.Node()),
			fallbackPlugin(pipeline),
		},
	}
	if p, ok := bp.Plugin(plan.PluginIgnore); ok {
		opts.Plugins = append(opts.Plugins, ignorePlugin(p.Options["resourceRegExp"], p.Options["contextRegExp"]))
	}

	return opts, advisories
}

func entryPoints(entries plan.EntryMap) []api.EntryPoint {
	out := make([]api.EntryPoint, 0, entries.Len())
	for _, e := range entries {
		out = append(out, api.EntryPoint{
			InputPath:  entryNamespace + ":" + e.Name,
			OutputPath: e.Name,
		})
	}
	return out
}

// entrySource is the virtual module that imports an entry's modules in
// order.
func entrySource(modules []string) string {
	var b strings.Builder
	for _, m := range modules {
		b.WriteString("import ")
		b.WriteString(strconv.Quote(filepath.ToSlash(m)))
		b.WriteString(";\n")
	}
	return b.String()
}

func entryPlugin(entries plan.EntryMap, resolveDir string) api.Plugin {
	sources := make(map[string]string, entries.Len())
	for _, e := range entries {
		sources[e.Name] = entrySource(e.Modules)
	}

	return api.Plugin{
		Name: "extplan-entries",
		Setup: func(build api.PluginBuild) {
			build.OnResolve(api.OnResolveOptions{Filter: "^" + entryNamespace + ":"},
				func(args api.OnResolveArgs) (api.OnResolveResult, error) {
					return api.OnResolveResult{
						Path:      strings.TrimPrefix(args.Path, entryNamespace+":"),
						Namespace: entryNamespace,
					}, nil
				})

			build.OnLoad(api.OnLoadOptions{Filter: `.*`, Namespace: entryNamespace},
				func(args api.OnLoadArgs) (api.OnLoadResult, error) {
					contents, ok := sources[args.Path]
					if !ok {
						return api.OnLoadResult{}, fmt.Errorf("unknown entry %q", args.Path)
					}
					return api.OnLoadResult{
						Contents:   &contents,
						Loader:     api.LoaderJS,
						ResolveDir: resolveDir,
					}, nil
				})
		},
	}
}

//go:embed runtime
var runtimeFS embed.FS

func runtimeFile(name string) string {
	return path.Join("runtime", name+".js")
}

// runtimePlugin serves the embedded runtime modules. Specifiers under the
// runtime package that have no embedded file resolve normally.
func runtimePlugin() api.Plugin {
	prefix := plan.RuntimePackage + "/"
	return api.Plugin{
		Name: "extplan-runtime",
		Setup: func(build api.PluginBuild) {
			build.OnResolve(api.OnResolveOptions{Filter: "^" + regexp.QuoteMeta(prefix)},
				func(args api.OnResolveArgs) (api.OnResolveResult, error) {
					name := strings.TrimPrefix(args.Path, prefix)
					if _, err := fs.Stat(runtimeFS, runtimeFile(name)); err != nil {
						return api.OnResolveResult{}, nil
					}
					return api.OnResolveResult{Path: name, Namespace: runtimeNamespace}, nil
				})

			build.OnLoad(api.OnLoadOptions{Filter: `.*`, Namespace: runtimeNamespace},
				func(args api.OnLoadArgs) (api.OnLoadResult, error) {
					data, err := runtimeFS.ReadFile(runtimeFile(args.Path))
					if err != nil {
						return api.OnLoadResult{}, fmt.Errorf("unknown runtime module %q", args.Path)
					}
					contents := string(data)
					return api.OnLoadResult{Contents: &contents, Loader: api.LoaderJS}, nil
				})
		},
	}
}

// scopePlugin rejects relative and absolute imports that leave the source
// root.
func scopePlugin(res plan.Resolution) api.Plugin {
	return api.Plugin{
		Name: "extplan-module-scope",
		Setup: func(build api.PluginBuild) {
			build.OnResolve(api.OnResolveOptions{Filter: `^(\.\.?/|/)`, Namespace: "file"},
				func(args api.OnResolveArgs) (api.OnResolveResult, error) {
					if args.Importer == "" {
						return api.OnResolveResult{}, nil
					}
					if err := res.CheckImport(args.Importer, args.Path); err != nil {
						return api.OnResolveResult{}, err
					}
					return api.OnResolveResult{}, nil
				})
		},
	}
}

// emptyModulesPlugin resolves the plan's node mocks to empty modules.
func emptyModulesPlugin(mocks map[string]string) api.Plugin {
	names := make([]string, 0, len(mocks))
	for name, mock := range mocks {
		if mock == "empty" {
			names = append(names, regexp.QuoteMeta(name))
		}
	}
	sort.Strings(names)
	filter := `^(` + strings.Join(names, "|") + `)$`

	return api.Plugin{
		Name: "extplan-node-mocks",
		Setup: func(build api.PluginBuild) {
			if len(names) == 0 {
				return
			}
			build.OnResolve(api.OnResolveOptions{Filter: filter},
				func(args api.OnResolveArgs) (api.OnResolveResult, error) {
					return api.OnResolveResult{Path: args.Path, Namespace: emptyNamespace}, nil
				})
			build.OnLoad(api.OnLoadOptions{Filter: `.*`, Namespace: emptyNamespace},
				func(args api.OnLoadArgs) (api.OnLoadResult, error) {
					contents := "module.exports = {};"
					return api.OnLoadResult{Contents: &contents, Loader: api.LoaderJS}, nil
				})
		},
	}
}

// ignorePlugin drops requests matching resource made from a directory
// matching context.
func ignorePlugin(resource, context string) api.Plugin {
	contextRe, err := regexp.Compile(context)
	return api.Plugin{
		Name: "extplan-ignore",
		Setup: func(build api.PluginBuild) {
			if resource == "" || err != nil {
				return
			}
			build.OnResolve(api.OnResolveOptions{Filter: resource},
				func(args api.OnResolveArgs) (api.OnResolveResult, error) {
					if !contextRe.MatchString(filepath.ToSlash(args.ResolveDir)) {
						return api.OnResolveResult{}, nil
					}
					return api.OnResolveResult{Path: args.Path, Namespace: ignoredNamespace}, nil
				})
			build.OnLoad(api.OnLoadOptions{Filter: `.*`, Namespace: ignoredNamespace},
				func(args api.OnLoadArgs) (api.OnLoadResult, error) {
					contents := ""
					return api.OnLoadResult{Contents: &contents, Loader: api.LoaderJS}, nil
				})
		},
	}
}

// fallbackPlugin emits files no other stage owns as plain assets.
func fallbackPlugin(pipeline plan.Pipeline) api.Plugin {
	return api.Plugin{
		Name: "extplan-fallback",
		Setup: func(build api.PluginBuild) {
			build.OnLoad(api.OnLoadOptions{Filter: `.*`, Namespace: "file"},
				func(args api.OnLoadArgs) (api.OnLoadResult, error) {
					if _, known := extensionLoaders[strings.TrimPrefix(filepath.Ext(args.Path), ".")]; known {
						return api.OnLoadResult{}, nil
					}
					stage, ok := pipeline.StageFor(args.Path)
					if !ok || stage.Kind != plan.KindFallback {
						return api.OnLoadResult{}, nil
					}
					data, err := os.ReadFile(args.Path)
					if err != nil {
						return api.OnLoadResult{}, err
					}
					contents := string(data)
					return api.OnLoadResult{Contents: &contents, Loader: api.LoaderFile}, nil
				})
		},
	}
}

func stageLoaders(pipeline plan.Pipeline) (map[string]api.Loader, []plan.Advisory) {
	loaders := make(map[string]api.Loader)
	var advisories []plan.Advisory

	for _, stage := range pipeline {
		switch {
		case stage.Kind.IsPre():
			if !stage.Skipped() {
				advisories = append(advisories, plan.Advisory{
					Code:    AdvisoryUnsupported,
					Subject: stage.Name,
					Message: "analysis stages are not run by the esbuild engine",
				})
			}
			continue
		case stage.Kind == plan.KindFallback || stage.Test == nil:
			continue
		case stage.Skipped():
			continue
		}

		for _, ext := range stage.Test.Extensions {
			loader, known := extensionLoaders[ext]
			switch stage.Kind {
			case plan.KindInlineAsset:
				loader, known = api.LoaderFile, true
				if limit := inlineLimit(stage); limit > 0 {
					advisories = append(advisories, plan.Advisory{
						Code:    AdvisoryUnsupported,
						Subject: stage.Name,
						Message: fmt.Sprintf("assets under %d bytes are emitted as files instead of being inlined", limit),
					})
				}
			case plan.KindTransform, plan.KindNative:
				if !known {
					loader, known = api.LoaderFile, true
				}
			}
			if known {
				loaders["."+ext] = loader
			}
		}
	}
	return loaders, dedupe(advisories)
}

func inlineLimit(stage plan.Stage) int {
	for _, l := range stage.Loaders {
		if v, ok := l.Options["limit"].(int); ok {
			return v
		}
	}
	return 0
}

func dedupe(advisories []plan.Advisory) []plan.Advisory {
	seen := make(map[plan.Advisory]bool, len(advisories))
	out := advisories[:0]
	for _, a := range advisories {
		if seen[a] {
			continue
		}
		seen[a] = true
		out = append(out, a)
	}
	return out
}

func pluginAdvisories(bp *plan.BuildPlan) []plan.Advisory {
	var out []plan.Advisory
	for _, p := range bp.Plugins() {
		switch p.Name {
		case plan.PluginHotUpdateURL, plan.PluginHotModuleReplacement:
			out = append(out, plan.Advisory{
				Code:    AdvisoryUnsupported,
				Subject: p.Name,
				Message: "module replacement is not performed; clients reload through the hot-update hub",
			})
		}
	}
	return out
}

func sourcemap(s plan.SourceMaps) api.SourceMap {
	switch {
	case !s.Enabled:
		return api.SourceMapNone
	case strings.Contains(s.Style, "inline"):
		return api.SourceMapInline
	case strings.HasPrefix(s.Style, "hidden"):
		return api.SourceMapExternal
	default:
		return api.SourceMapLinked
	}
}

func nodePaths(modules []string) []string {
	var out []string
	for _, m := range modules {
		if filepath.IsAbs(m) {
			out = append(out, m)
		}
	}
	return out
}

// Result is the outcome of a build.
type Result struct {
	Findings   *planerrors.FindingCollector
	Advisories []plan.Advisory
	// Outputs lists emitted files, sorted.
	Outputs []string
}

// Build runs bp through esbuild. Build errors are recorded as findings and
// also make Build return an error.
func Build(ctx context.Context, bp *plan.BuildPlan, logger logging.Logger) (*Result, error) {
	if logger == nil {
		logger = logging.Nop()
	}
	logger = logger.WithComponent("engine")

	opts, advisories := Options(bp)
	for _, a := range advisories {
		logger.Debug(ctx, a.Message, "subject", a.Subject)
	}

	op := logging.StartOperation(logger, "esbuild")

	bctx, cerr := api.Context(opts)
	if cerr != nil {
		err := planerrors.NewBuildError(planerrors.ErrCodeBuildFailed, "invalid esbuild options", contextError(cerr))
		op.EndWithError(ctx, err)
		return nil, err
	}
	defer bctx.Dispose()

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			bctx.Cancel()
		case <-done:
		}
	}()
	result := bctx.Rebuild()
	close(done)

	res := &Result{
		Findings:   collectFindings(bp.Pipeline(), result),
		Advisories: advisories,
		Outputs:    outputs(result.Metafile),
	}

	if err := ctx.Err(); err != nil {
		return res, err
	}
	if len(result.Errors) > 0 {
		err := planerrors.NewBuildError(planerrors.ErrCodeBuildFailed,
			fmt.Sprintf("esbuild reported %d errors", len(result.Errors)), nil)
		op.EndWithError(ctx, err)
		return res, err
	}

	op.End(ctx, "outputs", len(res.Outputs), "warnings", len(result.Warnings))
	return res, nil
}

func contextError(cerr *api.ContextError) error {
	texts := make([]string, len(cerr.Errors))
	for i, m := range cerr.Errors {
		texts[i] = m.Text
	}
	return errors.New(strings.Join(texts, "; "))
}

func collectFindings(pipeline plan.Pipeline, result api.BuildResult) *planerrors.FindingCollector {
	fc := planerrors.NewFindingCollector()
	add := func(msgs []api.Message, severity planerrors.Severity) {
		for _, m := range msgs {
			f := planerrors.Finding{
				Kind:     planerrors.FindingBuild,
				Message:  m.Text,
				Severity: severity,
			}
			if m.Location != nil {
				f.File = m.Location.File
				f.Line = m.Location.Line
				f.Column = m.Location.Column
				if stage, ok := pipeline.StageFor(m.Location.File); ok {
					f.Stage = stage.Name
				}
			}
			fc.Add(f)
		}
	}
	add(result.Errors, planerrors.SeverityError)
	add(result.Warnings, planerrors.SeverityWarning)
	return fc
}

func outputs(metafile string) []string {
	if metafile == "" {
		return nil
	}
	var meta struct {
		Outputs map[string]json.RawMessage `json:"outputs"`
	}
	if err := json.Unmarshal([]byte(metafile), &meta); err != nil {
		return nil
	}
	out := make([]string, 0, len(meta.Outputs))
	for path := range meta.Outputs {
		out = append(out, path)
	}
	sort.Strings(out)
	return out
}
