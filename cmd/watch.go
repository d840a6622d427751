package cmd

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"sync"
	"time"

	"github.com/akedrou/textdiff"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/conneroisu/extplan/internal/env"
	"github.com/conneroisu/extplan/internal/hotupdate"
	"github.com/conneroisu/extplan/internal/output"
	"github.com/conneroisu/extplan/internal/plan"
	"github.com/conneroisu/extplan/internal/watcher"
)

// DefaultHotUpdateURL is used by watch when no hot-update URL is configured.
const DefaultHotUpdateURL = "ws://localhost:9000"

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Rebuild on change and push hot updates to the extension",
	Long: `Synthesize the plan with hot-update instrumentation, serve the reload
websocket at the hot-update URL and watch the source root.

Source changes rebuild the bundles and notify connected extension pages:
stylesheet-only batches are sent as "css" updates, everything else as
"reload". Changes to the manifest, the config file or .env files
re-synthesize the plan and log a diff of the plan document.

Examples:
  extplan watch
  extplan watch --hot-update-url ws://localhost:9100/reload
  extplan watch --no-build         # Only notify, do not bundle`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

var (
	watchDebounce time.Duration
	watchNoBuild  bool
	watchOrigins  []string
)

func init() {
	rootCmd.AddCommand(watchCmd)
	addBuildFlags(watchCmd)

	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", 300*time.Millisecond, "wait this long for changes to settle")
	watchCmd.Flags().BoolVar(&watchNoBuild, "no-build", false, "do not bundle on change, only notify clients")
	watchCmd.Flags().StringSliceVar(&watchOrigins, "origin", nil, "allowed websocket origin patterns (default any)")
}

// watchSession holds the current plan and rebuilds it on change.
type watchSession struct {
	mu    sync.Mutex
	pr    *project
	bp    *plan.BuildPlan
	doc   string
	hub   *hotupdate.Hub
	build bool
	// config lists the files whose change re-synthesizes the plan.
	config []string
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	s := &watchSession{
		hub:   hotupdate.NewHub(logger, watchOrigins...),
		build: !watchNoBuild,
	}
	if err := s.load(ctx); err != nil {
		return err
	}
	if s.build {
		s.rebuild(ctx)
	}

	fw, err := watcher.NewFileWatcher(watchDebounce, logger)
	if err != nil {
		return err
	}
	fw.AddFilter(watcher.NotUnder(s.bp.Output().Path))
	fw.AddFilter(watcher.NoNodeModulesFilter)
	fw.AddFilter(watcher.NoGitFilter)
	fw.AddFilter(watcher.NoEditorTempFilter)
	fw.AddFilter(watcher.AnyOf(watcher.Under(s.pr.paths.SourceRoot), watcher.NameFilter(s.config...)))

	if err := fw.AddRecursive(s.pr.paths.SourceRoot); err != nil {
		return err
	}
	for _, dir := range configDirs(s.config, s.pr.paths.SourceRoot) {
		if err := fw.AddPath(dir); err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	fw.AddHandler(func(events []watcher.ChangeEvent) error {
		return s.handle(gctx, watcher.Paths(events))
	})

	hotURL := s.pr.cfg.Build.HotUpdateURL
	g.Go(func() error {
		return s.hub.ListenAndServe(gctx, hotURL)
	})
	g.Go(func() error {
		if err := fw.Start(gctx); err != nil {
			return err
		}
		logger.Info(gctx, "watching for changes", "paths", len(fw.WatchList()), "hot_update_url", hotURL)
		<-gctx.Done()
		return fw.Stop()
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// load reads the project and synthesizes the plan with hot update enabled.
func (s *watchSession) load(ctx context.Context) error {
	pr, err := loadProject(ctx)
	if err != nil {
		return err
	}
	if pr.cfg.Build.HotUpdateURL == "" {
		pr.cfg.Build.HotUpdateURL = DefaultHotUpdateURL
	}

	bp, err := pr.synthesize(ctx)
	if err != nil {
		return err
	}
	doc, err := planDocument(bp)
	if err != nil {
		return err
	}

	if s.doc != "" {
		if diff := textdiff.Unified("plan", "plan", s.doc, doc); diff != "" {
			logger.Info(ctx, "plan changed", "diff", diff)
		} else {
			logger.Info(ctx, "plan unchanged")
		}
	}

	s.pr, s.bp, s.doc = pr, bp, doc
	s.config = configFiles(pr)
	return nil
}

// handle processes one debounced batch of changed paths.
func (s *watchSession) handle(ctx context.Context, paths []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg := hotupdate.Classify(s.bp.Pipeline(), paths)
	if s.touchesConfig(paths) {
		if used := viper.ConfigFileUsed(); used != "" {
			if err := viper.ReadInConfig(); err != nil {
				return err
			}
		}
		if err := s.load(ctx); err != nil {
			// Keep serving the previous plan until the manifest is fixed.
			return err
		}
		msg = hotupdate.Message{Type: hotupdate.MessageReload, Files: paths}
	}

	if s.build && !s.rebuild(ctx) {
		return nil
	}

	msg.Timestamp = time.Now()
	logger.Info(ctx, "sending hot update", "type", msg.Type, "files", len(msg.Files), "clients", s.hub.Clients())
	return s.hub.Broadcast(msg)
}

// rebuild bundles the current plan and reports whether it succeeded.
func (s *watchSession) rebuild(ctx context.Context) bool {
	result, emitted, err := buildPlan(ctx, s.bp)
	if result != nil {
		for _, f := range result.Findings.All() {
			logger.Warn(ctx, &f, "build finding", "stage", f.Stage)
		}
	}
	if err != nil {
		logger.Error(ctx, err, "build failed")
		return false
	}
	logger.Info(ctx, "build finished", "outputs", len(result.Outputs), "pages", len(emitted))
	return true
}

func (s *watchSession) touchesConfig(paths []string) bool {
	isConfig := watcher.NameFilter(s.config...)
	for _, p := range paths {
		if isConfig(p) {
			return true
		}
	}
	return false
}

// configFiles lists the manifest, the config file and the dotenv files of
// pr as absolute paths.
func configFiles(pr *project) []string {
	files := []string{pr.manifestPath}
	if used := viper.ConfigFileUsed(); used != "" {
		if abs, err := filepath.Abs(used); err == nil {
			files = append(files, abs)
		}
	}

	names := pr.cfg.App.EnvFiles
	if len(names) == 0 {
		names = env.DefaultFiles(pr.cfg.App.Mode)
	}
	for _, name := range names {
		if !filepath.IsAbs(name) {
			name = filepath.Join(pr.paths.AppDir, name)
		}
		files = append(files, name)
	}
	return files
}

// configDirs returns the distinct directories of files that the recursive
// source watch does not already cover.
func configDirs(files []string, sourceRoot string) []string {
	inSource := watcher.Under(sourceRoot)
	seen := make(map[string]bool)
	var dirs []string
	for _, f := range files {
		dir := filepath.Dir(f)
		if seen[dir] || inSource(dir) {
			continue
		}
		seen[dir] = true
		dirs = append(dirs, dir)
	}
	return dirs
}

func planDocument(bp *plan.BuildPlan) (string, error) {
	var buf bytes.Buffer
	if err := output.NewFormatter(output.FormatYAML, &buf).PrintPlan(bp); err != nil {
		return "", err
	}
	return buf.String(), nil
}
