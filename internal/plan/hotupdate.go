package plan

import (
	planerrors "github.com/conneroisu/extplan/internal/errors"
)

// BackgroundEntryName is the entry added when hot update is enabled.
const BackgroundEntryName = "hot-update-background-script"

// instrumentation is what the hot-update instrumenter contributes.
type instrumentation struct {
	entries EntryMap
	plugins []Plugin
}

// instrument applies hot-update instrumentation for the given mode. In
// disabled mode the entries are returned unchanged.
func instrument(mode HotUpdateMode, bundles []Bundle, entries EntryMap, runtime RuntimeModules) (instrumentation, error) {
	enabled, ok := mode.(HotUpdateEnabled)
	if !ok {
		return instrumentation{entries: entries}, nil
	}

	for _, b := range bundles {
		if b.Name == BackgroundEntryName {
			return instrumentation{}, planerrors.ErrReservedBundleName(b.Name)
		}
	}

	out := make(EntryMap, 0, len(entries)+1)
	for _, e := range entries {
		modules := make([]string, 0, len(e.Modules)+1)
		modules = append(modules, runtime.HotUpdateClient)
		modules = append(modules, e.Modules...)
		out = append(out, Entry{Name: e.Name, Modules: modules})
	}
	out = append(out, Entry{
		Name:    BackgroundEntryName,
		Modules: []string{runtime.HotUpdateBackground},
	})

	return instrumentation{
		entries: out,
		plugins: []Plugin{{
			Name:    PluginHotUpdateURL,
			Options: map[string]string{"hotUpdateUrl": enabled.URL},
		}},
	}, nil
}
