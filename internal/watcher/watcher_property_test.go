//go:build property

package watcher

import (
	"sort"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestCoalesceProperties validates batching properties of the debouncer
func TestCoalesceProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.Rng.Seed(9876)
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	// Property: a batch holds each changed path exactly once, in order
	properties.Property("batches are unique and sorted", prop.ForAll(
		func(paths []string) bool {
			pending := make([]ChangeEvent, len(paths))
			unique := make(map[string]bool)
			for i, p := range paths {
				pending[i] = ChangeEvent{Path: p}
				unique[p] = true
			}

			batch := Paths(coalesce(pending))
			return len(batch) == len(unique) && sort.StringsAreSorted(batch)
		},
		gen.SliceOf(gen.OneConstOf("src/a.js", "src/b.css", "src/c.ts", "bundles.yml")),
	))

	// Property: the last event for a path wins
	properties.Property("last event wins", prop.ForAll(
		func(types []int) bool {
			if len(types) == 0 {
				return true
			}
			pending := make([]ChangeEvent, len(types))
			for i, typ := range types {
				pending[i] = ChangeEvent{Path: "src/popup.js", Type: EventType(typ)}
			}
			batch := coalesce(pending)
			return len(batch) == 1 && batch[0].Type == EventType(types[len(types)-1])
		},
		gen.SliceOf(gen.IntRange(0, 3)),
	))

	properties.TestingRun(t)
}
