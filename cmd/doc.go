// Package cmd provides the command-line interface for extplan.
//
// This package implements all CLI commands using the Cobra framework. Every
// command loads the app the same way: configuration, resolved paths, the
// environment provider and the bundle manifest, then synthesizes a plan.
//
// # Available Commands
//
//   - plan: print the synthesized build plan
//   - stages: list pipeline stages or route files to their owning stage
//   - pages: render the extension's HTML pages
//   - build: bundle with esbuild and render pages
//   - watch: rebuild on change and push hot updates over a websocket
//   - validate: check the manifest and the files it references
//   - config: show or validate configuration
//   - schema: print the manifest JSON schema
//   - version: print build information
//
// # Command Examples
//
//	// Plan document as YAML
//	extplan plan -o yaml
//
//	// Which stage compiles a file
//	extplan stages src/popup/index.tsx
//
//	// Build into ./dist with inline source maps
//	extplan build --out-dir dist --source-maps inline-source-map
//
//	// Watch mode with a custom reload endpoint
//	extplan watch --hot-update-url ws://localhost:9100/reload
//
// # Configuration Integration
//
// Commands respect configuration from multiple sources in order of precedence:
//
//  1. Command-line flags (highest priority)
//  2. Environment variables (EXTPLAN_*)
//  3. Configuration file (.extplan.yml, --config or EXTPLAN_CONFIG_FILE)
//  4. Default values (lowest priority)
//
// Environment Variables:
//
//	EXTPLAN_CONFIG_FILE: Path to custom configuration file
//	EXTPLAN_APP_DIR: Extension app directory
//	EXTPLAN_BUILD_HOT_UPDATE_URL: Enable hot-update instrumentation
//	And the rest of the keys following the EXTPLAN_<SECTION>_<OPTION> pattern
//
// # Error Handling
//
// Configuration and manifest problems are reported as structured errors
// carrying a code such as ERR_DUPLICATE_BUNDLE. Bundler diagnostics are
// printed as a findings table before the command fails. The exit status is
// 1 on any error, and watch stops cleanly on interrupt.
package cmd
