// Package internal contains the implementation packages of the extplan CLI.
//
// The build plan itself is synthesized by plan from typed inputs that the
// surrounding packages supply:
//
//   - paths resolves the app, source, node_modules and output directories
//   - env loads dotenv files and the process environment
//   - manifest reads and validates the bundle manifest
//   - config loads .extplan.yml and EXTPLAN_* overrides
//
// The rest consumes a finished plan: engine bundles it with esbuild, pages
// renders its HTML pages, output prints it, and watcher and hotupdate drive
// watch mode.
package internal
