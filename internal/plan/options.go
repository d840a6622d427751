package plan

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Bundle is one declared unit of the extension. Empty IndexJS or IndexHTML
// means the bundle contributes no entry point or no page respectively.
type Bundle struct {
	Name      string
	IndexJS   string
	IndexHTML string
}

// Options are the per-invocation build options. The zero value is valid:
// source maps off and hot update disabled.
type Options struct {
	OutputPath   string
	SourceMaps   SourceMaps
	HotUpdateURL string
}

// withDefaults returns a copy of o with unset fields filled in.
func (o Options) withDefaults(outputRoot string) Options {
	if o.OutputPath == "" {
		o.OutputPath = outputRoot
	}
	o.HotUpdateURL = strings.TrimSpace(o.HotUpdateURL)
	return o
}

// SourceMaps is the bool-or-string devtool setting. A disabled value encodes
// as false, an enabled value without a style as true, and a styled value as
// the style string.
type SourceMaps struct {
	Enabled bool
	Style   string
}

// SourceMapsOff is the default.
var SourceMapsOff = SourceMaps{}

// SourceMapStyle returns an enabled setting with the given style.
func SourceMapStyle(style string) SourceMaps {
	return SourceMaps{Enabled: true, Style: style}
}

// ParseSourceMaps accepts nil, a bool, or a string. The strings "true" and
// "false" are treated as booleans; any other non-empty string is a style.
func ParseSourceMaps(v interface{}) (SourceMaps, error) {
	switch t := v.(type) {
	case nil:
		return SourceMapsOff, nil
	case SourceMaps:
		return t, nil
	case bool:
		return SourceMaps{Enabled: t}, nil
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return SourceMapsOff, nil
		}
		if b, err := strconv.ParseBool(s); err == nil {
			return SourceMaps{Enabled: b}, nil
		}
		return SourceMapStyle(s), nil
	default:
		return SourceMapsOff, fmt.Errorf("source maps must be a bool or a string, got %T", v)
	}
}

// Value returns false, true, or the style string.
func (s SourceMaps) Value() interface{} {
	if !s.Enabled {
		return false
	}
	if s.Style != "" {
		return s.Style
	}
	return true
}

// String implements fmt.Stringer.
func (s SourceMaps) String() string {
	return fmt.Sprint(s.Value())
}

// MarshalJSON implements json.Marshaler.
func (s SourceMaps) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Value())
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *SourceMaps) UnmarshalJSON(data []byte) error {
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	parsed, err := ParseSourceMaps(v)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (s SourceMaps) MarshalYAML() (interface{}, error) {
	return s.Value(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (s *SourceMaps) UnmarshalYAML(node *yaml.Node) error {
	var v interface{}
	if err := node.Decode(&v); err != nil {
		return err
	}
	parsed, err := ParseSourceMaps(v)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// HotUpdateMode is decided once per synthesis from Options.HotUpdateURL.
type HotUpdateMode interface {
	hotUpdateURL() string
}

// HotUpdateDisabled is the initial mode.
type HotUpdateDisabled struct{}

// HotUpdateEnabled carries the URL reload requests are routed to.
type HotUpdateEnabled struct {
	URL string
}

func (HotUpdateDisabled) hotUpdateURL() string  { return "" }
func (m HotUpdateEnabled) hotUpdateURL() string { return m.URL }

// ModeFor decides the hot-update mode for a set of options.
func ModeFor(o Options) HotUpdateMode {
	if u := strings.TrimSpace(o.HotUpdateURL); u != "" {
		return HotUpdateEnabled{URL: u}
	}
	return HotUpdateDisabled{}
}

// RuntimeModules names the modules the synthesizer injects into entries.
type RuntimeModules struct {
	Polyfills           string
	HotUpdateClient     string
	HotUpdateBackground string
}

// RuntimePackage is the import prefix of the runtime modules embedded in the
// extplan binary. The engine serves them without node_modules.
const RuntimePackage = "@extplan/runtime"

const (
	DefaultPolyfills           = RuntimePackage + "/polyfills"
	DefaultHotUpdateClient     = RuntimePackage + "/hot-update/client"
	DefaultHotUpdateBackground = RuntimePackage + "/hot-update/background-script"
)

// DefaultRuntime returns the runtime module set shipped with extplan.
func DefaultRuntime() RuntimeModules {
	return RuntimeModules{
		Polyfills:           DefaultPolyfills,
		HotUpdateClient:     DefaultHotUpdateClient,
		HotUpdateBackground: DefaultHotUpdateBackground,
	}
}
