// Package manifest loads and validates bundle manifests.
package manifest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
	schemareflector "github.com/swaggest/jsonschema-go"
	"gopkg.in/yaml.v3"

	planerrors "github.com/conneroisu/extplan/internal/errors"
	"github.com/conneroisu/extplan/internal/plan"
)

// Manifest is the declarative list of extension bundles.
type Manifest struct {
	Bundles []Entry `json:"bundles" yaml:"bundles" required:"true"`

	_ struct{} `additionalProperties:"false"`
}

// Entry declares one bundle.
type Entry struct {
	BundleName string       `json:"bundleName" yaml:"bundleName" required:"true" minLength:"1" pattern:"^[A-Za-z0-9][A-Za-z0-9._-]*$"`
	IndexJS    OptionalPath `json:"indexJs,omitempty" yaml:"indexJs,omitempty" description:"Script entry point, relative to the source root"`
	IndexHTML  OptionalPath `json:"indexHtml,omitempty" yaml:"indexHtml,omitempty" description:"HTML template, relative to the source root"`

	_ struct{} `additionalProperties:"false"`
}

// OptionalPath is a path that may be null in the manifest. The zero value
// means absent.
type OptionalPath string

func (OptionalPath) PrepareJSONSchema(schema *schemareflector.Schema) error {
	schema.Type = nil
	schema.AddType(schemareflector.String)
	schema.AddType(schemareflector.Null)
	return nil
}

// ReflectSchema returns the JSON schema of the manifest format.
func ReflectSchema() ([]byte, error) {
	reflector := schemareflector.Reflector{}

	s, err := reflector.Reflect(Manifest{})
	if err != nil {
		return nil, err
	}

	return json.MarshalIndent(s, "", "  ")
}

var (
	schemaOnce sync.Once
	rootSchema *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		raw, err := ReflectSchema()
		if err != nil {
			schemaErr = err
			return
		}
		js, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
		if err != nil {
			schemaErr = err
			return
		}
		compiler := jsonschema.NewCompiler()
		compiler.DefaultDraft(jsonschema.Draft2020)
		if err := compiler.AddResource("manifest.json", js); err != nil {
			schemaErr = err
			return
		}
		rootSchema, schemaErr = compiler.Compile("manifest.json")
	})
	return rootSchema, schemaErr
}

// Validate checks YAML or JSON manifest data against the schema.
func Validate(data []byte) error {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return planerrors.WrapValidation(err, planerrors.ErrCodeManifestInvalid, "manifest is not valid YAML or JSON")
	}

	// Round-trip through JSON so the validator sees JSON value types.
	encoded, err := json.Marshal(doc)
	if err != nil {
		return planerrors.WrapValidation(err, planerrors.ErrCodeManifestInvalid, "manifest cannot be represented as JSON")
	}
	instance, err := jsonschema.UnmarshalJSON(bytes.NewReader(encoded))
	if err != nil {
		return planerrors.WrapValidation(err, planerrors.ErrCodeManifestInvalid, "manifest cannot be represented as JSON")
	}

	sch, err := compiledSchema()
	if err != nil {
		return planerrors.NewInternalError(planerrors.ErrCodeInternalError, "compiling manifest schema", err)
	}
	if err := sch.Validate(instance); err != nil {
		return planerrors.WrapValidation(err, planerrors.ErrCodeManifestInvalid, "manifest does not match schema")
	}
	return nil
}

// Parse validates and decodes manifest data.
func Parse(data []byte) (*Manifest, error) {
	if err := Validate(data); err != nil {
		return nil, err
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, planerrors.WrapValidation(err, planerrors.ErrCodeManifestInvalid, "failed to decode manifest")
	}
	return &m, nil
}

// ParseFile reads and parses the manifest at filename.
func ParseFile(filename string) (*Manifest, error) {
	bs, err := os.ReadFile(filename)
	if err != nil {
		return nil, planerrors.WrapIO(err, planerrors.ErrCodeFileNotFound, fmt.Sprintf("failed to read manifest %s", filename))
	}

	m, err := Parse(bs)
	if err != nil {
		if pe, ok := err.(*planerrors.PlanError); ok {
			return nil, pe.WithContext("file", filename)
		}
		return nil, err
	}
	return m, nil
}

// PlanBundles converts the manifest into synthesizer input. Relative paths are
// resolved against sourceRoot.
func (m *Manifest) PlanBundles(sourceRoot string) []plan.Bundle {
	bundles := make([]plan.Bundle, len(m.Bundles))
	for i, e := range m.Bundles {
		bundles[i] = plan.Bundle{
			Name:      e.BundleName,
			IndexJS:   resolve(sourceRoot, string(e.IndexJS)),
			IndexHTML: resolve(sourceRoot, string(e.IndexHTML)),
		}
	}
	return bundles
}

// Names returns the declared bundle names in order.
func (m *Manifest) Names() []string {
	names := make([]string, len(m.Bundles))
	for i, e := range m.Bundles {
		names[i] = e.BundleName
	}
	return names
}

func resolve(root, p string) string {
	if p == "" || root == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(root, filepath.FromSlash(p))
}
