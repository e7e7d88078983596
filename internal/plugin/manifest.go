package plugin

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/invopop/jsonschema"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Manifest describes a plugin's identity and bundled items.
// A Manifest is immutable once loaded; use Clone to hand out copies.
type Manifest struct {
	Name        string   `json:"name" validate:"required" jsonschema:"minLength=1"`
	Description string   `json:"description"`
	Icon        string   `json:"icon"`
	Authors     []string `json:"authors" validate:"min=1,dive,required" jsonschema:"minItems=1"`
	Items       []Item   `json:"items" validate:"dive"`
}

// Item is an inventory item bundled with a plugin.
type Item struct {
	Name     string `json:"name" validate:"required" jsonschema:"minLength=1"`
	Quantity uint8  `json:"quantity" jsonschema:"minimum=0,maximum=255"`
	Icon     string `json:"icon"`
}

// Format is a manifest file format.
type Format int

// Manifest formats.
const (
	FormatTOML Format = iota
	FormatYAML
)

// String returns a string representation of the format.
func (f Format) String() string {
	switch f {
	case FormatTOML:
		return "toml"
	case FormatYAML:
		return "yaml"
	default:
		return "unknown"
	}
}

// manifestFiles are the recognized manifest file names.
var manifestFiles = []struct {
	name   string
	format Format
}{
	{"plugin.toml", FormatTOML},
	{"plugin.yaml", FormatYAML},
	{"plugin.yml", FormatYAML},
}

// manifestFile mirrors the on-disk schema. Pointers distinguish a missing
// field from a zero value.
type manifestFile struct {
	Name        *string     `toml:"name" yaml:"name"`
	Description *string     `toml:"description" yaml:"description"`
	Icon        *string     `toml:"icon" yaml:"icon"`
	Authors     *[]string   `toml:"authors" yaml:"authors"`
	Items       *[]itemFile `toml:"items" yaml:"items"`
}

type itemFile struct {
	Name     *string `toml:"name" yaml:"name"`
	Quantity *uint8  `toml:"quantity" yaml:"quantity"`
	Icon     *string `toml:"icon" yaml:"icon"`
}

// validate is shared; building a validator is expensive.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// LoadManifest loads and validates the manifest in a plugin directory.
// Exactly one of plugin.toml, plugin.yaml or plugin.yml must be present.
// On any error no Manifest is returned.
func LoadManifest(dir string) (*Manifest, error) {
	path, format, err := findManifest(dir)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ManifestError{Path: path, Err: err}
	}

	m, err := ParseManifest(data, format)
	if err != nil {
		var merr *ManifestError
		if errors.As(err, &merr) {
			merr.Path = path
			return nil, merr
		}
		return nil, &ManifestError{Path: path, Err: err}
	}
	return m, nil
}

// findManifest locates the single manifest file in dir.
func findManifest(dir string) (string, Format, error) {
	var found []string
	var format Format
	for _, mf := range manifestFiles {
		path := filepath.Join(dir, mf.name)
		info, err := os.Stat(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return "", 0, &ManifestError{Path: path, Err: err}
		}
		if info.IsDir() {
			continue
		}
		found = append(found, path)
		format = mf.format
	}

	switch len(found) {
	case 0:
		return "", 0, &ManifestError{Path: dir, Err: ErrManifestNotFound}
	case 1:
		return found[0], format, nil
	default:
		return "", 0, &ManifestError{
			Path: dir,
			Err:  fmt.Errorf("%w: %s", ErrAmbiguousManifest, strings.Join(baseNames(found), ", ")),
		}
	}
}

func baseNames(paths []string) []string {
	names := make([]string, len(paths))
	for i, p := range paths {
		names[i] = filepath.Base(p)
	}
	return names
}

// ParseManifest decodes and validates manifest data in the given format.
// Unknown fields are ignored.
func ParseManifest(data []byte, format Format) (*Manifest, error) {
	var doc map[string]any
	if err := decode(data, format, &doc); err != nil {
		return nil, err
	}
	if err := checkFieldTypes(doc); err != nil {
		return nil, err
	}

	var raw manifestFile
	if err := decode(data, format, &raw); err != nil {
		return nil, err
	}

	m, err := raw.toManifest()
	if err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

func decode(data []byte, format Format, v any) error {
	switch format {
	case FormatTOML:
		if err := toml.NewDecoder(bytes.NewReader(data)).Decode(v); err != nil {
			return &ManifestError{Err: err}
		}
	case FormatYAML:
		if err := yaml.Unmarshal(data, v); err != nil {
			return &ManifestError{Err: err}
		}
	default:
		return &ManifestError{Err: fmt.Errorf("unsupported manifest format %s", format)}
	}
	return nil
}

// checkFieldTypes reports the first field whose value has the wrong type.
// YAML turns any scalar into a string, so this runs on the generic document
// before the typed decode. Absent and null fields are left to toManifest.
func checkFieldTypes(doc map[string]any) error {
	for _, key := range []string{"name", "description", "icon"} {
		if err := expectString(key, doc[key], true); err != nil {
			return err
		}
	}

	if v := doc["authors"]; v != nil {
		authors, ok := v.([]any)
		if !ok {
			return wrongType("authors", "list of strings", v)
		}
		for i, a := range authors {
			if err := expectString(fmt.Sprintf("authors[%d]", i), a, false); err != nil {
				return err
			}
		}
	}

	if v := doc["items"]; v != nil {
		items, ok := v.([]any)
		if !ok {
			return wrongType("items", "list of tables", v)
		}
		for i, it := range items {
			field := fmt.Sprintf("items[%d]", i)
			item, ok := it.(map[string]any)
			if !ok {
				return wrongType(field, "table", it)
			}
			if err := expectString(field+".name", item["name"], true); err != nil {
				return err
			}
			if err := expectString(field+".icon", item["icon"], true); err != nil {
				return err
			}
			switch q := item["quantity"].(type) {
			case nil, int, int64, uint64:
			default:
				return wrongType(field+".quantity", "integer", q)
			}
		}
	}
	return nil
}

func expectString(field string, v any, nullable bool) error {
	if v == nil && nullable {
		return nil
	}
	if _, ok := v.(string); !ok {
		return wrongType(field, "string", v)
	}
	return nil
}

func wrongType(field, want string, got any) error {
	return &ManifestError{Field: field, Err: fmt.Errorf("%w: want %s, got %s", ErrFieldType, want, typeName(got))}
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case int, int64, uint64:
		return "integer"
	case float64:
		return "float"
	case []any:
		return "list"
	case map[string]any:
		return "table"
	default:
		return fmt.Sprintf("%T", v)
	}
}

// toManifest checks that every required field is present.
func (f *manifestFile) toManifest() (*Manifest, error) {
	missing := func(field string) error {
		return &ManifestError{Field: field, Err: ErrMissingField}
	}

	switch {
	case f.Name == nil:
		return nil, missing("name")
	case f.Description == nil:
		return nil, missing("description")
	case f.Icon == nil:
		return nil, missing("icon")
	case f.Authors == nil:
		return nil, missing("authors")
	case f.Items == nil:
		return nil, missing("items")
	}

	m := &Manifest{
		Name:        *f.Name,
		Description: *f.Description,
		Icon:        *f.Icon,
		Authors:     append([]string(nil), (*f.Authors)...),
		Items:       make([]Item, 0, len(*f.Items)),
	}

	for i, it := range *f.Items {
		switch {
		case it.Name == nil:
			return nil, missing(fmt.Sprintf("items[%d].name", i))
		case it.Quantity == nil:
			return nil, missing(fmt.Sprintf("items[%d].quantity", i))
		case it.Icon == nil:
			return nil, missing(fmt.Sprintf("items[%d].icon", i))
		}
		m.Items = append(m.Items, Item{Name: *it.Name, Quantity: *it.Quantity, Icon: *it.Icon})
	}

	return m, nil
}

// Validate checks the manifest against the schema constraints: a non-empty
// name, at least one non-empty author, and named items.
func (m *Manifest) Validate() error {
	err := validate.Struct(m)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		field := strings.TrimPrefix(fe.Namespace(), "Manifest.")
		return &ManifestError{Field: field, Err: fmt.Errorf("failed %q constraint", fe.Tag())}
	}
	return &ManifestError{Err: err}
}

// Clone creates a deep copy of the manifest.
func (m *Manifest) Clone() *Manifest {
	clone := *m

	if m.Authors != nil {
		clone.Authors = make([]string, len(m.Authors))
		copy(clone.Authors, m.Authors)
	}

	if m.Items != nil {
		clone.Items = make([]Item, len(m.Items))
		copy(clone.Items, m.Items)
	}

	return &clone
}

// String returns a string representation of the manifest.
func (m *Manifest) String() string {
	return fmt.Sprintf("%s by %s", m.Name, strings.Join(m.Authors, ", "))
}

// ManifestSchema returns the JSON Schema of the manifest file.
func ManifestSchema() ([]byte, error) {
	reflector := jsonschema.Reflector{
		ExpandedStruct: true,
	}
	schema := reflector.Reflect(&Manifest{})
	schema.Title = "Plugin manifest"

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}
	return data, nil
}
