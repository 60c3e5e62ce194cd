package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/joegilkes/speechcli/internal/clierr"
	"github.com/joegilkes/speechcli/internal/param"
)

// Document shape produced by the SDK inspector, normalized to one flat list
// of methods with dot-separated paths.
type document struct {
	Methods []methodDoc `json:"methods"`
}

type methodDoc struct {
	Path       string         `json:"path"`
	Doc        string         `json:"doc"`
	HasAsync   bool           `json:"has_async"`
	Parameters []parameterDoc `json:"parameters"`
	Returns    returnDoc      `json:"returns"`
}

type parameterDoc struct {
	Name     string          `json:"name"`
	Doc      string          `json:"doc"`
	Type     *typeDoc        `json:"type"`
	Required bool            `json:"required"`
	Default  json.RawMessage `json:"default"`
}

type typeDoc struct {
	Kind   string   `json:"kind"`
	Elem   *typeDoc `json:"elem"`
	Key    *typeDoc `json:"key"`
	Values []string `json:"values"`
}

type returnDoc struct {
	Shape string `json:"shape"`
	Elem  string `json:"elem"`
}

// The inspector writes the OMIT sentinel of the source SDK as this string.
const omitSentinel = `"OMIT"`

// Load reads and builds the registry from a metadata file.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, clierr.Wrap(clierr.Schema, err,
			"cannot read method metadata at %s (run the SDK inspector to generate it)", path)
	}
	return Build(data)
}

// Build parses the metadata document and constructs the registry. Schema
// violations are rejected here, never deferred to command execution.
func Build(data []byte) (*Registry, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, clierr.Wrap(clierr.Schema, err, "malformed method metadata")
	}
	if len(doc.Methods) == 0 {
		return nil, clierr.New(clierr.Schema, "method metadata declares no methods")
	}

	r := &Registry{root: newNode(), byPath: map[string]*Method{}}
	for _, md := range doc.Methods {
		m, err := buildMethod(md)
		if err != nil {
			return nil, err
		}
		if err := r.insert(m); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func buildMethod(md methodDoc) (*Method, error) {
	if md.Path == "" {
		return nil, clierr.New(clierr.Schema, "method with empty path")
	}
	segs := strings.Split(md.Path, ".")
	m := &Method{
		Path:     md.Path,
		Name:     segs[len(segs)-1],
		Doc:      md.Doc,
		HasAsync: md.HasAsync,
	}

	seen := map[string]bool{}
	for _, pd := range md.Parameters {
		p, err := buildParameter(md.Path, pd)
		if err != nil {
			return nil, err
		}
		if seen[p.Name] {
			return nil, clierr.New(clierr.Schema, "%s: duplicate parameter %q", md.Path, p.Name)
		}
		seen[p.Name] = true
		m.Parameters = append(m.Parameters, p)
	}

	shape, err := buildShape(md.Path, md.Returns)
	if err != nil {
		return nil, err
	}
	m.Returns = shape
	return m, nil
}

func buildParameter(path string, pd parameterDoc) (param.Parameter, error) {
	if pd.Name == "" {
		return param.Parameter{}, clierr.New(clierr.Schema, "%s: parameter with empty name", path)
	}
	if pd.Type == nil {
		return param.Parameter{}, clierr.New(clierr.Schema, "%s: parameter %q has no type", path, pd.Name)
	}
	spec, err := buildSpec(*pd.Type)
	if err != nil {
		return param.Parameter{}, clierr.Wrap(clierr.Schema, err, "%s: parameter %q", path, pd.Name)
	}

	p := param.Parameter{Name: pd.Name, Doc: pd.Doc, Type: spec, Required: pd.Required}
	if pd.Required {
		if len(pd.Default) != 0 {
			return param.Parameter{}, clierr.New(clierr.Schema,
				"%s: parameter %q is required but carries a default", path, pd.Name)
		}
		return p, nil
	}

	switch {
	case len(pd.Default) == 0, string(pd.Default) == omitSentinel:
		p.Default = param.Omit()
	case string(pd.Default) == "null":
		p.Default = param.NullValue()
	default:
		var v any
		if err := json.Unmarshal(pd.Default, &v); err != nil {
			return param.Parameter{}, clierr.Wrap(clierr.Schema, err,
				"%s: parameter %q has a malformed default", path, pd.Name)
		}
		p.Default = param.Of(v)
	}
	return p, nil
}

func buildSpec(td typeDoc) (param.Spec, error) {
	elem := func() (*param.Spec, error) {
		if td.Elem == nil {
			return nil, fmt.Errorf("type kind %q requires an element type", td.Kind)
		}
		s, err := buildSpec(*td.Elem)
		if err != nil {
			return nil, err
		}
		return &s, nil
	}

	switch td.Kind {
	case "string":
		return param.Spec{Kind: param.String}, nil
	case "int":
		return param.Spec{Kind: param.Int}, nil
	case "float":
		return param.Spec{Kind: param.Float}, nil
	case "bool":
		return param.Spec{Kind: param.Bool}, nil
	case "optional":
		e, err := elem()
		if err != nil {
			return param.Spec{}, err
		}
		return param.Spec{Kind: param.Optional, Elem: e}, nil
	case "list":
		e, err := elem()
		if err != nil {
			return param.Spec{}, err
		}
		return param.Spec{Kind: param.List, Elem: e}, nil
	case "map":
		e, err := elem()
		if err != nil {
			return param.Spec{}, err
		}
		key := param.Spec{Kind: param.String}
		if td.Key != nil {
			key, err = buildSpec(*td.Key)
			if err != nil {
				return param.Spec{}, err
			}
		}
		return param.Spec{Kind: param.Map, Key: &key, Elem: e}, nil
	case "enum":
		if len(td.Values) == 0 {
			return param.Spec{}, fmt.Errorf("enum type declares no values")
		}
		return param.Spec{Kind: param.Enum, Values: td.Values}, nil
	case "binary":
		return param.Spec{Kind: param.Binary}, nil
	case "json":
		return param.Spec{Kind: param.JSON}, nil
	default:
		return param.Spec{}, fmt.Errorf("unknown type kind %q", td.Kind)
	}
}

func buildShape(path string, rd returnDoc) (ReturnShape, error) {
	kind, err := shapeKind(rd.Shape)
	if err != nil {
		return ReturnShape{}, clierr.Wrap(clierr.Schema, err, "%s: return shape", path)
	}
	shape := ReturnShape{Kind: kind}
	if kind == ShapeStream {
		if rd.Elem == "" {
			return ReturnShape{}, clierr.New(clierr.Schema, "%s: stream return shape requires an element shape", path)
		}
		elem, err := shapeKind(rd.Elem)
		if err != nil || elem == ShapeStream {
			return ReturnShape{}, clierr.New(clierr.Schema, "%s: invalid stream element shape %q", path, rd.Elem)
		}
		shape.Elem = elem
	}
	return shape, nil
}

func shapeKind(s string) (ShapeKind, error) {
	switch s {
	case "text":
		return ShapeText, nil
	case "binary":
		return ShapeBinary, nil
	case "stream":
		return ShapeStream, nil
	case "structured":
		return ShapeStructured, nil
	default:
		return 0, fmt.Errorf("unknown shape %q", s)
	}
}
