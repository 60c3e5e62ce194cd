package param

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/joegilkes/speechcli/internal/clierr"
)

// Input is the raw flag state handed to the coercion engine. Present is
// false when the flag never appeared on the command line, which is distinct
// from an empty value.
type Input struct {
	Present bool
	Value   string
	Values  []string // repeatable flags (list and map types)
}

// Coerce turns raw textual input into a typed value per the declared type.
// Absent input resolves to the default for optional parameters, preserving
// the omitted/null/set distinction, and fails for required ones.
func Coerce(p Parameter, in Input) (Value, error) {
	if !in.Present {
		if p.Required {
			return Value{}, clierr.New(clierr.Coercion, "%s: missing required parameter", p.Name)
		}
		return p.Default, nil
	}

	spec := p.Type
	if spec.Kind == Optional {
		// The literal "null" on an optional parameter sends an explicit
		// null, which is not the same as leaving the flag off.
		if !spec.Repeatable() && in.Value == "null" {
			return NullValue(), nil
		}
		spec = *spec.Elem
	}

	data, err := coerceSpec(spec, in)
	if err != nil {
		return Value{}, clierr.Wrap(clierr.Coercion, err, "%s", p.Name)
	}
	return Of(data), nil
}

func coerceSpec(s Spec, in Input) (any, error) {
	switch s.Kind {
	case String:
		return in.Value, nil
	case Int:
		n, err := strconv.ParseInt(in.Value, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("not an integer: %q", in.Value)
		}
		return n, nil
	case Float:
		f, err := strconv.ParseFloat(in.Value, 64)
		if err != nil {
			return nil, fmt.Errorf("not a number: %q", in.Value)
		}
		return f, nil
	case Bool:
		return parseBool(in.Value)
	case Enum:
		for _, v := range s.Values {
			if strings.EqualFold(v, in.Value) {
				return v, nil
			}
		}
		return nil, fmt.Errorf("%q is not one of: %s", in.Value, strings.Join(s.Values, ", "))
	case List:
		out := make([]any, 0, len(in.Values))
		for i, raw := range in.Values {
			v, err := coerceSpec(*s.Elem, Input{Present: true, Value: raw})
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			out = append(out, v)
		}
		return out, nil
	case Map:
		out := make(map[string]any, len(in.Values))
		for i, raw := range in.Values {
			k, v, found := strings.Cut(raw, "=")
			if !found {
				return nil, fmt.Errorf("entry %d: expected key=value, got %q", i, raw)
			}
			val, err := coerceSpec(*s.Elem, Input{Present: true, Value: v})
			if err != nil {
				return nil, fmt.Errorf("entry %d (%s): %w", i, k, err)
			}
			out[k] = val
		}
		return out, nil
	case JSON:
		return parseJSONInput(in.Value)
	case Binary:
		return newFileRef(in.Value)
	default:
		return nil, fmt.Errorf("unsupported type kind %d", s.Kind)
	}
}

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(raw) {
	case "true", "1", "yes", "on":
		return true, nil
	case "false", "0", "no", "off":
		return false, nil
	}
	return false, fmt.Errorf("not a boolean: %q", raw)
}

// parseJSONInput accepts inline JSON or a @<path> file reference. The value
// is parsed structurally and passed through; semantic validation belongs to
// the provider.
func parseJSONInput(raw string) (any, error) {
	if raw == "null" {
		return nil, nil
	}
	data := []byte(raw)
	if strings.HasPrefix(raw, "@") {
		b, err := os.ReadFile(raw[1:])
		if err != nil {
			return nil, fmt.Errorf("reading JSON file: %w", err)
		}
		data = b
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	return v, nil
}

// FileRef is a lazily opened binary payload: a filesystem path, "-" for
// standard input, or an http(s) URL. Coercion only validates the source; the
// bytes are read by whoever consumes the stream.
type FileRef struct {
	Source string

	// spooled holds the temp file standard input was drained to, so the
	// payload can be re-read when a request is retried.
	spooled string
}

func newFileRef(source string) (*FileRef, error) {
	if source == "-" {
		return &FileRef{Source: source}, nil
	}
	if u, err := url.Parse(source); err == nil && (u.Scheme == "http" || u.Scheme == "https") {
		return &FileRef{Source: source}, nil
	}
	if _, err := os.Stat(source); err != nil {
		return nil, fmt.Errorf("file not found: %s", source)
	}
	return &FileRef{Source: source}, nil
}

// Open resolves the reference to a readable byte stream. Opening the same
// reference again yields the same bytes, including for standard input.
func (f *FileRef) Open(ctx context.Context) (io.ReadCloser, error) {
	if f.Source == "-" {
		if f.spooled == "" {
			path, err := spoolStdin()
			if err != nil {
				return nil, fmt.Errorf("reading standard input: %w", err)
			}
			f.spooled = path
		}
		return os.Open(f.spooled)
	}
	if u, err := url.Parse(f.Source); err == nil && (u.Scheme == "http" || u.Scheme == "https") {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.Source, nil)
		if err != nil {
			return nil, err
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return nil, clierr.Wrap(clierr.Transport, err, "fetching %s", f.Source)
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, clierr.New(clierr.Transport, "fetching %s: HTTP %d", f.Source, resp.StatusCode)
		}
		return resp.Body, nil
	}
	return os.Open(f.Source)
}

func spoolStdin() (string, error) {
	tmp, err := os.CreateTemp("", "speechcli-stdin-*")
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(tmp, os.Stdin); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	return tmp.Name(), nil
}

// Name reports a filename for multipart uploads.
func (f *FileRef) Name() string {
	if f.Source == "-" {
		return "stdin"
	}
	return f.Source
}
