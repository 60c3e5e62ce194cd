package param

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/joegilkes/speechcli/internal/clierr"
)

func TestCoerceRequiredMissing(t *testing.T) {
	p := Parameter{Name: "voice_id", Type: Spec{Kind: String}, Required: true}
	_, err := Coerce(p, Input{})
	if err == nil {
		t.Fatal("expected error for missing required parameter")
	}
	if clierr.KindOf(err) != clierr.Coercion {
		t.Errorf("expected Coercion kind, got %v", clierr.KindOf(err))
	}
	if !strings.Contains(err.Error(), "voice_id") {
		t.Errorf("error should name the parameter: %v", err)
	}
}

func TestCoerceOptionalAbsentReturnsDefault(t *testing.T) {
	cases := []struct {
		name string
		def  Value
	}{
		{"omitted sentinel", Omit()},
		{"explicit null", NullValue()},
		{"concrete", Of("eleven_multilingual_v2")},
	}
	for _, c := range cases {
		p := Parameter{Name: "model_id", Type: Spec{Kind: String}, Default: c.def}
		got, err := Coerce(p, Input{})
		if err != nil {
			t.Fatalf("%s: %v", c.name, err)
		}
		if got.State != c.def.State {
			t.Errorf("%s: state = %v, want %v", c.name, got.State, c.def.State)
		}
		if got.Data != c.def.Data {
			t.Errorf("%s: data = %v, want %v", c.name, got.Data, c.def.Data)
		}
	}
}

func TestCoerceThreeStatesDistinguishable(t *testing.T) {
	omitted, _ := Coerce(Parameter{Name: "a", Type: Spec{Kind: String}, Default: Omit()}, Input{})
	null, _ := Coerce(Parameter{Name: "b", Type: Spec{Kind: String}, Default: NullValue()}, Input{})
	set, _ := Coerce(Parameter{Name: "c", Type: Spec{Kind: String}}, Input{Present: true, Value: ""})

	if omitted.State == null.State || null.State == set.State || omitted.State == set.State {
		t.Errorf("states collapsed: omitted=%v null=%v set=%v", omitted.State, null.State, set.State)
	}
}

func TestCoerceExplicitNullOnOptional(t *testing.T) {
	inner := Spec{Kind: String}
	p := Parameter{Name: "seed", Type: Spec{Kind: Optional, Elem: &inner}, Default: Omit()}
	got, err := Coerce(p, Input{Present: true, Value: "null"})
	if err != nil {
		t.Fatal(err)
	}
	if got.State != Null {
		t.Errorf("expected explicit Null state, got %v", got.State)
	}
}

func TestCoerceScalars(t *testing.T) {
	cases := []struct {
		kind Kind
		raw  string
		want any
	}{
		{String, "hello", "hello"},
		{Int, "42", int64(42)},
		{Float, "0.75", 0.75},
		{Bool, "true", true},
		{Bool, "YES", true},
		{Bool, "off", false},
	}
	for _, c := range cases {
		p := Parameter{Name: "x", Type: Spec{Kind: c.kind}, Required: true}
		got, err := Coerce(p, Input{Present: true, Value: c.raw})
		if err != nil {
			t.Fatalf("%v %q: %v", c.kind, c.raw, err)
		}
		if got.Data != c.want {
			t.Errorf("%v %q = %v (%T), want %v (%T)", c.kind, c.raw, got.Data, got.Data, c.want, c.want)
		}
	}
}

func TestCoerceScalarFailureIncludesLiteral(t *testing.T) {
	cases := []struct {
		kind Kind
		raw  string
	}{
		{Int, "forty-two"},
		{Float, "a.b"},
		{Bool, "maybe"},
	}
	for _, c := range cases {
		p := Parameter{Name: "x", Type: Spec{Kind: c.kind}, Required: true}
		_, err := Coerce(p, Input{Present: true, Value: c.raw})
		if err == nil {
			t.Fatalf("%v %q: expected error", c.kind, c.raw)
		}
		if !strings.Contains(err.Error(), c.raw) {
			t.Errorf("error should include offending literal %q: %v", c.raw, err)
		}
	}
}

func TestCoerceEnumCaseInsensitive(t *testing.T) {
	p := Parameter{Name: "quality", Type: Spec{Kind: Enum, Values: []string{"draft", "standard", "premium"}}, Required: true}
	got, err := Coerce(p, Input{Present: true, Value: "PREMIUM"})
	if err != nil {
		t.Fatal(err)
	}
	if got.Data != "premium" {
		t.Errorf("expected canonical value premium, got %v", got.Data)
	}
}

func TestCoerceEnumInvalidListsValues(t *testing.T) {
	p := Parameter{Name: "quality", Type: Spec{Kind: Enum, Values: []string{"draft", "standard"}}, Required: true}
	_, err := Coerce(p, Input{Present: true, Value: "ultra"})
	if err == nil {
		t.Fatal("expected error")
	}
	for _, v := range []string{"draft", "standard"} {
		if !strings.Contains(err.Error(), v) {
			t.Errorf("error should list valid value %q: %v", v, err)
		}
	}
}

func TestCoerceListReportsFailingIndex(t *testing.T) {
	inner := Spec{Kind: Int}
	p := Parameter{Name: "ids", Type: Spec{Kind: List, Elem: &inner}, Required: true}
	_, err := Coerce(p, Input{Present: true, Values: []string{"1", "2", "oops", "4"}})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "element 2") {
		t.Errorf("error should report failing index 2: %v", err)
	}
}

func TestCoerceList(t *testing.T) {
	inner := Spec{Kind: String}
	p := Parameter{Name: "tags", Type: Spec{Kind: List, Elem: &inner}, Required: true}
	got, err := Coerce(p, Input{Present: true, Values: []string{"a", "b"}})
	if err != nil {
		t.Fatal(err)
	}
	list, ok := got.Data.([]any)
	if !ok || len(list) != 2 || list[0] != "a" {
		t.Errorf("unexpected list: %#v", got.Data)
	}
}

func TestCoerceMap(t *testing.T) {
	val := Spec{Kind: Float}
	key := Spec{Kind: String}
	p := Parameter{Name: "weights", Type: Spec{Kind: Map, Key: &key, Elem: &val}, Required: true}
	got, err := Coerce(p, Input{Present: true, Values: []string{"warmth=0.3", "clarity=0.9"}})
	if err != nil {
		t.Fatal(err)
	}
	m, ok := got.Data.(map[string]any)
	if !ok || m["warmth"] != 0.3 || m["clarity"] != 0.9 {
		t.Errorf("unexpected map: %#v", got.Data)
	}
}

func TestCoerceJSONInline(t *testing.T) {
	p := Parameter{Name: "voice_settings", Type: Spec{Kind: JSON}, Required: true}
	got, err := Coerce(p, Input{Present: true, Value: `{"stability": 0.5}`})
	if err != nil {
		t.Fatal(err)
	}
	m, ok := got.Data.(map[string]any)
	if !ok || m["stability"] != 0.5 {
		t.Errorf("unexpected JSON: %#v", got.Data)
	}
}

func TestCoerceJSONFileReference(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.json")
	os.WriteFile(path, []byte(`{"style": 0.2}`), 0644)

	p := Parameter{Name: "voice_settings", Type: Spec{Kind: JSON}, Required: true}
	got, err := Coerce(p, Input{Present: true, Value: "@" + path})
	if err != nil {
		t.Fatal(err)
	}
	m, ok := got.Data.(map[string]any)
	if !ok || m["style"] != 0.2 {
		t.Errorf("unexpected JSON: %#v", got.Data)
	}
}

func TestCoerceJSONInvalid(t *testing.T) {
	p := Parameter{Name: "voice_settings", Type: Spec{Kind: JSON}, Required: true}
	_, err := Coerce(p, Input{Present: true, Value: `{not json`})
	if err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestCoerceBinaryLocalFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audio.mp3")
	os.WriteFile(path, []byte("bytes"), 0644)

	p := Parameter{Name: "file", Type: Spec{Kind: Binary}, Required: true}
	got, err := Coerce(p, Input{Present: true, Value: path})
	if err != nil {
		t.Fatal(err)
	}
	ref, ok := got.Data.(*FileRef)
	if !ok {
		t.Fatalf("expected *FileRef, got %T", got.Data)
	}
	rc, err := ref.Open(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	defer rc.Close()
	b, _ := io.ReadAll(rc)
	if string(b) != "bytes" {
		t.Errorf("unexpected content %q", b)
	}
}

func TestCoerceBinaryMissingFile(t *testing.T) {
	p := Parameter{Name: "file", Type: Spec{Kind: Binary}, Required: true}
	_, err := Coerce(p, Input{Present: true, Value: "/no/such/file.mp3"})
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestCoerceBinaryURLIsLazy(t *testing.T) {
	// Coercion must not perform network I/O; it only records the source.
	p := Parameter{Name: "file", Type: Spec{Kind: Binary}, Required: true}
	got, err := Coerce(p, Input{Present: true, Value: "https://unreachable.invalid/a.mp3"})
	if err != nil {
		t.Fatalf("coercing a URL should not touch the network: %v", err)
	}
	ref := got.Data.(*FileRef)
	if ref.Source != "https://unreachable.invalid/a.mp3" {
		t.Errorf("unexpected source %q", ref.Source)
	}
}

func TestCoerceBinaryStdin(t *testing.T) {
	p := Parameter{Name: "file", Type: Spec{Kind: Binary}, Required: true}
	got, err := Coerce(p, Input{Present: true, Value: "-"})
	if err != nil {
		t.Fatal(err)
	}
	if got.Data.(*FileRef).Name() != "stdin" {
		t.Errorf("unexpected name %q", got.Data.(*FileRef).Name())
	}
}

// A stdin-backed payload must yield the same bytes on every Open, since a
// transport retry re-opens the reference after stdin is already drained.
func TestStdinPayloadReplayable(t *testing.T) {
	src := filepath.Join(t.TempDir(), "in")
	if err := os.WriteFile(src, []byte("audio-from-stdin"), 0600); err != nil {
		t.Fatal(err)
	}
	f, err := os.Open(src)
	if err != nil {
		t.Fatal(err)
	}
	orig := os.Stdin
	os.Stdin = f
	t.Cleanup(func() {
		os.Stdin = orig
		f.Close()
	})

	ref, err := newFileRef("-")
	if err != nil {
		t.Fatal(err)
	}
	for attempt := 1; attempt <= 2; attempt++ {
		rc, err := ref.Open(context.Background())
		if err != nil {
			t.Fatalf("attempt %d: %v", attempt, err)
		}
		b, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatalf("attempt %d: %v", attempt, err)
		}
		if string(b) != "audio-from-stdin" {
			t.Errorf("attempt %d read %q, want full payload", attempt, b)
		}
	}
}

func TestSpecString(t *testing.T) {
	inner := Spec{Kind: Int}
	cases := []struct {
		spec Spec
		want string
	}{
		{Spec{Kind: String}, "string"},
		{Spec{Kind: Optional, Elem: &inner}, "int?"},
		{Spec{Kind: List, Elem: &inner}, "list<int>"},
		{Spec{Kind: Enum, Values: []string{"a", "b"}}, "enum(a|b)"},
		{Spec{Kind: Binary}, "file"},
	}
	for _, c := range cases {
		if got := c.spec.String(); got != c.want {
			t.Errorf("String() = %q, want %q", got, c.want)
		}
	}
}

func TestCoercionErrorKind(t *testing.T) {
	p := Parameter{Name: "n", Type: Spec{Kind: Int}, Required: true}
	_, err := Coerce(p, Input{Present: true, Value: "x"})
	var ce *clierr.Error
	if !errors.As(err, &ce) || ce.Kind != clierr.Coercion {
		t.Errorf("expected clierr Coercion, got %v", err)
	}
}
