package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

var testBinary string

func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "speechcli-inttest-*")
	if err != nil {
		panic(err)
	}
	testBinary = filepath.Join(dir, "speechcli")
	cmd := exec.Command("go", "build", "-o", testBinary, ".")
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		panic("failed to build test binary: " + err.Error())
	}
	code := m.Run()
	os.RemoveAll(dir)
	os.Exit(code)
}

const testMetadata = `{
  "methods": [
    {
      "path": "voices.get_all",
      "doc": "List all voices.",
      "parameters": [],
      "returns": {"shape": "structured"}
    },
    {
      "path": "voices.get",
      "doc": "Fetch one voice.",
      "parameters": [
        {"name": "voice_id", "doc": "Voice to fetch", "type": {"kind": "string"}, "required": true}
      ],
      "returns": {"shape": "structured"}
    },
    {
      "path": "text_to_speech.convert",
      "doc": "Convert text to speech.",
      "parameters": [
        {"name": "voice_id", "type": {"kind": "string"}, "required": true},
        {"name": "text", "type": {"kind": "string"}, "required": true}
      ],
      "returns": {"shape": "binary"}
    }
  ]
}`

// run executes the built binary against a clean environment: temp HOME and
// config dir, the fixture metadata document, and baseURL as the provider.
func run(t *testing.T, baseURL, apiKey string, args ...string) (stdout, stderr string, exitCode int) {
	t.Helper()
	dir := t.TempDir()
	metaPath := filepath.Join(dir, "sdk-methods.json")
	if err := os.WriteFile(metaPath, []byte(testMetadata), 0644); err != nil {
		t.Fatal(err)
	}

	cmd := exec.Command(testBinary, append([]string{"--metadata", metaPath}, args...)...)
	cmd.Env = []string{
		"HOME=" + dir,
		"XDG_CONFIG_HOME=" + filepath.Join(dir, "config"),
		"SPEECHCLI_BASE_URL=" + baseURL,
		"SPEECHCLI_API_KEY=" + apiKey,
		"PATH=" + os.Getenv("PATH"),
	}
	cmd.Dir = dir
	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf
	err := cmd.Run()
	code := 0
	if ee, ok := err.(*exec.ExitError); ok {
		code = ee.ExitCode()
	} else if err != nil {
		t.Fatalf("failed to run binary: %v", err)
	}
	return outBuf.String(), errBuf.String(), code
}

func TestSuccessfulCallPayloadOnStdoutOnly(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"voices": []any{map[string]any{"name": "Rachel"}}})
	}))
	defer server.Close()

	stdout, stderr, code := run(t, server.URL, "test-key-123456", "voices", "get-all")
	if code != 0 {
		t.Fatalf("expected exit 0, got %d\nstderr: %s", code, stderr)
	}
	if !json.Valid([]byte(stdout)) {
		t.Errorf("stdout should carry the JSON payload, got: %s", stdout)
	}
	if strings.Contains(stderr, "Rachel") {
		t.Error("payload must never appear on stderr")
	}
}

func TestMissingRequiredFlagExitsTwo(t *testing.T) {
	_, stderr, code := run(t, "http://unused.invalid", "test-key-123456", "voices", "get")
	if code != 2 {
		t.Errorf("expected exit 2, got %d\nstderr: %s", code, stderr)
	}
	if !strings.Contains(stderr, "voice_id") {
		t.Errorf("stderr should name the missing parameter: %s", stderr)
	}
}

func TestMissingCredentialExitsTwo(t *testing.T) {
	_, stderr, code := run(t, "http://unused.invalid", "", "voices", "get-all")
	if code != 2 {
		t.Errorf("expected exit 2, got %d\nstderr: %s", code, stderr)
	}
	if !strings.Contains(stderr, "SPEECHCLI_API_KEY") {
		t.Errorf("stderr should list credential sources: %s", stderr)
	}
}

func TestUnauthorizedExitsThree(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	_, _, code := run(t, server.URL, "bad-key-123456", "voices", "get-all")
	if code != 3 {
		t.Errorf("expected exit 3 for 401, got %d", code)
	}
}

func TestRateLimitExitsFour(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	_, _, code := run(t, server.URL, "test-key-123456", "voices", "get-all")
	if code != 4 {
		t.Errorf("expected exit 4 for 429, got %d", code)
	}
}

func TestUnknownCommandFails(t *testing.T) {
	_, _, code := run(t, "http://unused.invalid", "test-key-123456", "models", "list")
	if code == 0 {
		t.Error("expected nonzero exit for unknown command")
	}
}

func TestRootHelpListsNamespaces(t *testing.T) {
	stdout, _, code := run(t, "http://unused.invalid", "", "--help")
	if code != 0 {
		t.Fatalf("--help failed with %d", code)
	}
	for _, want := range []string{"voices", "text-to-speech", "methods"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("root help should list %q:\n%s", want, stdout)
		}
	}
}

func TestMethodHelpShowsFlags(t *testing.T) {
	stdout, _, code := run(t, "http://unused.invalid", "", "text-to-speech", "convert", "--help")
	if code != 0 {
		t.Fatalf("--help failed with %d", code)
	}
	for _, want := range []string{"--voice-id", "--text", "(required)", "--api-key", "--output", "--format"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("method help should show %q:\n%s", want, stdout)
		}
	}
}

func TestBinaryResultToFile(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("mp3-bytes"))
	}))
	defer server.Close()

	out := filepath.Join(t.TempDir(), "speech.mp3")
	_, stderr, code := run(t, server.URL, "test-key-123456",
		"text-to-speech", "convert", "--voice-id", "abc", "--text", "hi", "-o", out)
	if code != 0 {
		t.Fatalf("expected exit 0, got %d\nstderr: %s", code, stderr)
	}
	b, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "mp3-bytes" {
		t.Errorf("unexpected file content %q", b)
	}
}

func TestVersionFlag(t *testing.T) {
	stdout, _, code := run(t, "http://unused.invalid", "", "--version")
	if code != 0 {
		t.Fatalf("--version failed with %d", code)
	}
	if !strings.Contains(stdout, "speechcli") {
		t.Errorf("version output: %s", stdout)
	}
}

func TestMissingMetadataExitsTwo(t *testing.T) {
	dir := t.TempDir()
	cmd := exec.Command(testBinary, "--metadata", filepath.Join(dir, "nope.json"), "voices", "get-all")
	cmd.Env = []string{"HOME=" + dir, "PATH=" + os.Getenv("PATH")}
	cmd.Dir = dir
	var errBuf bytes.Buffer
	cmd.Stderr = &errBuf
	err := cmd.Run()
	ee, ok := err.(*exec.ExitError)
	if !ok || ee.ExitCode() != 2 {
		t.Fatalf("expected exit 2 for missing metadata, got %v", err)
	}
	if !strings.Contains(errBuf.String(), "metadata") {
		t.Errorf("stderr should explain the metadata problem: %s", errBuf.String())
	}
}
