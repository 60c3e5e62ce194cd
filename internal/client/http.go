// Package client implements the capability interface over HTTP. It is the
// only component that talks to the provider; everything above it sees the
// error taxonomy, never raw HTTP.
package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joegilkes/speechcli/internal/clierr"
	"github.com/joegilkes/speechcli/internal/invoke"
	"github.com/joegilkes/speechcli/internal/param"
	"github.com/joegilkes/speechcli/internal/registry"
)

const streamChunkSize = 32 * 1024

type HTTP struct {
	baseURL string
	client  *http.Client
}

func NewHTTP(baseURL string) *HTTP {
	return &HTTP{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  http.DefaultClient,
	}
}

// Execute posts the call to the provider and decodes the response per the
// method's declared return shape.
func (h *HTTP) Execute(ctx context.Context, call invoke.Call) (*invoke.RawResult, error) {
	// Streams get their own cancellable context so the consumer can stop
	// the producer after Execute returns. Binary and text bodies stay bound
	// to the caller's context.
	reqCtx := ctx
	streamCancel := context.CancelFunc(func() {})
	if call.Shape.Kind == registry.ShapeStream {
		reqCtx, streamCancel = context.WithCancel(ctx)
	}

	req, err := h.newRequest(reqCtx, call)
	if err != nil {
		streamCancel()
		return nil, err
	}

	resp, err := h.client.Do(req)
	if err != nil {
		streamCancel()
		return nil, clierr.Wrap(clierr.Transport, err, "request to %s failed", call.Path)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer streamCancel()
		defer resp.Body.Close()
		return nil, statusError(call.Path, resp)
	}

	switch call.Shape.Kind {
	case registry.ShapeText:
		// streamCancel is the no-op here; called to satisfy vet's lostcancel.
		defer streamCancel()
		defer resp.Body.Close()
		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, clierr.Wrap(clierr.Transport, err, "reading response from %s", call.Path)
		}
		return &invoke.RawResult{Text: string(b)}, nil

	case registry.ShapeBinary:
		// streamCancel is the no-op here; called to satisfy vet's lostcancel.
		defer streamCancel()
		// The caller owns the body now; it is closed by the output router.
		return &invoke.RawResult{Binary: resp.Body}, nil

	case registry.ShapeStream:
		stream := invoke.NewStream(streamCancel)
		go produce(reqCtx, resp.Body, call.Shape.Elem, stream)
		return &invoke.RawResult{Stream: stream}, nil

	default:
		// streamCancel is the no-op here; called to satisfy vet's lostcancel.
		defer streamCancel()
		defer resp.Body.Close()
		var v any
		if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
			return nil, clierr.Wrap(clierr.Remote, err, "undecodable response from %s", call.Path)
		}
		return &invoke.RawResult{Structured: v}, nil
	}
}

func (h *HTTP) newRequest(ctx context.Context, call invoke.Call) (*http.Request, error) {
	endpoint := h.baseURL + "/v1/" + strings.ReplaceAll(call.Path, ".", "/")

	var file *param.FileRef
	var fileField string
	fields := map[string]param.Value{}
	for name, v := range call.Args {
		if ref, ok := v.Data.(*param.FileRef); ok && v.IsSet() {
			file, fileField = ref, name
			continue
		}
		fields[name] = v
	}

	var req *http.Request
	var err error
	if file != nil {
		req, err = newMultipartRequest(ctx, endpoint, fileField, file, fields)
	} else {
		req, err = newJSONRequest(ctx, endpoint, fields)
	}
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+call.APIKey)
	return req, nil
}

// encodeFields keeps the three-way argument semantics on the wire: omitted
// parameters are absent from the body, explicit nulls are JSON null.
func encodeFields(fields map[string]param.Value) map[string]any {
	body := make(map[string]any, len(fields))
	for name, v := range fields {
		switch v.State {
		case param.Omitted:
		case param.Null:
			body[name] = nil
		case param.Set:
			body[name] = v.Data
		}
	}
	return body
}

func newJSONRequest(ctx context.Context, endpoint string, fields map[string]param.Value) (*http.Request, error) {
	payload, err := json.Marshal(encodeFields(fields))
	if err != nil {
		return nil, fmt.Errorf("encoding request body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// newMultipartRequest streams the file part through a pipe so the payload is
// never fully buffered.
func newMultipartRequest(ctx context.Context, endpoint, fileField string, file *param.FileRef, fields map[string]param.Value) (*http.Request, error) {
	src, err := file.Open(ctx)
	if err != nil {
		return nil, err
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		defer src.Close()
		err := writeMultipart(mw, fileField, file, src, fields)
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, pr)
	if err != nil {
		pr.Close()
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req, nil
}

func writeMultipart(mw *multipart.Writer, fileField string, file *param.FileRef, src io.Reader, fields map[string]param.Value) error {
	for name, v := range encodeFields(fields) {
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		// Plain strings go bare; everything else stays JSON-encoded.
		val := string(b)
		if s, ok := v.(string); ok {
			val = s
		}
		if err := mw.WriteField(name, val); err != nil {
			return err
		}
	}
	part, err := mw.CreateFormFile(fileField, filepath.Base(file.Name()))
	if err != nil {
		return err
	}
	_, err = io.Copy(part, src)
	return err
}

// produce feeds the response body into the bounded stream: raw chunks for
// binary elements, one decoded record per line for structured ones.
func produce(ctx context.Context, body io.ReadCloser, elem registry.ShapeKind, stream *invoke.Stream) {
	defer body.Close()

	if elem == registry.ShapeBinary {
		buf := make([]byte, streamChunkSize)
		for {
			n, err := body.Read(buf)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				if !stream.Send(ctx, invoke.Element{Bytes: chunk}) {
					stream.Close(nil)
					return
				}
			}
			if err == io.EOF {
				stream.Close(nil)
				return
			}
			if err != nil {
				stream.Close(clierr.Wrap(clierr.Transport, err, "stream interrupted"))
				return
			}
		}
	}

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, streamChunkSize), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var v any
		if err := json.Unmarshal(line, &v); err != nil {
			stream.Close(clierr.Wrap(clierr.Remote, err, "undecodable stream element"))
			return
		}
		if !stream.Send(ctx, invoke.Element{Value: v}) {
			stream.Close(nil)
			return
		}
	}
	if err := scanner.Err(); err != nil {
		stream.Close(clierr.Wrap(clierr.Transport, err, "stream interrupted"))
		return
	}
	stream.Close(nil)
}

func statusError(path string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	detail := strings.TrimSpace(string(body))
	if detail == "" {
		detail = resp.Status
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &clierr.Error{Kind: clierr.Auth, Msg: fmt.Sprintf("%s: %s", path, detail), Status: resp.StatusCode}
	case resp.StatusCode == http.StatusTooManyRequests:
		return &clierr.Error{
			Kind:       clierr.RateLimit,
			Msg:        fmt.Sprintf("%s: %s", path, detail),
			Status:     resp.StatusCode,
			RetryAfter: retryAfter(resp),
		}
	default:
		return &clierr.Error{Kind: clierr.Remote, Msg: fmt.Sprintf("%s: HTTP %d: %s", path, resp.StatusCode, detail), Status: resp.StatusCode}
	}
}

func retryAfter(resp *http.Response) time.Duration {
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}
