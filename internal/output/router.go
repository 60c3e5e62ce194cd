// Package output routes a call's result to its destination based on the
// method's declared return shape. The payload goes to the destination only;
// status lines go to the logger.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/joegilkes/speechcli/internal/clierr"
	"github.com/joegilkes/speechcli/internal/invoke"
	"github.com/joegilkes/speechcli/internal/registry"
)

// Format selects the serialization for structured results.
const (
	FormatJSON  = "json"
	FormatText  = "text"
	FormatTable = "table"
)

// Destination says where and how the result is written. Path empty means
// standard output.
type Destination struct {
	Path       string
	Stdout     io.Writer // defaults to os.Stdout
	IsTerminal bool      // stdout is an interactive terminal
	Force      bool      // write binary to a terminal anyway
	Format     string    // structured serialization, FormatJSON by default
	Log        *logrus.Logger
}

func (d Destination) stdout() io.Writer {
	if d.Stdout != nil {
		return d.Stdout
	}
	return os.Stdout
}

// Route writes the result per the declared shape.
func Route(shape registry.ReturnShape, res *invoke.RawResult, dest Destination) error {
	switch shape.Kind {
	case registry.ShapeText:
		return routeText(res.Text, dest)
	case registry.ShapeBinary:
		return routeBinary(res.Binary, dest)
	case registry.ShapeStream:
		return routeStream(res.Stream, dest)
	case registry.ShapeStructured:
		return routeStructured(res.Structured, dest)
	default:
		return clierr.New(clierr.Output, "unroutable return shape %v", shape.Kind)
	}
}

func routeText(text string, dest Destination) error {
	text = strings.TrimRight(text, " \t\r\n")
	w, done, err := dest.open()
	if err != nil {
		return err
	}
	if _, err := io.WriteString(w, text+"\n"); err != nil {
		return clierr.Wrap(clierr.Output, err, "writing output")
	}
	return done()
}

func routeBinary(body io.ReadCloser, dest Destination) error {
	defer body.Close()
	if dest.Path == "" && dest.IsTerminal && !dest.Force {
		return clierr.New(clierr.Output,
			"refusing to write binary data to a terminal; use --output <file> or --force")
	}
	w, done, err := dest.open()
	if err != nil {
		return err
	}
	n, err := io.Copy(w, body)
	if err != nil {
		done()
		return clierr.Wrap(clierr.Output, err, "writing binary output")
	}
	if err := done(); err != nil {
		return err
	}
	if dest.Path != "" && dest.Log != nil {
		dest.Log.Infof("wrote %d bytes to %s", n, dest.Path)
	}
	return nil
}

// routeStream writes each element as it arrives: raw bytes for binary
// elements, one JSON line per structured element. A failing destination
// cancels the producer instead of buffering unconsumed output.
func routeStream(stream *invoke.Stream, dest Destination) error {
	w, done, err := dest.open()
	if err != nil {
		stream.Cancel()
		drain(stream)
		return err
	}

	for {
		el, ok := stream.Recv()
		if !ok {
			break
		}
		if err := writeElement(w, el); err != nil {
			stream.Cancel()
			drain(stream)
			done()
			return clierr.Wrap(clierr.Output, err, "destination closed")
		}
	}
	if err := stream.Err(); err != nil {
		done()
		return err
	}
	return done()
}

func writeElement(w io.Writer, el invoke.Element) error {
	if el.Bytes != nil {
		_, err := w.Write(el.Bytes)
		return err
	}
	b, err := json.Marshal(el.Value)
	if err != nil {
		return err
	}
	_, err = w.Write(append(b, '\n'))
	return err
}

func drain(stream *invoke.Stream) {
	for {
		if _, ok := stream.Recv(); !ok {
			return
		}
	}
}

func routeStructured(v any, dest Destination) error {
	format := dest.Format
	if format == "" {
		format = FormatJSON
	}

	var rendered string
	switch format {
	case FormatJSON:
		b, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return clierr.Wrap(clierr.Output, err, "serializing result")
		}
		rendered = string(b)
	case FormatText:
		rendered = flatten(v)
	case FormatTable:
		t, err := tabulate(v)
		if err != nil {
			return err
		}
		rendered = t
	default:
		return clierr.New(clierr.Output, "unknown output format %q (expected json, text, or table)", format)
	}

	w, done, err := dest.open()
	if err != nil {
		return err
	}
	if _, err := io.WriteString(w, strings.TrimRight(rendered, "\n")+"\n"); err != nil {
		return clierr.Wrap(clierr.Output, err, "writing output")
	}
	return done()
}

// flatten renders structured data as plain k: v lines.
func flatten(v any) string {
	switch t := v.(type) {
	case map[string]any:
		var b strings.Builder
		for _, k := range sortedKeys(t) {
			fmt.Fprintf(&b, "%s: %s\n", k, scalarString(t[k]))
		}
		return b.String()
	case []any:
		var b strings.Builder
		for _, item := range t {
			b.WriteString(scalarString(item))
			b.WriteByte('\n')
		}
		return b.String()
	default:
		return scalarString(v)
	}
}

func scalarString(v any) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case string:
		return t
	case map[string]any, []any:
		b, _ := json.Marshal(t)
		return string(b)
	default:
		return fmt.Sprint(t)
	}
}

// open resolves the destination writer. done flushes and closes it.
func (d Destination) open() (io.Writer, func() error, error) {
	if d.Path == "" {
		return d.stdout(), func() error { return nil }, nil
	}
	f, err := os.Create(d.Path)
	if err != nil {
		return nil, nil, clierr.Wrap(clierr.Output, err, "cannot open %s", d.Path)
	}
	return f, f.Close, nil
}
