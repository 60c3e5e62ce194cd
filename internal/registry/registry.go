// Package registry parses the SDK method metadata document into an immutable
// in-memory tree of namespaces and method descriptors. It is built once at
// process start and only read afterwards.
package registry

import (
	"sort"
	"strings"

	"github.com/joegilkes/speechcli/internal/clierr"
	"github.com/joegilkes/speechcli/internal/param"
)

// ShapeKind tags what a method returns. The shape is declared per method in
// the metadata and fixed; it is never inferred from the response.
type ShapeKind int

const (
	ShapeText ShapeKind = iota
	ShapeBinary
	ShapeStream
	ShapeStructured
)

func (k ShapeKind) String() string {
	switch k {
	case ShapeText:
		return "text"
	case ShapeBinary:
		return "binary"
	case ShapeStream:
		return "stream"
	case ShapeStructured:
		return "structured"
	default:
		return "unknown"
	}
}

// ReturnShape is the declared result shape; Elem is the per-element shape
// for streams.
type ReturnShape struct {
	Kind ShapeKind
	Elem ShapeKind
}

// Method is one callable unit of the API surface.
type Method struct {
	Path       string // dot-separated, unique across the registry
	Name       string // last path segment
	Doc        string
	HasAsync   bool // an async counterpart exists; informational only
	Parameters []param.Parameter
	Returns    ReturnShape
}

type node struct {
	children map[string]*node
	methods  map[string]*Method
}

func newNode() *node {
	return &node{children: map[string]*node{}, methods: map[string]*Method{}}
}

// Registry is the read-only index over the metadata document.
type Registry struct {
	root   *node
	byPath map[string]*Method
}

// Lookup returns the descriptor at path.
func (r *Registry) Lookup(path string) (*Method, error) {
	m, ok := r.byPath[path]
	if !ok {
		return nil, clierr.New(clierr.NotFound, "no method at %q", path)
	}
	return m, nil
}

// Len reports how many methods the registry holds.
func (r *Registry) Len() int { return len(r.byPath) }

// Entry is one child of a namespace: either a nested namespace or a method.
type Entry struct {
	Name        string
	IsNamespace bool
	Method      *Method // nil for namespaces
}

// List returns the children of the namespace at prefix ("" for the root),
// sorted lexicographically so help text and tests are reproducible.
func (r *Registry) List(prefix string) ([]Entry, error) {
	n := r.root
	if prefix != "" {
		for _, seg := range strings.Split(prefix, ".") {
			child, ok := n.children[seg]
			if !ok {
				return nil, clierr.New(clierr.NotFound, "no namespace at %q", prefix)
			}
			n = child
		}
	}
	entries := make([]Entry, 0, len(n.children)+len(n.methods))
	for name := range n.children {
		entries = append(entries, Entry{Name: name, IsNamespace: true})
	}
	for name, m := range n.methods {
		entries = append(entries, Entry{Name: name, Method: m})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

// Walk visits every method in lexicographic path order.
func (r *Registry) Walk(fn func(*Method)) {
	paths := make([]string, 0, len(r.byPath))
	for p := range r.byPath {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		fn(r.byPath[p])
	}
}

func (r *Registry) insert(m *Method) error {
	if _, dup := r.byPath[m.Path]; dup {
		return clierr.New(clierr.Schema, "duplicate method path %q", m.Path)
	}
	segs := strings.Split(m.Path, ".")
	n := r.root
	for _, seg := range segs[:len(segs)-1] {
		if _, isMethod := n.methods[seg]; isMethod {
			return clierr.New(clierr.Schema, "namespace segment %q of %q is already a method", seg, m.Path)
		}
		child, ok := n.children[seg]
		if !ok {
			child = newNode()
			n.children[seg] = child
		}
		n = child
	}
	leaf := segs[len(segs)-1]
	if _, isNamespace := n.children[leaf]; isNamespace {
		return clierr.New(clierr.Schema, "method %q collides with a namespace", m.Path)
	}
	n.methods[leaf] = m
	r.byPath[m.Path] = m
	return nil
}
