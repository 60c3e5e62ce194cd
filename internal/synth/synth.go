// Package synth walks the method registry and produces one addressable
// cobra command per method. Flags are derived 1:1 from the method's declared
// parameters; cross-cutting flags stay global and are never injected into
// method metadata.
package synth

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joegilkes/speechcli/internal/param"
	"github.com/joegilkes/speechcli/internal/registry"
)

// RunFunc executes one resolved method with the raw flag inputs gathered
// from the command line. The cmd layer supplies it.
type RunFunc func(cmd *cobra.Command, m *registry.Method, inputs map[string]param.Input) error

// Synthesize builds the command tree: one nested command per namespace
// segment and one leaf per method, in deterministic order. Methods that
// differ only by return shape have distinct paths and therefore distinct
// commands; nothing is ever collapsed.
func Synthesize(reg *registry.Registry, run RunFunc) []*cobra.Command {
	namespaces := map[string]*cobra.Command{}
	var roots []*cobra.Command

	reg.Walk(func(m *registry.Method) {
		segs := strings.Split(m.Path, ".")
		var parent *cobra.Command
		prefix := ""
		for _, seg := range segs[:len(segs)-1] {
			if prefix == "" {
				prefix = seg
			} else {
				prefix += "." + seg
			}
			ns, ok := namespaces[prefix]
			if !ok {
				ns = &cobra.Command{
					Use:   Token(seg),
					Short: fmt.Sprintf("Operations under %s", strings.ReplaceAll(prefix, "_", " ")),
				}
				namespaces[prefix] = ns
				if parent == nil {
					roots = append(roots, ns)
				} else {
					parent.AddCommand(ns)
				}
			}
			parent = ns
		}

		leaf := newMethodCommand(m, run)
		if parent == nil {
			roots = append(roots, leaf)
		} else {
			parent.AddCommand(leaf)
		}
	})

	sort.Slice(roots, func(i, j int) bool { return roots[i].Use < roots[j].Use })
	return roots
}

// Token maps a path segment to its CLI form: underscores become hyphens.
func Token(segment string) string {
	return strings.ReplaceAll(segment, "_", "-")
}

// FlagName maps a parameter name to its flag form.
func FlagName(paramName string) string {
	return strings.ReplaceAll(paramName, "_", "-")
}

func newMethodCommand(m *registry.Method, run RunFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   Token(m.Name),
		Short: shortDoc(m),
		Long:  m.Doc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, m, gatherInputs(cmd, m))
		},
	}

	for _, p := range m.Parameters {
		name := FlagName(p.Name)
		help := flagHelp(p)
		if p.Type.Repeatable() {
			cmd.Flags().StringArray(name, nil, help)
		} else {
			cmd.Flags().String(name, "", help)
		}
		if p.Required {
			// Requiredness is enforced by the coercion engine so every
			// missing parameter is reported in one pass.
			cmd.Flags().SetAnnotation(name, requiredAnnotation, []string{"true"})
		}
	}
	return cmd
}

const requiredAnnotation = "speechcli_required"

// Required reports whether a synthesized flag was declared required. Help
// round-trip tests recover the descriptor contract through this.
func Required(cmd *cobra.Command, flagName string) bool {
	f := cmd.Flags().Lookup(flagName)
	if f == nil {
		return false
	}
	v, ok := f.Annotations[requiredAnnotation]
	return ok && len(v) == 1 && v[0] == "true"
}

func flagHelp(p param.Parameter) string {
	doc := p.Doc
	if doc == "" {
		doc = p.Name
	}
	help := fmt.Sprintf("%s (%s)", doc, p.Type)
	if p.Required {
		help += " (required)"
	}
	return help
}

func shortDoc(m *registry.Method) string {
	if m.Doc == "" {
		return m.Path
	}
	line, _, _ := strings.Cut(m.Doc, "\n")
	return line
}

func gatherInputs(cmd *cobra.Command, m *registry.Method) map[string]param.Input {
	inputs := make(map[string]param.Input, len(m.Parameters))
	for _, p := range m.Parameters {
		name := FlagName(p.Name)
		f := cmd.Flags().Lookup(name)
		if f == nil || !f.Changed {
			continue
		}
		in := param.Input{Present: true}
		if p.Type.Repeatable() {
			in.Values, _ = cmd.Flags().GetStringArray(name)
		} else {
			in.Value, _ = cmd.Flags().GetString(name)
		}
		inputs[p.Name] = in
	}
	return inputs
}
