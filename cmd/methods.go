package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joegilkes/speechcli/internal/param"
	"github.com/joegilkes/speechcli/internal/registry"
	"github.com/joegilkes/speechcli/internal/synth"
)

// newMethodsCmd exposes the registry itself: what the metadata declares,
// before any call is made.
func newMethodsCmd(reg *registry.Registry) *cobra.Command {
	methods := &cobra.Command{
		Use:   "methods",
		Short: "Inspect the synthesized method surface",
	}

	list := &cobra.Command{
		Use:   "list [prefix]",
		Short: "List namespaces and methods under a prefix",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prefix := ""
			if len(args) > 0 {
				prefix = args[0]
			}
			entries, err := reg.List(prefix)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, e := range entries {
				if e.IsNamespace {
					fmt.Fprintf(out, "%s/\n", e.Name)
					continue
				}
				fmt.Fprintf(out, "%s\t%s\n", e.Name, e.Method.Returns.Kind)
			}
			return nil
		},
	}

	describe := &cobra.Command{
		Use:   "describe <path>",
		Short: "Show a method's parameters, types, and return shape",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := reg.Lookup(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s\n", m.Path)
			if m.Doc != "" {
				fmt.Fprintf(out, "  %s\n", m.Doc)
			}
			fmt.Fprintf(out, "  returns: %s", m.Returns.Kind)
			if m.Returns.Kind == registry.ShapeStream {
				fmt.Fprintf(out, " of %s", m.Returns.Elem)
			}
			fmt.Fprintln(out)
			if m.HasAsync {
				fmt.Fprintln(out, "  async variant available")
			}
			for _, p := range m.Parameters {
				fmt.Fprintf(out, "  --%s\t%s\t%s\n", synth.FlagName(p.Name), p.Type, requirement(p))
			}
			return nil
		},
	}

	methods.AddCommand(list, describe)
	return methods
}

func requirement(p param.Parameter) string {
	if p.Required {
		return "required"
	}
	switch p.Default.State {
	case param.Null:
		return "default: null"
	case param.Set:
		b, _ := json.Marshal(p.Default.Data)
		return "default: " + string(b)
	default:
		return "optional"
	}
}
