package cmd

import (
	"context"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/joegilkes/speechcli/internal/client"
	"github.com/joegilkes/speechcli/internal/config"
	"github.com/joegilkes/speechcli/internal/invoke"
	"github.com/joegilkes/speechcli/internal/output"
	"github.com/joegilkes/speechcli/internal/param"
	"github.com/joegilkes/speechcli/internal/registry"
	"github.com/joegilkes/speechcli/internal/synth"
)

// methodRunner wires a synthesized command to the invocation pipeline and
// the output router. All configuration is threaded through explicitly; there
// is no process-wide client state.
func methodRunner(cfg *config.Config) synth.RunFunc {
	return func(cmd *cobra.Command, m *registry.Method, inputs map[string]param.Input) error {
		// One ceiling over the whole call: retries and result consumption.
		ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Timeout())
		defer cancel()

		pipe := &invoke.Pipeline{
			Exec: client.NewHTTP(cfg.Client.BaseURL),
			Log:  log,
		}
		res, err := pipe.Invoke(ctx, m, inputs, invoke.Options{APIKeyFlag: flagAPIKey})
		if err != nil {
			return err
		}

		format := flagFormat
		if format == "" {
			format = cfg.Output.Format
		}
		dest := output.Destination{
			Path:       flagOutput,
			Stdout:     cmd.OutOrStdout(),
			IsTerminal: isatty.IsTerminal(os.Stdout.Fd()),
			Force:      flagForce,
			Format:     format,
			Log:        log,
		}
		return output.Route(m.Returns, res, dest)
	}
}
