package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/joegilkes/speechcli/internal/clierr"
	"github.com/joegilkes/speechcli/internal/config"
	"github.com/joegilkes/speechcli/internal/registry"
	"github.com/joegilkes/speechcli/internal/synth"
)

var version = "0.2.0"

var (
	flagAPIKey   string
	flagFormat   string
	flagOutput   string
	flagForce    bool
	flagVerbose  bool
	flagMetadata string
	flagConfig   string
)

var log = newLogger()

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	return l
}

func newRootCmd(cfg *config.Config, reg *registry.Registry) *cobra.Command {
	root := &cobra.Command{
		Use:           "speechcli",
		Short:         "CLI for the speech API, synthesized from SDK metadata",
		Long:          "Every API method becomes a subcommand; namespaces nest. Commands, flags, and help text are generated from the SDK method metadata document.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			if flagVerbose {
				log.SetLevel(logrus.DebugLevel)
			}
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&flagAPIKey, "api-key", "k", "", "API key (overrides environment and .env files)")
	pf.StringVarP(&flagFormat, "format", "f", "", "output format for structured results (json, text, table)")
	pf.StringVarP(&flagOutput, "output", "o", "", "write the result to a file instead of stdout")
	pf.BoolVar(&flagForce, "force", false, "allow binary output on an interactive terminal")
	pf.BoolVarP(&flagVerbose, "verbose", "v", false, "verbose status output on stderr")
	pf.StringVar(&flagMetadata, "metadata", "", "path to the SDK method metadata document")
	pf.StringVar(&flagConfig, "config", "", "path to the config file")

	for _, c := range synth.Synthesize(reg, methodRunner(cfg)) {
		root.AddCommand(c)
	}
	root.AddCommand(newMethodsCmd(reg))
	return root
}

func run(ctx context.Context) error {
	// The command tree is synthesized from the metadata document, so the
	// document location must be known before cobra parses anything.
	cfgPath := scanFlag(os.Args[1:], "--config")
	metaPath := scanFlag(os.Args[1:], "--metadata")

	var cfg *config.Config
	var err error
	if cfgPath != "" {
		cfg, err = config.LoadFrom(cfgPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return clierr.Wrap(clierr.Config, err, "loading config")
	}
	cfg.ApplyEnv()

	reg, err := registry.Load(cfg.ResolveMetadataPath(metaPath))
	if err != nil {
		return err
	}

	root := newRootCmd(cfg, reg)
	return root.ExecuteContext(ctx)
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := run(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(clierr.ExitCode(err))
	}
}

// scanFlag extracts one string flag from raw args ahead of cobra parsing.
func scanFlag(args []string, name string) string {
	for i, a := range args {
		if a == name && i+1 < len(args) {
			return args[i+1]
		}
		if v, ok := strings.CutPrefix(a, name+"="); ok {
			return v
		}
	}
	return ""
}
