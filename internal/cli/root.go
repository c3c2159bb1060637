// Package cli implements the tailcall command.
package cli

import (
	"context"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-tailcall/config"
	"github.com/wippyai/wasm-tailcall/engine"
	"github.com/wippyai/wasm-tailcall/errors"
	"github.com/wippyai/wasm-tailcall/runtime"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath  string
	Engine      string
	LogLevel    string
	NoTailCalls bool

	// Set by the root command before a subcommand runs.
	Config *config.Config
	Logger *zap.Logger
}

// NewRootCommand creates the root command of the tailcall CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "tailcall",
		Short: "Rewrite self-recursive WebAssembly calls into tail calls",
		Long: `tailcall rewrites self-recursive calls whose result is returned unchanged
into return_call, so deep recursion runs in constant stack space.

Configuration is read from --config (TOML or YAML), then TAILCALL_*
environment variables, then command-line flags.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if opts.Logger != nil {
				_ = opts.Logger.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "configuration file (.toml, .yaml)")
	cmd.PersistentFlags().StringVar(&opts.Engine, "engine", "", "wazero engine (auto|compiler|interpreter)")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "log level (debug|info|warn|error)")
	cmd.PersistentFlags().BoolVar(&opts.NoTailCalls, "no-tail-calls", false, "disable the tail-call proposal and bind original functions")

	cmd.AddCommand(NewRewriteCommand(opts))
	cmd.AddCommand(NewDisCommand(opts))
	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewDemoCommand(opts))
	cmd.AddCommand(NewInspectCommand(opts))

	return cmd
}

func (o *RootOptions) load(cmd *cobra.Command) error {
	cfg := config.Default()
	if o.ConfigPath != "" {
		var err error
		if cfg, err = config.Load(o.ConfigPath); err != nil {
			return err
		}
	}
	if err := cfg.ApplyEnv(nil); err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("engine") {
		cfg.Engine.Kind = o.Engine
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = o.LogLevel
	}
	if flags.Changed("no-tail-calls") {
		cfg.Engine.DisableTailCalls = o.NoTailCalls
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log, err := cfg.NewLogger()
	if err != nil {
		return err
	}
	engine.SetLogger(log)
	o.Config = cfg
	o.Logger = log
	return nil
}

// newRuntime creates a runtime from the loaded configuration.
func (o *RootOptions) newRuntime(ctx context.Context) (*runtime.Runtime, error) {
	rc, err := o.Config.Runtime(o.Logger)
	if err != nil {
		return nil, err
	}
	return runtime.New(ctx, rc)
}

func readModule(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseDecode, errors.KindNotFound, err, "read "+path)
	}
	return data, nil
}
