package cli

import (
	"context"
	stderrors "errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-tailcall/engine"
	"github.com/wippyai/wasm-tailcall/errors"
	"github.com/wippyai/wasm-tailcall/runtime"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Func      string
	Arg       string
	Acc       string
	Signature string
	Original  bool
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <module.wasm>",
		Short: "Call a function in its tail-call form",
		Long: `Rewrite a function, load it in wazero and call it with an argument and an
accumulator.

Values are parsed with the WIT signature of --sig, or with the core types
read as unsigned integers. When the function has no rewritable tail call
the original is called.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Func, "func", "f", "", "function name")
	cmd.Flags().StringVarP(&opts.Arg, "arg", "n", "", "recursion argument")
	cmd.Flags().StringVar(&opts.Acc, "acc", "0", "initial accumulator")
	cmd.Flags().StringVar(&opts.Signature, "sig", "", `WIT signature, e.g. "func(n: u64, acc: u64) -> u64"`)
	cmd.Flags().BoolVar(&opts.Original, "original", false, "call the function without rewriting it")
	_ = cmd.MarkFlagRequired("func")
	_ = cmd.MarkFlagRequired("arg")

	return cmd
}

func runRun(opts *RunOptions, in string, cmd *cobra.Command) (err error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	data, err := readModule(in)
	if err != nil {
		return err
	}

	rt, err := opts.newRuntime(ctx)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, rt.Close(ctx)) }()

	unit, err := bindUnit(ctx, rt, data, opts.Func, opts.Original, opts.Logger)
	if err != nil {
		return err
	}

	result, err := callUnit(ctx, unit, opts.Signature, opts.Arg, opts.Acc)
	if err != nil {
		return err
	}
	form := "original"
	if unit.Rewritten {
		form = "rewritten, " + strconv.Itoa(unit.Sites) + " site(s)"
	}
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "%s(%s, %s) = %s  [%s]\n",
		style(w, funcStyle, opts.Func), opts.Arg, opts.Acc,
		style(w, resultStyle, fmt.Sprint(result)), form)
	return nil
}

// bindUnit rewrites funcName, falling back to the original when the
// function has no tail-call site.
func bindUnit(ctx context.Context, rt *runtime.Runtime, data []byte, funcName string, original bool, log *zap.Logger) (*runtime.Unit, error) {
	if original {
		return rt.Load(ctx, data, funcName)
	}
	unit, err := rt.Rewrite(ctx, data, funcName)
	var e *errors.Error
	if stderrors.As(err, &e) && (e.Kind == errors.KindNoTailCallPattern || e.Kind == errors.KindUnsupported) {
		log.Warn("calling original function", zap.String("func", funcName), zap.Error(err))
		return rt.Load(ctx, data, funcName)
	}
	return unit, err
}

func callUnit(ctx context.Context, unit *runtime.Unit, sigText, arg, acc string) (any, error) {
	var (
		sig *engine.Signature
		err error
	)
	if sigText != "" {
		sig, err = engine.ParseSignature(sigText)
	} else {
		sig, err = unit.Signature()
	}
	if err != nil {
		return nil, err
	}
	args, err := sig.ParseArgs([]string{arg, acc})
	if err != nil {
		return nil, err
	}
	return unit.CallWithSignature(ctx, sig, args...)
}
