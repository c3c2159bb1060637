package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/wippyai/wasm-tailcall/engine"
	"github.com/wippyai/wasm-tailcall/internal/sample"
	"github.com/wippyai/wasm-tailcall/runtime"
	"github.com/wippyai/wasm-tailcall/tailcall"
)

// DemoOptions holds flags for the demo command.
type DemoOptions struct {
	*RootOptions
	N       uint64
	Listing bool
}

// NewDemoCommand creates the demo command.
func NewDemoCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DemoOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run a built-in recursive sum before and after the rewrite",
		Long: `Run sum(n, 0) = n + (n-1) + ... + 1 from a built-in module, first in its
original form and then rewritten. With --engine interpreter the original
exhausts the call stack at depth 50000 while the rewritten form does not.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDemo(opts, cmd)
		},
	}

	cmd.Flags().Uint64Var(&opts.N, "n", 50000, "recursion depth")
	cmd.Flags().BoolVar(&opts.Listing, "listing", false, "print both bodies")

	return cmd
}

func runDemo(opts *DemoOptions, cmd *cobra.Command) (err error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	w := cmd.OutOrStdout()
	data := sample.Sum()

	if opts.Listing {
		if err := printListings(w, data); err != nil {
			return err
		}
	}

	rt, err := opts.newRuntime(ctx)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, rt.Close(ctx)) }()

	fmt.Fprintf(w, "engine: %s, tail calls: %t\n", rt.Engine().Kind(), rt.Engine().TailCalls())
	fmt.Fprintf(w, "expected: %d\n", sample.Expected(opts.N, 0))

	original, err := rt.Load(ctx, data, sample.SumName)
	if err != nil {
		return err
	}
	demoCall(ctx, w, "original", original, opts.N)

	rewritten, err := rt.Rewrite(ctx, data, sample.SumName)
	if err != nil {
		return err
	}
	demoCall(ctx, w, "rewritten", rewritten, opts.N)
	return nil
}

func demoCall(ctx context.Context, w io.Writer, label string, unit *runtime.Unit, n uint64) {
	sum, err := runtime.Bind[uint64, uint64](unit)
	if err == nil {
		var got uint64
		if got, err = sum(ctx, n, 0); err == nil {
			fmt.Fprintf(w, "%-9s sum(%d, 0) = %s\n", label, n, style(w, resultStyle, fmt.Sprint(got)))
			return
		}
	}
	msg := err.Error()
	if engine.IsStackOverflow(err) {
		msg = "stack overflow"
	}
	fmt.Fprintf(w, "%-9s sum(%d, 0) failed: %s\n", label, n, style(w, errorStyle, msg))
}

func printListings(w io.Writer, data []byte) error {
	before, err := tailcall.Listing(data, sample.SumName)
	if err != nil {
		return err
	}
	out, _, err := tailcall.TransformFunc(data, sample.SumName, nil)
	if err != nil {
		return err
	}
	after, err := tailcall.Listing(out, sample.SumName)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%s\n%s\n%s\n%s\n", style(w, titleStyle, "original"), before, style(w, titleStyle, "rewritten"), after)
	return nil
}
