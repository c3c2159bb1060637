package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wippyai/wasm-tailcall/errors"
	"github.com/wippyai/wasm-tailcall/tailcall"
)

// RewriteOptions holds flags for the rewrite command.
type RewriteOptions struct {
	*RootOptions
	Output string
	Funcs  []string
	DryRun bool
}

// NewRewriteCommand creates the rewrite command.
func NewRewriteCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RewriteOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "rewrite <module.wasm>",
		Short: "Rewrite tail calls and write the module",
		Long: `Rewrite self-recursive tail calls into return_call and write the result.

Without --func every function of the form (param x acc) (result acc) is
considered. A trailing * in a --func pattern matches a prefix. The output
defaults to <module>.tail.wasm next to the input.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRewrite(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")
	cmd.Flags().StringSliceVarP(&opts.Funcs, "func", "f", nil, "function names or prefix* patterns")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "print the report without writing")

	return cmd
}

func runRewrite(opts *RewriteOptions, in string, cmd *cobra.Command) error {
	data, err := readModule(in)
	if err != nil {
		return err
	}

	out, report, err := tailcall.Transform(data, tailcall.Config{
		Functions: tailcall.ParseFunctionPatterns(opts.Funcs),
		Logger:    opts.Logger,
	})
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	printReport(w, report)
	if opts.DryRun {
		return nil
	}

	path := opts.Output
	if path == "" {
		path = strings.TrimSuffix(in, filepath.Ext(in)) + ".tail.wasm"
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return errors.Wrap(errors.PhaseEncode, errors.KindInvalidInput, err, "write "+path)
	}
	fmt.Fprintf(w, "wrote %s\n", path)
	return nil
}
