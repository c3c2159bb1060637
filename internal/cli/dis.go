package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wippyai/wasm-tailcall/tailcall"
)

// DisOptions holds flags for the dis command.
type DisOptions struct {
	*RootOptions
	Func      string
	Rewritten bool
}

// NewDisCommand creates the dis command.
func NewDisCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DisOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "dis <module.wasm>",
		Short: "Print a function body in text format",
		Long: `Print the instructions of a function, one per line, indented by block depth.

Without --func the defined functions are listed. --rewritten prints the
body after the tail-call rewrite.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDis(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Func, "func", "f", "", "function name")
	cmd.Flags().BoolVar(&opts.Rewritten, "rewritten", false, "show the rewritten body")

	return cmd
}

func runDis(opts *DisOptions, in string, cmd *cobra.Command) error {
	data, err := readModule(in)
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()

	if opts.Func == "" {
		names, err := tailcall.Functions(data)
		if err != nil {
			return err
		}
		for _, name := range names {
			rewritten, err := tailcall.IsRewritten(data, name)
			if err != nil {
				return err
			}
			mark := ""
			if rewritten {
				mark = " (tail calls)"
			}
			fmt.Fprintf(w, "%s%s\n", style(w, funcStyle, name), mark)
		}
		return nil
	}

	if opts.Rewritten {
		data, _, err = tailcall.TransformFunc(data, opts.Func, opts.Logger)
		if err != nil {
			return err
		}
	}
	listing, err := tailcall.Listing(data, opts.Func)
	if err != nil {
		return err
	}
	fmt.Fprint(w, listing)
	return nil
}
