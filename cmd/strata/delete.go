package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

type deleteOptions struct {
	source string
	parent string
}

func newDeleteCmd(g *globals) *cobra.Command {
	opts := &deleteOptions{}
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete a source or a single parent with its children",
		Long: `Delete chunks from both tiers. Children are removed before their
parent, so an interrupted delete can simply be repeated.

Examples:
  strata delete --source handbook.md
  strata delete --parent 0192f7c4-...`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDelete(cmd, g, opts)
		},
	}
	cmd.Flags().StringVar(&opts.source, "source", "", "Source id to delete")
	cmd.Flags().StringVar(&opts.parent, "parent", "", "Parent id to delete")
	cmd.MarkFlagsMutuallyExclusive("source", "parent")
	cmd.MarkFlagsOneRequired("source", "parent")
	return cmd
}

func runDelete(cmd *cobra.Command, g *globals, opts *deleteOptions) error {
	ctx := cmd.Context()
	a, err := openApp(ctx, g)
	if err != nil {
		return err
	}
	defer a.Close()

	p, err := a.pipeline()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	if opts.parent != "" {
		if err := p.DeleteParent(ctx, opts.parent); err != nil {
			return err
		}
		if g.format == "json" {
			return printJSON(out, map[string]any{"deleted": []string{opts.parent}})
		}
		fmt.Fprintf(out, "Deleted parent %s\n", opts.parent)
		return nil
	}

	ids, err := p.DeleteSource(ctx, opts.source)
	if err != nil {
		return err
	}
	if g.format == "json" {
		if ids == nil {
			ids = []string{}
		}
		return printJSON(out, map[string]any{"source_id": opts.source, "deleted": ids})
	}
	if len(ids) == 0 {
		fmt.Fprintf(out, "Nothing stored for source %s\n", opts.source)
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "DELETED PARENT\n")
	for _, id := range ids {
		fmt.Fprintf(w, "%s\n", id)
	}
	w.Flush()
	fmt.Fprintf(out, "\nDeleted %d parent(s) of %s\n", len(ids), opts.source)
	return nil
}
