package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nevindra/strata"
)

func newGetCmd(g *globals) *cobra.Command {
	var withChildren bool
	cmd := &cobra.Command{
		Use:   "get <parent-id>",
		Short: "Show one parent and its children",
		Long: `Print a stored parent chunk, its metadata and, with --children, the
child chunks indexed for it in child order.

Examples:
  strata get 0192f7c4-...
  strata get --children --format json 0192f7c4-...`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGet(cmd, g, args[0], withChildren)
		},
	}
	cmd.Flags().BoolVar(&withChildren, "children", false, "Also list the parent's children")
	return cmd
}

func runGet(cmd *cobra.Command, g *globals, id string, withChildren bool) error {
	ctx := cmd.Context()
	a, err := openApp(ctx, g)
	if err != nil {
		return err
	}
	defer a.Close()

	p, err := a.parents.GetParent(ctx, id)
	if err != nil {
		return err
	}
	var kids []strata.ChildRecord
	if withChildren {
		if kids, err = a.children.ListByParent(ctx, id); err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	if g.format == "json" {
		v := map[string]any{"parent": p}
		if withChildren {
			v["children"] = kids
		}
		return printJSON(out, v)
	}

	fmt.Fprintf(out, "Parent:   %s\n", p.ID)
	fmt.Fprintf(out, "Source:   %s (#%d)\n", p.SourceID, p.Ordinal)
	fmt.Fprintf(out, "Type:     %s\n", p.ContentType)
	fmt.Fprintf(out, "Created:  %s\n", p.CreatedAt.Format("2006-01-02 15:04:05Z07:00"))
	for _, k := range p.Metadata.Keys() {
		fmt.Fprintf(out, "  %s = %v\n", k, p.Metadata[k].Any())
	}
	fmt.Fprintf(out, "\n%s\n", p.Text)
	if withChildren {
		fmt.Fprintf(out, "\nChildren (%d):\n", len(kids))
		for _, k := range kids {
			fmt.Fprintf(out, "  [%d] %s  %s\n", k.ChildIndex, k.ContentType, truncate(oneLine(k.Text), 70))
		}
	}
	return nil
}
