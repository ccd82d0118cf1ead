package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nevindra/strata"
)

type queryOptions struct {
	topK     int
	children bool
}

func newQueryCmd(g *globals) *cobra.Command {
	opts := &queryOptions{}
	cmd := &cobra.Command{
		Use:   "query <text>",
		Short: "Retrieve the parents whose children best match a query",
		Long: `Embed the query, search the child index and return the parent
chunks the best children belong to, with previews of the matching
children.

With --children, or when chunking.enable_parent_child is false, the
raw child hits are printed instead.

Examples:
  strata query "color requirements"
  strata query --top-k 10 --format json "sweetener limits"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd, g, opts, args[0])
		},
	}
	cmd.Flags().IntVarP(&opts.topK, "top-k", "k", 0, "Results to return (default retrieval.top_k)")
	cmd.Flags().BoolVar(&opts.children, "children", false, "Return raw child hits instead of parents")
	return cmd
}

func runQuery(cmd *cobra.Command, g *globals, opts *queryOptions, text string) error {
	ctx := cmd.Context()
	topK := opts.topK
	if topK == 0 {
		topK = g.cfg.Retrieval.TopK
	}
	if err := validatePositiveInt(topK, "top-k"); err != nil {
		return err
	}

	a, err := openApp(ctx, g)
	if err != nil {
		return err
	}
	defer a.Close()
	q := a.querier()
	out := cmd.OutOrStdout()

	if opts.children || !g.cfg.Chunking.EnableParentChild {
		hits, err := q.SearchChildren(ctx, text, topK)
		if err != nil {
			return err
		}
		if g.format == "json" {
			return printJSON(out, hits)
		}
		if len(hits) == 0 {
			fmt.Fprintf(out, "No matches for query: %s\n", text)
			return nil
		}
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "SCORE\tCHILD ID\tTEXT\n")
		for _, h := range hits {
			fmt.Fprintf(w, "%.3f\t%s\t%s\n", h.Score, h.Child.ID, truncate(oneLine(h.Child.Text), 70))
		}
		return w.Flush()
	}

	results, err := q.Query(ctx, text, topK)
	if err != nil {
		return err
	}
	if g.format == "json" {
		return printJSON(out, results)
	}
	if len(results) == 0 {
		fmt.Fprintf(out, "No matches for query: %s\n", text)
		return nil
	}
	for i, r := range results {
		fmt.Fprintf(out, "#%d  score %.3f  parent %s  source %s\n",
			i+1, r.Score, r.ParentID, r.Metadata.GetString(strata.MetaSourceID))
		fmt.Fprintln(out, indent(r.Text, "    "))
		for _, m := range r.Matched {
			fmt.Fprintf(out, "    > %.3f %s: %s\n", m.Score, m.ChildID, oneLine(m.Preview))
		}
		fmt.Fprintln(out)
	}
	return nil
}

func indent(s, prefix string) string {
	return prefix + strings.ReplaceAll(s, "\n", "\n"+prefix)
}
