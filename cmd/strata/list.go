package main

import (
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nevindra/strata"
)

type listOptions struct {
	source   string
	contains string
	limit    int
	offset   int
}

func newListCmd(g *globals) *cobra.Command {
	opts := &listOptions{}
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored parent chunks",
		Long: `List parent chunks, newest first.

Examples:
  strata list
  strata list --source handbook.md --limit 50
  strata list --contains "sweetener" --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd, g, opts)
		},
	}
	cmd.Flags().StringVar(&opts.source, "source", "", "Only parents of this source id")
	cmd.Flags().StringVar(&opts.contains, "contains", "", "Only parents whose text contains this substring")
	cmd.Flags().IntVar(&opts.limit, "limit", 20, "Maximum parents to show (0 for all)")
	cmd.Flags().IntVar(&opts.offset, "offset", 0, "Parents to skip")
	return cmd
}

func runList(cmd *cobra.Command, g *globals, opts *listOptions) error {
	if opts.limit < 0 || opts.offset < 0 {
		return fmt.Errorf("--limit and --offset must not be negative")
	}
	ctx := cmd.Context()
	a, err := openApp(ctx, g)
	if err != nil {
		return err
	}
	defer a.Close()

	filter := strata.ParentFilter{SourceID: opts.source, TextContains: opts.contains}
	parents, total, err := a.parents.ListParents(ctx, filter, opts.limit, opts.offset)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if g.format == "json" {
		return printJSON(out, map[string]any{"parents": parents, "total": total})
	}
	if len(parents) == 0 {
		fmt.Fprintf(out, "No parents found\n")
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "PARENT ID\tSOURCE\t#\tTYPE\tCREATED\tTEXT\n")
	for _, p := range parents {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\n",
			p.ID, truncate(p.SourceID, 30), p.Ordinal, p.ContentType,
			formatTime(p.CreatedAt), truncate(oneLine(p.Text), 50))
	}
	w.Flush()
	fmt.Fprintf(out, "\nShowing %d of %d parent(s)\n", len(parents), total)
	return nil
}

type sourcesOptions struct {
	search string
	sortBy string
	desc   bool
	limit  int
	offset int
}

func newSourcesCmd(g *globals) *cobra.Command {
	opts := &sourcesOptions{}
	cmd := &cobra.Command{
		Use:   "sources",
		Short: "Summarize indexed sources",
		Long: `List every source with its parent count, content type breakdown and
most recent write.

Examples:
  strata sources
  strata sources --sort updated --desc
  strata sources --search gb --limit 10`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSources(cmd, g, opts)
		},
	}
	cmd.Flags().StringVar(&opts.search, "search", "", "Case-insensitive substring of the source id")
	cmd.Flags().StringVar(&opts.sortBy, "sort", "", "Sort by name, updated or count (default count desc)")
	cmd.Flags().BoolVar(&opts.desc, "desc", false, "Sort descending")
	cmd.Flags().IntVar(&opts.limit, "limit", 0, "Maximum sources to show (0 for all)")
	cmd.Flags().IntVar(&opts.offset, "offset", 0, "Sources to skip")
	return cmd
}

func runSources(cmd *cobra.Command, g *globals, opts *sourcesOptions) error {
	ctx := cmd.Context()
	a, err := openApp(ctx, g)
	if err != nil {
		return err
	}
	defer a.Close()

	page, total, err := a.parents.ListSources(ctx, strata.SourceQuery{
		Search: opts.search,
		SortBy: strata.SourceSort(opts.sortBy),
		Desc:   opts.desc,
		Limit:  opts.limit,
		Offset: opts.offset,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if g.format == "json" {
		return printJSON(out, map[string]any{"sources": page, "total": total})
	}
	if len(page) == 0 {
		fmt.Fprintf(out, "No sources found\n")
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "SOURCE\tPARENTS\tTYPES\tUPDATED\n")
	for _, s := range page {
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\n",
			truncate(s.SourceID, 40), s.Count, contentTypes(s.ContentTypes), formatTime(s.LatestAt))
	}
	w.Flush()
	fmt.Fprintf(out, "\nShowing %d of %d source(s)\n", len(page), total)
	return nil
}

// contentTypes renders a breakdown like "table=2 text=5" in key order.
func contentTypes(m map[strata.ContentType]int) string {
	parts := make([]string, 0, len(m))
	for ct, n := range m {
		parts = append(parts, fmt.Sprintf("%s=%d", ct, n))
	}
	sort.Strings(parts)
	return strings.Join(parts, " ")
}
