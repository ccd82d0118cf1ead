package main

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nevindra/strata/ingest"
)

type indexOptions struct {
	source  string
	reindex bool
}

func newIndexCmd(g *globals) *cobra.Command {
	opts := &indexOptions{}
	cmd := &cobra.Command{
		Use:   "index <path>...",
		Short: "Index files or directories",
		Long: `Read files, split them into parent and child chunks, embed the
children and write both tiers.

Directories are walked recursively; files with a known extension
(txt, md, html, csv, pdf, json, docx) are indexed. The source id of a
file is its base name unless --source is given for a single file.

Examples:
  strata index handbook.md
  strata index --reindex ./docs
  strata index --source standards/GB-2760 gb2760.pdf`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIndex(cmd, g, opts, args)
		},
	}
	cmd.Flags().StringVar(&opts.source, "source", "", "Source id for a single file")
	cmd.Flags().BoolVar(&opts.reindex, "reindex", false, "Delete each source's existing chunks before indexing")
	return cmd
}

func runIndex(cmd *cobra.Command, g *globals, opts *indexOptions, args []string) error {
	ctx := cmd.Context()

	files, err := collectFiles(args)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no indexable files under %v", args)
	}
	if opts.source != "" && len(files) != 1 {
		return fmt.Errorf("--source needs exactly one file, got %d", len(files))
	}

	reader := ingest.NewReader()
	docs := make([]ingest.Document, 0, len(files))
	for _, f := range files {
		doc, err := reader.ReadFile(f)
		if err != nil {
			return err
		}
		if opts.source != "" {
			doc.SourceID = opts.source
		}
		docs = append(docs, doc)
	}

	a, err := openApp(ctx, g)
	if err != nil {
		return err
	}
	defer a.Close()

	p, err := a.pipeline()
	if err != nil {
		return err
	}
	if opts.reindex {
		for _, d := range docs {
			ids, err := p.DeleteSource(ctx, d.SourceID)
			if err != nil {
				return fmt.Errorf("reindex %s: %w", d.SourceID, err)
			}
			g.logger.Debug("cleared source before reindex", "source_id", d.SourceID, "parents", len(ids))
		}
	}

	results, err := p.IndexDocuments(ctx, docs)
	if g.format == "json" {
		if perr := printJSON(cmd.OutOrStdout(), results); perr != nil {
			return perr
		}
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "SOURCE\tPARENTS\tCHILDREN\tBATCHES\tDURATION\n")
	for _, r := range results {
		if r.SourceID == "" {
			continue
		}
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%s\n",
			truncate(r.SourceID, 40), len(r.ParentIDs), r.Children, r.Batches, r.Duration.Round(time.Millisecond))
	}
	w.Flush()
	return err
}

// collectFiles expands directories into their indexable files. Explicit
// file arguments are always kept.
func collectFiles(args []string) ([]string, error) {
	var files []string
	for _, arg := range args {
		err := filepath.WalkDir(arg, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			if path == arg || ingest.IsIndexable(filepath.Ext(path)) {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return files, nil
}
