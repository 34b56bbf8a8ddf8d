package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/example/wikisync/internal/fileutil"
	"github.com/example/wikisync/internal/index"
)

var searchFlags struct {
	categories []string
	spaces     []string
	limit      int
	content    bool
	json       bool
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search every space",
	Long: `Build the index and run one query against it.

Examples:
  wikisync search deploy
  wikisync search "release notes" --category markdown --space eng`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		if err := a.index.Build(cmd.Context()); err != nil {
			return err
		}

		opts := index.SearchOptions{
			Spaces:         searchFlags.spaces,
			MaxResults:     searchFlags.limit,
			IncludeContent: searchFlags.content,
		}
		if opts.MaxResults == 0 {
			opts.MaxResults = cfg.Index.MaxResults
		}
		for _, s := range searchFlags.categories {
			c, ok := fileutil.ParseCategory(s)
			if !ok {
				return fmt.Errorf("unknown category %q", s)
			}
			opts.Categories = append(opts.Categories, c)
		}

		results := a.index.Search(strings.Join(args, " "), opts)
		if searchFlags.json {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(results)
		}
		if len(results) == 0 {
			fmt.Println("No results found")
			return nil
		}
		for _, r := range results {
			fmt.Printf("%6.2f  [%s] %s/%s\n", r.Score, r.Category, r.SpaceName, r.Path)
			if r.Excerpt != "" {
				fmt.Printf("        %s\n", r.Excerpt)
			}
		}
		return nil
	},
}

func init() {
	f := searchCmd.Flags()
	f.StringSliceVar(&searchFlags.categories, "category", nil, "only these categories (markdown, text, data, pdf, ...)")
	f.StringSliceVar(&searchFlags.spaces, "space", nil, "only these space IDs or names")
	f.IntVarP(&searchFlags.limit, "limit", "n", 0, "maximum results (default index.max_results)")
	f.BoolVar(&searchFlags.content, "content", false, "include full text of text-like files")
	f.BoolVar(&searchFlags.json, "json", false, "print results as JSON")
	rootCmd.AddCommand(searchCmd)
}
