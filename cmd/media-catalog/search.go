package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"media-catalog/internal/catalog"
	"media-catalog/internal/database"
	"media-catalog/internal/startup"
)

type searchOptions struct {
	sourceType string
	limit      int
	asJSON     bool
}

func newSearchCmd(global *globalOptions) *cobra.Command {
	opts := &searchOptions{}
	cmd := &cobra.Command{
		Use:   "search QUERY...",
		Short: "Query the index",
		Long: `Query the index built by scan. A "key:value" query matches structured
fields exactly (case-insensitively); anything else searches unit text.

Examples:
  media-catalog search artist:Adele
  media-catalog search "General Kenobi" --source-type subtitle_text
  media-catalog search width:1920 --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := startup.LoadConfig(global.configPath)
			if err != nil {
				return err
			}
			db, err := database.New(cmd.Context(), cfg.DatabasePath, &database.Options{ReadOnly: true})
			if err != nil {
				return err
			}
			defer closeDB(db)

			result, err := db.Search(cmd.Context(), database.SearchOptions{
				Query:      strings.Join(args, " "),
				SourceType: catalog.SourceType(opts.sourceType),
				Limit:      opts.limit,
			})
			if err != nil {
				return err
			}
			if opts.asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(result)
			}
			printResult(cmd.OutOrStdout(), result)
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.sourceType, "source-type", "", "only match units from this source type")
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 0, "maximum number of hits (default 50)")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "print the result as JSON")
	return cmd
}

func printResult(w io.Writer, r *database.SearchResult) {
	if !r.Found {
		fmt.Fprintf(w, "No results (%s search): %s\n", r.Mode, r.Reason)
		return
	}
	fmt.Fprintf(w, "%d of %d hits (%s search)\n", len(r.Hits), r.Total, r.Mode)
	for _, hit := range r.Hits {
		fmt.Fprintf(w, "\n%s [%s]\n", hit.Path, hit.SourceType)
		if hit.PrimaryPath != "" && hit.PrimaryPath != hit.Path {
			fmt.Fprintf(w, "  record: %s\n", hit.PrimaryPath)
		}
		switch {
		case hit.Key != "":
			fmt.Fprintf(w, "  %s: %s\n", hit.Key, hit.Value)
		case hit.Snippet != "":
			fmt.Fprintf(w, "  %s\n", strings.ReplaceAll(hit.Snippet, "\n", " "))
		}
	}
}
