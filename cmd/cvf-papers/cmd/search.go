package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/mfenderov/cvf-papers/internal/elasticsearch"
	"github.com/spf13/cobra"
)

var (
	searchLimit      int
	searchConference string
	searchFormat     string
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search indexed papers",
	Long: `Search indexed papers by title, abstract and authors.

Examples:
  # Basic search
  cvf-papers search "neural radiance fields"

  # Restrict to one conference
  cvf-papers search "pose estimation" --conference ICCV2023 --limit 5

  # JSON output for scripting
  cvf-papers search "diffusion" --format json`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)

	searchCmd.Flags().IntVar(&searchLimit, "limit", 10, "Maximum number of results")
	searchCmd.Flags().StringVar(&searchConference, "conference", "", "Only return papers of this conference")
	searchCmd.Flags().StringVar(&searchFormat, "format", "text", "Output format: text or json")
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := GetConfig()

	esClient, err := elasticsearch.New(elasticsearch.Config{
		Addresses: cfg.Elasticsearch.Addresses,
		Index:     cfg.Elasticsearch.Index,
		Username:  cfg.Elasticsearch.Username,
		Password:  cfg.Elasticsearch.Password,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to Elasticsearch: %w", err)
	}

	docs, err := esClient.Search(ctx, elasticsearch.SearchRequest{
		Query:      args[0],
		Conference: searchConference,
		Limit:      searchLimit,
	})
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(docs) == 0 {
		fmt.Fprintln(out, "No results found.")
		return nil
	}

	if searchFormat == "json" {
		output, err := json.MarshalIndent(docs, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(output))
		return nil
	}

	fmt.Fprintf(out, "Found %d results:\n\n", len(docs))
	for i, doc := range docs {
		fmt.Fprintf(out, "─── Result %d ───\n", i+1)
		fmt.Fprintf(out, "Title:      %s\n", doc.Title)
		fmt.Fprintf(out, "Authors:    %s\n", doc.Authors)
		fmt.Fprintf(out, "Conference: %s\n", doc.Conference)
		fmt.Fprintf(out, "PDF:        %s\n", doc.Link)
		fmt.Fprintf(out, "ID:         %s\n", doc.ID)

		abstract := doc.Abstract
		if len(abstract) > 500 {
			abstract = abstract[:500] + "..."
		}
		fmt.Fprintf(out, "Abstract:\n%s\n\n", abstract)
	}

	return nil
}
