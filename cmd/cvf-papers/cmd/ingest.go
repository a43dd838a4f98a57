package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/mfenderov/cvf-papers/internal/elasticsearch"
	"github.com/mfenderov/cvf-papers/internal/ingestion"
	"github.com/mfenderov/cvf-papers/internal/storage"
	"github.com/spf13/cobra"
)

var (
	ingestPrefix     string
	ingestConference string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Index archived crawls from S3 into Elasticsearch",
	Long: `Index previously archived crawls from S3 into Elasticsearch.

Use this command to re-run indexing on an existing crawl, or to index
crawls that were uploaded with --upload but without --index.

Examples:
  # Ingest a specific crawl by prefix
  cvf-papers ingest --prefix crawls/CVPR2023/2024-12-04T17-30-00-abc12345

  # Ingest every archived crawl of a conference
  cvf-papers ingest --conference CVPR2023`,
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)

	ingestCmd.Flags().StringVar(&ingestPrefix, "prefix", "", "S3 prefix to ingest")
	ingestCmd.Flags().StringVar(&ingestConference, "conference", "", "Ingest all archived crawls of this conference")
	ingestCmd.MarkFlagsOneRequired("prefix", "conference")
	ingestCmd.MarkFlagsMutuallyExclusive("prefix", "conference")
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := GetConfig()
	slog.Debug("ingest command starting", "prefix", ingestPrefix, "conference", ingestConference)

	if cfg.Storage.Endpoint == "" {
		return fmt.Errorf("storage not configured - check config file")
	}

	storageClient, err := storage.New(storage.Config{
		Endpoint:        cfg.Storage.Endpoint,
		Bucket:          cfg.Storage.Bucket,
		AccessKeyID:     cfg.Storage.AccessKeyID,
		SecretAccessKey: cfg.Storage.SecretAccessKey,
		UseSSL:          cfg.Storage.UseSSL,
	})
	if err != nil {
		return fmt.Errorf("failed to create storage client: %w", err)
	}

	esClient, err := elasticsearch.New(elasticsearch.Config{
		Addresses: cfg.Elasticsearch.Addresses,
		Index:     cfg.Elasticsearch.Index,
		Username:  cfg.Elasticsearch.Username,
		Password:  cfg.Elasticsearch.Password,
	})
	if err != nil {
		return fmt.Errorf("failed to create ES client: %w", err)
	}

	prefixes := []string{ingestPrefix}
	if ingestConference != "" {
		prefixes, err = storageClient.ListCrawls(ctx, ingestConference)
		if err != nil {
			return err
		}
		if len(prefixes) == 0 {
			return fmt.Errorf("no archived crawls found for %s", ingestConference)
		}
	}

	engine := ingestion.New(storageClient, esClient)
	out := cmd.OutOrStdout()

	for _, prefix := range prefixes {
		fmt.Fprintf(out, "Ingesting: %s\n", prefix)

		result, err := engine.Ingest(ctx, prefix)
		if err != nil {
			return fmt.Errorf("ingestion failed: %w", err)
		}

		fmt.Fprintf(out, "  Docs indexed: %d\n", result.DocsIndexed)
		fmt.Fprintf(out, "  Duration: %v\n", result.Duration)

		if len(result.Errors) > 0 {
			fmt.Fprintf(out, "  Warnings: %d\n", len(result.Errors))
			for _, e := range result.Errors {
				fmt.Fprintf(out, "    - %s\n", e)
			}
		}
	}

	return nil
}
