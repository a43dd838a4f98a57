package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/mfenderov/cvf-papers/internal/config"
	"github.com/mfenderov/cvf-papers/pkg/models"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	verbose bool
	cfg     config.Config
	cfgErr  error // set when the config file or environment cannot be decoded
)

// GetConfig returns the loaded configuration.
func GetConfig() config.Config {
	return cfg
}

var rootCmd = &cobra.Command{
	Use:   "cvf-papers",
	Short: "Crawl CVF open access paper listings",
	Long: `cvf-papers crawls the CVF open access site for conference papers
and writes one tab-separated record per paper: title, authors, pdf link
and abstract.

Commands:
  crawl   Crawl one or more conferences into a TSV file
  answer  Ask a question about every paper in a TSV file
  ingest  Index an archived crawl from S3 into Elasticsearch
  search  Search indexed papers
  serve   Start the MCP server for paper retrieval`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return cfgErr
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig, initLogger)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
}

func initLogger() {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	slog.SetDefault(slog.New(handler))
}

func initConfig() {
	cfg = config.Defaults()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath("./config")
		viper.AddConfigPath("/etc/cvf-papers")
		viper.AddConfigPath(".")
	}

	// CVFPAPERS_CRAWLER_WORKERS -> crawler.workers
	viper.SetEnvPrefix("CVFPAPERS")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	for _, key := range []string{
		"crawler.base_url",
		"crawler.workers",
		"crawler.queue_size",
		"crawler.request_timeout",
		"crawler.user_agent",
		"output.header",
		"elasticsearch.addresses",
		"elasticsearch.index",
		"elasticsearch.username",
		"elasticsearch.password",
		"llm.socket_path",
		"llm.base_url",
		"llm.model",
		"llm.max_tokens",
		"llm.batch_size",
		"storage.endpoint",
		"storage.bucket",
		"storage.access_key_id",
		"storage.secret_access_key",
		"storage.use_ssl",
		"mcp.name",
		"mcp.version",
	} {
		viper.BindEnv(key, "CVFPAPERS_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")))
	}

	cfgErr = nil

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			cfgErr = fmt.Errorf("%w: failed to read config: %w", models.ErrConfiguration, err)
			return
		}
	}

	if err := viper.Unmarshal(&cfg); err != nil {
		cfgErr = fmt.Errorf("%w: failed to parse config: %w", models.ErrConfiguration, err)
		return
	}

	// Handle special case: addresses as comma-separated string from env
	if addrs := os.Getenv("CVFPAPERS_ELASTICSEARCH_ADDRESSES"); addrs != "" {
		cfg.Elasticsearch.Addresses = strings.Split(addrs, ",")
	}
}
