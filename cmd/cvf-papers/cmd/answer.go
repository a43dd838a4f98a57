package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mfenderov/cvf-papers/internal/answer"
	"github.com/mfenderov/cvf-papers/internal/llm"
	"github.com/mfenderov/cvf-papers/internal/sink"
	"github.com/spf13/cobra"
)

var (
	answerModel     string
	answerBatchSize int
)

var answerCmd = &cobra.Command{
	Use:   "answer QUESTION PAPERS OUTFILE",
	Short: "Ask a question about every crawled paper",
	Long: `Ask the same question about every paper in a crawled TSV file.

Each prompt is the paper's title and abstract followed by the question.
OUTFILE receives the question on the first line and then one answer per
paper, in input order.

Examples:
  cvf-papers answer "Does this paper use transformers?" cvpr2023.tsv answers.txt
  cvf-papers answer "Is the code released?" papers.tsv - --model ai/llama3.2 -b 16`,
	Args: cobra.ExactArgs(3),
	RunE: runAnswer,
}

func init() {
	rootCmd.AddCommand(answerCmd)

	answerCmd.Flags().StringVar(&answerModel, "model", "", "Model to use (default from config)")
	answerCmd.Flags().IntVarP(&answerBatchSize, "batch-size", "b", answer.DefaultBatchSize, "Number of concurrent prompts")
}

func runAnswer(cmd *cobra.Command, args []string) (err error) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	question, papersPath := args[0], args[1]
	cfg := GetConfig()
	if cmd.Flags().Changed("model") {
		cfg.LLM.Model = answerModel
	}
	if cmd.Flags().Changed("batch-size") {
		cfg.LLM.BatchSize = answerBatchSize
	}

	in, err := os.Open(papersPath)
	if err != nil {
		return fmt.Errorf("failed to open papers: %w", err)
	}
	papers, err := sink.ReadTSV(in)
	in.Close()
	if err != nil {
		return err
	}

	llmClient, err := llm.New(llm.Config{
		SocketPath: cfg.LLM.SocketPath,
		BaseURL:    cfg.LLM.BaseURL,
		Model:      cfg.LLM.Model,
		MaxTokens:  cfg.LLM.MaxTokens,
	})
	if err != nil {
		return fmt.Errorf("failed to create LLM client: %w", err)
	}

	answerer, err := answer.New(llmClient,
		answer.WithBatchSize(cfg.LLM.BatchSize),
		answer.WithLogger(slog.Default()),
	)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "Answering %d papers with %s\n", len(papers), cfg.LLM.Model)

	answers, err := answerer.Answer(ctx, question, papers)
	if err != nil {
		return err
	}

	out, closeOut, err := openOutput(cmd, args[2])
	if err != nil {
		return err
	}
	defer func() {
		if cerr := closeOut(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close output file: %w", cerr)
		}
	}()

	return answer.WriteAnswers(out, question, answers)
}
