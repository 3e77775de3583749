package main

import (
	"fmt"

	"github.com/ashureev/hope-map/internal/llm"
	"github.com/ashureev/hope-map/internal/prep"
	"github.com/spf13/cobra"
)

var (
	analyzeDataDir string
	analyzeOut     string
	analyzeRetries int
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Label every .txt story with a sentiment and one-sentence summary",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !cmd.Flags().Changed("data-dir") {
			analyzeDataDir = cfg.Stories.DataDir
		}
		if !cmd.Flags().Changed("out") {
			analyzeOut = cfg.Stories.AnalyzedPath
		}

		ctx, cancel := interruptible()
		defer cancel()

		// Classification should be deterministic.
		llmCfg := cfg.LLM
		llmCfg.Temperature = 0
		gen, err := llm.New(ctx, llmCfg, logger)
		if err != nil {
			return fmt.Errorf("creating model client: %w", err)
		}
		if closer, ok := gen.(llm.Closer); ok {
			defer closer.Close()
		}
		analyzer := llm.NewAnalyzer(gen, logger, llm.WithMaxRetries(analyzeRetries))

		fmt.Printf("Analyzing stories in %s using %s...\n", analyzeDataDir, llmCfg.Model)
		stories, err := prep.Analyze(ctx, analyzer, analyzeDataDir, printProgress)
		if err != nil {
			if ctx.Err() != nil && len(stories) > 0 {
				fmt.Printf("\nInterrupted after %d stories, saving partial results\n", len(stories))
			} else {
				return err
			}
		}

		if err := prep.WriteStories(analyzeOut, stories); err != nil {
			return err
		}
		fmt.Printf("Saved %d analyzed stories to %s\n", len(stories), analyzeOut)
		return nil
	},
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeDataDir, "data-dir", "data", "Directory containing .txt stories")
	analyzeCmd.Flags().StringVar(&analyzeOut, "out", "analyzed_stories.json", "Output file")
	analyzeCmd.Flags().IntVar(&analyzeRetries, "retries", 3, "Attempts per story before falling back")
}
