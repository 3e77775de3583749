package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/ashureev/hope-map/internal/prep"
	"github.com/spf13/cobra"
)

var (
	evaluateManual string
	evaluateIn     string
	evaluateOut    string
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Compare model sentiment labels with hand labels",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !cmd.Flags().Changed("in") {
			evaluateIn = cfg.Stories.AnalyzedPath
		}

		manual, err := prep.ReadStories(evaluateManual)
		if err != nil {
			return fmt.Errorf("reading hand labels: %w", err)
		}
		predicted, err := prep.ReadStories(evaluateIn)
		if err != nil {
			return fmt.Errorf("reading analyzed stories (run analyze first): %w", err)
		}

		ev := prep.Evaluate(manual, predicted)
		for _, id := range ev.Unmatched {
			logger.Warn("hand-labelled story has no model label", "story_id", id)
		}
		printEvaluation(cmd.OutOrStdout(), ev)

		if evaluateOut == "" {
			return nil
		}
		raw, err := json.MarshalIndent(ev, "", "    ")
		if err != nil {
			return err
		}
		if err := os.WriteFile(evaluateOut, raw, 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", evaluateOut, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Saved evaluation to %s\n", evaluateOut)
		return nil
	},
}

func printEvaluation(w io.Writer, ev prep.Evaluation) {
	fmt.Fprintf(w, "Compared %d stories, accuracy %.3f\n\n", ev.Compared, ev.Accuracy)

	fmt.Fprintf(w, "%-10s", "actual")
	for _, l := range ev.Labels {
		fmt.Fprintf(w, "%10s", l)
	}
	fmt.Fprintln(w)
	for i, l := range ev.Labels {
		fmt.Fprintf(w, "%-10s", l)
		for _, n := range ev.Matrix[i] {
			fmt.Fprintf(w, "%10d", n)
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "\n%-10s%10s%10s%10s%10s\n", "", "precision", "recall", "f1", "support")
	for _, l := range ev.Labels {
		r := ev.Classes[l]
		fmt.Fprintf(w, "%-10s%10.3f%10.3f%10.3f%10d\n", l, r.Precision, r.Recall, r.F1, r.Support)
	}
}

func init() {
	evaluateCmd.Flags().StringVar(&evaluateManual, "manual", "manual_labels.json", "Hand-labelled stories file")
	evaluateCmd.Flags().StringVar(&evaluateIn, "in", "analyzed_stories.json", "Analyzed stories file")
	evaluateCmd.Flags().StringVar(&evaluateOut, "out", "evaluation.json", "Report output file, empty to skip")
}
