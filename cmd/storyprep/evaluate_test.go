package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/ashureev/hope-map/internal/prep"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluateCommandWritesReportAndClosesLog(t *testing.T) {
	dir := t.TempDir()
	logFile := filepath.Join(dir, "storyprep.log")
	t.Setenv("LOG_FILE", logFile)

	manualPath := filepath.Join(dir, "manual.json")
	analyzedPath := filepath.Join(dir, "analyzed.json")
	outPath := filepath.Join(dir, "evaluation.json")
	require.NoError(t, prep.WriteStories(manualPath, []prep.Story{
		{ID: "1 [A]", Sentiment: "positive"},
		{ID: "2 [B]", Sentiment: "negative"},
		{ID: "3 [C]", Sentiment: "neutral"},
	}))
	require.NoError(t, prep.WriteStories(analyzedPath, []prep.Story{
		{ID: "1 [A]", Sentiment: "positive"},
		{ID: "2 [B]", Sentiment: "neutral"},
	}))

	var stdout bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetArgs([]string{
		"evaluate",
		"--config", filepath.Join(dir, "missing.toml"),
		"--manual", manualPath,
		"--in", analyzedPath,
		"--out", outPath,
	})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
		_ = closeLog()
	})

	require.NoError(t, rootCmd.Execute())

	assert.Contains(t, stdout.String(), "Compared 2 stories, accuracy 0.500")
	assert.FileExists(t, outPath)

	// The unmatched story is logged, so the rotated file was opened.
	assert.FileExists(t, logFile)
	assert.Nil(t, logCloser, "log file left open after the command finished")

	raw, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"story_id":"3 [C]"`)
}
