// Storyprep builds the story corpus files served by the Hope server.
package main

import (
	"os"
)

func main() {
	err := rootCmd.Execute()
	// PersistentPostRunE is skipped when a command fails.
	_ = closeLog()
	if err != nil {
		os.Exit(1)
	}
}
