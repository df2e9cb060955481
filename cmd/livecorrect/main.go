// Command livecorrect serves a transcription page for correction in the
// browser and stores it when the user presses finish.
package main

import (
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
