package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "face-check",
	Short: "Register faces and verify them against the registered set",
	Long: `face-check stores face images and verifies new images against them using
face embeddings computed by an external embedding service (DeepFace over HTTP
or a gRPC embedding service).

It can run as a web server, an interactive menu or one-shot commands.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// exitError ends the process with code after the command has already
// reported the outcome itself.
type exitError struct {
	code int
}

func (e exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		var exit exitError
		if errors.As(err, &exit) {
			os.Exit(exit.code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
