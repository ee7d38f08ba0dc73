package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

var verifyCmd = &cobra.Command{
	Use:   "verify <image>",
	Short: "Find the registered person whose face matches an image",
	Long: `Compare the face in an image with every registered face.

A face is searched for with retinaface, then mtcnn, then opencv. The closest
registered face is a match when its cosine distance is below 0.35. The command
exits with status 0 on a match and 1 otherwise.

Examples:
  face-check verify ./visitor.jpg`,
	Args: cobra.ExactArgs(1),
	RunE: runVerify,
}

func init() {
	rootCmd.AddCommand(verifyCmd)
}

func runVerify(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context(), true)
	if err != nil {
		return err
	}
	defer a.Close()

	return verifyOnce(cmd.Context(), cmd.OutOrStdout(), a.faces, args[0])
}

func verifyOnce(ctx context.Context, out io.Writer, svc faceService, imagePath string) error {
	result := verifyWithBar(ctx, out, svc, imagePath)
	fmt.Fprintln(out, result.Message)
	if !result.Success {
		return exitError{code: 1}
	}
	return nil
}
