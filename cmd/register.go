package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

var registerCmd = &cobra.Command{
	Use:   "register --name <name> <image>",
	Short: "Register the face in an image under a name",
	Long: `Register the face in an image under a name.

The image must contain a face (detected with retinaface). It is re-encoded as
JPEG and stored; the command exits non-zero when registration fails.

Examples:
  face-check register --name "Jane Doe" ./jane.jpg`,
	Args: cobra.ExactArgs(1),
	RunE: runRegister,
}

func init() {
	rootCmd.AddCommand(registerCmd)

	registerCmd.Flags().String("name", "", "Name of the person in the image")
	_ = registerCmd.MarkFlagRequired("name")
}

func runRegister(cmd *cobra.Command, args []string) error {
	name, _ := cmd.Flags().GetString("name")

	a, err := openApp(cmd.Context(), true)
	if err != nil {
		return err
	}
	defer a.Close()

	return registerOnce(cmd.Context(), cmd.OutOrStdout(), a.faces, args[0], name)
}

func registerOnce(ctx context.Context, out io.Writer, svc faceService, imagePath, name string) error {
	result := svc.Register(ctx, imagePath, name)
	fmt.Fprintln(out, result.Message)
	if !result.Success {
		return exitError{code: 1}
	}
	return nil
}
