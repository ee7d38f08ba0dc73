package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

var menuCmd = &cobra.Command{
	Use:   "menu",
	Short: "Interactive menu for registering and verifying faces",
	Args:  cobra.NoArgs,
	RunE:  runMenuCmd,
}

func init() {
	rootCmd.AddCommand(menuCmd)
}

func runMenuCmd(cmd *cobra.Command, _ []string) error {
	a, err := openApp(cmd.Context(), true)
	if err != nil {
		return err
	}
	defer a.Close()

	return runMenu(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), a.faces)
}

// runMenu loops until the user picks Exit or input ends.
func runMenu(ctx context.Context, in io.Reader, out io.Writer, svc faceService) error {
	scanner := bufio.NewScanner(in)
	prompt := func(label string) (string, bool) {
		fmt.Fprint(out, label)
		if !scanner.Scan() {
			return "", false
		}
		return strings.TrimSpace(scanner.Text()), true
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		fmt.Fprintln(out)
		fmt.Fprintln(out, "1. Register new face")
		fmt.Fprintln(out, "2. Verify face")
		fmt.Fprintln(out, "3. List registered users")
		fmt.Fprintln(out, "4. Exit")
		choice, ok := prompt("Enter your choice (1-4): ")
		if !ok {
			return scanner.Err()
		}

		switch choice {
		case "1":
			name, ok := prompt("Enter person's name: ")
			if !ok {
				return scanner.Err()
			}
			path, ok := prompt("Enter image path: ")
			if !ok {
				return scanner.Err()
			}
			fmt.Fprintln(out, svc.Register(ctx, path, name).Message)
		case "2":
			path, ok := prompt("Enter image path: ")
			if !ok {
				return scanner.Err()
			}
			fmt.Fprintln(out, verifyWithBar(ctx, out, svc, path).Message)
		case "3":
			if err := listUsers(ctx, out, svc, false); err != nil {
				fmt.Fprintln(out, err)
			}
		case "4":
			return nil
		default:
			fmt.Fprintln(out, "Invalid choice. Please enter a number from 1 to 4.")
		}
	}
}
