package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "List registered people, most recent first",
	Args:  cobra.NoArgs,
	RunE:  runUsers,
}

func init() {
	rootCmd.AddCommand(usersCmd)

	usersCmd.Flags().Bool("json", false, "Output as JSON (images base64 encoded)")
}

func runUsers(cmd *cobra.Command, _ []string) error {
	asJSON, _ := cmd.Flags().GetBool("json")

	a, err := openApp(cmd.Context(), true)
	if err != nil {
		return err
	}
	defer a.Close()

	return listUsers(cmd.Context(), cmd.OutOrStdout(), a.faces, asJSON)
}

func listUsers(ctx context.Context, out io.Writer, svc faceService, asJSON bool) error {
	users, err := svc.ListUsers(ctx)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}

	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(users)
	}

	if len(users) == 0 {
		fmt.Fprintln(out, "No users registered yet.")
		return nil
	}

	fmt.Fprintf(out, "Registered users: %d\n\n", len(users))
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tREGISTERED")
	for _, u := range users {
		fmt.Fprintf(w, "%d\t%s\t%s\n", u.ID, u.Name, u.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
	return w.Flush()
}
