package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/edvart/property-listings/internal/adminclient"
)

func main() {
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:          "propctl",
		Short:        "Manage listings on a running site",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().String("url", envOr("PROPCTL_URL", "http://localhost:8080"), "site base URL")

	rootCmd.AddCommand(listCmd(), deleteCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newClient(cmd *cobra.Command) (*adminclient.Client, error) {
	base, _ := cmd.Flags().GetString("url")
	return adminclient.New(base, nil)
}

func listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Print the catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(cmd)
			if err != nil {
				return err
			}
			props, err := client.ListProperties(cmd.Context())
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSTATUS\tHIGHLIGHTED\tIMAGES\tTITLE")
			for _, p := range props {
				fmt.Fprintf(tw, "%s\t%s\t%t\t%d\t%s\n", p.ID, p.Status, p.Highlighted, p.Images, p.Title)
			}
			return tw.Flush()
		},
	}
}

func deleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a property and its images",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			email, _ := cmd.Flags().GetString("email")
			password, _ := cmd.Flags().GetString("password")
			yes, _ := cmd.Flags().GetBool("yes")

			client, err := newClient(cmd)
			if err != nil {
				return err
			}
			if err := client.Login(ctx, email, password); err != nil {
				return err
			}

			props, err := client.ListProperties(ctx)
			if err != nil {
				return err
			}
			items := make([]adminclient.Item, len(props))
			for i, p := range props {
				items[i] = adminclient.Item{ID: p.ID, Title: p.Title}
			}

			out := cmd.OutOrStdout()
			wf := adminclient.NewWorkflow(client, adminclient.NotifierFunc(func(level adminclient.Level, msg string) {
				fmt.Fprintf(out, "[%s] %s\n", levelName(level), msg)
			}), items)

			id := args[0]
			if err := wf.RequestDelete(id); err != nil {
				return fmt.Errorf("%s: %w", id, err)
			}

			if !yes && !confirm(cmd.InOrStdin(), out, titleOf(items, id)) {
				wf.Cancel()
				fmt.Fprintln(out, "Cancelled")
				return nil
			}

			res, err := wf.Confirm(ctx)
			if err != nil {
				return err
			}
			if !res.Kind.Removed() {
				return fmt.Errorf("delete %s: %s", id, res.Kind)
			}
			return nil
		},
	}
	cmd.Flags().String("email", os.Getenv("PROPCTL_EMAIL"), "admin email")
	cmd.Flags().String("password", os.Getenv("PROPCTL_PASSWORD"), "admin password")
	cmd.Flags().BoolP("yes", "y", false, "skip the confirmation prompt")
	return cmd
}

func confirm(in io.Reader, out io.Writer, title string) bool {
	fmt.Fprintf(out, "Delete %q? This cannot be undone [y/N]: ", title)
	answer, _ := bufio.NewReader(in).ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	}
	return false
}

func titleOf(items []adminclient.Item, id string) string {
	for _, it := range items {
		if it.ID == id {
			return it.Title
		}
	}
	return id
}

func levelName(l adminclient.Level) string {
	switch l {
	case adminclient.LevelSuccess:
		return "ok"
	case adminclient.LevelWarning:
		return "warning"
	case adminclient.LevelAuth:
		return "auth"
	default:
		return "error"
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

