package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bull/docintel/internal/app"
	"github.com/bull/docintel/internal/cache"
)

func (c *cli) searchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "search <query>...",
		Short: "Find the documents most similar to a query",
		Args:  cobra.MinimumNArgs(1),
		RunE: c.withApp(func(cmd *cobra.Command, args []string, a *app.App) error {
			resp, err := a.Search.Search(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if resp.Message != "" {
				warning.Fprintln(out, resp.Message)
			}
			for i, r := range resp.Results {
				fmt.Fprintf(out, "%d. %s %s\n", i+1, bold.Sprint(r.Filename), faint.Sprintf("(%.4f, %s)", r.Similarity, r.Username))
				fmt.Fprintf(out, "   %s\n", r.Summary)
				fmt.Fprintf(out, "   %s\n", faint.Sprint(r.ID))
			}
			return nil
		}),
	}
}

func (c *cli) cacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect the cache",
	}

	var reprobe bool
	status := &cobra.Command{
		Use:   "status",
		Short: "Report whether the cache backend is in use",
		Args:  cobra.NoArgs,
		RunE: c.withApp(func(cmd *cobra.Command, args []string, a *app.App) error {
			available := a.Cache.Available(cmd.Context())
			if lazy, ok := a.Cache.(*cache.Lazy); ok && reprobe {
				available = lazy.Reprobe(cmd.Context())
			}

			out := cmd.OutOrStdout()
			if _, disabled := a.Cache.(cache.Null); disabled {
				warning.Fprintln(out, "Cache disabled")
				return nil
			}
			if available {
				success.Fprintln(out, "Cache available")
			} else {
				failure.Fprintln(out, "Cache unavailable, requests go to the store")
			}
			return nil
		}),
	}
	status.Flags().BoolVar(&reprobe, "reprobe", false, "probe the backend again instead of reporting the first outcome")

	cmd.AddCommand(status)
	return cmd
}
