package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/bull/docintel/internal/app"
	"github.com/bull/docintel/internal/github"
	"github.com/bull/docintel/internal/indexer"
	"github.com/bull/docintel/internal/markdown"
	"github.com/bull/docintel/internal/storage"
)

// drain waits for queued enrichment so the command can report final statuses.
func drain(ctx context.Context, a *app.App) error {
	timeout := a.Config.Enrich.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return a.Pool.Shutdown(ctx)
}

func lookupUser(ctx context.Context, a *app.App, id string) (*storage.User, error) {
	u, err := a.Store.GetUser(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("user %s: %w", id, err)
	}
	return u, nil
}

func (c *cli) ingestCmd() *cobra.Command {
	var userID, filename string

	cmd := &cobra.Command{
		Use:   "ingest <file>",
		Short: "Ingest a text or markdown file and wait for its summary",
		Long: `Stores the file as a document owned by --user, enriches it and prints the result.

Markdown is reduced to plain text first. pdf and docx content must be
extracted beforehand; pass the text file with --filename set to the original name.`,
		Args: cobra.ExactArgs(1),
		RunE: c.withApp(func(cmd *cobra.Command, args []string, a *app.App) error {
			ctx := cmd.Context()
			owner, err := lookupUser(ctx, a, userID)
			if err != nil {
				return err
			}

			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			text := string(data)
			if strings.EqualFold(filepath.Ext(args[0]), ".md") {
				doc, err := markdown.NewExtractor().Extract(data)
				if err != nil {
					return err
				}
				text = doc.Text
			}
			if filename == "" {
				filename = filepath.Base(args[0])
			}

			doc, err := a.Documents.Ingest(ctx, owner, filename, text)
			if err != nil && doc == nil {
				return err
			}
			if err != nil {
				warning.Fprintf(cmd.ErrOrStderr(), "Stored but not enriched: %v\n", err)
			}
			if err := drain(ctx, a); err != nil {
				warning.Fprintf(cmd.ErrOrStderr(), "Enrichment did not finish: %v\n", err)
			}

			view, err := a.Documents.Get(ctx, owner, doc.ID)
			if err != nil {
				return err
			}
			printView(cmd.OutOrStdout(), view)
			return nil
		}),
	}
	cmd.Flags().StringVar(&userID, "user", "", "owner user ID (required)")
	cmd.Flags().StringVar(&filename, "filename", "", "stored file name (default: base name of <file>)")
	cmd.MarkFlagRequired("user")
	return cmd
}

func (c *cli) ingestGitHubCmd() *cobra.Command {
	var userID, owner, repo, basePath, ref string

	cmd := &cobra.Command{
		Use:   "ingest-github",
		Short: "Ingest every .md and .txt file below a GitHub repository directory",
		Long: `Fetches documents from GitHub and ingests each one for --user.

Flags default to GITHUB_OWNER, GITHUB_REPO, GITHUB_BASE_PATH and GITHUB_REF.
GITHUB_TOKEN raises the API rate limit.`,
		Args: cobra.NoArgs,
		RunE: c.withApp(func(cmd *cobra.Command, args []string, a *app.App) error {
			ctx := cmd.Context()
			start := time.Now()
			user, err := lookupUser(ctx, a, userID)
			if err != nil {
				return err
			}

			gh := a.Config.GitHub
			override(&gh.Owner, owner)
			override(&gh.Repo, repo)
			override(&gh.BasePath, basePath)
			override(&gh.Ref, ref)
			if gh.Owner == "" || gh.Repo == "" {
				return fmt.Errorf("repository owner and name are required (--owner/--repo or GITHUB_OWNER/GITHUB_REPO)")
			}

			client, err := github.NewClient(gh.Token)
			if err != nil {
				return fmt.Errorf("create GitHub client: %w", err)
			}
			fetcher := github.NewFetcher(client, gh.Owner, gh.Repo, gh.BasePath, gh.Ref)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Ingesting %s:/%s...\n", fetcher.Repository(), gh.BasePath)
			result, err := indexer.NewPipeline(fetcher, a.Documents, a.Pool, a.Logger).IndexAll(ctx, user)
			if err != nil {
				return fmt.Errorf("ingestion failed: %w", err)
			}

			fmt.Fprintln(out, "Waiting for enrichment...")
			if err := drain(ctx, a); err != nil {
				warning.Fprintf(cmd.ErrOrStderr(), "Enrichment did not finish: %v\n", err)
			}

			var completed, failed int
			for _, id := range result.DocumentIDs {
				doc, err := a.Store.GetDocument(ctx, id)
				if err != nil {
					continue
				}
				if doc.Status.State == storage.StateCompleted {
					completed++
				} else {
					failed++
				}
			}

			fmt.Fprintln(out)
			success.Fprintln(out, "Ingestion complete!")
			fmt.Fprintf(out, "  Documents: %d/%d\n", result.SuccessfulDocs, result.TotalDocs)
			fmt.Fprintf(out, "  Enriched:  %d (%d failed)\n", completed, failed)
			fmt.Fprintf(out, "  Commit:    %s\n", result.CommitSHA)
			fmt.Fprintf(out, "  Duration:  %s\n", time.Since(start).Round(time.Second))

			if len(result.FailedDocs) > 0 {
				fmt.Fprintln(out)
				failure.Fprintln(out, "Failed documents:")
				for _, f := range result.FailedDocs {
					fmt.Fprintf(out, "  - %s: %s\n", f.Path, f.Reason)
				}
			}
			return nil
		}),
	}
	cmd.Flags().StringVar(&userID, "user", "", "owner user ID (required)")
	cmd.Flags().StringVar(&owner, "owner", "", "repository owner")
	cmd.Flags().StringVar(&repo, "repo", "", "repository name")
	cmd.Flags().StringVar(&basePath, "path", "", "directory within the repository")
	cmd.Flags().StringVar(&ref, "ref", "", "branch, tag or commit (default branch when empty)")
	cmd.MarkFlagRequired("user")
	return cmd
}

// override replaces *dst with a non-empty flag value.
func override(dst *string, flag string) {
	if flag != "" {
		*dst = flag
	}
}

func (c *cli) getCmd() *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "get <document-id>",
		Short: "Show a document's summary and enrichment status",
		Args:  cobra.ExactArgs(1),
		RunE: c.withApp(func(cmd *cobra.Command, args []string, a *app.App) error {
			caller, err := lookupUser(cmd.Context(), a, userID)
			if err != nil {
				return err
			}
			view, err := a.Documents.Get(cmd.Context(), caller, args[0])
			if err != nil {
				return err
			}
			printView(cmd.OutOrStdout(), view)
			return nil
		}),
	}
	cmd.Flags().StringVar(&userID, "user", "", "calling user ID (required)")
	cmd.MarkFlagRequired("user")
	return cmd
}
