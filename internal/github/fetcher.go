package github

import (
	"context"
	"fmt"
	"path"
	"slices"
	"strings"

	"github.com/google/go-github/v81/github"
)

// DefaultExtensions are the file types fetched when none are configured.
// Binary formats such as pdf and docx need an extraction step first.
var DefaultExtensions = []string{".md", ".txt"}

// FetchedDoc represents a document fetched from GitHub
type FetchedDoc struct {
	Path    string // Relative path within the base directory
	Content string
	SHA     string // Git blob SHA
	URL     string // raw.githubusercontent.com URL
}

// Fetcher lists and downloads documents below one repository directory.
type Fetcher struct {
	client     *Client
	owner      string
	repo       string
	basePath   string
	ref        string
	extensions []string
}

// NewFetcher creates a new document fetcher. ref may be empty for the
// default branch.
func NewFetcher(client *Client, owner, repo, basePath, ref string) *Fetcher {
	return &Fetcher{
		client:     client,
		owner:      owner,
		repo:       repo,
		basePath:   strings.Trim(basePath, "/"),
		ref:        ref,
		extensions: DefaultExtensions,
	}
}

// Repository returns "owner/repo".
func (f *Fetcher) Repository() string {
	return f.owner + "/" + f.repo
}

func (f *Fetcher) contentOptions() *github.RepositoryContentGetOptions {
	if f.ref == "" {
		return nil
	}
	return &github.RepositoryContentGetOptions{Ref: f.ref}
}

// ListDocs recursively lists every fetchable file below the base directory,
// as paths relative to it.
func (f *Fetcher) ListDocs(ctx context.Context) ([]string, error) {
	return f.listDocsRecursive(ctx, f.basePath, "")
}

func (f *Fetcher) listDocsRecursive(ctx context.Context, fullPath, relativePath string) ([]string, error) {
	var docs []string

	_, dirContents, _, err := f.client.Repositories.GetContents(ctx, f.owner, f.repo, fullPath, f.contentOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to get contents of %s: %w", fullPath, err)
	}

	for _, item := range dirContents {
		if item.Type == nil || item.Name == nil {
			continue
		}

		itemRelPath := path.Join(relativePath, *item.Name)

		switch *item.Type {
		case "file":
			if f.wanted(*item.Name) {
				docs = append(docs, itemRelPath)
			}
		case "dir":
			subDocs, err := f.listDocsRecursive(ctx, path.Join(fullPath, *item.Name), itemRelPath)
			if err != nil {
				return nil, err
			}
			docs = append(docs, subDocs...)
		}
	}

	return docs, nil
}

func (f *Fetcher) wanted(name string) bool {
	return slices.Contains(f.extensions, strings.ToLower(path.Ext(name)))
}

// FetchDoc downloads one file listed by ListDocs.
func (f *Fetcher) FetchDoc(ctx context.Context, relativePath string) (*FetchedDoc, error) {
	fullPath := path.Join(f.basePath, relativePath)

	fileContent, _, _, err := f.client.Repositories.GetContents(ctx, f.owner, f.repo, fullPath, f.contentOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to get content of %s: %w", fullPath, err)
	}
	if fileContent == nil {
		return nil, fmt.Errorf("%s is not a file", fullPath)
	}

	content, err := fileContent.GetContent()
	if err != nil {
		return nil, fmt.Errorf("failed to decode content of %s: %w", fullPath, err)
	}

	ref := f.ref
	if ref == "" {
		ref = "HEAD"
	}

	return &FetchedDoc{
		Path:    relativePath,
		Content: content,
		SHA:     fileContent.GetSHA(),
		URL:     fmt.Sprintf("https://raw.githubusercontent.com/%s/%s/%s/%s", f.owner, f.repo, ref, fullPath),
	}, nil
}

// GetLatestCommitSHA retrieves the SHA of the most recent commit affecting the base directory
func (f *Fetcher) GetLatestCommitSHA(ctx context.Context) (string, error) {
	commits, _, err := f.client.Repositories.ListCommits(ctx, f.owner, f.repo, &github.CommitsListOptions{
		SHA:         f.ref,
		Path:        f.basePath,
		ListOptions: github.ListOptions{PerPage: 1},
	})
	if err != nil {
		return "", fmt.Errorf("failed to get latest commit: %w", err)
	}

	if len(commits) == 0 {
		return "", fmt.Errorf("no commits found for path %s", f.basePath)
	}

	sha := commits[0].GetSHA()
	if sha == "" {
		return "", fmt.Errorf("commit SHA is empty")
	}
	return sha, nil
}
