// Package github fetches text documents from a GitHub repository directory
// for bulk ingestion.
package github

import (
	"github.com/gofri/go-github-ratelimit/github_ratelimit"
	"github.com/google/go-github/v81/github"
)

// Client wraps the GitHub API client with rate limiting support
type Client struct {
	*github.Client
}

// NewClient creates a GitHub client with rate limiting. An empty token
// leaves the client unauthenticated (60 requests/hour instead of 5000).
func NewClient(token string) (*Client, error) {
	// Waits out primary and secondary rate limits instead of failing the request
	rateLimiter, err := github_ratelimit.NewRateLimitWaiterClient(nil)
	if err != nil {
		return nil, err
	}

	ghClient := github.NewClient(rateLimiter)
	if token != "" {
		ghClient = ghClient.WithAuthToken(token)
	}

	return &Client{Client: ghClient}, nil
}
