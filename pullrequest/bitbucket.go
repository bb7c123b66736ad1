package pullrequest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DefaultBitbucketURL is the Bitbucket Cloud REST API root.
const DefaultBitbucketURL = "https://api.bitbucket.org/2.0"

// APIError is a non-2xx response from the pull-request API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("bitbucket API error (status %d): %s", e.StatusCode, e.Body)
}

// IsAuth reports whether the credential was rejected.
func (e *APIError) IsAuth() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// CreateRequest is everything the API needs to open a pull request.
type CreateRequest struct {
	Workspace         string
	RepoSlug          string
	AuthHeader        string
	Title             string
	Description       string
	SourceBranch      string
	TargetBranch      string
	CloseSourceBranch bool
}

// Created is the API's answer to a successful create.
type Created struct {
	ID    string
	URL   string
	Title string
}

// BitbucketClient creates pull requests through the Bitbucket Cloud REST API.
type BitbucketClient struct {
	baseURL    string
	httpClient *http.Client
}

// ClientOption configures the client.
type ClientOption func(*BitbucketClient)

// WithBaseURL sets a custom API root.
func WithBaseURL(u string) ClientOption {
	return func(c *BitbucketClient) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *BitbucketClient) {
		c.httpClient = client
	}
}

// NewBitbucketClient creates a new client.
func NewBitbucketClient(opts ...ClientOption) *BitbucketClient {
	c := &BitbucketClient{
		baseURL:    DefaultBitbucketURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type bitbucketBranch struct {
	Branch struct {
		Name string `json:"name"`
	} `json:"branch"`
}

type bitbucketCreateRequest struct {
	Title             string          `json:"title"`
	Description       string          `json:"description"`
	Source            bitbucketBranch `json:"source"`
	Destination       bitbucketBranch `json:"destination"`
	CloseSourceBranch bool            `json:"close_source_branch"`
}

type bitbucketPullRequest struct {
	ID    int    `json:"id"`
	Title string `json:"title"`
	Links struct {
		HTML struct {
			Href string `json:"href"`
		} `json:"html"`
	} `json:"links"`
}

// CreatePullRequest opens a pull request.
func (c *BitbucketClient) CreatePullRequest(ctx context.Context, req CreateRequest) (*Created, error) {
	payload := bitbucketCreateRequest{
		Title:             req.Title,
		Description:       req.Description,
		CloseSourceBranch: req.CloseSourceBranch,
	}
	payload.Source.Branch.Name = req.SourceBranch
	payload.Destination.Branch.Name = req.TargetBranch

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/repositories/%s/%s/pullrequests",
		c.baseURL, url.PathEscape(req.Workspace), url.PathEscape(req.RepoSlug))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Authorization", req.AuthHeader)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}

	var pr bitbucketPullRequest
	if err := json.Unmarshal(respBody, &pr); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	title := pr.Title
	if title == "" {
		title = req.Title
	}

	return &Created{
		ID:    strconv.Itoa(pr.ID),
		URL:   pr.Links.HTML.Href,
		Title: title,
	}, nil
}
