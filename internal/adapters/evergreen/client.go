// Package evergreen provides the CI result fetcher over the Evergreen REST v2
// API. It implements the domain.ResultFetcher interface.
package evergreen

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/evg-tools/greenbase/internal/domain"
)

// Logger defines the logging interface for the evergreen adapter.
type Logger interface {
	Debug(ctx context.Context, msg string, fields map[string]interface{})
	Warn(ctx context.Context, msg string, fields map[string]interface{})
}

// Default transport settings.
const (
	DefaultRetryMax     = 3
	DefaultRetryWaitMin = 500 * time.Millisecond
	DefaultRetryWaitMax = 5 * time.Second
)

// Config holds the settings for one Evergreen API client.
type Config struct {
	// BaseURL is the API server root, e.g. https://evergreen.example.com/api.
	BaseURL string

	// Project is the Evergreen project whose versions are queried.
	Project string

	// User and APIKey authenticate requests via the Api-User/Api-Key headers.
	User   string
	APIKey string

	// RetryMax bounds transport retries for one request; <= 0 uses
	// DefaultRetryMax.
	RetryMax int

	// RetryWaitMin and RetryWaitMax bound the retry backoff; zero values use
	// the defaults.
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
}

// Client fetches per-commit build results from Evergreen.
// Transient transport failures are retried with backoff inside the client;
// once retries are exhausted the error surfaces as a retryable
// domain.FetchError. Authentication and malformed-request responses surface
// as terminal FetchErrors and abort the caller's search.
type Client struct {
	http    *retryablehttp.Client
	baseURL string
	project string
	user    string
	apiKey  string
	logger  Logger
}

// NewClient creates a Client for the given configuration.
func NewClient(cfg Config, log Logger) *Client {
	rc := retryablehttp.NewClient()
	rc.Logger = nil
	rc.RetryMax = cfg.RetryMax
	if rc.RetryMax <= 0 {
		rc.RetryMax = DefaultRetryMax
	}
	rc.RetryWaitMin = cfg.RetryWaitMin
	if rc.RetryWaitMin <= 0 {
		rc.RetryWaitMin = DefaultRetryWaitMin
	}
	rc.RetryWaitMax = cfg.RetryWaitMax
	if rc.RetryWaitMax <= 0 {
		rc.RetryWaitMax = DefaultRetryWaitMax
	}

	return &Client{
		http:    rc,
		baseURL: cfg.BaseURL,
		project: cfg.Project,
		user:    cfg.User,
		apiKey:  cfg.APIKey,
		logger:  log,
	}
}

// apiBuild is the wire representation of one build within a version.
type apiBuild struct {
	ID           string `json:"_id"`
	BuildVariant string `json:"build_variant"`
	Status       string `json:"status"`
}

// apiTask is the wire representation of one task within a build.
type apiTask struct {
	DisplayName string `json:"display_name"`
	Status      string `json:"status"`
}

// Fetch retrieves every (variant, task) outcome Evergreen knows for the
// commit. A commit with no version in Evergreen yields an empty BuildResult,
// not an error. The read has no side effects beyond the remote lookup.
func (c *Client) Fetch(ctx context.Context, commit string) (*domain.BuildResult, error) {
	versionID := c.project + "_" + commit

	var builds []apiBuild
	found, err := c.getJSON(ctx, commit, "/rest/v2/versions/"+versionID+"/builds", &builds)
	if err != nil {
		return nil, err
	}
	if !found {
		c.logger.Debug(ctx, "commit unknown to evergreen", map[string]interface{}{
			"commit":  commit,
			"version": versionID,
		})
		return &domain.BuildResult{Commit: commit}, nil
	}

	result := &domain.BuildResult{
		Commit:   commit,
		Outcomes: make(map[domain.TaskKey]domain.Outcome),
	}
	for _, build := range builds {
		var tasks []apiTask
		found, err := c.getJSON(ctx, commit, "/rest/v2/builds/"+build.ID+"/tasks", &tasks)
		if err != nil {
			return nil, err
		}
		if !found {
			c.logger.Warn(ctx, "build disappeared while fetching tasks", map[string]interface{}{
				"commit": commit,
				"build":  build.ID,
			})
			continue
		}
		for _, task := range tasks {
			key := domain.TaskKey{Variant: build.BuildVariant, Task: task.DisplayName}
			result.Outcomes[key] = statusToOutcome(task.Status)
		}
	}

	c.logger.Debug(ctx, "fetched build results", map[string]interface{}{
		"commit": commit,
		"builds": len(builds),
		"tasks":  len(result.Outcomes),
	})
	return result, nil
}

// getJSON performs one authenticated GET and decodes the response body.
// It returns found=false for 404 responses, a terminal FetchError for
// authentication and malformed-request responses, and a retryable FetchError
// for transport failures that survived the retry budget.
func (c *Client) getJSON(ctx context.Context, commit, path string, out any) (bool, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return false, domain.NewFetchError(commit, false, err)
	}
	req.Header.Set("Api-User", c.user)
	req.Header.Set("Api-Key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return false, domain.NewFetchError(commit, true, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return false, domain.NewFetchError(commit, false,
			fmt.Errorf("authentication rejected by %s: %s", c.baseURL, resp.Status))
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return false, domain.NewFetchError(commit, false,
			fmt.Errorf("request rejected: GET %s: %s", path, resp.Status))
	case resp.StatusCode != http.StatusOK:
		return false, domain.NewFetchError(commit, true,
			fmt.Errorf("unexpected response: GET %s: %s", path, resp.Status))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return false, domain.NewFetchError(commit, true,
			fmt.Errorf("failed to decode response for GET %s: %w", path, err))
	}
	return true, nil
}

// statusToOutcome maps an Evergreen task status string to a domain outcome.
func statusToOutcome(status string) domain.Outcome {
	switch status {
	case "success":
		return domain.OutcomeSuccess
	case "failed", "setup-failed", "system-failed", "task-timed-out", "test-timed-out":
		return domain.OutcomeFailed
	case "started", "dispatched":
		return domain.OutcomeRunning
	case "undispatched", "unstarted", "unscheduled", "blocked", "inactive":
		return domain.OutcomeUnscheduled
	default:
		return domain.OutcomeUnknown
	}
}
