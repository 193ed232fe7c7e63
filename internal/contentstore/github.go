package contentstore

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	githubAPIBase    = "https://api.github.com"
	githubAPIVersion = "2022-11-28"
)

// GitHubStore stores blobs as files in a GitHub repository via the Contents
// API. The blob SHA returned on reads is the revision token: PUT and DELETE
// on an existing path must carry it, and GitHub answers 409/422 when it is
// stale, which is the real guard against concurrent writers.
type GitHubStore struct {
	owner  string
	repo   string
	branch string
	token  string

	apiBase     string
	readClient  *http.Client
	writeClient *http.Client
	limiter     *rate.Limiter
}

// NewGitHubStore creates a store client for owner/repo on the given branch.
func NewGitHubStore(owner, repo, branch, token string) *GitHubStore {
	return &GitHubStore{
		owner:       owner,
		repo:        repo,
		branch:      branch,
		token:       token,
		apiBase:     githubAPIBase,
		readClient:  &http.Client{Timeout: 30 * time.Second},
		writeClient: &http.Client{Timeout: 60 * time.Second},
		// The Contents API budget is 5000 req/h; 2 req/s with a small burst
		// keeps a full feed rebuild well under it.
		limiter: rate.NewLimiter(rate.Limit(2), 5),
	}
}

// ghContent mirrors the Contents API file object.
type ghContent struct {
	Name     string `json:"name"`
	Path     string `json:"path"`
	SHA      string `json:"sha"`
	Type     string `json:"type"`
	Content  string `json:"content,omitempty"`
	Encoding string `json:"encoding,omitempty"`
}

func (s *GitHubStore) contentsURL(path string) string {
	return fmt.Sprintf("%s/repos/%s/%s/contents/%s", s.apiBase, s.owner, s.repo, path)
}

func (s *GitHubStore) do(ctx context.Context, client *http.Client, method, rawURL string, body any) (*http.Response, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewBuffer(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", githubAPIVersion)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	return resp, nil
}

// apiError drains the response body and builds an error for a non-2xx status.
func apiError(path string, resp *http.Response) error {
	respBody, _ := io.ReadAll(resp.Body)

	msg := "GitHub API error"
	var parsed struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(respBody, &parsed); err == nil && parsed.Message != "" {
		msg = parsed.Message
	}

	if resp.StatusCode == http.StatusConflict || resp.StatusCode == http.StatusUnprocessableEntity {
		return &ConflictError{Path: path, StatusCode: resp.StatusCode, Message: msg}
	}
	return fmt.Errorf("%s on %s (status %d)", msg, path, resp.StatusCode)
}

// Get fetches the entry at path on the configured branch.
func (s *GitHubStore) Get(ctx context.Context, path string) (*Entry, error) {
	rawURL := s.contentsURL(path) + "?ref=" + url.QueryEscape(s.branch)
	resp, err := s.do(ctx, s.readClient, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode >= 400 {
		return nil, apiError(path, resp)
	}

	var file ghContent
	if err := json.NewDecoder(resp.Body).Decode(&file); err != nil {
		return nil, fmt.Errorf("failed to parse response for %s: %w", path, err)
	}

	// The API wraps base64 content at 60 columns.
	raw, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(file.Content, "\n", ""))
	if err != nil {
		return nil, fmt.Errorf("failed to decode content of %s: %w", path, err)
	}

	return &Entry{Path: path, Content: raw, SHA: file.SHA}, nil
}

// Put creates or updates the file at path. The current blob SHA is looked up
// first; GitHub rejects the write with a conflict if it went stale in between.
func (s *GitHubStore) Put(ctx context.Context, path string, content []byte, message string) error {
	payload := map[string]any{
		"message": message,
		"content": base64.StdEncoding.EncodeToString(content),
		"branch":  s.branch,
	}

	existing, err := s.Get(ctx, path)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("failed to look up %s before write: %w", path, err)
	}
	if existing != nil {
		payload["sha"] = existing.SHA
	}

	resp, err := s.do(ctx, s.writeClient, http.MethodPut, s.contentsURL(path), payload)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return apiError(path, resp)
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

// Delete removes the file at path. Missing files are treated as already gone.
func (s *GitHubStore) Delete(ctx context.Context, path string, message string) error {
	existing, err := s.Get(ctx, path)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to look up %s before delete: %w", path, err)
	}

	payload := map[string]any{
		"message": message,
		"sha":     existing.SHA,
		"branch":  s.branch,
	}

	resp, err := s.do(ctx, s.writeClient, http.MethodDelete, s.contentsURL(path), payload)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	// 200 = deleted, 204 = already gone
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return apiError(path, resp)
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

// List returns the file names directly under dir, newest ordering left to the
// caller. A missing directory yields an empty slice.
func (s *GitHubStore) List(ctx context.Context, dir string) ([]string, error) {
	rawURL := s.contentsURL(dir) + "?ref=" + url.QueryEscape(s.branch)
	resp, err := s.do(ctx, s.readClient, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode >= 400 {
		return nil, apiError(dir, resp)
	}

	var listing []ghContent
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		return nil, fmt.Errorf("failed to parse listing of %s: %w", dir, err)
	}

	names := make([]string, 0, len(listing))
	for _, item := range listing {
		if item.Type == "file" {
			names = append(names, item.Name)
		}
	}
	return names, nil
}

// Exists reports whether path resolves to a file on the configured branch.
func (s *GitHubStore) Exists(ctx context.Context, path string) (bool, error) {
	_, err := s.Get(ctx, path)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
