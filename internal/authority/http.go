package authority

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/pkg/errors"

	"github.com/strand-cloud/strand/internal/models"
)

// Config holds the settings for the HTTP authority client.
type Config struct {
	// URL is the authority base URL. Required.
	URL string
	// Token authenticates every request. Required.
	Token   string
	Timeout time.Duration
	Retries int
}

type httpClient struct {
	base  *url.URL
	token string
	http  *retryablehttp.Client
}

// NewHTTPClient builds the production authority client. Missing
// URL or token is a fatal configuration error for any command that
// needs the authority.
func NewHTTPClient(cfg Config) (Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("authority URL is required")
	}
	if cfg.Token == "" {
		return nil, errors.New("authority token is required")
	}

	base, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, errors.Wrap(err, "invalid authority URL")
	}

	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = cfg.Retries
	rc.HTTPClient.Timeout = cfg.Timeout
	rc.Logger = nil

	return &httpClient{base: base, token: cfg.Token, http: rc}, nil
}

func (c *httpClient) GetStatus(ctx context.Context, scope string) (models.Status, error) {
	var body struct {
		Status models.Status `json:"status"`
	}

	err := c.do(ctx, http.MethodGet, c.statusPath(scope), nil, &body)
	if errors.Is(err, ErrNotFound) {
		// An entity the authority has never seen is simply not
		// running anything yet.
		return models.StatusNotRunning, nil
	}
	if err != nil {
		return "", err
	}

	return body.Status, nil
}

func (c *httpClient) SetStatus(ctx context.Context, scope string, status models.Status, extra map[string]interface{}) error {
	payload := map[string]interface{}{"status": status}
	if len(extra) > 0 {
		payload["fields"] = extra
	}

	return c.do(ctx, http.MethodPut, c.statusPath(scope), payload, nil)
}

func (c *httpClient) LibprepForFlowcell(ctx context.Context, projectID, sample, flowcellID string) (string, error) {
	var body struct {
		Libprep string `json:"libprep"`
	}

	p := fmt.Sprintf(
		"/api/v1/projects/%s/samples/%s/flowcells/%s/libprep",
		url.PathEscape(projectID),
		url.PathEscape(sample),
		url.PathEscape(flowcellID),
	)

	if err := c.do(ctx, http.MethodGet, p, nil, &body); err != nil {
		return "", err
	}

	return body.Libprep, nil
}

func (c *httpClient) ListLibpreps(ctx context.Context, projectID, sample string) ([]string, error) {
	var body struct {
		Libpreps []string `json:"libpreps"`
	}

	p := fmt.Sprintf(
		"/api/v1/projects/%s/samples/%s/libpreps",
		url.PathEscape(projectID),
		url.PathEscape(sample),
	)

	err := c.do(ctx, http.MethodGet, p, nil, &body)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return body.Libpreps, nil
}

func (c *httpClient) statusPath(scope string) string {
	segments := models.ScopeSegments(scope)
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return "/api/v1/status/" + strings.Join(segments, "/")
}

func (c *httpClient) do(ctx context.Context, method, path string, payload, out interface{}) error {
	var body io.Reader

	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return errors.Wrap(err, "encode authority payload")
		}
		body = bytes.NewReader(buf)
	}

	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + path

	req, err := retryablehttp.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return errors.Wrap(err, "build authority request")
	}

	req.Header.Set("Authorization", "Bearer "+c.token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		// Network failures and timeouts are transient; the caller
		// retries on its next pass.
		return errors.Wrap(err, "authority request failed")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{
			Code:    resp.StatusCode,
			Message: strings.TrimSpace(string(msg)),
		}
	}

	if out == nil {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, "decode authority response")
	}

	return nil
}
