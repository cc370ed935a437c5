// Package remote applies queued mutations against the backend REST API.
//
// The client draws the line the sync engine cares about: a 4xx response is
// a business rejection (the backend saw the mutation and said no), while
// transport failures and 5xx responses are system errors worth retrying.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/brightpath-energy/fieldsync/internal/models"
	syncpkg "github.com/brightpath-energy/fieldsync/internal/sync"
)

// Config holds backend connection configuration.
type Config struct {
	BaseURL string

	// Token, when set, supplies the bearer token per request so rotation
	// doesn't require a new client.
	Token func() string

	// Timeout bounds each apply request. Defaults to 30 seconds.
	Timeout time.Duration
}

// Client applies mutations over HTTP.
type Client struct {
	baseURL    string
	token      func() string
	httpClient *http.Client
}

// NewClient creates a Client for the given backend.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		token:      cfg.Token,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// errorBody is the backend's error response shape.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Apply performs the remote write for one mutation. Creates POST to the
// resource collection; updates and deletes address /api/{resource}/{id}
// using the id field of the payload.
func (c *Client) Apply(ctx context.Context, resource models.Resource, typ models.MutationType, payload json.RawMessage) (syncpkg.Result, error) {
	method, url, err := c.route(resource, typ, payload)
	if err != nil {
		// A payload we can't route will never route; report it as a
		// business failure so it doesn't burn retries.
		return syncpkg.Result{Success: false, Message: err.Error()}, nil
	}

	var body io.Reader
	if typ != models.MutationDelete {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return syncpkg.Result{}, fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != nil {
		if t := c.token(); t != "" {
			req.Header.Set("Authorization", "Bearer "+t)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return syncpkg.Result{}, fmt.Errorf("apply request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return syncpkg.Result{Success: true}, nil

	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return syncpkg.Result{Success: false, Message: readErrorMessage(resp)}, nil

	default:
		return syncpkg.Result{}, fmt.Errorf("backend returned status %d", resp.StatusCode)
	}
}

// route maps a mutation to its HTTP method and URL.
func (c *Client) route(resource models.Resource, typ models.MutationType, payload json.RawMessage) (method, url string, err error) {
	base := c.baseURL + "/api/" + string(resource)

	switch typ {
	case models.MutationCreate:
		return http.MethodPost, base, nil
	case models.MutationUpdate:
		id, err := payloadID(payload)
		if err != nil {
			return "", "", err
		}
		return http.MethodPut, base + "/" + id, nil
	case models.MutationDelete:
		id, err := payloadID(payload)
		if err != nil {
			return "", "", err
		}
		return http.MethodDelete, base + "/" + id, nil
	default:
		return "", "", fmt.Errorf("unknown mutation type %q", typ)
	}
}

// payloadID peeks the id field out of a mutation payload.
func payloadID(payload json.RawMessage) (string, error) {
	var envelope struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return "", fmt.Errorf("payload is not a JSON object: %w", err)
	}
	if envelope.ID == "" {
		return "", fmt.Errorf("payload has no id field")
	}
	return envelope.ID, nil
}

// readErrorMessage extracts a human-readable message from a 4xx response.
func readErrorMessage(resp *http.Response) string {
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil || len(raw) == 0 {
		return fmt.Sprintf("backend rejected mutation with status %d", resp.StatusCode)
	}

	var body errorBody
	if err := json.Unmarshal(raw, &body); err == nil {
		if body.Message != "" {
			return body.Message
		}
		if body.Error != "" {
			return body.Error
		}
	}
	return fmt.Sprintf("backend rejected mutation with status %d: %s", resp.StatusCode, string(raw))
}

// RegisterAll binds the client's Apply to every resource and mutation type
// the queue can carry.
func RegisterAll(reg *syncpkg.Registry, client *Client) {
	types := []models.MutationType{models.MutationCreate, models.MutationUpdate, models.MutationDelete}
	for _, resource := range models.Resources {
		for _, typ := range types {
			r, t := resource, typ
			reg.Register(r, t, func(ctx context.Context, payload json.RawMessage) (syncpkg.Result, error) {
				return client.Apply(ctx, r, t, payload)
			})
		}
	}
}
