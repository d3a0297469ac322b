// Package remote is the Android Management REST adapter: the remote policy
// store and application catalog of one enterprise.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"

	"golang.org/x/oauth2/jwt"

	"github.com/roach88/emmsync/internal/doc"
	"github.com/roach88/emmsync/internal/emm"
)

const (
	// DefaultBaseURL is the Android Management API v1 endpoint.
	DefaultBaseURL = "https://androidmanagement.googleapis.com/v1/"

	// Scope is the OAuth2 scope of the Android Management API.
	Scope = "https://www.googleapis.com/auth/androidmanagement"

	defaultTokenURL = "https://oauth2.googleapis.com/token"
	defaultPageSize = 100
)

// outputOnly are policy fields set by the server. They are not part of the
// document.
var outputOnly = []string{"name", "version"}

// Client talks to one enterprise. It is safe for concurrent use.
type Client struct {
	http       *http.Client
	baseURL    string
	enterprise string
	pageSize   int
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at another endpoint, e.g. a test server.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		if !strings.HasSuffix(u, "/") {
			u += "/"
		}
		c.baseURL = u
	}
}

// WithPageSize sets the listing page size.
func WithPageSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

// New returns a client using httpClient, which must add authentication.
func New(httpClient *http.Client, enterprise string, opts ...Option) *Client {
	c := &Client{
		http:       httpClient,
		baseURL:    DefaultBaseURL,
		enterprise: enterprise,
		pageSize:   defaultPageSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// serviceAccount is the subset of a service account key file used here.
type serviceAccount struct {
	Type         string `json:"type"`
	ClientEmail  string `json:"client_email"`
	PrivateKey   string `json:"private_key"`
	PrivateKeyID string `json:"private_key_id"`
	TokenURI     string `json:"token_uri"`
}

// JWTConfig reads a service account key file.
func JWTConfig(path string) (*jwt.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials: %w", err)
	}
	var sa serviceAccount
	if err := json.Unmarshal(data, &sa); err != nil {
		return nil, fmt.Errorf("failed to parse credentials %s: %w", path, err)
	}
	if sa.Type != "service_account" {
		return nil, fmt.Errorf("credentials %s: type %q is not service_account", path, sa.Type)
	}
	if sa.ClientEmail == "" || sa.PrivateKey == "" {
		return nil, fmt.Errorf("credentials %s: client_email and private_key are required", path)
	}
	tokenURL := sa.TokenURI
	if tokenURL == "" {
		tokenURL = defaultTokenURL
	}
	return &jwt.Config{
		Email:        sa.ClientEmail,
		PrivateKey:   []byte(sa.PrivateKey),
		PrivateKeyID: sa.PrivateKeyID,
		Scopes:       []string{Scope},
		TokenURL:     tokenURL,
	}, nil
}

// NewFromCredentials returns a client authenticated with a service account
// key file. ctx scopes token refreshes.
func NewFromCredentials(ctx context.Context, path, enterprise string, opts ...Option) (*Client, error) {
	cfg, err := JWTConfig(path)
	if err != nil {
		return nil, err
	}
	return New(cfg.Client(ctx), enterprise, opts...), nil
}

// APIError is a non-2xx response other than 404.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("android management api: %d: %s", e.Status, e.Message)
}

// errorEnvelope is the Google API error body.
type errorEnvelope struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

type listResponse struct {
	Policies      []json.RawMessage `json:"policies"`
	NextPageToken string            `json:"nextPageToken"`
}

// List yields the enterprise's policies page by page. A failed page ends
// the sequence with its error.
func (c *Client) List(ctx context.Context) iter.Seq2[emm.Record, error] {
	return func(yield func(emm.Record, error) bool) {
		base, err := emm.EnterprisePath(c.enterprise)
		if err != nil {
			yield(emm.Record{}, fmt.Errorf("list policies: %w", err))
			return
		}
		token := ""
		for {
			q := url.Values{"pageSize": {strconv.Itoa(c.pageSize)}}
			if token != "" {
				q.Set("pageToken", token)
			}
			var page listResponse
			if err := c.do(ctx, http.MethodGet, base+"/policies?"+q.Encode(), nil, &page); err != nil {
				yield(emm.Record{}, fmt.Errorf("list policies: %w", err))
				return
			}
			for _, raw := range page.Policies {
				rec, err := decodePolicy(raw)
				if err != nil {
					yield(emm.Record{}, fmt.Errorf("list policies: %w", err))
					return
				}
				if !yield(rec, nil) {
					return
				}
			}
			if page.NextPageToken == "" {
				return
			}
			token = page.NextPageToken
		}
	}
}

// Get returns one policy document, or emm.ErrNotFound.
func (c *Client) Get(ctx context.Context, name string) (doc.Object, error) {
	path, err := emm.PolicyPath(c.enterprise, name)
	if err != nil {
		return nil, err
	}
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, path, nil, &raw); err != nil {
		return nil, fmt.Errorf("get policy %s: %w", name, err)
	}
	rec, err := decodePolicy(raw)
	if err != nil {
		return nil, fmt.Errorf("get policy %s: %w", name, err)
	}
	return rec.Document, nil
}

// Patch creates or replaces a policy and returns the server's copy.
func (c *Client) Patch(ctx context.Context, name string, obj doc.Object) (doc.Object, error) {
	path, err := emm.PolicyPath(c.enterprise, name)
	if err != nil {
		return nil, err
	}
	if obj == nil {
		obj = doc.Object{}
	}
	body, err := doc.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("patch policy %s: %w", name, err)
	}
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodPatch, path, body, &raw); err != nil {
		return nil, fmt.Errorf("patch policy %s: %w", name, err)
	}
	rec, err := decodePolicy(raw)
	if err != nil {
		return nil, fmt.Errorf("patch policy %s: %w", name, err)
	}
	return rec.Document, nil
}

// Delete removes a policy. A missing policy yields emm.ErrNotFound.
func (c *Client) Delete(ctx context.Context, name string) error {
	path, err := emm.PolicyPath(c.enterprise, name)
	if err != nil {
		return err
	}
	if err := c.do(ctx, http.MethodDelete, path, nil, nil); err != nil {
		return fmt.Errorf("delete policy %s: %w", name, err)
	}
	return nil
}

// Application fetches an application resource, or emm.ErrNotFound.
func (c *Client) Application(ctx context.Context, packageName string) (*emm.Application, error) {
	path, err := emm.ApplicationPath(c.enterprise, packageName)
	if err != nil {
		return nil, err
	}
	var app emm.Application
	if err := c.do(ctx, http.MethodGet, path, nil, &app); err != nil {
		return nil, fmt.Errorf("get application %s: %w", packageName, err)
	}
	return &app, nil
}

func decodePolicy(raw json.RawMessage) (emm.Record, error) {
	v, err := doc.Parse(raw)
	if err != nil {
		return emm.Record{}, fmt.Errorf("decode policy: %w", err)
	}
	obj, ok := v.(doc.Object)
	if !ok {
		return emm.Record{}, fmt.Errorf("decode policy: %s is not an object", doc.TypeName(v))
	}
	name, _ := obj.Get("name").(doc.String)
	for _, f := range outputOnly {
		delete(obj, f)
	}
	return emm.Record{Name: emm.ShortName(string(name)), Document: obj}, nil
}

// do sends one request. out may be nil; a *json.RawMessage receives the
// body verbatim.
func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return emm.ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return apiError(resp.StatusCode, data)
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if raw, ok := out.(*json.RawMessage); ok {
		*raw = data
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func apiError(status int, data []byte) error {
	var env errorEnvelope
	if err := json.Unmarshal(data, &env); err == nil && env.Error.Message != "" {
		return &APIError{Status: status, Message: env.Error.Message}
	}
	msg := strings.TrimSpace(string(data))
	if msg == "" {
		msg = http.StatusText(status)
	}
	return &APIError{Status: status, Message: msg}
}

// IsAPIError reports whether err wraps an *APIError.
func IsAPIError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr)
}
