package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/smileynet/sldview/internal/diagram"
)

// DefaultBaseURL is the network service API root used when none is configured.
const DefaultBaseURL = "http://localhost:8000/api/v1"

// maxBody bounds how much of a response is read.
const maxBody = 32 << 20

// ErrBodyTooLarge is returned when a successful response exceeds maxBody.
var ErrBodyTooLarge = errors.New("response body too large")

// Verify HTTPRuntime satisfies diagram.Runtime at compile time.
var _ diagram.Runtime = (*HTTPRuntime)(nil)

// HTTPRuntime fetches diagrams from the network service REST API.
//
// It first asks for SVG and metadata together (?format=json). If that request
// is rejected it falls back to two concurrent requests: the bare SVG and /metadata.
type HTTPRuntime struct {
	base    *url.URL
	client  *http.Client
	limiter *rate.Limiter // nil means unlimited
}

// HTTPOption configures an HTTPRuntime.
type HTTPOption func(*HTTPRuntime)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(r *HTTPRuntime) { r.client = c }
}

// WithRateLimit makes every request wait on l first.
func WithRateLimit(l *rate.Limiter) HTTPOption {
	return func(r *HTTPRuntime) { r.limiter = l }
}

// NewHTTPRuntime creates an HTTPRuntime rooted at baseURL.
func NewHTTPRuntime(baseURL string, opts ...HTTPOption) (*HTTPRuntime, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("source: parsing base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("source: base url %q: scheme must be http or https", baseURL)
	}
	r := &HTTPRuntime{base: u, client: http.DefaultClient}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Name returns "http".
func (r *HTTPRuntime) Name() string { return "http" }

// BaseURL returns the API root requests are made against.
func (r *HTTPRuntime) BaseURL() string { return r.base.String() }

// combined is the ?format=json response body.
type combined struct {
	SVG      string          `json:"svg"`
	Metadata json.RawMessage `json:"metadata"`
}

// Fetch loads the diagram for a line or voltage level id.
func (r *HTTPRuntime) Fetch(ctx context.Context, id string) (diagram.Diagram, error) {
	body, err := r.get(ctx, r.lineURL(id, "", true), "application/json")
	if err == nil {
		var c combined
		if err := json.Unmarshal(body, &c); err != nil {
			return diagram.Diagram{}, fmt.Errorf("source: decoding diagram %s: %w", id, err)
		}
		md, err := diagram.ParseMetadata(c.Metadata)
		if err != nil {
			return diagram.Diagram{}, err
		}
		return diagram.Diagram{ID: id, SVG: c.SVG, Metadata: md}, nil
	}

	var se *StatusError
	if !errors.As(err, &se) || errors.Is(err, diagram.ErrNotFound) {
		return diagram.Diagram{}, err
	}

	var svg, mdBody []byte
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		svg, err = r.get(gctx, r.lineURL(id, "", false), "image/svg+xml")
		return err
	})
	g.Go(func() error {
		var err error
		mdBody, err = r.get(gctx, r.lineURL(id, "metadata", false), "application/json")
		return err
	})
	if err := g.Wait(); err != nil {
		return diagram.Diagram{}, err
	}
	md, err := diagram.ParseMetadata(mdBody)
	if err != nil {
		return diagram.Diagram{}, err
	}
	return diagram.Diagram{ID: id, SVG: string(svg), Metadata: md}, nil
}

func (r *HTTPRuntime) lineURL(id, suffix string, asJSON bool) string {
	u := *r.base
	path := strings.TrimSuffix(u.Path, "/") + "/network/diagram/line/" + id
	raw := strings.TrimSuffix(u.EscapedPath(), "/") + "/network/diagram/line/" + url.PathEscape(id)
	if suffix != "" {
		path += "/" + suffix
		raw += "/" + suffix
	}
	u.Path, u.RawPath = path, raw
	if asJSON {
		u.RawQuery = "format=json"
	}
	return u.String()
}

func (r *HTTPRuntime) get(ctx context.Context, target, accept string) ([]byte, error) {
	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("source: rate limit: %w", err)
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("source: building request: %w", err)
	}
	req.Header.Set("Accept", accept)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("source: GET %s: %w", target, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("source: reading %s: %w", target, err)
	}
	oversized := len(body) > maxBody
	if oversized {
		body = body[:maxBody]
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{URL: target, Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	if oversized {
		return nil, fmt.Errorf("source: response from %s exceeds %d bytes: %w", target, maxBody, ErrBodyTooLarge)
	}
	return body, nil
}

// StatusError reports a non-200 response from the network service.
type StatusError struct {
	URL  string
	Code int
	Body string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("source: GET %s: %d %s", e.URL, e.Code, http.StatusText(e.Code))
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// Unwrap maps 404 to diagram.ErrNotFound.
func (e *StatusError) Unwrap() error {
	if e.Code == http.StatusNotFound {
		return diagram.ErrNotFound
	}
	return nil
}
