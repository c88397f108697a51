// Package gateway is the HTTP client for the dealership backend. It turns
// domain calls into requests, decodes loosely typed replies into model types
// and classifies every failure as an apperr kind. Calls are made once; there
// are no retries.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/erazemk/concesionaria/internal/apperr"
)

// DefaultTimeout bounds each request.
const DefaultTimeout = 20 * time.Second

const maxBodySize = 10 << 20

// Paths are the endpoint templates. {id} and {estatus} are substituted.
type Paths struct {
	Vehicles      string
	Vehicle       string
	VehicleImage  string
	Users         string
	Login         string
	Logout        string
	Sales         string
	Sale          string
	SaleStatus    string
	SalesByStatus string
	SalesFilter   string
	SalesCount    string
}

// DefaultPaths returns the paths of the reference backend.
func DefaultPaths() Paths {
	return Paths{
		Vehicles:      "/auto",
		Vehicle:       "/auto/{id}",
		VehicleImage:  "/auto/{id}/imagen",
		Users:         "/usuario",
		Login:         "/usuario/login",
		Logout:        "/usuario/logout",
		Sales:         "/ventas",
		Sale:          "/ventas/{id}",
		SaleStatus:    "/ventas/{id}/estatus",
		SalesByStatus: "/ventas/estatus/{estatus}",
		SalesFilter:   "/ventas/filtro",
		SalesCount:    "/ventas/contar",
	}
}

// Client talks to one backend. It is safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	paths   Paths
	log     *slog.Logger

	mu    sync.RWMutex
	token string
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithRateLimit throttles outgoing requests.
func WithRateLimit(r rate.Limit, burst int) Option {
	return func(c *Client) { c.limiter = rate.NewLimiter(r, burst) }
}

// WithPaths overrides endpoint paths. Empty fields keep their defaults.
func WithPaths(p Paths) Option {
	return func(c *Client) {
		merge := func(dst *string, src string) {
			if src != "" {
				*dst = src
			}
		}
		merge(&c.paths.Vehicles, p.Vehicles)
		merge(&c.paths.Vehicle, p.Vehicle)
		merge(&c.paths.VehicleImage, p.VehicleImage)
		merge(&c.paths.Users, p.Users)
		merge(&c.paths.Login, p.Login)
		merge(&c.paths.Logout, p.Logout)
		merge(&c.paths.Sales, p.Sales)
		merge(&c.paths.Sale, p.Sale)
		merge(&c.paths.SaleStatus, p.SaleStatus)
		merge(&c.paths.SalesByStatus, p.SalesByStatus)
		merge(&c.paths.SalesFilter, p.SalesFilter)
		merge(&c.paths.SalesCount, p.SalesCount)
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.log = l }
}

// New creates a client for baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: DefaultTimeout},
		paths:   DefaultPaths(),
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetToken sets the bearer token sent with every request. Empty clears it.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// Token returns the current bearer token.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func expand(tmpl string, id int64, status string) string {
	return strings.NewReplacer(
		"{id}", strconv.FormatInt(id, 10),
		"{estatus}", url.PathEscape(status),
	).Replace(tmpl)
}

func requireID(id int64, what string) error {
	if id <= 0 {
		return apperr.Validation(what, "id must be a positive integer, got %d", id)
	}
	return nil
}

// request describes one call.
type request struct {
	method      string
	path        string
	query       url.Values
	body        io.Reader
	contentType string
}

func jsonRequest(method, path string, payload any) (request, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return request{}, fmt.Errorf("encoding request: %w", err)
	}
	return request{method: method, path: path, body: bytes.NewReader(data), contentType: "application/json"}, nil
}

// do performs a request and returns the body of a 2xx reply.
func (c *Client) do(ctx context.Context, req request) ([]byte, error) {
	op := req.method + " " + req.path

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, apperr.Connection(op, err)
		}
	}

	target := c.baseURL + req.path
	if len(req.query) > 0 {
		target += "?" + req.query.Encode()
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, target, req.body)
	if err != nil {
		return nil, apperr.Connection(op, err)
	}

	requestID := uuid.NewString()
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("X-Request-ID", requestID)
	if req.contentType != "" {
		httpReq.Header.Set("Content-Type", req.contentType)
	}
	if token := c.Token(); token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		c.log.Warn("request failed", "op", op, "request_id", requestID, "error", err)
		return nil, apperr.Connection(op, classify(err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, apperr.Connection(op, classify(err))
	}

	c.log.Debug("request done", "op", op, "request_id", requestID, "status", resp.StatusCode,
		"duration", time.Since(start).Round(time.Millisecond))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &apperr.ServerError{Code: resp.StatusCode, Message: errorMessage(resp.StatusCode, body)}
	}
	return body, nil
}

// classify makes every timeout match context.DeadlineExceeded.
func classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return fmt.Errorf("%w: %v", context.DeadlineExceeded, err)
	}
	return err
}

func (c *Client) getList(ctx context.Context, what, path string, query url.Values) ([]fields, error) {
	body, err := c.do(ctx, request{method: http.MethodGet, path: path, query: query})
	if err != nil {
		return nil, err
	}
	v, err := decodeBody(what, body)
	if err != nil {
		return nil, err
	}
	list, err := unwrapList(what, v)
	if err != nil {
		return nil, err
	}

	out := make([]fields, 0, len(list))
	for i, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, &apperr.ParseError{What: what, Err: fmt.Errorf("element %d is not an object", i)}
		}
		out = append(out, newFields(m))
	}
	return out, nil
}

func (c *Client) object(ctx context.Context, what string, req request) (fields, error) {
	body, err := c.do(ctx, req)
	if err != nil {
		return nil, err
	}
	v, err := decodeBody(what, body)
	if err != nil {
		return nil, err
	}
	return unwrapObject(what, v)
}
