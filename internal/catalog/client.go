package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/OpenNSW/fito/internal/cache"
	"github.com/OpenNSW/fito/internal/config"
	"github.com/OpenNSW/fito/internal/fito/model"
)

// ErrNotFound is returned when the service answers 404.
var ErrNotFound = errors.New("catalog: not found")

// StatusError carries a non-2xx answer from the service.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: service returned status code %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// Client talks to the external catalog and certificate generation service.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	cache      cache.Cache
}

// NewClient creates a client. A nil cache disables caching of reference data.
func NewClient(cfg config.CatalogConfig, c cache.Cache) *Client {
	if c == nil {
		c = cache.Noop{}
	}
	return &Client{
		baseURL: cfg.BaseURL,
		token:   cfg.Token,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		cache: c,
	}
}

// ListShipments returns the candidate parent shipment documents.
func (c *Client) ListShipments(ctx context.Context) ([]model.ShipmentDocument, error) {
	var docs []model.ShipmentDocument
	if err := c.getJSON(ctx, "/fito/guias", nil, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

// ListLineItems returns every child line of a shipment, unfiltered.
func (c *Client) ListLineItems(ctx context.Context, documentID int64) ([]model.ShipmentLineItem, error) {
	var items []model.ShipmentLineItem
	path := "/fito/guias/" + strconv.FormatInt(documentID, 10) + "/hijas"
	if err := c.getJSON(ctx, path, nil, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// LookupDestination resolves a destination code. A null answer or a 404 yields (nil, nil).
func (c *Client) LookupDestination(ctx context.Context, code string) (*model.DestinationInfo, error) {
	var info *model.DestinationInfo
	err := c.getCachedJSON(ctx, "destino:"+code, "/fito/destino/"+url.PathEscape(code), nil, &info)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return info, nil
}

// ListPorts returns the full Ecuadorian or international port list.
func (c *Client) ListPorts(ctx context.Context, ecuador bool) ([]model.Port, error) {
	var ports []model.Port
	q := url.Values{"esEcuador": {strconv.FormatBool(ecuador)}}
	if err := c.getCachedJSON(ctx, "puertos:"+q.Encode(), "/catalogs/puertos", q, &ports); err != nil {
		return nil, err
	}
	return ports, nil
}

// SearchPorts runs a free-text search over the port catalog.
func (c *Client) SearchPorts(ctx context.Context, query string, ecuador bool) ([]model.Port, error) {
	var ports []model.Port
	q := url.Values{"q": {query}, "esEcuador": {strconv.FormatBool(ecuador)}}
	if err := c.getJSON(ctx, "/catalogs/puertos/search", q, &ports); err != nil {
		return nil, err
	}
	return ports, nil
}

// ListSubtypes returns the product subtype enumeration.
func (c *Client) ListSubtypes(ctx context.Context) ([]string, error) {
	var subtypes []string
	if err := c.getCachedJSON(ctx, "subtipos", "/catalogs/productos/subtipos", nil, &subtypes); err != nil {
		return nil, err
	}
	return subtypes, nil
}

// SearchProducts returns ranked catalog entries, best match first.
func (c *Client) SearchProducts(ctx context.Context, query, subtype string) ([]model.ProductCatalogItem, error) {
	var items []model.ProductCatalogItem
	q := url.Values{"q": {query}, "subtipo": {subtype}}
	if err := c.getJSON(ctx, "/catalogs/productos/autocomplete", q, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// Generate submits a certificate generation request.
func (c *Client) Generate(ctx context.Context, req model.GenerateRequest) (*model.GenerateResponse, error) {
	var resp model.GenerateResponse
	if err := c.postJSON(ctx, "/fito/generate", req, &resp); err != nil {
		return nil, err
	}
	if resp.JobID == "" {
		return nil, fmt.Errorf("generate: response carries no jobId")
	}
	return &resp, nil
}

// JobStatus fetches the current state of a generation job.
func (c *Client) JobStatus(ctx context.Context, jobID string) (*model.GenerationJob, error) {
	var job model.GenerationJob
	if err := c.getJSON(ctx, "/fito/status/"+url.PathEscape(jobID), nil, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// DownloadURL is the deterministic location of a completed job's XML.
func (c *Client) DownloadURL(jobID string) string {
	return c.baseURL + "/fito/download/" + url.PathEscape(jobID)
}

// Download streams the generated XML. The caller closes the body.
func (c *Client) Download(ctx context.Context, jobID string) (io.ReadCloser, error) {
	path := "/fito/download/" + url.PathEscape(jobID)
	resp, err := c.do(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

func (c *Client) getCachedJSON(ctx context.Context, key, path string, query url.Values, out any) error {
	if raw, ok, err := c.cache.Get(ctx, key); err != nil {
		slog.WarnContext(ctx, "catalog cache read failed", "key", key, "error", err)
	} else if ok {
		if err := json.Unmarshal(raw, out); err == nil {
			return nil
		}
		slog.WarnContext(ctx, "discarding undecodable cache entry", "key", key)
	}

	resp, err := c.do(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	if err := c.cache.Set(ctx, key, raw); err != nil {
		slog.WarnContext(ctx, "catalog cache write failed", "key", key, "error", err)
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	resp, err := c.do(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (c *Client) postJSON(ctx context.Context, path string, body, out any) error {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, path, nil, jsonData)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// do executes the request and returns the response only for 2xx answers.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body []byte) (*http.Response, error) {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}

	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return nil, fmt.Errorf("%s %s: %w", method, path, ErrNotFound)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, &StatusError{Method: method, Path: path, StatusCode: resp.StatusCode, Body: string(snippet)}
	}
	return resp, nil
}
