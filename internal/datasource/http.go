package datasource

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pitabwire/opsdesk/internal/config"
	"github.com/pitabwire/opsdesk/internal/observability"
	"github.com/pitabwire/opsdesk/model"
)

// Default response paths for the backend list contract
// {data: [...], pagination: {total, totalPages}}.
const (
	defaultItemsPath      = "data"
	defaultTotalPath      = "pagination.total"
	defaultTotalPagesPath = "pagination.totalPages"
)

const maxResponseBytes = 10 << 20

// HTTPSource fetches records from a backend list endpoint.
type HTTPSource struct {
	screenID string
	def      model.DataSourceDefinition
	retry    config.RetryConfig
	client   *http.Client
	breaker  *CircuitBreaker
	metrics  *observability.Metrics
	logger   *zap.Logger
}

// HTTPOption configures an HTTPSource.
type HTTPOption func(*HTTPSource)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(s *HTTPSource) { s.client = c }
}

// WithHTTPMetrics records breaker state and retries.
func WithHTTPMetrics(m *observability.Metrics) HTTPOption {
	return func(s *HTTPSource) { s.metrics = m }
}

// WithHTTPLogger sets the logger.
func WithHTTPLogger(l *zap.Logger) HTTPOption {
	return func(s *HTTPSource) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewHTTPSource creates a source for one screen's backend endpoint, with its
// own circuit breaker.
func NewHTTPSource(screenID string, def model.DataSourceDefinition, cfg config.HTTPSourceConfig, opts ...HTTPOption) *HTTPSource {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	s := &HTTPSource{
		screenID: screenID,
		def:      def,
		retry:    cfg.Retry,
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxConnsPerHost:     50,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		breaker: NewCircuitBreaker(cfg.CircuitBreaker),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Paginated reports whether the backend pages server-side.
func (s *HTTPSource) Paginated() bool { return s.def.ServerPaging }

// Breaker exposes the source's circuit breaker.
func (s *HTTPSource) Breaker() *CircuitBreaker { return s.breaker }

// Fetch calls the backend, retrying retryable failures with exponential
// backoff. Failures map to BACKEND_UNAVAILABLE or BACKEND_TIMEOUT.
func (s *HTTPSource) Fetch(ctx context.Context, req model.FetchRequest) (model.FetchResult, error) {
	reqURL, err := s.buildURL(req)
	if err != nil {
		return model.FetchResult{}, err
	}
	headers := s.buildHeaders(ctx)

	body, err := s.executeWithRetry(ctx, reqURL, headers)
	if err != nil {
		return model.FetchResult{}, err
	}
	return decodeResponse(body, s.def.Mapping)
}

func (s *HTTPSource) buildURL(req model.FetchRequest) (string, error) {
	base, err := url.Parse(strings.TrimRight(s.def.BaseURL, "/") + s.def.Path)
	if err != nil {
		return "", fmt.Errorf("datasource: invalid url for screen %s: %w", s.screenID, err)
	}
	if !s.def.ServerPaging {
		return base.String(), nil
	}

	q := base.Query()
	q.Set("page", strconv.Itoa(max(req.Page, 1)))
	q.Set("page_size", strconv.Itoa(req.PageSize))
	if req.Filters.SortOrder != "" {
		q.Set("sort", string(req.Filters.SortOrder))
	}
	if t := req.Filters.ActiveTab; t != "" && t != model.TabAll {
		q.Set("tab", t)
	}
	if f := req.Filters.DropdownFilter; f != "" && f != model.FilterAll {
		q.Set("filter", f)
	}
	if search := strings.TrimSpace(req.Filters.SearchQuery); search != "" {
		q.Set("q", search)
	}
	base.RawQuery = q.Encode()
	return base.String(), nil
}

func (s *HTTPSource) buildHeaders(ctx context.Context) http.Header {
	h := make(http.Header)
	h.Set("Accept", "application/json")

	if rctx := model.RequestContextFrom(ctx); rctx != nil {
		h.Set("X-Tenant-Id", sanitizeHeader(rctx.TenantID))
		h.Set("X-Request-Subject", sanitizeHeader(rctx.SubjectID))
		h.Set("X-Correlation-Id", sanitizeHeader(rctx.CorrelationID))
	}
	for k, v := range s.def.Headers {
		h.Set(sanitizeHeader(k), sanitizeHeader(v))
	}
	observability.InjectTraceHeaders(ctx, h)
	return h
}

func (s *HTTPSource) executeWithRetry(ctx context.Context, reqURL string, headers http.Header) ([]byte, error) {
	attempts := max(s.retry.MaxAttempts, 1)

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			s.metrics.RecordRetry(s.screenID)
			select {
			case <-ctx.Done():
				return nil, model.NewBackendTimeoutError()
			case <-time.After(backoff(s.retry, attempt)):
			}
		}

		body, retryable, err := s.executeOnce(ctx, reqURL, headers)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !retryable {
			break
		}
		s.logger.Debug("datasource: retrying fetch",
			zap.String("screen_id", s.screenID),
			zap.Int("attempt", attempt+1),
			zap.Int("max", attempts),
			zap.Error(err),
		)
	}
	return nil, lastErr
}

// executeOnce performs one request. The boolean reports whether the failure
// is worth retrying.
func (s *HTTPSource) executeOnce(ctx context.Context, reqURL string, headers http.Header) ([]byte, bool, error) {
	defer func() {
		s.metrics.SetCircuitBreakerState(s.screenID, float64(s.breaker.State()))
	}()

	if err := s.breaker.Allow(); err != nil {
		s.logger.Warn("datasource: circuit breaker open", zap.String("screen_id", s.screenID))
		return nil, false, model.NewBackendUnavailableError()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, false, fmt.Errorf("datasource: build request: %w", err)
	}
	req.Header = headers.Clone()

	resp, err := s.client.Do(req)
	if err != nil {
		s.breaker.RecordFailure()
		if ctx.Err() != nil || isTimeout(err) {
			return nil, false, model.NewBackendTimeoutError()
		}
		if isConnectionError(err) {
			return nil, true, model.NewBackendUnavailableError()
		}
		return nil, true, fmt.Errorf("datasource: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		s.breaker.RecordFailure()
		return nil, true, fmt.Errorf("datasource: read response: %w", err)
	}

	switch {
	case resp.StatusCode >= 500:
		s.breaker.RecordFailure()
		return nil, isRetryableStatus(resp.StatusCode), model.NewBackendUnavailableError()
	case resp.StatusCode >= 400:
		// Client errors say nothing about backend health.
		return nil, false, model.NewBadRequestError(
			fmt.Sprintf("backend rejected list request with status %d", resp.StatusCode))
	}
	s.breaker.RecordSuccess()
	return body, false, nil
}

// decodeResponse locates the items and totals in a backend response and maps
// each item onto a record.
func decodeResponse(body []byte, m model.ResponseMapping) (model.FetchResult, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return model.FetchResult{}, fmt.Errorf("datasource: decode response: %w", err)
	}

	itemsPath := m.ItemsPath
	if itemsPath == "" {
		itemsPath = defaultItemsPath
	}
	totalPath := m.TotalPath
	if totalPath == "" {
		totalPath = defaultTotalPath
	}
	pagesPath := m.TotalPagesPath
	if pagesPath == "" {
		pagesPath = defaultTotalPagesPath
	}

	raw, ok := lookupPath(doc, itemsPath)
	if !ok {
		// A bare array is accepted as the item list.
		raw = doc
	}
	items, ok := raw.([]any)
	if !ok {
		return model.FetchResult{}, fmt.Errorf("datasource: %q is not an array", itemsPath)
	}

	result := model.FetchResult{Records: make([]model.Record, 0, len(items))}
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		result.Records = append(result.Records, mapRecord(obj, m.FieldMap))
	}
	if v, ok := lookupPath(doc, totalPath); ok {
		result.Total = toInt(v)
	}
	if v, ok := lookupPath(doc, pagesPath); ok {
		result.TotalPages = toInt(v)
	}
	return result, nil
}

// mapRecord builds a record from a backend object. fieldMap maps record field
// names to backend keys; unmapped scalar keys become attributes.
func mapRecord(obj map[string]any, fieldMap map[string]string) model.Record {
	source := func(field string) string {
		if k, ok := fieldMap[field]; ok {
			return k
		}
		return field
	}
	consumed := map[string]bool{}
	take := func(field string) string {
		key := source(field)
		consumed[key] = true
		return scalarString(obj[key])
	}

	rec := model.Record{
		ID:      take(model.FieldID),
		Status:  take(model.FieldStatus),
		SortKey: take(model.FieldSortKey),
	}
	for field, key := range fieldMap {
		switch field {
		case model.FieldID, model.FieldStatus, model.FieldSortKey:
			continue
		}
		if v, ok := obj[key]; ok {
			if rec.Attributes == nil {
				rec.Attributes = map[string]string{}
			}
			rec.Attributes[field] = scalarString(v)
			consumed[key] = true
		}
	}
	for key, v := range obj {
		if consumed[key] {
			continue
		}
		switch v.(type) {
		case map[string]any, []any:
			continue
		}
		if rec.Attributes == nil {
			rec.Attributes = map[string]string{}
		}
		rec.Attributes[key] = scalarString(v)
	}
	return rec
}

func lookupPath(doc any, path string) (any, bool) {
	cur := doc
	for _, part := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = obj[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func scalarString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}

func toInt(v any) int {
	switch t := v.(type) {
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return int(n)
		}
		if f, err := t.Float64(); err == nil {
			return int(f)
		}
	case string:
		n, _ := strconv.Atoi(t)
		return n
	}
	return 0
}

// sanitizeHeader strips CR and LF to prevent header injection.
func sanitizeHeader(s string) string {
	s = strings.ReplaceAll(s, "\r", "")
	return strings.ReplaceAll(s, "\n", "")
}

func isRetryableStatus(code int) bool {
	switch code {
	case http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func isConnectionError(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}

func backoff(cfg config.RetryConfig, attempt int) time.Duration {
	if cfg.BackoffInitial <= 0 {
		cfg.BackoffInitial = 100 * time.Millisecond
	}
	if cfg.BackoffMultiplier <= 0 {
		cfg.BackoffMultiplier = 2
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = 2 * time.Second
	}

	delay := cfg.BackoffInitial
	for i := 1; i < attempt; i++ {
		delay = time.Duration(float64(delay) * cfg.BackoffMultiplier)
		if delay >= cfg.BackoffMax {
			return cfg.BackoffMax
		}
	}
	return delay
}
