// Package shopify implements a cursor-paginated reader for the Shopify REST
// Admin API.
//
// Shopify pages large collections with an opaque page_info cursor carried in
// the Link response header. Once a cursor is supplied the API rejects most
// filter parameters, so only limit and fields are kept on follow-up requests.
package shopify

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/ultimatecoffee/shopsync/pkg/clients"
	"github.com/ultimatecoffee/shopsync/pkg/config"
	"github.com/ultimatecoffee/shopsync/pkg/errors"
	jsonpool "github.com/ultimatecoffee/shopsync/pkg/json"
	"github.com/ultimatecoffee/shopsync/pkg/metrics"
	"github.com/ultimatecoffee/shopsync/pkg/models"
	"github.com/ultimatecoffee/shopsync/pkg/observability"
	"github.com/ultimatecoffee/shopsync/pkg/secrets"
)

// Query parameters that survive onto cursor requests
const (
	ParamPageInfo = "page_info"
	ParamLimit    = "limit"
	ParamFields   = "fields"
)

// Error detail keys
const (
	DetailStatus = "status"
	DetailPage   = "page"
)

// HTTPGetter is the transport the fetcher issues requests through.
// *clients.HTTPClient satisfies it.
type HTTPGetter interface {
	Get(ctx context.Context, url string, headers map[string]string) (*http.Response, error)
}

type circuitReporter interface {
	CircuitState() clients.CircuitState
}

// Options configures a Fetcher
type Options struct {
	BaseURL       string
	APIVersion    string
	CredentialKey string
	// Retry is applied to every page; nil disables retries
	Retry *clients.RetryPolicy
	// Strict returns page failures to the caller instead of ending
	// pagination with the records gathered so far
	Strict bool
}

// OptionsFromConfig derives fetcher options from the run configuration
func OptionsFromConfig(cfg *config.Config) Options {
	r := cfg.Reliability
	return Options{
		BaseURL:       cfg.Shopify.BaseURL,
		APIVersion:    cfg.Shopify.APIVersion,
		CredentialKey: cfg.Shopify.CredentialKey,
		Retry:         clients.NewRetryPolicy(r.RetryAttempts, r.RetryDelay, r.MaxRetryDelay, r.RetryMultiplier),
		Strict:        r.Strict(),
	}
}

// Fetcher reads every page of a Shopify collection
type Fetcher struct {
	opts   Options
	client HTTPGetter
	store  secrets.Store
	logger *zap.Logger

	mu         sync.Mutex
	authHeader string
}

// NewFetcher creates a fetcher. The credential is read from store on first
// use and kept for the lifetime of the fetcher.
func NewFetcher(opts Options, client HTTPGetter, store secrets.Store, logger *zap.Logger) *Fetcher {
	if opts.Retry == nil {
		opts.Retry = clients.NoRetryPolicy()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	return &Fetcher{
		opts:   opts,
		client: client,
		store:  store,
		logger: logger.With(zap.String("component", "shopify_fetcher")),
	}
}

type page struct {
	records []models.Record
	cursors Cursors
}

// FetchAll requests endpoint (e.g. "orders.json") with params and follows
// next cursors until the last page. Records found under resultKey are
// returned in server order without deduplication.
//
// A page that fails after retries ends pagination. Under the soft policy the
// failure is logged and the records gathered so far are returned with a nil
// error; under the strict policy the failure is returned. Cancellation of
// ctx is always returned.
func (f *Fetcher) FetchAll(ctx context.Context, endpoint string, params url.Values, resultKey string) ([]models.Record, error) {
	ctx, span := observability.StartSpan(ctx, "shopify.fetch_all",
		attribute.String("shopify.endpoint", endpoint))

	records, pages, err := f.fetchAll(ctx, endpoint, params, resultKey)

	span.SetAttribute("shopify.pages", pages)
	span.SetAttribute("shopify.records", len(records))
	span.End(err)
	return records, err
}

func (f *Fetcher) fetchAll(ctx context.Context, endpoint string, params url.Values, resultKey string) ([]models.Record, int, error) {
	auth, err := f.authorization(ctx)
	if err != nil {
		return nil, 0, err
	}

	label := endpointLabel(endpoint)
	log := f.logger.With(zap.String("endpoint", endpoint))

	var all []models.Record
	query := cloneValues(params)
	seen := make(map[string]struct{})

	for pageNum := 1; ; pageNum++ {
		p, err := f.fetchPageWithRetry(ctx, endpoint, query, resultKey, auth, label)
		if err != nil {
			metrics.FetchErrors.WithLabelValues(label, string(errors.TypeOf(err))).Inc()

			if ctxErr := ctx.Err(); ctxErr != nil {
				return all, pageNum - 1, errors.Wrap(ctxErr, errors.ErrorTypeTimeout, fmt.Sprintf("fetch of %s interrupted", endpoint))
			}
			if f.opts.Strict {
				return all, pageNum - 1, errors.Wrap(err, errors.TypeOf(err), fmt.Sprintf("fetch of %s failed on page %d", endpoint, pageNum)).
					WithDetail(DetailPage, pageNum)
			}
			log.Warn("page failed, ending pagination",
				zap.Int("page", pageNum),
				zap.Int("records", len(all)),
				zap.Error(err))
			return all, pageNum - 1, nil
		}

		all = append(all, p.records...)
		metrics.PagesFetched.WithLabelValues(label).Inc()
		metrics.RecordsFetched.WithLabelValues(label).Add(float64(len(p.records)))
		log.Debug("page fetched",
			zap.Int("page", pageNum),
			zap.Int("page_records", len(p.records)),
			zap.Int("total_records", len(all)))

		next, ok := p.cursors.Next()
		if !ok {
			return all, pageNum, nil
		}
		if _, dup := seen[next]; dup {
			log.Warn("server repeated a cursor, ending pagination", zap.Int("page", pageNum))
			return all, pageNum, nil
		}
		seen[next] = struct{}{}
		query = cursorParams(query, next)
	}
}

// cursorParams builds the parameter set for a cursor request: page_info plus
// limit and fields carried over from the previous request
func cursorParams(prev url.Values, cursor string) url.Values {
	next := url.Values{}
	for _, key := range []string{ParamLimit, ParamFields} {
		if v, ok := prev[key]; ok {
			next[key] = append([]string(nil), v...)
		}
	}
	next.Set(ParamPageInfo, cursor)
	return next
}

func (f *Fetcher) fetchPageWithRetry(ctx context.Context, endpoint string, query url.Values, resultKey, auth, label string) (*page, error) {
	var result *page
	attempt := 0
	err := f.opts.Retry.ExecuteWithCondition(ctx, func() error {
		attempt++
		if attempt > 1 {
			metrics.FetchRetries.WithLabelValues(label).Inc()
			f.logger.Debug("retrying page", zap.String("endpoint", endpoint), zap.Int("attempt", attempt))
		}
		p, err := f.fetchPage(ctx, endpoint, query, resultKey, auth, label)
		if err != nil {
			return err
		}
		result = p
		return nil
	}, errors.IsRetryable)
	return result, err
}

func (f *Fetcher) fetchPage(ctx context.Context, endpoint string, query url.Values, resultKey, auth, label string) (*page, error) {
	ctx, span := observability.StartSpan(ctx, "shopify.fetch_page")
	p, err := f.doFetchPage(ctx, endpoint, query, resultKey, auth, label)
	if p != nil {
		span.SetAttribute("shopify.page_records", len(p.records))
	}
	span.End(err)
	return p, err
}

func (f *Fetcher) doFetchPage(ctx context.Context, endpoint string, query url.Values, resultKey, auth, label string) (*page, error) {
	reqURL := f.endpointURL(endpoint, query)

	start := time.Now()
	resp, err := f.client.Get(ctx, reqURL, map[string]string{
		"Authorization": auth,
		"Accept":        "application/json",
	})
	metrics.HTTPLatency.WithLabelValues(label).Observe(time.Since(start).Seconds())
	if cs, ok := f.client.(circuitReporter); ok {
		metrics.CircuitState.Set(float64(cs.CircuitState()))
	}
	if err != nil {
		metrics.HTTPRequests.WithLabelValues(label, "error").Inc()
		if errors.Is(err, clients.ErrCircuitOpen) {
			return nil, err
		}
		return nil, errors.Wrap(err, errors.ErrorTypeTransientFetch, "request failed")
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()
	metrics.HTTPRequests.WithLabelValues(label, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp)
	}

	body, err := jsonpool.DecodeObject(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeMalformedResponse, "response body is not a JSON object")
	}

	records, err := extractRecords(models.Record(body), resultKey)
	if err != nil {
		return nil, err
	}

	return &page{
		records: records,
		cursors: ParseLinkHeader(resp.Header.Get("Link")),
	}, nil
}

// extractRecords returns the objects of the array under resultKey. An absent
// or null key yields no records; any other non-array value is malformed.
func extractRecords(body models.Record, resultKey string) ([]models.Record, error) {
	raw, present := body[resultKey]
	if !present || raw == nil {
		return nil, nil
	}
	arr, ok := raw.([]interface{})
	if !ok {
		return nil, errors.Newf(errors.ErrorTypeMalformedResponse, "%q is not an array", resultKey)
	}

	records := make([]models.Record, 0, len(arr))
	for _, e := range arr {
		if obj, ok := e.(map[string]interface{}); ok {
			records = append(records, models.Record(obj))
		}
	}
	return records, nil
}

func statusError(resp *http.Response) error {
	code := resp.StatusCode
	var e *errors.Error
	switch {
	case code == http.StatusTooManyRequests:
		e = errors.Newf(errors.ErrorTypeTransientFetch, "rate limited (status %d)", code)
		if d, ok := parseRetryAfter(resp.Header.Get("Retry-After"), time.Now()); ok {
			e.WithDetail(clients.DetailRetryAfter, d)
		}
	case code >= 500:
		e = errors.Newf(errors.ErrorTypeTransientFetch, "server error (status %d)", code)
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		e = errors.Newf(errors.ErrorTypeAuthentication, "credential rejected (status %d)", code)
	case code == http.StatusNotFound:
		e = errors.Newf(errors.ErrorTypeNotFound, "endpoint not found (status %d)", code)
	default:
		e = errors.Newf(errors.ErrorTypeValidation, "request rejected (status %d)", code)
	}
	return e.WithDetail(DetailStatus, code)
}

// parseRetryAfter accepts both delay-seconds (Shopify sends "2.0") and
// HTTP-date forms
func parseRetryAfter(v string, now time.Time) (time.Duration, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		if secs < 0 {
			return 0, false
		}
		return time.Duration(secs * float64(time.Second)), true
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := t.Sub(now); d > 0 {
			return d, true
		}
		return 0, true
	}
	return 0, false
}

func (f *Fetcher) endpointURL(endpoint string, query url.Values) string {
	u := fmt.Sprintf("%s/admin/api/%s/%s", f.opts.BaseURL, f.opts.APIVersion, strings.TrimLeft(endpoint, "/"))
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// authorization returns the Basic authorization header value, reading the
// credential on first use
func (f *Fetcher) authorization(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.authHeader != "" {
		return f.authHeader, nil
	}
	secret, err := f.store.Get(ctx, f.opts.CredentialKey)
	if err != nil {
		return "", err
	}
	f.authHeader = BasicAuth(secret)
	return f.authHeader, nil
}

// BasicAuth returns the Authorization header value for a "key:password"
// credential
func BasicAuth(secret string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(secret))
}

func endpointLabel(endpoint string) string {
	endpoint = strings.Trim(endpoint, "/")
	if i := strings.LastIndex(endpoint, "/"); i >= 0 {
		endpoint = endpoint[i+1:]
	}
	return strings.TrimSuffix(endpoint, ".json")
}

func cloneValues(v url.Values) url.Values {
	out := make(url.Values, len(v))
	for k, vals := range v {
		out[k] = append([]string(nil), vals...)
	}
	return out
}
