package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"infobot-backend/internal/logger"
	"infobot-backend/internal/metrics"
	"infobot-backend/internal/models"
)

const noRecordsMessage = "No matching records found"

// LookupClient is the paid external lookup. Every failure is reported in
// the result, never as a panic or a partial payload.
type LookupClient interface {
	Lookup(ctx context.Context, kind models.SearchKind, term string) models.LookupResult
}

// HTTPLookupClient calls GET {base}?key=..&type=..&term=.. and passes the
// first JSON value of the body through untouched.
type HTTPLookupClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
	limiter *rate.Limiter
	log     *logrus.Entry
}

func NewHTTPLookupClient(baseURL, apiKey string, timeout time.Duration, perSecond float64) *HTTPLookupClient {
	limit := rate.Inf
	burst := 1
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
		burst = int(perSecond)
		if burst < 1 {
			burst = 1
		}
	}

	return &HTTPLookupClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(limit, burst),
		log:     logger.Component("lookup"),
	}
}

func (c *HTTPLookupClient) Lookup(ctx context.Context, kind models.SearchKind, term string) models.LookupResult {
	start := time.Now()
	defer func() { metrics.RecordLookup(string(kind), time.Since(start)) }()

	if err := c.limiter.Wait(ctx); err != nil {
		return failed("rate limit wait: %v", err)
	}

	query := url.Values{}
	query.Set("key", c.apiKey)
	query.Set("type", string(kind))
	query.Set("term", term)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+query.Encode(), nil)
	if err != nil {
		return failed("build request: %v", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.log.WithFields(logrus.Fields{"kind": kind, "error": err}).Warn("Lookup request failed")
		return failed("request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return failed("unexpected status %d", resp.StatusCode)
	}

	// Upstream sometimes appends a second JSON document; only the first counts.
	var payload json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return failed("decode response: %v", err)
	}

	doc := gjson.ParseBytes(payload)
	if isEmpty(doc) {
		return failed("empty response")
	}
	if e := doc.Get("error"); e.Exists() {
		if e.Type == gjson.Null || e.String() == "" {
			return failed("upstream error")
		}
		return failed("%s", e.String())
	}
	if msg := doc.Get("message"); msg.String() == noRecordsMessage {
		return failed("%s", noRecordsMessage)
	}

	return models.LookupResult{OK: true, Payload: payload}
}

// isEmpty reports whether doc carries nothing: null, false, zero, an empty
// string, or an empty object or array.
func isEmpty(doc gjson.Result) bool {
	switch doc.Type {
	case gjson.Null, gjson.False:
		return true
	case gjson.Number:
		return doc.Num == 0
	case gjson.String:
		return doc.Str == ""
	}
	if doc.IsObject() {
		return len(doc.Map()) == 0
	}
	if doc.IsArray() {
		return len(doc.Array()) == 0
	}
	return false
}

func failed(format string, args ...any) models.LookupResult {
	return models.LookupResult{Reason: fmt.Sprintf(format, args...)}
}
