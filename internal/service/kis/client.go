package kis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"AutoTrade/internal/domain/repository"
	"AutoTrade/internal/service/ratelimit"
	xhttp "AutoTrade/pkg/http"
	applogger "AutoTrade/pkg/logger"
)

const (
	SimulateDomain = "https://openapivts.koreainvestment.com:29443"
	LiveDomain     = "https://openapi.koreainvestment.com:9443"

	defaultRetryAfter = 60 * time.Second
	tokenRefreshSkew  = 300 * time.Second
)

type Config struct {
	AppKey        string
	AppSecret     string
	AccountNumber string // CANO, 8 digits
	AccountCode   string // ACNT_PRDT_CD
	Simulate      bool
	BaseURL       string // empty selects the simulate or live domain
	Timeout       time.Duration
	CallDelay     time.Duration
	MaxRetries    int
	BackoffBase   time.Duration
	BackoffMax    time.Duration
	Location      *time.Location
}

func (c *Config) setDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = LiveDomain
		if c.Simulate {
			c.BaseURL = SimulateDomain
		}
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = 200 * time.Millisecond
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = 5 * time.Second
	}
	if c.Location == nil {
		c.Location = time.Local
	}
}

// Client talks to the brokerage REST API. One instance is shared by every
// goroutine of a process: it owns the token, the pacer and the transport.
type Client struct {
	cfg     Config
	http    *xhttp.Client
	pacer   *ratelimit.Pacer
	metrics repository.Metrics
	log     *applogger.Logger

	tokenMu sync.Mutex
	token   *Token

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func NewClient(cfg Config, limiter *ratelimit.Limiter, metrics repository.Metrics, log *applogger.Logger) *Client {
	cfg.setDefaults()
	return &Client{
		cfg:     cfg,
		http:    xhttp.NewClient(xhttp.WithBaseURL(cfg.BaseURL), xhttp.WithTimeout(cfg.Timeout), xhttp.WithUserAgent("autotrade-kis/1.0")),
		pacer:   ratelimit.NewPacer(limiter, "kis:"+cfg.AppKey, cfg.CallDelay),
		metrics: metrics,
		log:     log,
		now:     time.Now,
		sleep:   sleepCtx,
	}
}

// TrID applies the environment prefix: "V" when simulating, "T" when live.
func (c *Client) TrID(base string) string {
	if c.cfg.Simulate {
		return "V" + base
	}
	return "T" + base
}

// Call describes one API request. TrID is sent verbatim.
type Call struct {
	Method string
	Path   string
	TrID   string
	Query  map[string]string
	Body   interface{}
	TrCont string // "N" on continuation requests
}

// Response is a decoded envelope plus the raw body for typed decoding.
type Response struct {
	Header  http.Header
	Body    []byte
	RtCd    string
	MsgCd   string
	Message string
}

type envelope struct {
	RtCd  string `json:"rt_cd"`
	MsgCd string `json:"msg_cd"`
	Msg1  string `json:"msg1"`
}

// Decode unmarshals the raw body into dest.
func (r *Response) Decode(dest interface{}) error {
	if err := json.Unmarshal(r.Body, dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Request performs one authenticated call. Transport failures are
// retried with exponential backoff; HTTP and business errors are not.
func (c *Client) Request(ctx context.Context, call Call) (*Response, error) {
	tok, err := c.Authenticate(ctx, false)
	if err != nil {
		return nil, err
	}

	headers := map[string]string{
		"content-type":  "application/json; charset=utf-8",
		"authorization": tok.Type + " " + tok.Value,
		"appkey":        c.cfg.AppKey,
		"appsecret":     c.cfg.AppSecret,
		"tr_id":         call.TrID,
	}
	if call.TrCont != "" {
		headers["tr_cont"] = call.TrCont
	}

	start := c.now()
	raw, err := c.send(ctx, &xhttp.RequestOptions{
		Method:  call.Method,
		Path:    call.Path,
		Headers: headers,
		Query:   call.Query,
		Body:    call.Body,
	})
	if c.metrics != nil {
		c.metrics.RecordLatency("kis."+call.TrID, c.now().Sub(start).Seconds())
	}
	if err != nil {
		c.recordCall(call.TrID, err)
		return nil, err
	}
	c.recordCall(call.TrID, nil)

	var env envelope
	if err := json.Unmarshal(raw.Body, &env); err != nil {
		return nil, fmt.Errorf("decode envelope %s: %w", call.TrID, err)
	}
	resp := &Response{
		Header:  raw.Header,
		Body:    raw.Body,
		RtCd:    env.RtCd,
		MsgCd:   env.MsgCd,
		Message: strings.TrimSpace(env.Msg1),
	}
	if env.RtCd != "0" {
		return resp, &OrderRejectedError{Code: env.RtCd, MsgCode: env.MsgCd, Message: resp.Message}
	}
	return resp, nil
}

// send executes opts with the transport retry policy and maps failures onto
// the error taxonomy. Every attempt, retries and token grants included, takes
// its own pacer slot.
func (c *Client) send(ctx context.Context, opts *xhttp.RequestOptions) (*xhttp.Response, error) {
	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxRetries; attempt++ {
		if err := c.pacer.Wait(ctx); err != nil {
			return nil, err
		}
		resp, err := c.http.Do(ctx, opts)
		if err == nil {
			return resp, nil
		}

		var se *xhttp.StatusError
		if errors.As(err, &se) {
			if se.StatusCode == http.StatusTooManyRequests {
				return nil, &RateLimitError{RetryAfter: parseRetryAfter(se.Header.Get("Retry-After"))}
			}
			return nil, &ResponseError{StatusCode: se.StatusCode, Body: string(se.Body)}
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		kind := "network"
		lastErr = &NetworkError{Attempts: attempt, Err: err}
		if xhttp.IsTimeout(err) {
			kind = "timeout"
			lastErr = &TimeoutError{Attempts: attempt, Err: err}
		}
		if attempt == c.cfg.MaxRetries {
			break
		}
		if c.metrics != nil {
			c.metrics.RecordRetry(kind)
		}
		wait := c.backoff(attempt)
		c.log.Warn("kis call failed, retrying",
			applogger.String("path", opts.Path),
			applogger.String("kind", kind),
			applogger.Int("attempt", attempt),
			applogger.Duration("backoff_ms", wait),
			applogger.Error(err),
		)
		if err := c.sleep(ctx, wait); err != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

// backoff returns base * 2^(attempt-1), capped.
func (c *Client) backoff(attempt int) time.Duration {
	d := c.cfg.BackoffBase << (attempt - 1)
	if d <= 0 || d > c.cfg.BackoffMax {
		return c.cfg.BackoffMax
	}
	return d
}

func (c *Client) recordCall(trID string, err error) {
	if c.metrics == nil {
		return
	}
	status := "ok"
	var (
		re *ResponseError
		rl *RateLimitError
	)
	switch {
	case err == nil:
	case errors.As(err, &rl):
		status = "429"
	case errors.As(err, &re):
		status = strconv.Itoa(re.StatusCode)
	default:
		status = Kind(err)
	}
	c.metrics.RecordBrokerCall(trID, status)
}

// PageKeys names the continuation fields of a paginated inquiry:
// "100" for domestic endpoints, "200" for overseas ones.
type PageKeys string

const (
	Domestic PageKeys = "100"
	Overseas PageKeys = "200"
)

// Paginate repeats call while the server marks more data (tr_cont F or M),
// feeding the ctx_area continuation headers back as query params. Each page is
// handed to fn in server order. The first error stops the walk.
func (c *Client) Paginate(ctx context.Context, call Call, keys PageKeys, upperParams bool, fn func(*Response) error) error {
	nkParam, fkParam := "ctx_area_nk"+string(keys), "ctx_area_fk"+string(keys)
	if upperParams {
		nkParam, fkParam = strings.ToUpper(nkParam), strings.ToUpper(fkParam)
	}

	query := make(map[string]string, len(call.Query)+2)
	for k, v := range call.Query {
		query[k] = v
	}
	if _, ok := query[nkParam]; !ok {
		query[nkParam] = ""
		query[fkParam] = ""
	}
	call.Query = query

	for page := 1; ; page++ {
		resp, err := c.Request(ctx, call)
		if err != nil {
			return fmt.Errorf("page %d: %w", page, err)
		}
		if err := fn(resp); err != nil {
			return err
		}

		cont := resp.Header.Get("tr_cont")
		if cont != "F" && cont != "M" {
			return nil
		}
		query[nkParam] = resp.Header.Get("ctx_area_nk" + string(keys))
		query[fkParam] = resp.Header.Get("ctx_area_fk" + string(keys))
		call.TrCont = "N"
	}
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return defaultRetryAfter
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
		return 0
	}
	return defaultRetryAfter
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
