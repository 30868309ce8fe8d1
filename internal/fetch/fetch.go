// 包 fetch 封装 HTTP 客户端（代理/超时/按主机限速）：
// - Fetch：条件请求（If-None-Match/If-Modified-Since），不重试，返回 unchanged/ok/error 三态结果
// - Get：普通 GET，按 Retry 线性回退重试，供订阅与种子发现等调用方使用
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"time"

	"indie-blog-circles/internal/metrics"
)

const (
	defaultTimeout   = 15 * time.Second
	defaultUserAgent = "Mozilla/5.0 (compatible; IndieBlogCircles/1.0; +https://github.com/indie-blog-circles)"
	maxBodyBytes     = 8 << 20
)

// ErrTimeout 表示请求超过了硬超时。
var ErrTimeout = errors.New("fetch timeout")

// HTTPStatusError 表示非 2xx/304 的响应。
type HTTPStatusError struct {
	Code   int
	Status string
}

func (e *HTTPStatusError) Error() string { return "http status: " + e.Status }

// Client 为带限速的 HTTP 客户端。
type Client struct {
	http      *http.Client
	timeout   time.Duration
	retry     int
	userAgent string
	limiter   *hostLimiter
}

// Options 为客户端构造参数。
type Options struct {
	ProxyHTTP  string
	ProxyHTTPS string
	Timeout    time.Duration
	Retry      int
	UserAgent  string
	// PerHostRPS 为每个主机每秒请求数，<=0 表示不限速
	PerHostRPS float64
}

// New 创建客户端，支持 http/https 代理与基础超时配置。
func New(opts Options) (*Client, error) {
	for _, p := range []string{opts.ProxyHTTP, opts.ProxyHTTPS} {
		if p == "" {
			continue
		}
		if _, err := url.Parse(p); err != nil {
			return nil, fmt.Errorf("invalid proxy %q: %w", p, err)
		}
	}
	transport := &http.Transport{
		Proxy: func(req *http.Request) (*url.URL, error) {
			if req.URL.Scheme == "https" && opts.ProxyHTTPS != "" {
				return url.Parse(opts.ProxyHTTPS)
			}
			if req.URL.Scheme == "http" && opts.ProxyHTTP != "" {
				return url.Parse(opts.ProxyHTTP)
			}
			return http.ProxyFromEnvironment(req)
		},
		DialContext:           (&net.Dialer{Timeout: 10 * time.Second}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConnsPerHost:   4,
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	ua := opts.UserAgent
	if v := os.Getenv("CIRCLES_UA"); v != "" {
		ua = v
	}
	if ua == "" {
		ua = defaultUserAgent
	}
	return &Client{
		// 超时统一由 context 截止时间控制，确保超时后请求被中止
		http:      &http.Client{Transport: transport},
		timeout:   opts.Timeout,
		retry:     max(0, opts.Retry),
		userAgent: ua,
		limiter:   newHostLimiter(opts.PerHostRPS),
	}, nil
}

// Validators 为缓存校验头。
type Validators struct {
	ETag         string
	LastModified string
}

// Status 为条件请求的结果类型。
type Status int

const (
	StatusOK Status = iota
	StatusUnchanged
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusUnchanged:
		return "unchanged"
	default:
		return "error"
	}
}

// Result 为 Fetch 的返回值：unchanged 时 Body 为空；error 时 Err 非空。
type Result struct {
	Status      Status
	Body        []byte
	Validators  Validators
	StatusCode  int
	ContentType string
	FinalURL    string
	Err         error
}

// Unchanged 报告服务端是否返回 304。
func (r Result) Unchanged() bool { return r.Status == StatusUnchanged }

// Timeout 报告错误是否为超时。
func (r Result) Timeout() bool { return errors.Is(r.Err, ErrTimeout) }

// Fetch 发送条件请求。timeout<=0 时使用客户端默认超时；不做重试。
func (c *Client) Fetch(ctx context.Context, rawURL string, v Validators, timeout time.Duration) Result {
	if timeout <= 0 {
		timeout = c.timeout
	}
	res := c.fetch(ctx, rawURL, v, timeout)
	metrics.FetchResults.WithLabelValues(outcome(res)).Inc()
	return res
}

func (c *Client) fetch(ctx context.Context, rawURL string, v Validators, timeout time.Duration) Result {
	if err := c.limiter.Wait(ctx, rawURL); err != nil {
		return Result{Status: StatusError, Err: fmt.Errorf("rate limit wait: %w", err)}
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return Result{Status: StatusError, Err: fmt.Errorf("new request: %w", err)}
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	if v.ETag != "" {
		req.Header.Set("If-None-Match", v.ETag)
	}
	if v.LastModified != "" {
		req.Header.Set("If-Modified-Since", v.LastModified)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return Result{Status: StatusError, Err: classify(ctx, reqCtx, rawURL, err)}
	}
	defer resp.Body.Close()

	res := Result{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		FinalURL:    resp.Request.URL.String(),
		Validators: Validators{
			ETag:         resp.Header.Get("ETag"),
			LastModified: resp.Header.Get("Last-Modified"),
		},
	}
	switch {
	case resp.StatusCode == http.StatusNotModified:
		res.Status = StatusUnchanged
		res.Validators = mergeValidators(res.Validators, v)
		return res
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		res.Status = StatusError
		res.Err = &HTTPStatusError{Code: resp.StatusCode, Status: resp.Status}
		return res
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		res.Status = StatusError
		res.Err = classify(ctx, reqCtx, rawURL, err)
		return res
	}
	res.Status = StatusOK
	res.Body = body
	return res
}

// Get 普通 GET，失败时按 retry 次数线性回退重试；调用方负责关闭 Body。
func (c *Client) Get(ctx context.Context, rawURL string) (*http.Response, error) {
	var lastErr error
	for i := 0; i <= c.retry; i++ {
		if err := c.limiter.Wait(ctx, rawURL); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
		if err != nil {
			return nil, fmt.Errorf("new request: %w", err)
		}
		req.Header.Set("User-Agent", c.userAgent)
		resp, err := c.http.Do(req)
		if err == nil && resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return resp, nil
		}
		if err == nil {
			lastErr = &HTTPStatusError{Code: resp.StatusCode, Status: resp.Status}
			resp.Body.Close()
		} else {
			lastErr = classify(ctx, ctx, rawURL, err)
		}
		if i == c.retry {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(i+1) * 300 * time.Millisecond):
		}
	}
	return nil, lastErr
}

// GetBody 以客户端默认超时 GET 并读取全部内容。
func (c *Client) GetBody(ctx context.Context, rawURL string) ([]byte, string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	resp, err := c.Get(reqCtx, rawURL)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, "", classify(ctx, reqCtx, rawURL, err)
	}
	return b, resp.Header.Get("Content-Type"), nil
}

// classify 将截止时间到期归类为 ErrTimeout；父 context 被取消则原样返回取消错误。
func classify(parent, reqCtx context.Context, rawURL string, err error) error {
	if parent.Err() != nil {
		return fmt.Errorf("GET %s: %w", rawURL, parent.Err())
	}
	var ne net.Error
	if errors.Is(reqCtx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) ||
		(errors.As(err, &ne) && ne.Timeout()) {
		return fmt.Errorf("GET %s: %w", rawURL, ErrTimeout)
	}
	return fmt.Errorf("GET %s: %w", rawURL, err)
}

// 304 响应可能不回传校验头，此时沿用请求时的值。
func mergeValidators(got, sent Validators) Validators {
	if got.ETag == "" {
		got.ETag = sent.ETag
	}
	if got.LastModified == "" {
		got.LastModified = sent.LastModified
	}
	return got
}

func outcome(r Result) string {
	if r.Status == StatusError && r.Timeout() {
		return "timeout"
	}
	return r.Status.String()
}
