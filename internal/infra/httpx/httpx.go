package httpx

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultTimeout  = 10 * time.Second
	defaultRetryMax = 2
)

// UserAgent 是所有出站请求的默认 UA。
var UserAgent = "emsc/1"

// Transport 把“固定 UA + 代理 + 有界重试”固化为统一策略。
//
// sink（Pushgateway 等）只负责组织请求，不关心网络策略细节。
type Transport struct {
	Base *http.Transport

	UserAgent string

	// RetryMax 表示最大重试次数（不含首次尝试）。例如 2 表示最多 3 次尝试。
	RetryMax int

	// Backoff 是两次尝试之间的等待（线性递增）。
	Backoff time.Duration
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, errors.New("nil request")
	}
	if t.Base == nil {
		return nil, errors.New("nil base transport")
	}

	// 只对可重放的请求重试：无 body，或 body 可通过 GetBody 重新获取。
	canRetry := req.Body == nil || req.Body == http.NoBody || req.GetBody != nil
	max := t.RetryMax
	if max < 0 || !canRetry {
		max = 0
	}

	var (
		lastResp *http.Response
		lastErr  error
	)
	for attempt := 0; attempt <= max; attempt++ {
		if attempt > 0 {
			if lastResp != nil {
				lastResp.Body.Close()
				lastResp = nil
			}
			if err := sleep(req, time.Duration(attempt)*t.Backoff); err != nil {
				return nil, err
			}
		}

		r, err := cloneRequest(req, attempt)
		if err != nil {
			return nil, err
		}
		if r.Header.Get("User-Agent") == "" && t.UserAgent != "" {
			r.Header.Set("User-Agent", t.UserAgent)
		}

		resp, err := t.Base.RoundTrip(r)
		if err == nil {
			if !retryableStatus(resp.StatusCode) || attempt == max {
				return resp, nil
			}
			lastResp, lastErr = resp, nil
			continue
		}
		lastErr = err
		if req.Context().Err() != nil {
			// ctx 已取消：不再重试，直接返回最后错误。
			return nil, lastErr
		}
	}
	if lastResp != nil {
		return lastResp, nil
	}
	return nil, lastErr
}

func retryableStatus(code int) bool {
	switch code {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

func sleep(req *http.Request, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-req.Context().Done():
		return req.Context().Err()
	case <-timer.C:
		return nil
	}
}

// cloneRequest 复制 request，避免在 RoundTripper 内部“污染”调用方的 request。
// 重试时 body 通过 GetBody 重新获取。
func cloneRequest(req *http.Request, attempt int) (*http.Request, error) {
	r := req.Clone(req.Context())
	if attempt > 0 && req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		r.Body = body
	}
	return r, nil
}

// NewPushClient 构造用于推送运行结果（Pushgateway 等）的 HTTP client。
//
// 规则：
// - proxyURL 非空：走代理
// - 固定 UA
// - 有界重试（网络错误与 502/503/504）+ 总超时
func NewPushClient(proxyURL string) (*http.Client, error) {
	base := &http.Transport{
		Proxy:                 nil,
		TLSHandshakeTimeout:   5 * time.Second,
		ResponseHeaderTimeout: 5 * time.Second,
		MaxIdleConns:          4,
		IdleConnTimeout:       30 * time.Second,
	}

	if proxyURL = strings.TrimSpace(proxyURL); proxyURL != "" {
		u, err := url.Parse(proxyURL)
		if err != nil {
			return nil, err
		}
		base.Proxy = http.ProxyURL(u)
	}

	return &http.Client{
		Transport: &Transport{
			Base:      base,
			UserAgent: UserAgent,
			RetryMax:  defaultRetryMax,
			Backoff:   200 * time.Millisecond,
		},
		Timeout: defaultTimeout,
	}, nil
}
