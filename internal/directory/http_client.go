package directory

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/LorillaJm/es6-sub000/config"
	"github.com/LorillaJm/es6-sub000/pkg/breaker"
)

// HTTPClient 通过 REST 接口查询人员目录
// GET {base_url}/people/{handle}：200 返回快照，404 表示不存在
type HTTPClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
	limiter *rate.Limiter
	breaker *breaker.Breaker
	logger  *zap.Logger
}

// NewHTTPClient 创建目录 HTTP 客户端
func NewHTTPClient(cfg *config.DirectoryConfig, logger *zap.Logger) *HTTPClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	limit := rate.Limit(cfg.RatePerSecond)
	if cfg.RatePerSecond <= 0 {
		limit = rate.Inf
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	return &HTTPClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(limit, burst),
		breaker: breaker.New(breaker.Config{
			Name:             "directory",
			MaxRequests:      1,
			Interval:         time.Minute,
			Timeout:          30 * time.Second,
			FailureThreshold: 5,
		}, logger),
		logger: logger,
	}
}

// LookupPerson 查询人员快照
func (c *HTTPClient) LookupPerson(ctx context.Context, handle string) (*Snapshot, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var snap *Snapshot
	err := c.breaker.Do(func() error {
		var err error
		snap, err = c.fetch(ctx, handle)
		return err
	})
	if err != nil {
		if breaker.IsOpen(err) {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return nil, err
	}
	return snap, nil
}

func (c *HTTPClient) fetch(ctx context.Context, handle string) (*Snapshot, error) {
	endpoint := c.baseURL + "/people/" + url.PathEscape(strings.TrimSpace(handle))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("目录查询请求失败", zap.String("handle", handle), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		// 404 属于正常结果，不计入熔断失败
		return nil, nil
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: 目录返回 %d", ErrUnavailable, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("目录返回异常状态 %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: 读取响应失败: %v", ErrUnavailable, err)
	}

	var snap Snapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		return nil, fmt.Errorf("解析目录响应失败: %w", err)
	}
	if snap.Handle == "" {
		snap.Handle = strings.TrimSpace(handle)
	}
	return &snap, nil
}
