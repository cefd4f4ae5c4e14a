// Package mediawiki 通过 Action API 访问站点：页面读写、前缀枚举与活动查询。
package mediawiki

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"sfebot/pkg/contract"
)

// Options: 站点与凭据配置。
type Options struct {
	// APIURL: api.php 的完整地址（必需）。
	APIURL    string `json:"api_url" yaml:"api_url"`
	UserAgent string `json:"user_agent" yaml:"user_agent"`
	// 静态访问令牌优先；为空时用 client credentials 换取。
	AccessToken     string `json:"access_token,omitempty" yaml:"access_token,omitempty"`
	AccessTokenEnv  string `json:"access_token_env,omitempty" yaml:"access_token_env,omitempty"`
	ClientID        string `json:"client_id,omitempty" yaml:"client_id,omitempty"`
	ClientIDEnv     string `json:"client_id_env,omitempty" yaml:"client_id_env,omitempty"`
	ClientSecret    string `json:"client_secret,omitempty" yaml:"client_secret,omitempty"`
	ClientSecretEnv string `json:"client_secret_env,omitempty" yaml:"client_secret_env,omitempty"`
	// TokenURL: 为空时由 api.php 推导为 rest.php/oauth2/access_token。
	TokenURL string `json:"token_url,omitempty" yaml:"token_url,omitempty"`
	// MaxLag: 每个请求附带的 maxlag 秒数；<0 表示不发送。
	MaxLag         int `json:"maxlag,omitempty" yaml:"maxlag,omitempty"`
	TimeoutSeconds int `json:"timeout_seconds,omitempty" yaml:"timeout_seconds,omitempty"`
	// MaxRetries: 可重试错误（maxlag/ratelimited/429/5xx/网络）的最大重试次数；<0 不重试。
	MaxRetries  int `json:"max_retries,omitempty" yaml:"max_retries,omitempty"`
	RetryBaseMS int `json:"retry_base_ms,omitempty" yaml:"retry_base_ms,omitempty"`
	RetryMaxMS  int `json:"retry_max_ms,omitempty" yaml:"retry_max_ms,omitempty"`
}

func (o *Options) defaults() {
	if o.UserAgent == "" {
		o.UserAgent = "sfebot/1.0 (2026SFE leaderboard bot)"
	}
	if o.AccessTokenEnv == "" {
		o.AccessTokenEnv = "MW_ACCESS_TOKEN"
	}
	if o.ClientIDEnv == "" {
		o.ClientIDEnv = "MW_CLIENT_ID"
	}
	if o.ClientSecretEnv == "" {
		o.ClientSecretEnv = "MW_CLIENT_SECRET"
	}
	if o.TokenURL == "" {
		o.TokenURL = strings.Replace(o.APIURL, "api.php", "rest.php/oauth2/access_token", 1)
	}
	if o.MaxLag == 0 {
		o.MaxLag = 5
	}
	if o.TimeoutSeconds <= 0 {
		o.TimeoutSeconds = 60
	}
	if o.MaxRetries == 0 {
		o.MaxRetries = 3
	}
	if o.RetryBaseMS <= 0 {
		o.RetryBaseMS = 2000
	}
	if o.RetryMaxMS <= 0 {
		o.RetryMaxMS = 10_000
	}
}

// Client 同时实现 contract.Store、contract.Activity 与 contract.Verifier。
type Client struct {
	api        string
	maxlag     int
	maxRetries int
	retryBase  time.Duration
	retryMax   time.Duration
	do         func(*http.Request) (*http.Response, error)

	mu   sync.Mutex
	csrf string
}

var (
	_ contract.Store    = (*Client)(nil)
	_ contract.Activity = (*Client)(nil)
	_ contract.Verifier = (*Client)(nil)
)

// New 从原样 JSON 选项构造客户端。
func New(raw json.RawMessage) (*Client, error) {
	var opts Options
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &opts); err != nil {
			return nil, fmt.Errorf("mediawiki options: %w", err)
		}
	}
	return FromOptions(opts)
}

// FromOptions 构造客户端：会话 cookie + OAuth2 Bearer + User-Agent。
func FromOptions(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.APIURL) == "" {
		return nil, fmt.Errorf("mediawiki: %w: missing api_url", contract.ErrInvalidInput)
	}
	if _, err := url.Parse(opts.APIURL); err != nil {
		return nil, fmt.Errorf("mediawiki: %w: api_url: %v", contract.ErrInvalidInput, err)
	}
	opts.defaults()

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, err
	}
	base := &uaTransport{ua: opts.UserAgent, base: http.DefaultTransport}
	ts, err := tokenSource(opts, &http.Client{Transport: base, Timeout: time.Duration(opts.TimeoutSeconds) * time.Second})
	if err != nil {
		return nil, err
	}
	hc := &http.Client{
		Transport: &oauth2.Transport{Source: ts, Base: base},
		Jar:       jar,
		Timeout:   time.Duration(opts.TimeoutSeconds) * time.Second,
	}
	return &Client{
		api:        opts.APIURL,
		maxlag:     opts.MaxLag,
		maxRetries: opts.MaxRetries,
		retryBase:  time.Duration(opts.RetryBaseMS) * time.Millisecond,
		retryMax:   time.Duration(opts.RetryMaxMS) * time.Millisecond,
		do:         hc.Do,
	}, nil
}

// tokenSource: 静态令牌或 client credentials。两者皆无返回 ErrAuth。
func tokenSource(opts Options, tokenHC *http.Client) (oauth2.TokenSource, error) {
	tok := opts.AccessToken
	if tok == "" {
		tok = os.Getenv(opts.AccessTokenEnv)
	}
	if tok = SanitizeToken(tok); tok != "" {
		return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: tok, TokenType: "Bearer"}), nil
	}
	id := opts.ClientID
	if id == "" {
		id = os.Getenv(opts.ClientIDEnv)
	}
	secret := opts.ClientSecret
	if secret == "" {
		secret = os.Getenv(opts.ClientSecretEnv)
	}
	if id == "" || secret == "" {
		return nil, fmt.Errorf("mediawiki: %w: no access token or client credentials", contract.ErrAuth)
	}
	cc := clientcredentials.Config{
		ClientID:     id,
		ClientSecret: secret,
		TokenURL:     opts.TokenURL,
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, tokenHC)
	return sanitizedSource{src: cc.TokenSource(ctx)}, nil
}

// SanitizeToken 去掉码点大于 0xFF 的字符（请求头只能携带单字节字符）并修剪空白。
func SanitizeToken(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r <= 0xFF {
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

type sanitizedSource struct{ src oauth2.TokenSource }

func (s sanitizedSource) Token() (*oauth2.Token, error) {
	t, err := s.src.Token()
	if err != nil {
		return nil, fmt.Errorf("oauth2 token: %v: %w", err, contract.ErrAuth)
	}
	c := *t
	c.AccessToken = SanitizeToken(c.AccessToken)
	return &c, nil
}

type uaTransport struct {
	ua   string
	base http.RoundTripper
}

func (t *uaTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	r.Header.Set("User-Agent", t.ua)
	return t.base.RoundTrip(r)
}

// APIError 是 Action API 返回的 error 对象。
type APIError struct {
	Code string `json:"code"`
	Info string `json:"info"`
}

func (e *APIError) Error() string { return "mediawiki api: " + e.Code + ": " + e.Info }

// Unwrap 把常见错误码映射到 contract 哨兵。
func (e *APIError) Unwrap() error {
	switch {
	case e.Code == "maxlag" || e.Code == "ratelimited":
		return contract.ErrRateLimited
	case e.Code == "editconflict":
		return contract.ErrEditConflict
	case e.Code == "missingtitle":
		return contract.ErrPageMissing
	case e.Code == "notloggedin" || strings.HasPrefix(e.Code, "assert") || strings.HasPrefix(e.Code, "mwoauth"):
		return contract.ErrAuth
	case e.Code == "badtoken" || strings.HasPrefix(e.Code, "invalid") || strings.HasPrefix(e.Code, "missing"):
		return contract.ErrInvalidInput
	}
	return contract.ErrResponseInvalid
}

func (e *APIError) retryable() bool { return e.Code == "maxlag" || e.Code == "ratelimited" }

// upstreamError: HTTP 408/5xx，可重试。
type upstreamError struct {
	status int
	msg    string
}

func (e upstreamError) Error() string {
	return fmt.Sprintf("mediawiki upstream %d: %s", e.status, e.msg)
}
func (e upstreamError) Timeout() bool           { return e.status == http.StatusRequestTimeout }
func (e upstreamError) Temporary() bool         { return e.status/100 == 5 }
func (e upstreamError) UpstreamStatus() int     { return e.status }
func (e upstreamError) UpstreamMessage() string { return e.msg }

// call 发送一次 API 请求（含重试），把 JSON 响应解码到 out。
// post=true 时以表单提交（写操作）。
func (c *Client) call(ctx context.Context, post bool, params url.Values, out any) error {
	params.Set("format", "json")
	params.Set("formatversion", "2")
	params.Set("assert", "user")
	if c.maxlag >= 0 {
		params.Set("maxlag", strconv.Itoa(c.maxlag))
	}
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.retryBase
	bo.MaxInterval = c.retryMax
	tries := uint(1)
	if c.maxRetries > 0 {
		tries += uint(c.maxRetries)
	}
	body, err := backoff.Retry(ctx, func() ([]byte, error) {
		return c.once(ctx, post, params)
	}, backoff.WithBackOff(bo), backoff.WithMaxTries(tries))
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode: %v: %w", err, contract.ErrResponseInvalid)
	}
	return nil
}

// once 执行单次往返。可重试错误原样返回，其余包装为 backoff.Permanent。
func (c *Client) once(ctx context.Context, post bool, params url.Values) ([]byte, error) {
	var req *http.Request
	var err error
	if post {
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, c.api, strings.NewReader(params.Encode()))
		if err == nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	} else {
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, c.api+"?"+params.Encode(), nil)
	}
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("new request: %v: %w", err, contract.ErrInvalidInput))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.do(req)
	if err != nil {
		// http.Client 自身超时同样包装 DeadlineExceeded，只有调用方 ctx 结束才停止重试。
		if ctx.Err() != nil {
			return nil, backoff.Permanent(ctx.Err())
		}
		if errors.Is(err, contract.ErrAuth) {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("mediawiki upstream 429: %w", contract.ErrRateLimited)
	}
	if resp.StatusCode/100 != 2 {
		slurp, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		msg := strings.TrimSpace(string(slurp))
		if resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode/100 == 5 {
			return nil, upstreamError{status: resp.StatusCode, msg: msg}
		}
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return nil, backoff.Permanent(fmt.Errorf("mediawiki upstream %d: %w", resp.StatusCode, contract.ErrAuth))
		}
		return nil, backoff.Permanent(fmt.Errorf("mediawiki upstream %d: %w", resp.StatusCode, contract.ErrInvalidInput))
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	var env struct {
		Error *APIError `json:"error"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("decode: %v: %w", err, contract.ErrResponseInvalid))
	}
	if env.Error != nil {
		if env.Error.retryable() {
			return nil, env.Error
		}
		return nil, backoff.Permanent(env.Error)
	}
	return body, nil
}
