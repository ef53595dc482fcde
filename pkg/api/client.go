package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/tidwall/gjson"

	"github.com/shouni/jimeng-image-kit/pkg/domain"
	"github.com/shouni/jimeng-image-kit/pkg/signer"
)

const (
	// DefaultTimeout は1回の API 呼び出しの上限時間です。
	DefaultTimeout = 45 * time.Second

	DraftVersion = "3.3.2"
	WebVersion   = "7.5.0"

	logBodyLimit = 500
)

// Doer は HTTP リクエストを送信する最小のインターフェースです。
// レスポンスのステータスと Set-Cookie を読むため *http.Client をそのまま受け付けます。
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Caller は署名付き API 呼び出しを行うインターフェースです。
type Caller interface {
	Call(ctx context.Context, cred domain.Credential, req Request) (*Response, error)
}

// Request は1回の API 呼び出しの内容です。
type Request struct {
	Method          string
	Path            string
	Params          url.Values
	Data            any
	Headers         map[string]string
	NoDefaultParams bool
}

// Client は Signer でヘッダーを付けてプロバイダー API を呼び出します。
type Client struct {
	doer    Doer
	signer  *signer.Signer
	baseURL string
	timeout time.Duration
}

// Option は Client の設定を変更します。
type Option func(*Client)

// WithBaseURL はリージョンの既定ホストの代わりに使う URL を指定します。
func WithBaseURL(base string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(base, "/") }
}

// WithTimeout は1回の呼び出しの上限時間を変更します。
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// New は Client を初期化します。
func New(doer Doer, s *signer.Signer, opts ...Option) (*Client, error) {
	if doer == nil {
		return nil, fmt.Errorf("doer is required")
	}
	if s == nil {
		return nil, fmt.Errorf("signer is required")
	}
	c := &Client{doer: doer, signer: s, timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Call は署名付きリクエストを送り、応答を分類して返します。
func (c *Client) Call(ctx context.Context, cred domain.Credential, req Request) (*Response, error) {
	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodPost
	}
	profile := signer.ProfileFor(cred.Region)
	base := c.baseURL
	if base == "" {
		base = profile.BaseURL
	}

	params := url.Values{}
	for k, vs := range req.Params {
		params[k] = append([]string(nil), vs...)
	}
	if !req.NoDefaultParams {
		c.applyDefaultParams(params, profile)
	}
	target := base + req.Path
	if len(params) > 0 {
		target += "?" + params.Encode()
	}

	var body io.Reader
	if method != http.MethodGet {
		payload := []byte("{}")
		if req.Data != nil {
			b, err := json.Marshal(req.Data)
			if err != nil {
				return nil, fmt.Errorf("failed to encode request body for %s: %w", req.Path, err)
			}
			payload = b
		}
		body = bytes.NewReader(payload)
	}

	headers, err := c.signer.APIHeaders(cred, req.Path, req.Headers)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(callCtx, method, target, body)
	if err != nil {
		return nil, &domain.SigningError{Scheme: "api", Err: err}
	}
	httpReq.Header = headers
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.doer.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &domain.TransportError{Op: method, URL: req.Path, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &domain.TransportError{Op: method, URL: req.Path, Err: err}
	}

	slog.DebugContext(ctx, "API 呼び出し",
		"method", method,
		"path", req.Path,
		"status", resp.StatusCode,
		"credential_id", cred.ID,
		"body", summarize(raw),
	)

	out := &Response{
		StatusCode: resp.StatusCode,
		Body:       raw,
		Cookies:    convertCookies(resp.Cookies()),
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return out, &domain.RemoteAPIError{
			Code:       "http_" + strconv.Itoa(resp.StatusCode),
			Message:    summarize(raw),
			HTTPStatus: resp.StatusCode,
		}
	}
	if out.JSON() {
		if ret := gjson.GetBytes(raw, "ret"); ret.Exists() && ret.String() != "0" {
			return out, &domain.RemoteAPIError{Code: ret.String(), Message: gjson.GetBytes(raw, "errmsg").String()}
		}
	}
	return out, nil
}

// applyDefaultParams は呼び出し側が指定していない既定クエリだけを補います。
func (c *Client) applyDefaultParams(params url.Values, profile signer.Profile) {
	defaults := [][2]string{
		{"aid", strconv.Itoa(profile.AppID)},
		{"device_platform", "web"},
		{"region", profile.RegionCode()},
	}
	if !profile.Region.IsInternational() {
		defaults = append(defaults, [2]string{"webId", c.signer.Identity().WebID})
	}
	defaults = append(defaults,
		[2]string{"da_version", DraftVersion},
		[2]string{"web_component_open_flag", "1"},
		[2]string{"web_version", WebVersion},
		[2]string{"aigc_features", "app_lip_sync"},
	)
	for _, kv := range defaults {
		if _, ok := params[kv[0]]; !ok {
			params.Set(kv[0], kv[1])
		}
	}
}

// summarize はログ用に本文を切り詰めます。マルチバイト文字の途中では切らない。
func summarize(b []byte) string {
	if len(b) <= logBodyLimit {
		return string(b)
	}
	cut := logBodyLimit
	for cut > 0 && !utf8.RuneStart(b[cut]) {
		cut--
	}
	return string(b[:cut]) + "..."
}

func convertCookies(in []*http.Cookie) []domain.Cookie {
	if len(in) == 0 {
		return nil
	}
	out := make([]domain.Cookie, 0, len(in))
	for _, c := range in {
		dc := domain.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			HTTPOnly: c.HttpOnly,
			Secure:   c.Secure,
		}
		if !c.Expires.IsZero() {
			dc.Expires = float64(c.Expires.Unix())
		}
		switch c.SameSite {
		case http.SameSiteLaxMode:
			dc.SameSite = "Lax"
		case http.SameSiteStrictMode:
			dc.SameSite = "Strict"
		case http.SameSiteNoneMode:
			dc.SameSite = "None"
		}
		out = append(out, dc)
	}
	return out
}
