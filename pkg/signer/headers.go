package signer

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shouni/jimeng-image-kit/pkg/domain"
)

const (
	sidGuardMaxAge  = "5184000"
	sidGuardExpires = "Mon%2C+03-Feb-2025+08%3A17%3A09+GMT"
)

// browserHeaders は Chrome 131 を装う固定ヘッダーです。
var browserHeaders = [][2]string{
	{"Accept", "application/json, text/plain, */*"},
	{"Accept-Language", "zh-CN,zh;q=0.9"},
	{"Cache-Control", "no-cache"},
	{"Last-Event-Id", "undefined"},
	{"Appvr", signVersion},
	{"Pragma", "no-cache"},
	{"Priority", "u=1, i"},
	{"Pf", signPf},
	{"Sec-Ch-Ua", `"Google Chrome";v="131", "Chromium";v="131", "Not_A Brand";v="24"`},
	{"Sec-Ch-Ua-Mobile", "?0"},
	{"Sec-Ch-Ua-Platform", `"Windows"`},
	{"Sec-Fetch-Dest", "empty"},
	{"Sec-Fetch-Mode", "cors"},
	{"Sec-Fetch-Site", "same-origin"},
	{"User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"},
}

// uploadBrowserHeaders はオブジェクトストレージ向けの Chrome 132 ヘッダーです。
var uploadBrowserHeaders = [][2]string{
	{"Accept", "*/*"},
	{"Accept-Language", "zh-CN,zh;q=0.9"},
	{"Origin", BaseURL},
	{"Sec-Ch-Ua", `"Not A(Brand";v="8", "Chromium";v="132", "Google Chrome";v="132"`},
	{"Sec-Ch-Ua-Mobile", "?0"},
	{"Sec-Ch-Ua-Platform", `"Windows"`},
	{"Sec-Fetch-Dest", "empty"},
	{"Sec-Fetch-Mode", "cors"},
	{"Sec-Fetch-Site", "cross-site"},
	{"User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/132.0.0.0 Safari/537.36"},
}

// UploadHeaders はアップロード系リクエストに付けるブラウザヘッダーを返します。
func UploadHeaders(referer string) http.Header {
	h := make(http.Header, len(uploadBrowserHeaders)+1)
	for _, kv := range uploadBrowserHeaders {
		h.Set(kv[0], kv[1])
	}
	if referer == "" {
		referer = ImageGeneratePage
	}
	h.Set("Referer", referer)
	return h
}

// Signer は API 呼び出し用のヘッダー一式を作ります。
type Signer struct {
	identity DeviceIdentity
	now      func() time.Time
}

// Option は Signer の設定を変更します。
type Option func(*Signer)

// WithClock は署名時刻の取得元を差し替えます。
func WithClock(now func() time.Time) Option {
	return func(s *Signer) { s.now = now }
}

// New は DeviceIdentity を固定した Signer を作ります。
func New(identity DeviceIdentity, opts ...Option) *Signer {
	s := &Signer{identity: identity, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Identity は Signer が使う端末識別子を返します。
func (s *Signer) Identity() DeviceIdentity {
	return s.identity
}

// Now は署名に使う現在時刻を返します。
func (s *Signer) Now() time.Time {
	return s.now()
}

// APIHeaders は指定パスへの呼び出し用ヘッダーを返します。
// overrides に含まれるヘッダーは既定値より優先されます。
func (s *Signer) APIHeaders(cred domain.Credential, path string, overrides map[string]string) (http.Header, error) {
	token := cred.SessionToken()
	if token == "" {
		return nil, &domain.SigningError{Scheme: "api", Err: fmt.Errorf("credential %d has no session token", cred.ID)}
	}
	if path == "" || !strings.HasPrefix(path, "/") {
		return nil, &domain.SigningError{Scheme: "api", Err: fmt.Errorf("invalid path %q", path)}
	}

	profile := ProfileFor(cred.Region)
	unix := s.now().Unix()

	h := make(http.Header, len(browserHeaders)+10)
	for _, kv := range browserHeaders {
		h.Set(kv[0], kv[1])
	}
	h.Set("Origin", profile.BaseURL)
	h.Set("Referer", profile.BaseURL)
	h.Set("Appid", strconv.Itoa(profile.AppID))
	h.Set("Cookie", s.Cookie(cred, unix))
	h.Set("Device-Time", strconv.FormatInt(unix, 10))
	h.Set("Sign", APISign(path, unix))
	h.Set("Sign-Ver", "1")
	h.Set("Accept-Encoding", "identity")
	for k, v := range overrides {
		h.Set(k, v)
	}
	return h, nil
}

// Cookie は認証 Cookie ヘッダーを組み立てます。
// 保存済み Jar の Cookie は、生成した名前と重複しないものだけ末尾に追加します。
func (s *Signer) Cookie(cred domain.Credential, unixSeconds int64) string {
	token := cred.SessionToken()
	profile := ProfileFor(cred.Region)
	unix := strconv.FormatInt(unixSeconds, 10)

	pairs := [][2]string{
		{"_tea_web_id", s.identity.WebID},
		{"is_staff_user", "false"},
		{"store-region", profile.RegionCode()},
		{"store-region-src", "uid"},
		{"sid_guard", token + "%7C" + unix + "%7C" + sidGuardMaxAge + "%7C" + sidGuardExpires},
		{"uid_tt", s.identity.UserID},
		{"uid_tt_ss", s.identity.UserID},
		{"sid_tt", token},
		{"sessionid", token},
		{"sessionid_ss", token},
	}

	seen := make(map[string]struct{}, len(pairs)+len(cred.Cookies))
	parts := make([]string, 0, len(pairs)+len(cred.Cookies))
	for _, p := range pairs {
		seen[p[0]] = struct{}{}
		parts = append(parts, p[0]+"="+p[1])
	}
	for _, c := range cred.Cookies {
		if c.Name == "" {
			continue
		}
		if _, dup := seen[c.Name]; dup {
			continue
		}
		seen[c.Name] = struct{}{}
		parts = append(parts, c.Name+"="+c.Value)
	}
	return strings.Join(parts, "; ")
}
