package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Region はクレデンシャルが属する提供リージョンです。
type Region string

const (
	// RegionDomestic は国内版 (cn-gd) です。
	RegionDomestic Region = "cn-gd"
	// RegionInternational は国際版 (us) です。
	RegionInternational Region = "us"

	internationalTokenPrefix = "us-"
	credentialLineSeparator  = "----"
	sessionCookieName        = "sessionid"
)

// IsInternational は国際版リージョンかどうかを返します。
func (r Region) IsInternational() bool {
	return r == RegionInternational
}

// Cookie はブラウザ形式で保存されるセッション Cookie です。
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain,omitempty"`
	Path     string  `json:"path,omitempty"`
	Expires  float64 `json:"expires,omitempty"`
	HTTPOnly bool    `json:"httpOnly,omitempty"`
	Secure   bool    `json:"secure,omitempty"`
	SameSite string  `json:"sameSite,omitempty"`
}

// CookieJar はクレデンシャルに紐づく Cookie の集合です。
type CookieJar []Cookie

// Get は名前が一致する最初の Cookie を返します。
func (j CookieJar) Get(name string) (Cookie, bool) {
	for _, c := range j {
		if c.Name == name {
			return c, true
		}
	}
	return Cookie{}, false
}

// Merge は fresh の Cookie で (name, domain, path) が一致するものを置き換え、
// 新しいものは末尾に追加した新しい Jar を返します。元の Jar は変更しません。
func (j CookieJar) Merge(fresh []Cookie) CookieJar {
	merged := make(CookieJar, len(j), len(j)+len(fresh))
	copy(merged, j)
	for _, f := range fresh {
		replaced := false
		for i, c := range merged {
			if c.Name == f.Name && c.Domain == f.Domain && c.Path == f.Path {
				merged[i] = f
				replaced = true
				break
			}
		}
		if !replaced {
			merged = append(merged, f)
		}
	}
	return merged
}

// Credential はプロバイダーのアカウント1件分の認証情報です。
// Region はインポート時に一度だけ決定され、以降トークン文字列から再判定しません。
type Credential struct {
	ID       int64
	Username string
	Token    string
	Region   Region
	Cookies  CookieJar
}

// NewCredential は生のトークンからリージョンを判定してクレデンシャルを作成します。
func NewCredential(id int64, username, rawToken string) Credential {
	region, token := RegionFromToken(rawToken)
	return Credential{
		ID:       id,
		Username: username,
		Token:    token,
		Region:   region,
	}
}

// RegionFromToken は "us-" プレフィックス規約からリージョンを判定し、
// プレフィックスを除いたトークンを返します。
func RegionFromToken(rawToken string) (Region, string) {
	raw := strings.TrimSpace(rawToken)
	if strings.HasPrefix(strings.ToLower(raw), internationalTokenPrefix) {
		return RegionInternational, raw[len(internationalTokenPrefix):]
	}
	return RegionDomestic, raw
}

// SessionToken は署名と Cookie 生成に使うセッショントークンを返します。
// Token が空の場合は保存済み Cookie の sessionid を使います。
func (c Credential) SessionToken() string {
	if c.Token != "" {
		return c.Token
	}
	if ck, ok := c.Cookies.Get(sessionCookieName); ok {
		return ck.Value
	}
	return ""
}

// String はログ出力用の表現です。トークンは含めません。
func (c Credential) String() string {
	return fmt.Sprintf("credential(%d:%s/%s)", c.ID, c.Username, c.Region)
}

// ParseCredentialLine はインポートファイルの1行を解釈します。
// 受け付ける形式は "token"、"us-token"、"username----token" です。
// 空行とコメント行 (#) は ok=false を返します。
func ParseCredentialLine(line string) (username, rawToken string, ok bool, err error) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return "", "", false, nil
	}
	if user, token, found := strings.Cut(line, credentialLineSeparator); found {
		user, token = strings.TrimSpace(user), strings.TrimSpace(token)
		if token == "" {
			return "", "", false, fmt.Errorf("token is empty for user %q", user)
		}
		if user == "" {
			user = tokenFingerprint(token)
		}
		return user, token, true, nil
	}
	return tokenFingerprint(line), line, true, nil
}

// tokenFingerprint はユーザー名が無い場合の表示名をトークン全体のハッシュから作ります。
// 名前はログに出るため、トークンの一部をそのまま含めない。
func tokenFingerprint(token string) string {
	sum := sha256.Sum256([]byte(token))
	return "token-" + hex.EncodeToString(sum[:4])
}
