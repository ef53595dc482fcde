package signer

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"

	"github.com/shouni/jimeng-image-kit/pkg/domain"
)

const (
	aws4Algorithm = "AWS4-HMAC-SHA256"
	aws4Terminal  = "aws4_request"
	amzDateFormat = "20060102T150405Z"

	ImageXRegion  = "cn-north-1"
	ImageXService = "imagex"
)

// AmzDate は x-amz-date 形式 (UTC) の時刻文字列を返します。
func AmzDate(t time.Time) string {
	return t.UTC().Format(amzDateFormat)
}

// AWS4Signer はオブジェクトストレージ向けの AWS4-HMAC-SHA256 署名器です。
// ベンダーが要求するヘッダー集合 (host を含めない) で正規リクエストを作ります。
type AWS4Signer struct {
	Region  string
	Service string
}

// NewImageXSigner は ImageX 用の署名器を返します。
func NewImageXSigner() AWS4Signer {
	return AWS4Signer{Region: ImageXRegion, Service: ImageXService}
}

// Sign は署名済みのヘッダー (Authorization と x-amz-*) を返します。
// x-amz-content-sha256 は POST かつペイロードがある場合にだけ署名対象に含めます。
func (s AWS4Signer) Sign(method, rawURL string, payload []byte, amzDate string, creds aws.Credentials) (http.Header, error) {
	if creds.AccessKeyID == "" || creds.SecretAccessKey == "" {
		return nil, &domain.SigningError{Scheme: "aws4", Err: errors.New("access key is required")}
	}
	if len(amzDate) != len(amzDateFormat) {
		return nil, &domain.SigningError{Scheme: "aws4", Err: fmt.Errorf("invalid x-amz-date %q", amzDate)}
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, &domain.SigningError{Scheme: "aws4", Err: fmt.Errorf("URLパース失敗: %w", err)}
	}
	query, err := canonicalQuery(u.RawQuery)
	if err != nil {
		return nil, &domain.SigningError{Scheme: "aws4", Err: err}
	}

	method = strings.ToUpper(method)
	payloadHash := sha256Hex(payload)

	signed := map[string]string{"x-amz-date": amzDate}
	if creds.SessionToken != "" {
		signed["x-amz-security-token"] = creds.SessionToken
	}
	if method == http.MethodPost && len(payload) > 0 {
		signed["x-amz-content-sha256"] = payloadHash
	}
	names := make([]string, 0, len(signed))
	for k := range signed {
		names = append(names, k)
	}
	sort.Strings(names)

	var canonicalHeaders strings.Builder
	for _, k := range names {
		canonicalHeaders.WriteString(k + ":" + strings.TrimSpace(signed[k]) + "\n")
	}
	signedHeaders := strings.Join(names, ";")

	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	canonicalRequest := strings.Join([]string{
		method,
		path,
		query,
		canonicalHeaders.String(),
		signedHeaders,
		payloadHash,
	}, "\n")

	date := amzDate[:8]
	scope := date + "/" + s.Region + "/" + s.Service + "/" + aws4Terminal
	stringToSign := strings.Join([]string{
		aws4Algorithm,
		amzDate,
		scope,
		sha256Hex([]byte(canonicalRequest)),
	}, "\n")

	key := hmacSHA256([]byte("AWS4"+creds.SecretAccessKey), date)
	key = hmacSHA256(key, s.Region)
	key = hmacSHA256(key, s.Service)
	key = hmacSHA256(key, aws4Terminal)
	signature := hex.EncodeToString(hmacSHA256(key, stringToSign))

	h := make(http.Header, len(signed)+1)
	h.Set("Authorization", fmt.Sprintf("%s Credential=%s/%s, SignedHeaders=%s, Signature=%s",
		aws4Algorithm, creds.AccessKeyID, scope, signedHeaders, signature))
	for k, v := range signed {
		h.Set(k, v)
	}
	return h, nil
}

// canonicalQuery はキー、値の順に並べ替えた k=v をエンコードし直さずに連結します。
func canonicalQuery(raw string) (string, error) {
	values, err := url.ParseQuery(raw)
	if err != nil {
		return "", fmt.Errorf("クエリ解析失敗: %w", err)
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(values))
	for _, k := range keys {
		vs := append([]string(nil), values[k]...)
		sort.Strings(vs)
		for _, v := range vs {
			parts = append(parts, k+"="+v)
		}
	}
	return strings.Join(parts, "&"), nil
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func hmacSHA256(key []byte, msg string) []byte {
	m := hmac.New(sha256.New, key)
	m.Write([]byte(msg))
	return m.Sum(nil)
}
