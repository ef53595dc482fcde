package uploader

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"strings"

	"github.com/shouni/go-remote-io/pkg/remoteio"

	"github.com/shouni/jimeng-image-kit/pkg/domain"
	"github.com/shouni/jimeng-image-kit/pkg/imgutil"
)

// Resolver は入力画像の参照 (data: URI、http(s) URL、gs:// URI、ローカルパス) をバイト列にします。
type Resolver struct {
	reader     remoteio.InputReader
	httpClient HTTPClient
	checkURL   func(rawURL string) (bool, error)
}

// ResolverOption は Resolver の設定を変更します。
type ResolverOption func(*Resolver)

// WithURLValidator は http(s) 取得前の URL 検証関数を差し替えます。
func WithURLValidator(fn func(rawURL string) (bool, error)) ResolverOption {
	return func(r *Resolver) { r.checkURL = fn }
}

// NewResolver は Resolver を初期化します。reader が nil の場合、gs:// とローカルパスは扱えません。
func NewResolver(reader remoteio.InputReader, httpClient HTTPClient, opts ...ResolverOption) (*Resolver, error) {
	if httpClient == nil {
		return nil, fmt.Errorf("httpClient is required")
	}
	r := &Resolver{reader: reader, httpClient: httpClient, checkURL: IsSafeURL}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Resolve は ImageInput を検証済みの画像バイト列にします。
func (r *Resolver) Resolve(ctx context.Context, in domain.ImageInput) ([]byte, error) {
	if len(in.Data) > 0 {
		return checkImage(in.Data)
	}
	return r.ResolveBytes(ctx, in.Ref)
}

// ResolveBytes は参照文字列を画像バイト列にします。
func (r *Resolver) ResolveBytes(ctx context.Context, ref string) ([]byte, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, &domain.UploadFailed{Phase: domain.PhaseResolve, Err: errors.New("image reference is empty")}
	}

	var (
		data []byte
		err  error
	)
	switch {
	case strings.HasPrefix(ref, "data:"):
		data, err = decodeDataURI(ref)
	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		data, err = r.fetch(ctx, ref)
	default:
		data, err = r.open(ctx, ref)
	}
	if err != nil {
		return nil, &domain.UploadFailed{Phase: domain.PhaseResolve, Err: err}
	}
	return checkImage(data)
}

func (r *Resolver) fetch(ctx context.Context, rawURL string) ([]byte, error) {
	safe, err := r.checkURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("安全ではないURLが指定されました: %w", err)
	}
	if !safe {
		return nil, fmt.Errorf("安全ではないURLが指定されました: %s", rawURL)
	}
	return r.httpClient.FetchBytes(ctx, rawURL)
}

func (r *Resolver) open(ctx context.Context, ref string) ([]byte, error) {
	if r.reader == nil {
		return nil, fmt.Errorf("no reader configured for %q", ref)
	}
	rc, err := r.reader.Open(ctx, ref)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(io.LimitReader(rc, MaxFileSize+1))
}

func decodeDataURI(ref string) ([]byte, error) {
	meta, payload, ok := strings.Cut(strings.TrimPrefix(ref, "data:"), ",")
	if !ok {
		return nil, errors.New("malformed data URI")
	}
	if strings.HasSuffix(meta, ";base64") {
		return base64.StdEncoding.DecodeString(payload)
	}
	s, err := url.PathUnescape(payload)
	if err != nil {
		return nil, err
	}
	return []byte(s), nil
}

func checkImage(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, &domain.UploadFailed{Phase: domain.PhaseResolve, Err: errors.New("image data is empty")}
	}
	if len(data) > MaxFileSize {
		return nil, &domain.UploadFailed{Phase: domain.PhaseResolve, Err: fmt.Errorf("image too large: %d bytes", len(data))}
	}
	if mimeType := imgutil.DetectMIME(data); !strings.HasPrefix(mimeType, "image/") {
		return nil, &domain.UploadFailed{Phase: domain.PhaseResolve, Err: fmt.Errorf("not an image: %s", mimeType)}
	}
	return data, nil
}

// IsSafeURL は、SSRF (Server-Side Request Forgery) 対策として URL を検証します。
// 許可されたスキーム (http, https) かつ、プライベートIPやループバックアドレスを
// ターゲットにしていないことを確認します。
func IsSafeURL(rawURL string) (bool, error) {
	parsedURL, err := url.ParseRequestURI(rawURL)
	if err != nil {
		return false, fmt.Errorf("URLパース失敗: %w", err)
	}

	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return false, fmt.Errorf("不許可スキーム: %s", parsedURL.Scheme)
	}

	ips, err := net.LookupIP(parsedURL.Hostname())
	if err != nil {
		return false, fmt.Errorf("ホスト '%s' の名前解決に失敗しました: %w", parsedURL.Hostname(), err)
	}

	for _, ip := range ips {
		if ip.IsPrivate() || ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
			return false, fmt.Errorf("制限されたネットワークへのアクセスを検知: %s", ip.String())
		}
	}

	return true, nil
}
