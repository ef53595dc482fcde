package uploader

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"golang.org/x/sync/singleflight"

	"github.com/shouni/jimeng-image-kit/pkg/api"
	"github.com/shouni/jimeng-image-kit/pkg/domain"
	"github.com/shouni/jimeng-image-kit/pkg/imgutil"
	"github.com/shouni/jimeng-image-kit/pkg/signer"
)

const (
	// DefaultImageXURL はアップロード制御プレーンのエンドポイントです。
	DefaultImageXURL = "https://imagex.bytedanceapi.com/"
	DefaultServiceID = "tb4s082cfz"
	// MaxFileSize はアップロード可能な最大サイズ (100MiB) です。
	MaxFileSize = 100 << 20
	// DefaultUploadTimeout は共有アップロード1回あたりの上限時間です。
	DefaultUploadTimeout = 2 * time.Minute

	imageXVersion     = "2018-08-01"
	uploadTokenPath   = "/mweb/v1/get_upload_token"
	uploadTokenScene  = 2
	storageUser       = "704135154117550"
	uriStatusOK       = 2000
	cacheKeyUploadURI = "upload_uri:"
)

// Uploader は token → apply → put → commit の4段階でアップロードします。
type Uploader struct {
	caller      api.Caller
	doer        api.Doer
	aws4        signer.AWS4Signer
	imageXURL   string
	now         func() time.Time
	cache       ImageCacher
	cacheTTL    time.Duration
	jpegQuality int
	timeout     time.Duration
	group       singleflight.Group
}

// Option は Uploader の設定を変更します。
type Option func(*Uploader)

// WithImageXURL は制御プレーンの URL を差し替えます。
func WithImageXURL(u string) Option {
	return func(up *Uploader) { up.imageXURL = u }
}

// WithCache はアップロード済み URI のキャッシュを設定します。nil ならキャッシュしません。
func WithCache(cache ImageCacher, ttl time.Duration) Option {
	return func(up *Uploader) {
		up.cache = cache
		up.cacheTTL = ttl
	}
}

// WithJPEGQuality はアップロード前に JPEG へ再圧縮する品質を指定します。0 で無効です。
func WithJPEGQuality(q int) Option {
	return func(up *Uploader) { up.jpegQuality = q }
}

// WithUploadTimeout は共有アップロードの上限時間を変更します。
func WithUploadTimeout(d time.Duration) Option {
	return func(up *Uploader) {
		if d > 0 {
			up.timeout = d
		}
	}
}

// WithClock は x-amz-date の時刻取得元を差し替えます。
func WithClock(now func() time.Time) Option {
	return func(up *Uploader) { up.now = now }
}

// New は Uploader を初期化します。
func New(caller api.Caller, doer api.Doer, opts ...Option) (*Uploader, error) {
	if caller == nil {
		return nil, fmt.Errorf("caller is required")
	}
	if doer == nil {
		return nil, fmt.Errorf("doer is required")
	}
	up := &Uploader{
		caller:    caller,
		doer:      doer,
		aws4:      signer.NewImageXSigner(),
		imageXURL: DefaultImageXURL,
		now:       time.Now,
		timeout:   DefaultUploadTimeout,
	}
	for _, opt := range opts {
		opt(up)
	}
	return up, nil
}

type uploadToken struct {
	creds     aws.Credentials
	serviceID string
}

type uploadAddress struct {
	storeURI   string
	auth       string
	host       string
	sessionKey string
}

// Upload はバイト列をアップロードします。同じ内容の同時アップロードは1回にまとめます。
func (u *Uploader) Upload(ctx context.Context, cred domain.Credential, data []byte, kind domain.JobKind) (domain.UploadedAsset, error) {
	if len(data) == 0 {
		return domain.UploadedAsset{}, &domain.UploadFailed{Phase: domain.PhaseResolve, Err: errors.New("image data is empty")}
	}
	if len(data) > MaxFileSize {
		return domain.UploadedAsset{}, &domain.UploadFailed{Phase: domain.PhaseResolve, Err: fmt.Errorf("image too large: %d bytes", len(data))}
	}

	finalData := data
	if u.jpegQuality > 0 {
		if compressed, err := imgutil.CompressToJPEG(data, u.jpegQuality); err == nil {
			finalData = compressed
		}
	}

	sum := sha256.Sum256(finalData)
	key := cacheKeyUploadURI + strconv.FormatInt(cred.ID, 10) + ":" + hex.EncodeToString(sum[:])
	asset := domain.UploadedAsset{Size: len(finalData), CRC32: CRC32(finalData)}

	if u.cache != nil {
		if val, ok := u.cache.Get(key); ok {
			if uri, ok := val.(string); ok {
				asset.URI = uri
				return asset, nil
			}
		}
	}

	// 相乗りした呼び出し元がいるため、共有処理は最初の呼び出し元のキャンセルに従わない。
	ch := u.group.DoChan(key, func() (any, error) {
		shared, cancel := context.WithTimeout(context.WithoutCancel(ctx), u.timeout)
		defer cancel()
		return u.upload(shared, cred, finalData, asset.CRC32, kind)
	})
	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return domain.UploadedAsset{}, ctx.Err()
	}
	if res.Err != nil {
		return domain.UploadedAsset{}, res.Err
	}
	asset.URI = res.Val.(string)

	if u.cache != nil {
		u.cache.Set(key, asset.URI, u.cacheTTL)
	}
	return asset, nil
}

func (u *Uploader) upload(ctx context.Context, cred domain.Credential, data []byte, crc string, kind domain.JobKind) (string, error) {
	referer := signer.ImageGeneratePage
	if kind == domain.JobVideo {
		referer = signer.VideoGeneratePage
	}

	token, err := u.fetchToken(ctx, cred)
	if err != nil {
		return "", &domain.UploadFailed{Phase: domain.PhaseToken, Err: err}
	}

	addr, err := u.apply(ctx, token, len(data), referer)
	if err != nil {
		return "", &domain.UploadFailed{Phase: domain.PhaseApply, Err: err}
	}

	if err := u.put(ctx, addr, data, crc, referer); err != nil {
		return "", &domain.UploadFailed{Phase: domain.PhasePut, Err: err}
	}

	uri, err := u.commit(ctx, token, addr, referer)
	if err != nil {
		return "", &domain.UploadFailed{Phase: domain.PhaseCommit, Err: err}
	}

	slog.InfoContext(ctx, "画像のアップロードが完了しました", "credential_id", cred.ID, "size", len(data), "uri", uri)
	return uri, nil
}

func (u *Uploader) fetchToken(ctx context.Context, cred domain.Credential) (uploadToken, error) {
	resp, err := u.caller.Call(ctx, cred, api.Request{
		Method:          http.MethodPost,
		Path:            uploadTokenPath,
		Params:          url.Values{"aid": {strconv.Itoa(signer.AppIDDomestic)}},
		Data:            map[string]any{"scene": uploadTokenScene},
		NoDefaultParams: true,
	})
	if err != nil {
		return uploadToken{}, err
	}

	creds := aws.Credentials{
		AccessKeyID:     resp.Field("access_key_id").String(),
		SecretAccessKey: resp.Field("secret_access_key").String(),
		SessionToken:    resp.Field("session_token").String(),
		Source:          "jimeng-upload-token",
	}
	if creds.AccessKeyID == "" || creds.SecretAccessKey == "" || creds.SessionToken == "" {
		return uploadToken{}, errors.New("upload token response is missing credentials")
	}
	serviceID := resp.Field("service_id").String()
	if serviceID == "" {
		serviceID = DefaultServiceID
	}
	return uploadToken{creds: creds, serviceID: serviceID}, nil
}

func (u *Uploader) apply(ctx context.Context, token uploadToken, size int, referer string) (uploadAddress, error) {
	salt := uuid.NewString()[:10]
	applyURL := fmt.Sprintf("%s?Action=ApplyImageUpload&Version=%s&ServiceId=%s&FileSize=%d&s=%s",
		u.imageXURL, imageXVersion, token.serviceID, size, salt)

	body, err := u.signedDo(ctx, http.MethodGet, applyURL, nil, token.creds, referer)
	if err != nil {
		return uploadAddress{}, err
	}
	if e := gjson.GetBytes(body, "ResponseMetadata.Error"); e.Exists() {
		return uploadAddress{}, fmt.Errorf("apply rejected: %s", e.Raw)
	}

	ua := gjson.GetBytes(body, "Result.UploadAddress")
	addr := uploadAddress{
		storeURI:   ua.Get("StoreInfos.0.StoreUri").String(),
		auth:       ua.Get("StoreInfos.0.Auth").String(),
		host:       ua.Get("UploadHosts.0").String(),
		sessionKey: ua.Get("SessionKey").String(),
	}
	if addr.storeURI == "" || addr.host == "" {
		return uploadAddress{}, fmt.Errorf("upload address is missing in apply response")
	}
	return addr, nil
}

func (u *Uploader) put(ctx context.Context, addr uploadAddress, data []byte, crc, referer string) error {
	putURL := "https://" + addr.host + "/upload/v1/" + addr.storeURI
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, putURL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header = signer.UploadHeaders(referer)
	req.Header.Set("Authorization", addr.auth)
	req.Header.Set("Content-CRC32", crc)
	req.Header.Set("Content-Disposition", `attachment; filename="undefined"`)
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("X-Storage-U", storageUser)

	_, err = u.do(req)
	return err
}

func (u *Uploader) commit(ctx context.Context, token uploadToken, addr uploadAddress, referer string) (string, error) {
	commitURL := fmt.Sprintf("%s?Action=CommitImageUpload&Version=%s&ServiceId=%s", u.imageXURL, imageXVersion, token.serviceID)
	payload, err := json.Marshal(map[string]string{
		"SessionKey":          addr.sessionKey,
		"SuccessActionStatus": "200",
	})
	if err != nil {
		return "", err
	}

	body, err := u.signedDo(ctx, http.MethodPost, commitURL, payload, token.creds, referer)
	if err != nil {
		return "", err
	}
	if e := gjson.GetBytes(body, "ResponseMetadata.Error"); e.Exists() {
		return "", fmt.Errorf("commit rejected: %s", e.Raw)
	}

	result := gjson.GetBytes(body, "Result.Results.0")
	if !result.Exists() {
		return "", errors.New("commit response has no results")
	}
	if status := result.Get("UriStatus").Int(); status != uriStatusOK {
		return "", fmt.Errorf("unexpected UriStatus=%d", status)
	}
	if uri := gjson.GetBytes(body, "Result.PluginResult.0.ImageUri").String(); uri != "" {
		return uri, nil
	}
	uri := result.Get("Uri").String()
	if uri == "" {
		return "", errors.New("commit response has no uri")
	}
	return uri, nil
}

func (u *Uploader) signedDo(ctx context.Context, method, rawURL string, payload []byte, creds aws.Credentials, referer string) ([]byte, error) {
	signed, err := u.aws4.Sign(method, rawURL, payload, signer.AmzDate(u.now()), creds)
	if err != nil {
		return nil, err
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, err
	}
	req.Header = signer.UploadHeaders(referer)
	for k, vs := range signed {
		req.Header[k] = vs
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return u.do(req)
}

func (u *Uploader) do(req *http.Request) ([]byte, error) {
	resp, err := u.doer.Do(req)
	if err != nil {
		return nil, &domain.TransportError{Op: req.Method, URL: req.URL.Host + req.URL.Path, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &domain.TransportError{Op: req.Method, URL: req.URL.Host + req.URL.Path, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &domain.RemoteAPIError{
			Code:       "http_" + strconv.Itoa(resp.StatusCode),
			Message:    string(body),
			HTTPStatus: resp.StatusCode,
		}
	}
	return body, nil
}
