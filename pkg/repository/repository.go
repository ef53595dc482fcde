package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shouni/jimeng-image-kit/pkg/domain"
)

// ReservationTTL を過ぎた仮押さえは数えません。異常終了したワーカーが枠を握り続けないためです。
const ReservationTTL = 30 * time.Minute

// ErrCredentialNotFound は指定 ID のクレデンシャルが存在しないことを示します。
var ErrCredentialNotFound = errors.New("credential not found")

// ErrCredentialExists は同じユーザー名で別のトークンが登録済みであることを示します。
var ErrCredentialExists = errors.New("credential already exists with a different token")

// CredentialRepository はクレデンシャルプールと使用量の永続化層です。
type CredentialRepository interface {
	ListCredentials(ctx context.Context) ([]domain.Credential, error)
	CountUsage(ctx context.Context, id int64, t domain.GenerationType, day string) (int, error)
	RecordUsage(ctx context.Context, id int64, t domain.GenerationType) error
	// UpdateCookies は Cookie を上書きします。後勝ちで、対象が無ければ false を返します。
	UpdateCookies(ctx context.Context, id int64, jar domain.CookieJar) (bool, error)
}

// Reserver は使用量の確認と仮押さえを不可分に行えるリポジトリです。
type Reserver interface {
	// Reserve は使用量と有効な仮押さえの合計が limit 未満の場合だけ仮押さえを作ります。
	Reserve(ctx context.Context, id int64, t domain.GenerationType, limit int, day string) (domain.Reservation, bool, error)
	// Release は仮押さえを解除します。commit が true なら使用量として記録します。
	Release(ctx context.Context, r domain.Reservation, commit bool) error
}

// SettingsStore はキーと値の設定ストアです。
type SettingsStore interface {
	Setting(ctx context.Context, key string) (string, bool, error)
	SetSetting(ctx context.Context, key, value string) error
}

// CredentialAdmin はクレデンシャルの登録を行うリポジトリです。
type CredentialAdmin interface {
	// AddCredential はクレデンシャルを登録します。リージョンはこの時点で確定します。
	// 同じユーザー名・同じトークンなら既存の行を返し、トークンが異なれば ErrCredentialExists を返します。
	AddCredential(ctx context.Context, username, rawToken string) (domain.Credential, error)
}

// Store は同梱の実装がすべて満たすインターフェースです。
type Store interface {
	CredentialRepository
	Reserver
	SettingsStore
	CredentialAdmin
	Close() error
}

// SettingsPolicy は設定ストアからクォータ上限を読み込みます。
type SettingsPolicy struct {
	Store SettingsStore
}

// QuotaPolicy は日次上限を読み込みます。未設定や不正な値の項目は既定値です。
func (p SettingsPolicy) QuotaPolicy(ctx context.Context) (domain.QuotaPolicy, error) {
	if p.Store == nil {
		return domain.DefaultQuotaPolicy(), nil
	}
	image, _, err := p.Store.Setting(ctx, domain.SettingDailyImageLimit)
	if err != nil {
		return domain.QuotaPolicy{}, fmt.Errorf("failed to load %s: %w", domain.SettingDailyImageLimit, err)
	}
	video, _, err := p.Store.Setting(ctx, domain.SettingDailyVideoLimit)
	if err != nil {
		return domain.QuotaPolicy{}, fmt.Errorf("failed to load %s: %w", domain.SettingDailyVideoLimit, err)
	}
	return domain.ParseQuotaPolicy(image, video), nil
}

// defaultSettings はマイグレーション時に投入する設定です。
var defaultSettings = []struct {
	Key         string
	Value       string
	Description string
}{
	{domain.SettingDailyImageLimit, fmt.Sprint(domain.DefaultDailyImageLimit), "daily image generations per credential"},
	{domain.SettingDailyVideoLimit, fmt.Sprint(domain.DefaultDailyVideoLimit), "daily video generations per credential"},
}

func validType(t domain.GenerationType) error {
	if !t.Valid() {
		return fmt.Errorf("invalid generation type: %s", t)
	}
	return nil
}
