package domain

import (
	"strconv"
	"strings"
	"time"
)

// GenerationType は日次クォータを数える単位です。値は永続化されるレコード種別コードと一致します。
type GenerationType int

const (
	GenerationImage GenerationType = 1
	GenerationVideo GenerationType = 2
)

func (t GenerationType) String() string {
	switch t {
	case GenerationImage:
		return "image"
	case GenerationVideo:
		return "video"
	default:
		return "unknown(" + strconv.Itoa(int(t)) + ")"
	}
}

// Valid は既知の種別かどうかを返します。
func (t GenerationType) Valid() bool {
	return t == GenerationImage || t == GenerationVideo
}

const (
	DefaultDailyImageLimit = 10
	DefaultDailyVideoLimit = 2

	SettingDailyImageLimit = "daily_image_limit"
	SettingDailyVideoLimit = "daily_video_limit"
)

// QuotaPolicy は種別ごとの1日あたりの上限です。
type QuotaPolicy struct {
	DailyImageLimit int
	DailyVideoLimit int
}

// DefaultQuotaPolicy は既定の上限 (画像10件/日、動画2件/日) を返します。
func DefaultQuotaPolicy() QuotaPolicy {
	return QuotaPolicy{
		DailyImageLimit: DefaultDailyImageLimit,
		DailyVideoLimit: DefaultDailyVideoLimit,
	}
}

// ParseQuotaPolicy は設定値の文字列から QuotaPolicy を作ります。
// 数値でない値や負の値は失敗させず、その項目だけ既定値に戻します。
func ParseQuotaPolicy(imageRaw, videoRaw string) QuotaPolicy {
	return QuotaPolicy{
		DailyImageLimit: parseLimit(imageRaw, DefaultDailyImageLimit),
		DailyVideoLimit: parseLimit(videoRaw, DefaultDailyVideoLimit),
	}
}

func parseLimit(raw string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

// Limit は指定種別の上限を返します。未知の種別は 0 (利用不可) です。
func (p QuotaPolicy) Limit(t GenerationType) int {
	switch t {
	case GenerationImage:
		return p.DailyImageLimit
	case GenerationVideo:
		return p.DailyVideoLimit
	default:
		return 0
	}
}

// Day はローカル時刻での暦日 (YYYY-MM-DD) を返します。使用量はこの単位で数えます。
func Day(t time.Time) string {
	return t.Format(time.DateOnly)
}

// Reservation は選択から完了までの間、クォータ枠を仮押さえする記録です。
type Reservation struct {
	ID           string
	CredentialID int64
	Type         GenerationType
	Day          string
	CreatedAt    time.Time
}
