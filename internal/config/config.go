package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"

	"github.com/shouni/jimeng-image-kit/pkg/api"
	"github.com/shouni/jimeng-image-kit/pkg/domain"
	"github.com/shouni/jimeng-image-kit/pkg/runner"
)

// EnvPrefix は環境変数の接頭辞です。
const EnvPrefix = "JIMENG"

// デフォルト値の定義
const (
	DefaultDBDriver          = "sqlite"
	DefaultDatabaseURL       = "jimeng.db"
	DefaultWorkers           = runner.DefaultWorkers
	DefaultSubmitInterval    = runner.DefaultSubmitInterval
	DefaultMaxAttempts       = runner.DefaultMaxAttempts
	DefaultRequestTimeout    = api.DefaultTimeout
	DefaultFetchTimeout      = 30 * time.Second
	DefaultImagePollTimeout  = 10 * time.Minute
	DefaultVideoPollTimeout  = 20 * time.Minute
	DefaultUploadCacheTTL    = 30 * time.Minute
	DefaultUploadJPEGQuality = 0
	DefaultOutputDir         = "output"
)

// Config は環境変数から読み込むアプリケーション設定です。
// 未設定の項目は Default の値のまま残ります。
type Config struct {
	DBDriver    string `envconfig:"DB_DRIVER" validate:"oneof=sqlite postgres"`
	DatabaseURL string `envconfig:"DATABASE_URL" validate:"required"`

	// 空なら設定テーブルの値を使います。数値でなければ既定値に戻します。
	DailyImageLimit string `envconfig:"DAILY_IMAGE_LIMIT"`
	DailyVideoLimit string `envconfig:"DAILY_VIDEO_LIMIT"`

	Workers        int           `envconfig:"WORKERS" validate:"gte=1,lte=64"`
	SubmitInterval time.Duration `envconfig:"SUBMIT_INTERVAL" validate:"gte=0"`
	MaxAttempts    int           `envconfig:"MAX_ATTEMPTS" validate:"gte=1,lte=10"`

	RequestTimeout   time.Duration `envconfig:"REQUEST_TIMEOUT" validate:"gt=0"`
	FetchTimeout     time.Duration `envconfig:"FETCH_TIMEOUT" validate:"gt=0"`
	ImagePollTimeout time.Duration `envconfig:"IMAGE_POLL_TIMEOUT" validate:"gt=0"`
	VideoPollTimeout time.Duration `envconfig:"VIDEO_POLL_TIMEOUT" validate:"gt=0"`

	UploadCacheTTL    time.Duration `envconfig:"UPLOAD_CACHE_TTL" validate:"gte=0"`
	UploadJPEGQuality int           `envconfig:"UPLOAD_JPEG_QUALITY" validate:"gte=0,lte=100"`

	ReserveQuota bool   `envconfig:"RESERVE_QUOTA"`
	UseGCS       bool   `envconfig:"USE_GCS"`
	OutputDir    string `envconfig:"OUTPUT_DIR"`
	// BaseURL はリージョン既定ホストの上書きです。テストやプロキシ用です。
	BaseURL string `envconfig:"BASE_URL" validate:"omitempty,url"`
}

// Default は既定値を埋めた Config を返します。
func Default() Config {
	return Config{
		DBDriver:          DefaultDBDriver,
		DatabaseURL:       DefaultDatabaseURL,
		Workers:           DefaultWorkers,
		SubmitInterval:    DefaultSubmitInterval,
		MaxAttempts:       DefaultMaxAttempts,
		RequestTimeout:    DefaultRequestTimeout,
		FetchTimeout:      DefaultFetchTimeout,
		ImagePollTimeout:  DefaultImagePollTimeout,
		VideoPollTimeout:  DefaultVideoPollTimeout,
		UploadCacheTTL:    DefaultUploadCacheTTL,
		UploadJPEGQuality: DefaultUploadJPEGQuality,
		OutputDir:         DefaultOutputDir,
	}
}

// Load は JIMENG_ 接頭辞の環境変数から設定を読み込み、値域を検証します。
func Load() (*Config, error) {
	cfg := Default()
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate は設定値を検証します。
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// QuotaOverride は環境変数でクォータ上限が指定されていればその値を返します。
func (c *Config) QuotaOverride() (domain.QuotaPolicy, bool) {
	if c.DailyImageLimit == "" && c.DailyVideoLimit == "" {
		return domain.QuotaPolicy{}, false
	}
	return domain.ParseQuotaPolicy(c.DailyImageLimit, c.DailyVideoLimit), true
}
