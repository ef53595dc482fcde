package domain

import (
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

const (
	DefaultRatio           = "1:1"
	DefaultResolution      = "2k"
	DefaultSampleStrength  = 0.5
	DefaultVideoResolution = "720p"
	DefaultVideoDurationMs = 5000
	DefaultVideoSide       = 1024
)

// Options は generate 系操作に共通するオプションです。
// Seed は nil でランダム、値指定で固定です。
type Options struct {
	Ratio           string   `validate:"omitempty,max=8"`
	Resolution      string   `validate:"omitempty,oneof=1k 2k 4k"`
	SampleStrength  *float64 `validate:"omitempty,gte=0,lte=1"`
	NegativePrompt  string   `validate:"omitempty,max=2000"`
	Seed            *int64   `validate:"omitempty,gte=0"`
	Width           int      `validate:"omitempty,gt=0,lte=8192"`
	Height          int      `validate:"omitempty,gt=0,lte=8192"`
	DurationMs      int      `validate:"omitempty,gte=1000,lte=60000"`
	VideoResolution string   `validate:"omitempty,oneof=480p 720p 1080p"`
	FirstFrame      string
	LastFrame       string
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func optionsValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
	})
	return validate
}

// Validate はオプションの値域を検証します。
func (o Options) Validate() error {
	if err := optionsValidator().Struct(o); err != nil {
		return fmt.Errorf("invalid options: %w", err)
	}
	if (o.Width == 0) != (o.Height == 0) {
		return fmt.Errorf("invalid options: width and height must be given together")
	}
	return nil
}

// StrengthOrDefault は SampleStrength を既定値 0.5 で補完します。
func (o Options) StrengthOrDefault() float64 {
	if o.SampleStrength == nil {
		return DefaultSampleStrength
	}
	return *o.SampleStrength
}

// ImageRequest はテキストからの画像生成要求です。
type ImageRequest struct {
	Model   string
	Prompt  string
	Options Options
}

// CompositeRequest は入力画像を合成する生成要求です。
// Images は URL、gs:// URI、ローカルパス、data: URI のいずれかです。
type CompositeRequest struct {
	Model   string
	Prompt  string
	Images  []ImageInput
	Options Options
}

// VideoRequest は動画生成要求です。先頭・末尾フレームは Options で指定します。
type VideoRequest struct {
	Model   string
	Prompt  string
	Options Options
}

// ImageInput は参照文字列か生バイト列のどちらかで表す入力画像です。
type ImageInput struct {
	Ref  string
	Data []byte
}

// IsZero は参照もデータも持たないかどうかを返します。
func (i ImageInput) IsZero() bool {
	return strings.TrimSpace(i.Ref) == "" && len(i.Data) == 0
}
