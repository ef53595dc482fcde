package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptrFloat(v float64) *float64 { return &v }

func TestOptions_Validate(t *testing.T) {
	var negativeSeed int64 = -1

	tests := []struct {
		name    string
		opts    Options
		wantErr bool
	}{
		{"ゼロ値は有効", Options{}, false},
		{"標準的な画像オプション", Options{Ratio: "16:9", Resolution: "4k", SampleStrength: ptrFloat(0.8)}, false},
		{"動画オプション", Options{DurationMs: 10000, VideoResolution: "1080p"}, false},
		{"幅と高さの指定", Options{Width: 1920, Height: 1080}, false},
		{"未知の解像度", Options{Resolution: "8k"}, true},
		{"強度が範囲外", Options{SampleStrength: ptrFloat(1.5)}, true},
		{"負のシード", Options{Seed: &negativeSeed}, true},
		{"幅だけの指定", Options{Width: 1024}, true},
		{"短すぎる動画", Options{DurationMs: 10}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.opts.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestOptions_StrengthOrDefault(t *testing.T) {
	t.Run("未指定なら0.5を返すのだ", func(t *testing.T) {
		assert.Equal(t, DefaultSampleStrength, Options{}.StrengthOrDefault())
	})

	t.Run("0を指定した場合は0のまま", func(t *testing.T) {
		assert.Equal(t, 0.0, Options{SampleStrength: ptrFloat(0)}.StrengthOrDefault())
	})
}

func TestGenerationResult_URL(t *testing.T) {
	var nilResult *GenerationResult
	assert.Equal(t, "", nilResult.URL())

	res := &GenerationResult{URLs: []string{"https://example.com/a.mp4", "https://example.com/b.mp4"}}
	require.Len(t, res.URLs, 2)
	assert.Equal(t, "https://example.com/a.mp4", res.URL())
}

func TestJobKind_UsageType(t *testing.T) {
	assert.Equal(t, GenerationImage, JobImage.UsageType())
	assert.Equal(t, GenerationImage, JobComposite.UsageType())
	assert.Equal(t, GenerationVideo, JobVideo.UsageType())
}

func TestJobStatus_IsTerminal(t *testing.T) {
	assert.False(t, StatusSubmitted.IsTerminal())
	assert.False(t, StatusPolling.IsTerminal())
	assert.True(t, StatusSucceeded.IsTerminal())
	assert.True(t, StatusFailed.IsTerminal())
	assert.True(t, StatusTimedOut.IsTerminal())
}
