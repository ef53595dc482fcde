package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDereferenceSeed(t *testing.T) {
	t.Run("nil の場合は fallback の値を返すのだ", func(t *testing.T) {
		got := DereferenceSeed(nil, func() int64 { return 2500000042 })
		assert.Equal(t, int64(2500000042), got)
	})

	t.Run("値がある場合はその値を返すのだ", func(t *testing.T) {
		var val int64 = 999
		assert.Equal(t, int64(999), DereferenceSeed(&val, func() int64 { return 1 }))
	})

	t.Run("fallback も nil なら 0", func(t *testing.T) {
		assert.Equal(t, int64(0), DereferenceSeed(nil, nil))
	})
}

func TestSimplifyRatio(t *testing.T) {
	tests := []struct {
		w, h int
		want string
	}{
		{1024, 1024, "1:1"},
		{1920, 1080, "16:9"},
		{1080, 1920, "9:16"},
		{2496, 1664, "3:2"},
		{1000, 700, "10:7"},
		{0, 100, "1:1"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SimplifyRatio(tt.w, tt.h), "%dx%d", tt.w, tt.h)
	}
	assert.Equal(t, 6, GCD(-12, 18))
}
