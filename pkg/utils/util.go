package utils

import "strconv"

// DereferenceSeed は、int64のポインタを安全にデリファレンスします。
// ポインタがnilの場合は fallback が生成した値を返します。
func DereferenceSeed(seed *int64, fallback func() int64) int64 {
	if seed != nil {
		return *seed
	}
	if fallback == nil {
		return 0
	}
	return fallback()
}

// GCD は最大公約数を返すのだ。
func GCD(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	if a < 0 {
		return -a
	}
	return a
}

// SimplifyRatio は幅と高さを約分した "w:h" 形式の比率にします。
// どちらかが0以下の場合は "1:1" を返します。
func SimplifyRatio(width, height int) string {
	if width <= 0 || height <= 0 {
		return "1:1"
	}
	d := GCD(width, height)
	return strconv.Itoa(width/d) + ":" + strconv.Itoa(height/d)
}
