package signer

import (
	"crypto/md5"
	"encoding/hex"
	"strconv"
)

const (
	signPrefix  = "9e2c"
	signPf      = "11"
	signVersion = "7.5.0"
	signSuffix  = "11ac"
	signSpan    = 7
)

// APISign は API 呼び出し用の Sign ヘッダー値を計算します。
// md5("9e2c|{パス末尾7文字}|11|7.5.0|{unix秒}||11ac") の16進表記です。
func APISign(path string, unixSeconds int64) string {
	payload := signPrefix + "|" + lastN(path, signSpan) + "|" + signPf + "|" + signVersion + "|" +
		strconv.FormatInt(unixSeconds, 10) + "||" + signSuffix
	sum := md5.Sum([]byte(payload))
	return hex.EncodeToString(sum[:])
}

// lastN はパスの末尾 n 文字を返します。短いパスはそのまま返すのだ。
func lastN(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
