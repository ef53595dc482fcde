package uploader

import (
	"fmt"
	"hash/crc32"
)

// CRC32 は IEEE CRC-32 を小文字・ゼロ埋め8桁の16進文字列で返します。
func CRC32(data []byte) string {
	return fmt.Sprintf("%08x", crc32.ChecksumIEEE(data))
}
