package imgutil

import (
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// DetectMIME はデータ先頭のシグネチャから MIME タイプを判定します。パラメータは取り除きます。
func DetectMIME(data []byte) string {
	m := mimetype.Detect(data).String()
	if i := strings.IndexByte(m, ';'); i >= 0 {
		m = m[:i]
	}
	return m
}

// IsImage は画像データかどうかを返します。
func IsImage(data []byte) bool {
	return strings.HasPrefix(DetectMIME(data), "image/")
}

// ExtensionFor は保存時の拡張子（ドットなし）を返します。判定できない場合は "bin" です。
func ExtensionFor(data []byte) string {
	switch DetectMIME(data) {
	case "image/jpeg":
		return "jpg"
	case "image/png":
		return "png"
	case "image/webp":
		return "webp"
	case "image/gif":
		return "gif"
	case "video/mp4":
		return "mp4"
	}
	if ext := strings.TrimPrefix(mimetype.Detect(data).Extension(), "."); ext != "" {
		return ext
	}
	return "bin"
}
