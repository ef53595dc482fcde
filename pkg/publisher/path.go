package publisher

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
)

// ResolveOutputPath は保存先ディレクトリとファイル名を結合します。gs:// ではスキームを保ったまま結合します。
func ResolveOutputPath(baseDir, fileName string) (string, error) {
	if strings.HasPrefix(strings.ToLower(baseDir), "gs://") {
		u, err := url.Parse(baseDir)
		if err != nil {
			return "", fmt.Errorf("無効なGCS URIです: %w", err)
		}
		u.Path, err = url.JoinPath(u.Path, fileName)
		if err != nil {
			return "", fmt.Errorf("GCSパスの結合に失敗しました: %w", err)
		}
		return u.String(), nil
	}
	return filepath.Join(baseDir, fileName), nil
}

// FileName は生成物の保存名 {historyID}_{n}.{ext} を返します。n は 1 始まりです。
func FileName(historyID string, n int, ext string) string {
	return fmt.Sprintf("%s_%d.%s", historyID, n, ext)
}
