package poller

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/shouni/jimeng-image-kit/pkg/domain"
)

func TestFindRecord(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int64
		ok   bool
	}{
		{"data.<id>", `{"data":{"42":{"status":50}}}`, 50, true},
		{"data.history_list[0]", `{"data":{"history_list":[{"status":20}]}}`, 20, true},
		{"history_list[0]", `{"history_list":[{"status":45}]}`, 45, true},
		{"history_records[0]", `{"data":{"history_records":[{"status":30}]}}`, 30, true},
		{"トップレベルの <id>", `{"42":{"status":10}}`, 10, true},
		{"data.<id> を優先する", `{"data":{"42":{"status":50}},"history_list":[{"status":20}]}`, 50, true},
		{"別の ID しか無い", `{"data":{"43":{"status":50}}}`, 0, false},
		{"空の一覧", `{"data":{"history_list":[]}}`, 0, false},
		{"JSON でない", `<html>`, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, ok := FindRecord([]byte(tt.body), "42", DefaultEnvelopes)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, rec.Get("status").Int())
			}
		})
	}
}

func TestExtractURLs(t *testing.T) {
	t.Run("画像はアイテムごとに最初に見つかったパスを使う", func(t *testing.T) {
		rec := gjson.Parse(`{"item_list":[
			{"image":{"large_images":[{"image_url":"L"}]},"common_attr":{"cover_url":"C"},"url":"U"},
			{"common_attr":{"cover_url":"C2"},"image_url":"I2"},
			{"image_url":"I3"},
			{"nothing":true}
		]}`)
		assert.Equal(t, []string{"L", "C2", "I3"}, ExtractURLs(rec, domain.JobImage))
	})

	t.Run("アイテムに無ければレコード直下を探す", func(t *testing.T) {
		rec := gjson.Parse(`{"item_list":[],"cover_url":"A","asset_option":{"image_url":"B"}}`)
		assert.Equal(t, []string{"A", "B"}, ExtractURLs(rec, domain.JobComposite))
	})

	t.Run("動画の優先順位", func(t *testing.T) {
		rec := gjson.Parse(`{"item_list":[{"video":{"download_url":"D","url":"U"}}]}`)
		assert.Equal(t, []string{"D"}, ExtractURLs(rec, domain.JobVideo))
	})

	t.Run("動画はレコード直下の cover_url を使わない", func(t *testing.T) {
		rec := gjson.Parse(`{"item_list":[],"cover_url":"A"}`)
		assert.Empty(t, ExtractURLs(rec, domain.JobVideo))
	})
}

func TestScanVideoURLs(t *testing.T) {
	body := []byte(`{"a":"https:\/\/v26-artist.vlabvod.com\/x\/y.mp4","b":"https://v3-artist.vlabvod.com/z.mp4 trailing","c":"https://example.com/v.mp4"}`)
	urls := ScanVideoURLs(body)
	require.Len(t, urls, 2)
	assert.Equal(t, "https://v26-artist.vlabvod.com/x/y.mp4", urls[0])
	assert.Equal(t, "https://v3-artist.vlabvod.com/z.mp4", urls[1])
}
