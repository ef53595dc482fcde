package poller

import (
	"regexp"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/shouni/jimeng-image-kit/pkg/domain"
)

// Envelope は応答本文から履歴レコードを取り出す戦略です。
// 応答の形はエンドポイントや時期によって変わるため、順番に試します。
type Envelope func(root gjson.Result, id string) (gjson.Result, bool)

// DefaultEnvelopes は既知の応答形を試す順序です。
var DefaultEnvelopes = []Envelope{
	byIDUnderData,
	firstOf("history_list"),
	firstOf("history_records"),
	byIDAtTop,
}

func byIDUnderData(root gjson.Result, id string) (gjson.Result, bool) {
	data := root.Get("data")
	if !data.IsObject() {
		return gjson.Result{}, false
	}
	rec, ok := data.Map()[id]
	return rec, ok && rec.IsObject()
}

func byIDAtTop(root gjson.Result, id string) (gjson.Result, bool) {
	if !root.IsObject() {
		return gjson.Result{}, false
	}
	rec, ok := root.Map()[id]
	return rec, ok && rec.IsObject()
}

// firstOf は data.<name>[0]、無ければ <name>[0] を返す戦略を作ります。
func firstOf(name string) Envelope {
	return func(root gjson.Result, _ string) (gjson.Result, bool) {
		for _, path := range []string{"data." + name + ".0", name + ".0"} {
			if rec := root.Get(path); rec.IsObject() {
				return rec, true
			}
		}
		return gjson.Result{}, false
	}
}

// FindRecord は戦略を順に試し、最初に見つかったレコードを返します。
func FindRecord(body []byte, id string, envelopes []Envelope) (gjson.Result, bool) {
	root := gjson.ParseBytes(body)
	for _, env := range envelopes {
		if rec, ok := env(root, id); ok {
			return rec, true
		}
	}
	return gjson.Result{}, false
}

var (
	imageItemPaths = []string{
		"image.large_images.0.image_url",
		"common_attr.cover_url",
		"image_url",
		"url",
	}
	// アイテムから取れなかった場合にレコード直下を探すパス
	imageRecordPaths = []string{
		"common_attr.cover_url",
		"cover_url",
		"result.cover_url",
		"data.cover_url",
		"image.cover_url",
		"asset_option.cover_url",
		"asset_option.image_url",
	}
	videoItemPaths = []string{
		"video.transcoded_video.origin.video_url",
		"video.play_url",
		"video.download_url",
		"video.url",
	}
)

var videoURLPattern = regexp.MustCompile(`https://v[0-9]+-artist\.vlabvod\.com/[^"\s\\]+`)

var jsonUnescaper = strings.NewReplacer("\\u0026", "&", "\\/", "/")

// ExtractURLs はレコードのアセット URL を返します。
func ExtractURLs(record gjson.Result, kind domain.JobKind) []string {
	if kind == domain.JobVideo {
		return collect(record.Get("item_list").Array(), videoItemPaths)
	}
	urls := collect(record.Get("item_list").Array(), imageItemPaths)
	if len(urls) == 0 {
		urls = collectAll(record, imageRecordPaths)
	}
	return urls
}

// ScanVideoURLs は応答本文全体から動画 CDN の URL を探します。
// レコードの形が想定外の場合の最後の手段です。
func ScanVideoURLs(body []byte) []string {
	text := jsonUnescaper.Replace(string(body))
	return videoURLPattern.FindAllString(text, -1)
}

// collect は各アイテムで最初に見つかったパスの値を集めます。
func collect(items []gjson.Result, paths []string) []string {
	var urls []string
	for _, item := range items {
		for _, path := range paths {
			if v := item.Get(path).String(); v != "" {
				urls = append(urls, v)
				break
			}
		}
	}
	return urls
}

func collectAll(record gjson.Result, paths []string) []string {
	var urls []string
	for _, path := range paths {
		if v := record.Get(path).String(); v != "" {
			urls = append(urls, v)
		}
	}
	return urls
}
