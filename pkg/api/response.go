package api

import (
	"github.com/tidwall/gjson"

	"github.com/shouni/jimeng-image-kit/pkg/domain"
)

// Response は分類済みの API 応答です。
type Response struct {
	StatusCode int
	Body       []byte
	Cookies    []domain.Cookie
}

// JSON は本文が JSON かどうかを返します。
func (r *Response) JSON() bool {
	return r != nil && gjson.ValidBytes(r.Body)
}

// Get は gjson のパスで本文を参照します。
func (r *Response) Get(path string) gjson.Result {
	if r == nil {
		return gjson.Result{}
	}
	return gjson.GetBytes(r.Body, path)
}

// Field は data.<name> を優先し、無ければトップレベルの <name> を返します。
func (r *Response) Field(name string) gjson.Result {
	if v := r.Get("data." + name); v.Exists() {
		return v
	}
	return r.Get(name)
}

// Text は本文をそのまま文字列で返します。
func (r *Response) Text() string {
	if r == nil {
		return ""
	}
	return string(r.Body)
}
