package poller

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/tidwall/gjson"

	"github.com/shouni/jimeng-image-kit/pkg/api"
	"github.com/shouni/jimeng-image-kit/pkg/domain"
)

// scriptedCaller は呼び出し回数に応じて応答を返すモックなのだ。
// script がエラーを返した回は Call もそのエラーを返します。
type scriptedCaller struct {
	mu       sync.Mutex
	script   func(n int, req api.Request) (string, error)
	cookies  []domain.Cookie
	requests []api.Request
}

func (m *scriptedCaller) Call(ctx context.Context, cred domain.Credential, req api.Request) (*api.Response, error) {
	m.mu.Lock()
	n := len(m.requests)
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	body, err := m.script(n, req)
	if err != nil {
		return nil, err
	}
	return &api.Response{StatusCode: 200, Body: []byte(body), Cookies: m.cookies}, nil
}

func (m *scriptedCaller) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// sequence は bodies を順に返し、尽きたら最後を繰り返します。
func sequence(bodies ...string) func(int, api.Request) (string, error) {
	return func(n int, _ api.Request) (string, error) {
		if n >= len(bodies) {
			n = len(bodies) - 1
		}
		return bodies[n], nil
	}
}

// requestData は送信されたリクエスト本文を gjson で参照できる形にします。
func requestData(req api.Request) gjson.Result {
	b, _ := json.Marshal(req.Data)
	return gjson.ParseBytes(b)
}

type fakeClock struct {
	mu    sync.Mutex
	now   time.Time
	slept []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.slept = append(c.slept, d)
	c.now = c.now.Add(d)
	return nil
}

func (c *fakeClock) sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.slept...)
}
