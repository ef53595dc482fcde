package uploader

import (
	"bytes"
	"context"
	"encoding/base64"
	"io"
	"sync"

	"github.com/shouni/jimeng-image-kit/pkg/api"
	"github.com/shouni/jimeng-image-kit/pkg/domain"
)

// --- Mocks ---

type mockCaller struct {
	mu    sync.Mutex
	calls []api.Request
	body  string
	err   error
}

func (m *mockCaller) Call(ctx context.Context, cred domain.Credential, req api.Request) (*api.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, req)
	if m.err != nil {
		return nil, m.err
	}
	return &api.Response{StatusCode: 200, Body: []byte(m.body)}, nil
}

func (m *mockCaller) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

type mockHTTPClient struct {
	data    []byte
	err     error
	lastURL string
}

func (m *mockHTTPClient) FetchBytes(ctx context.Context, url string) ([]byte, error) {
	m.lastURL = url
	return m.data, m.err
}

type mockReader struct {
	files map[string][]byte
}

func (m *mockReader) Open(ctx context.Context, uri string) (io.ReadCloser, error) {
	data, ok := m.files[uri]
	if !ok {
		return nil, io.ErrUnexpectedEOF
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *mockReader) List(ctx context.Context, uri string, fn func(string) error) error {
	return nil
}

func base64Std(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

// blockingCaller は release が閉じられるまでトークン呼び出しを止めます。
type blockingCaller struct {
	body    string
	entered chan struct{}
	release chan struct{}

	mu    sync.Mutex
	calls int
}

func newBlockingCaller(body string) *blockingCaller {
	return &blockingCaller{body: body, entered: make(chan struct{}, 8), release: make(chan struct{})}
}

func (m *blockingCaller) Call(ctx context.Context, cred domain.Credential, req api.Request) (*api.Response, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	m.entered <- struct{}{}
	select {
	case <-m.release:
		return &api.Response{StatusCode: 200, Body: []byte(m.body)}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *blockingCaller) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
