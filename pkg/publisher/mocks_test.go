package publisher

import (
	"context"
	"fmt"
	"io"
	"sync"
)

type mockDownloader struct {
	files map[string][]byte
}

func (m *mockDownloader) FetchBytes(_ context.Context, url string) ([]byte, error) {
	data, ok := m.files[url]
	if !ok {
		return nil, fmt.Errorf("404: %s", url)
	}
	return data, nil
}

type written struct {
	data        []byte
	contentType string
}

type mockWriter struct {
	mu    sync.Mutex
	files map[string]written
	err   error
}

func (m *mockWriter) Write(_ context.Context, path string, r io.Reader, contentType string) error {
	if m.err != nil {
		return m.err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.files == nil {
		m.files = map[string]written{}
	}
	m.files[path] = written{data: data, contentType: contentType}
	return nil
}
