package credit

import (
	"context"

	"github.com/shouni/jimeng-image-kit/pkg/api"
	"github.com/shouni/jimeng-image-kit/pkg/domain"
)

// mockCaller はパスごとに応答本文またはエラーを返します。
type mockCaller struct {
	bodies map[string]string
	errs   map[string]error
	calls  []api.Request
}

func (m *mockCaller) Call(ctx context.Context, cred domain.Credential, req api.Request) (*api.Response, error) {
	m.calls = append(m.calls, req)
	if err := m.errs[req.Path]; err != nil {
		return nil, err
	}
	return &api.Response{StatusCode: 200, Body: []byte(m.bodies[req.Path])}, nil
}

func (m *mockCaller) called(path string) int {
	n := 0
	for _, c := range m.calls {
		if c.Path == path {
			n++
		}
	}
	return n
}
