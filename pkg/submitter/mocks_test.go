package submitter

import (
	"context"

	"github.com/shouni/jimeng-image-kit/pkg/api"
	"github.com/shouni/jimeng-image-kit/pkg/domain"
)

type mockCaller struct {
	body    string
	cookies []domain.Cookie
	err     error
	last    api.Request
}

func (m *mockCaller) Call(ctx context.Context, cred domain.Credential, req api.Request) (*api.Response, error) {
	m.last = req
	if m.err != nil {
		return nil, m.err
	}
	return &api.Response{StatusCode: 200, Body: []byte(m.body), Cookies: m.cookies}, nil
}

func (m *mockCaller) sent() generateBody {
	body, _ := m.last.Data.(generateBody)
	return body
}
