package api

import "net/http"

type mockDoer struct {
	resp *http.Response
	err  error
}

func (m *mockDoer) Do(req *http.Request) (*http.Response, error) {
	return m.resp, m.err
}
