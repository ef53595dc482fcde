package generator

import (
	"context"
	"fmt"
	"sync"

	"github.com/shouni/jimeng-image-kit/pkg/domain"
	"github.com/shouni/jimeng-image-kit/pkg/submitter"
)

// --- Mocks ---

type mockResolver struct {
	err error
}

func (m *mockResolver) Resolve(ctx context.Context, in domain.ImageInput) ([]byte, error) {
	if m.err != nil {
		return nil, m.err
	}
	if len(in.Data) > 0 {
		return in.Data, nil
	}
	return []byte("bytes:" + in.Ref), nil
}

type mockUploader struct {
	mu    sync.Mutex
	kinds []domain.JobKind
	err   error
}

func (m *mockUploader) Upload(ctx context.Context, cred domain.Credential, data []byte, kind domain.JobKind) (domain.UploadedAsset, error) {
	m.mu.Lock()
	m.kinds = append(m.kinds, kind)
	m.mu.Unlock()
	if m.err != nil {
		return domain.UploadedAsset{}, m.err
	}
	return domain.UploadedAsset{Size: len(data), URI: fmt.Sprintf("tos/%s", data)}, nil
}

func (m *mockUploader) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.kinds)
}

type mockSubmitter struct {
	historyID string
	err       error
	imageURIs []string
	frames    submitter.VideoFrames
	called    string
}

func (m *mockSubmitter) job(kind domain.JobKind) (domain.GenerationJob, error) {
	m.called = string(kind)
	if m.err != nil {
		return domain.GenerationJob{}, m.err
	}
	return domain.GenerationJob{
		SubmissionID:    "submit-1",
		RemoteHistoryID: m.historyID,
		Kind:            kind,
		Status:          domain.StatusSubmitted,
		FreshCookies:    []domain.Cookie{{Name: "sessionid", Value: "from-submit"}},
	}, nil
}

func (m *mockSubmitter) SubmitImage(ctx context.Context, cred domain.Credential, req domain.ImageRequest) (domain.GenerationJob, error) {
	return m.job(domain.JobImage)
}

func (m *mockSubmitter) SubmitComposite(ctx context.Context, cred domain.Credential, req domain.CompositeRequest, imageURIs []string) (domain.GenerationJob, error) {
	m.imageURIs = imageURIs
	return m.job(domain.JobComposite)
}

func (m *mockSubmitter) SubmitVideo(ctx context.Context, cred domain.Credential, req domain.VideoRequest, frames submitter.VideoFrames) (domain.GenerationJob, error) {
	m.frames = frames
	return m.job(domain.JobVideo)
}

type mockPoller struct {
	urls   []string
	err    error
	status domain.JobStatus
	waited bool
}

func (m *mockPoller) Wait(ctx context.Context, cred domain.Credential, job domain.GenerationJob) (domain.GenerationJob, error) {
	m.waited = true
	job.ResultAssets = m.urls
	job.Status = m.status
	if job.Status == "" {
		job.Status = domain.StatusSucceeded
	}
	return job, m.err
}

type mockCredit struct {
	calls int
}

func (m *mockCredit) EnsureCredit(ctx context.Context, cred domain.Credential) {
	m.calls++
}
