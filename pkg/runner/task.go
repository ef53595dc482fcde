package runner

import (
	"fmt"

	"github.com/shouni/jimeng-image-kit/pkg/domain"
)

// Task は1回分の生成依頼です。Kind に応じて Image, Composite, Video のいずれかを使います。
type Task struct {
	// Name はログ上でタスクを識別するためのラベルです。
	Name      string
	Kind      domain.JobKind
	Image     domain.ImageRequest
	Composite domain.CompositeRequest
	Video     domain.VideoRequest
}

// ImageTask はテキストから画像を生成するタスクを作ります。
func ImageTask(name string, req domain.ImageRequest) Task {
	return Task{Name: name, Kind: domain.JobImage, Image: req}
}

// CompositeTask は画像合成のタスクを作ります。
func CompositeTask(name string, req domain.CompositeRequest) Task {
	return Task{Name: name, Kind: domain.JobComposite, Composite: req}
}

// VideoTask は動画生成のタスクを作ります。
func VideoTask(name string, req domain.VideoRequest) Task {
	return Task{Name: name, Kind: domain.JobVideo, Video: req}
}

func (t Task) validate() error {
	switch t.Kind {
	case domain.JobImage, domain.JobComposite, domain.JobVideo:
		return nil
	default:
		return fmt.Errorf("unknown job kind: %q", t.Kind)
	}
}

// Outcome は RunBatch における1タスクの結果です。
type Outcome struct {
	Task   Task
	Result *domain.GenerationResult
	Err    error
}
