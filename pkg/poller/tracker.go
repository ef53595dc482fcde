package poller

import (
	"fmt"
	"time"

	"github.com/shouni/jimeng-image-kit/pkg/domain"
)

// observation は1回の照会で得られた情報です。
type observation struct {
	callErr   error
	found     bool
	status    int
	failCode  int
	failMsg   string
	itemCount int
	urls      []string
	cookies   []domain.Cookie
}

// tracker はポーリングの状態遷移を保持します。
// 一度終端に達したら、その後の観測にかかわらず同じ結果を返します。
type tracker struct {
	historyID string
	kind      domain.JobKind
	profile   Profile
	hint      string

	urls      []string
	seen      map[string]struct{}
	missing   int
	lastCount int
	stable    int
	status    int

	terminal domain.JobStatus
	err      error
}

func newTracker(historyID string, kind domain.JobKind, profile Profile) *tracker {
	t := &tracker{
		historyID: historyID,
		kind:      kind,
		profile:   profile,
		seen:      make(map[string]struct{}),
		status:    domain.RemoteStatusProcessing,
	}
	if kind == domain.JobVideo {
		t.hint = domain.VideoHistoryHint
	}
	return t
}

// step は観測を1件取り込み、ジョブの状態を返します。
func (t *tracker) step(obs observation) (domain.JobStatus, error) {
	if t.terminal != "" {
		return t.terminal, t.err
	}
	t.merge(obs.urls)

	if obs.callErr != nil || !obs.found {
		t.missing++
		if t.kind == domain.JobVideo && len(t.urls) >= t.profile.ExpectedCount {
			return t.finish(domain.StatusSucceeded, nil)
		}
		if t.profile.MaxMissing > 0 && t.missing >= t.profile.MaxMissing {
			cause := "history record not found"
			if obs.callErr != nil {
				cause = fmt.Sprintf("polling failed: %v", obs.callErr)
			}
			return t.finish(domain.StatusFailed, &domain.GenerationFailed{
				HistoryID: t.historyID,
				Cause:     cause,
				Hint:      t.hint,
				Err:       obs.callErr,
			})
		}
		return domain.StatusPolling, nil
	}
	t.missing = 0
	t.status = obs.status

	switch obs.status {
	case domain.RemoteStatusFailed:
		if obs.failCode == domain.FailCodeContentFiltered {
			return t.finish(domain.StatusFailed, &domain.ContentFiltered{
				HistoryID: t.historyID,
				FailCode:  obs.failCode,
				Hint:      t.hint,
			})
		}
		cause := obs.failMsg
		if cause == "" {
			cause = "remote job failed"
		}
		return t.finish(domain.StatusFailed, &domain.GenerationFailed{
			HistoryID: t.historyID,
			FailCode:  obs.failCode,
			Cause:     cause,
			Hint:      t.hint,
		})
	case domain.RemoteStatusCompleted:
		if len(t.urls) == 0 {
			return t.finish(domain.StatusFailed, &domain.GenerationFailed{
				HistoryID: t.historyID,
				FailCode:  obs.failCode,
				Cause:     "completed without any asset url",
				Hint:      t.hint,
			})
		}
		return t.finish(domain.StatusSucceeded, nil)
	case domain.RemoteStatusSuccess, domain.RemoteStatusPostProcessing, domain.RemoteStatusFinalizing:
		if len(t.urls) > 0 {
			return t.finish(domain.StatusSucceeded, nil)
		}
	}

	if t.profile.ExpectedCount > 0 && len(t.urls) >= t.profile.ExpectedCount {
		return t.finish(domain.StatusSucceeded, nil)
	}

	if obs.itemCount == t.lastCount {
		t.stable++
		if t.stable >= t.profile.StableRounds && len(t.urls) > 0 {
			return t.finish(domain.StatusSucceeded, nil)
		}
	} else {
		t.stable = 0
		t.lastCount = obs.itemCount
	}
	return domain.StatusPolling, nil
}

// backoff は直前の観測を踏まえた次回までの待機時間です。
func (t *tracker) backoff(attempt int) time.Duration {
	interval := t.profile.Interval
	if t.missing > 0 {
		return min(interval*time.Duration(t.missing+1), maxMissingBackoff)
	}
	if t.kind == domain.JobVideo && t.status == domain.RemoteStatusProcessing {
		return interval * time.Duration(min(attempt+1, maxVideoStep))
	}
	return interval
}

func (t *tracker) merge(urls []string) {
	for _, u := range urls {
		if _, ok := t.seen[u]; ok {
			continue
		}
		t.seen[u] = struct{}{}
		t.urls = append(t.urls, u)
	}
}

func (t *tracker) finish(status domain.JobStatus, err error) (domain.JobStatus, error) {
	t.terminal = status
	t.err = err
	return status, err
}

type imageScene struct {
	Scene   string `json:"scene"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
	UniqKey string `json:"uniq_key"`
	Format  string `json:"format"`
}

type imageInfoParam struct {
	Width          int          `json:"width"`
	Height         int          `json:"height"`
	Format         string       `json:"format"`
	ImageSceneList []imageScene `json:"image_scene_list"`
}

// imageInfo は画像ジョブの照会で要求する派生サイズの一覧です。
var imageInfo = imageInfoParam{
	Width:          2048,
	Height:         2048,
	Format:         "webp",
	ImageSceneList: buildScenes(),
}

func buildScenes() []imageScene {
	crops := [][2]int{{360, 360}, {480, 480}, {720, 720}, {720, 480}, {360, 240}, {240, 320}, {480, 640}}
	normals := []int{2400, 1080, 720, 480, 360}

	scenes := make([]imageScene, 0, len(crops)+len(normals))
	for _, c := range crops {
		scenes = append(scenes, imageScene{
			Scene:   "smart_crop",
			Width:   c[0],
			Height:  c[1],
			UniqKey: fmt.Sprintf("smart_crop-w:%d-h:%d", c[0], c[1]),
			Format:  "webp",
		})
	}
	for _, n := range normals {
		scenes = append(scenes, imageScene{
			Scene:   "normal",
			Width:   n,
			Height:  n,
			UniqKey: fmt.Sprint(n),
			Format:  "webp",
		})
	}
	return scenes
}
