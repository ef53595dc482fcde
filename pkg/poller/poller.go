package poller

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/tidwall/gjson"

	"github.com/shouni/jimeng-image-kit/pkg/api"
	"github.com/shouni/jimeng-image-kit/pkg/domain"
)

const (
	historyByIDsPath   = "/mweb/v1/get_history_by_ids"
	historyRecordsPath = "/mweb/v1/get_history_records"

	maxMissingBackoff = 30 * time.Second
	maxVideoStep      = 5
	// この回数を超えた動画ジョブは偶数回目に履歴レコード API を使います。
	alternateAfter = 10
)

// Profile はジョブ種別ごとのポーリング設定です。
type Profile struct {
	Interval      time.Duration
	InitialDelay  time.Duration
	Budget        time.Duration
	ExpectedCount int
	MaxMissing    int
	StableRounds  int
}

// ImageProfile は画像・合成ジョブの既定設定です。
func ImageProfile() Profile {
	return Profile{
		Interval:      2 * time.Second,
		InitialDelay:  2 * time.Second,
		Budget:        10 * time.Minute,
		ExpectedCount: 4,
		MaxMissing:    10,
		StableRounds:  3,
	}
}

// VideoProfile は動画ジョブの既定設定です。
func VideoProfile() Profile {
	return Profile{
		Interval:      2 * time.Second,
		InitialDelay:  5 * time.Second,
		Budget:        20 * time.Minute,
		ExpectedCount: 1,
		MaxMissing:    10,
		StableRounds:  3,
	}
}

// JobPoller は送信済みジョブを終端状態まで追跡します。
type JobPoller interface {
	Wait(ctx context.Context, cred domain.Credential, job domain.GenerationJob) (domain.GenerationJob, error)
}

// Poller は get_history_by_ids を繰り返し呼び出して結果を待ちます。
type Poller struct {
	caller    api.Caller
	now       func() time.Time
	sleep     func(ctx context.Context, d time.Duration) error
	image     Profile
	video     Profile
	envelopes []Envelope
}

// Option は Poller の設定を変更します。
type Option func(*Poller)

// WithClock は時刻の取得元を差し替えます。
func WithClock(now func() time.Time) Option {
	return func(p *Poller) { p.now = now }
}

// WithSleep は待機処理を差し替えます。ctx のキャンセルで中断できる必要があります。
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(p *Poller) { p.sleep = sleep }
}

// WithImageProfile は画像ジョブの設定を変更します。
func WithImageProfile(pr Profile) Option {
	return func(p *Poller) { p.image = pr }
}

// WithVideoProfile は動画ジョブの設定を変更します。
func WithVideoProfile(pr Profile) Option {
	return func(p *Poller) { p.video = pr }
}

// WithBudgets は壁時計の上限だけを変更します。0 は既定値のままです。
func WithBudgets(image, video time.Duration) Option {
	return func(p *Poller) {
		if image > 0 {
			p.image.Budget = image
		}
		if video > 0 {
			p.video.Budget = video
		}
	}
}

// New は Poller を初期化します。
func New(caller api.Caller, opts ...Option) (*Poller, error) {
	if caller == nil {
		return nil, fmt.Errorf("caller is required")
	}
	p := &Poller{
		caller:    caller,
		now:       time.Now,
		sleep:     sleepContext,
		image:     ImageProfile(),
		video:     VideoProfile(),
		envelopes: DefaultEnvelopes,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Profile はジョブ種別に対応する設定を返します。
func (p *Poller) Profile(kind domain.JobKind) Profile {
	if kind == domain.JobVideo {
		return p.video
	}
	return p.image
}

// Wait はジョブが終端状態になるまでポーリングします。
// 返すジョブには Status と ResultAssets が設定され、失敗時もジョブを返します。
func (p *Poller) Wait(ctx context.Context, cred domain.Credential, job domain.GenerationJob) (domain.GenerationJob, error) {
	if job.RemoteHistoryID == "" {
		return failNoHistoryID(job), domain.ErrNoHistoryID
	}
	prof := p.Profile(job.Kind)
	t := newTracker(job.RemoteHistoryID, job.Kind, prof)
	logger := slog.With("history_id", job.RemoteHistoryID, "kind", string(job.Kind), "credential_id", cred.ID)

	start := p.now()
	job.Status = domain.StatusPolling
	if err := p.sleep(ctx, prof.InitialDelay); err != nil {
		return job, err
	}

	for attempt := 0; ; attempt++ {
		if elapsed := p.now().Sub(start); elapsed >= prof.Budget {
			job.Status = domain.StatusTimedOut
			job.ResultAssets = t.urls
			job.FailureReason = "timed out"
			logger.WarnContext(ctx, "ポーリングの時間上限に達しました", "elapsed", elapsed, "attempts", attempt)
			return job, &domain.TimedOut{HistoryID: job.RemoteHistoryID, Elapsed: elapsed, Attempts: attempt, Hint: t.hint}
		}

		obs, err := p.observe(ctx, cred, job, attempt)
		if err != nil {
			if ctx.Err() != nil {
				return job, ctx.Err()
			}
			logger.WarnContext(ctx, "ポーリングに失敗しました", "attempt", attempt+1, "error", err)
			obs = observation{callErr: err}
		} else {
			if len(obs.cookies) > 0 {
				job.FreshCookies = domain.CookieJar(job.FreshCookies).Merge(obs.cookies)
			}
			logger.DebugContext(ctx, "ポーリング結果",
				"attempt", attempt+1,
				"found", obs.found,
				"status", obs.status,
				"items", obs.itemCount,
				"urls", len(obs.urls),
			)
		}

		status, stepErr := t.step(obs)
		job.ResultAssets = t.urls
		if status.IsTerminal() {
			job.Status = status
			if stepErr != nil {
				job.FailureReason = stepErr.Error()
				logger.ErrorContext(ctx, "生成ジョブが失敗しました", "attempt", attempt+1, "error", stepErr)
			} else {
				logger.InfoContext(ctx, "生成ジョブが完了しました", "attempt", attempt+1, "assets", len(t.urls))
			}
			return job, stepErr
		}

		if err := p.sleep(ctx, t.backoff(attempt)); err != nil {
			return job, err
		}
	}
}

func (p *Poller) observe(ctx context.Context, cred domain.Credential, job domain.GenerationJob, attempt int) (observation, error) {
	req := p.queryRequest(job, attempt)
	resp, err := p.caller.Call(ctx, cred, req)
	if err != nil {
		return observation{}, err
	}
	obs := observation{cookies: resp.Cookies}
	if rec, ok := FindRecord(resp.Body, job.RemoteHistoryID, p.envelopes); ok {
		obs.found = true
		obs.status = int(rec.Get("status").Int())
		if !rec.Get("status").Exists() {
			obs.status = domain.RemoteStatusProcessing
		}
		obs.failCode = int(rec.Get("fail_code").Int())
		obs.failMsg = firstString(rec, "fail_msg", "fail_starling_message")
		obs.itemCount = len(rec.Get("item_list").Array())
		obs.urls = ExtractURLs(rec, job.Kind)
	}
	if job.Kind == domain.JobVideo && len(obs.urls) == 0 {
		obs.urls = ScanVideoURLs(resp.Body)
	}
	return obs, nil
}

// queryRequest は試行回数に応じた照会リクエストを作ります。
func (p *Poller) queryRequest(job domain.GenerationJob, attempt int) api.Request {
	id := job.RemoteHistoryID
	if job.Kind != domain.JobVideo {
		return api.Request{
			Method: http.MethodPost,
			Path:   historyByIDsPath,
			Data: map[string]any{
				"history_ids": []string{id},
				"image_info":  imageInfo,
			},
		}
	}
	params := url.Values{"aigc_features": {"app_lip_sync"}}
	if attempt > alternateAfter && attempt%2 == 0 {
		return api.Request{
			Method: http.MethodPost,
			Path:   historyRecordsPath,
			Params: params,
			Data:   map[string]any{"history_record_ids": []string{id}},
		}
	}
	return api.Request{
		Method: http.MethodPost,
		Path:   historyByIDsPath,
		Params: params,
		Data:   map[string]any{"history_ids": []string{id}},
	}
}

func firstString(rec gjson.Result, paths ...string) string {
	for _, path := range paths {
		if v := rec.Get(path).String(); v != "" {
			return v
		}
	}
	return ""
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// failNoHistoryID は受付済みで履歴 ID が無いジョブを即時の失敗として終端させます。
func failNoHistoryID(job domain.GenerationJob) domain.GenerationJob {
	job.Status = domain.StatusFailed
	job.FailureReason = domain.ErrNoHistoryID.Error()
	return job
}
