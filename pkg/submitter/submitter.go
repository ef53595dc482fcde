package submitter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/shouni/jimeng-image-kit/pkg/api"
	"github.com/shouni/jimeng-image-kit/pkg/domain"
	"github.com/shouni/jimeng-image-kit/pkg/signer"
	"github.com/shouni/jimeng-image-kit/pkg/utils"
)

const (
	generatePath = "/mweb/v1/aigc_draft/generate"

	videoWebVersion = "6.6.0"
	seedBase        = 2_500_000_000
	seedSpan        = 100_000_000
)

// JobSubmitter は生成ジョブをプロバイダーのキューへ送信します。
type JobSubmitter interface {
	SubmitImage(ctx context.Context, cred domain.Credential, req domain.ImageRequest) (domain.GenerationJob, error)
	SubmitComposite(ctx context.Context, cred domain.Credential, req domain.CompositeRequest, imageURIs []string) (domain.GenerationJob, error)
	SubmitVideo(ctx context.Context, cred domain.Credential, req domain.VideoRequest, frames VideoFrames) (domain.GenerationJob, error)
}

// VideoFrames はアップロード済みの先頭・末尾フレーム URI です。空文字は未指定です。
type VideoFrames struct {
	First string
	Last  string
}

// Submitter はドラフトを組み立てて aigc_draft/generate を呼び出します。
type Submitter struct {
	caller api.Caller
	now    func() time.Time
	seed   func() int64
}

// Option は Submitter の設定を変更します。
type Option func(*Submitter)

// WithClock は時刻の取得元を差し替えます。
func WithClock(now func() time.Time) Option {
	return func(s *Submitter) { s.now = now }
}

// WithSeedSource は画像生成のランダムシードの生成元を差し替えます。
func WithSeedSource(seed func() int64) Option {
	return func(s *Submitter) { s.seed = seed }
}

// New は Submitter を初期化します。
func New(caller api.Caller, opts ...Option) (*Submitter, error) {
	if caller == nil {
		return nil, fmt.Errorf("caller is required")
	}
	s := &Submitter{
		caller: caller,
		now:    time.Now,
		seed:   func() int64 { return rand.Int64N(seedSpan) + seedBase },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// SubmitImage はテキストからの画像生成を送信します。
func (s *Submitter) SubmitImage(ctx context.Context, cred domain.Credential, req domain.ImageRequest) (domain.GenerationJob, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return domain.GenerationJob{}, errors.New("prompt is required")
	}
	if err := req.Options.Validate(); err != nil {
		return domain.GenerationJob{}, err
	}
	model, err := ResolveImageModel(req.Model, cred.Region)
	if err != nil {
		return domain.GenerationJob{}, err
	}
	size, err := ResolveImageSize(req.Options)
	if err != nil {
		return domain.GenerationJob{}, err
	}

	seed := utils.DereferenceSeed(req.Options.Seed, s.seed)
	negative := req.Options.NegativePrompt
	core := coreParam{
		node:           newNode(""),
		Model:          model,
		Prompt:         req.Prompt,
		NegativePrompt: &negative,
		Seed:           &seed,
		SampleStrength: req.Options.StrengthOrDefault(),
		ImageRatio:     size.ImageRatio,
		LargeImageInfo: newLargeImageInfo(size),
	}

	componentID := uuid.NewString()
	d := s.imageDraft(componentID, "generate", abilities{
		node:     newNode(""),
		Generate: &generateAbility{node: newNode(""), CoreParam: core},
	})
	metrics := imageMetrics{
		PromptSource:  "custom",
		GenerateCount: 1,
		EnterFrom:     "click",
		GenerateID:    uuid.NewString(),
	}

	job := domain.GenerationJob{
		Kind:          domain.JobImage,
		Model:         modelOrDefault(req.Model, DefaultImageModel),
		ProviderModel: model,
		Prompt:        req.Prompt,
		Width:         size.Width,
		Height:        size.Height,
	}
	slog.InfoContext(ctx, "画像生成を送信します",
		"credential_id", cred.ID,
		"model", job.Model,
		"provider_model", model,
		"resolution", size.Type,
		"width", size.Width,
		"height", size.Height,
		"seed", seed,
	)
	return s.submit(ctx, cred, job, uuid.NewString(), extend{RootModel: model}, metrics, d, nil)
}

// SubmitComposite はアップロード済み画像を合成する生成を送信します。
func (s *Submitter) SubmitComposite(ctx context.Context, cred domain.Credential, req domain.CompositeRequest, imageURIs []string) (domain.GenerationJob, error) {
	if len(imageURIs) == 0 {
		return domain.GenerationJob{}, errors.New("at least one uploaded image is required")
	}
	if err := req.Options.Validate(); err != nil {
		return domain.GenerationJob{}, err
	}
	model, err := ResolveImageModel(req.Model, cred.Region)
	if err != nil {
		return domain.GenerationJob{}, err
	}
	size, err := ResolveImageSize(req.Options)
	if err != nil {
		return domain.GenerationJob{}, err
	}

	entries := make([]abilityEntry, 0, len(imageURIs))
	placeholders := make([]placeholder, 0, len(imageURIs))
	for i, uri := range imageURIs {
		entries = append(entries, abilityEntry{
			node:         newNode(""),
			Name:         "byte_edit",
			ImageURIList: []string{uri},
			ImageList:    []imageRef{*newImageRef(uri, 0, 0)},
			Strength:     defaultAbilityScale,
		})
		placeholders = append(placeholders, placeholder{node: newNode(""), AbilityIndex: i})
	}

	blend := &blendAbility{
		node:        newNode(""),
		MinFeatures: []string{},
		CoreParam: coreParam{
			node:           newNode(""),
			Model:          model,
			Prompt:         "##" + req.Prompt,
			SampleStrength: req.Options.StrengthOrDefault(),
			ImageRatio:     size.ImageRatio,
			LargeImageInfo: newLargeImageInfo(size),
		},
		AbilityList:               entries,
		PromptPlaceholderInfoList: placeholders,
		PostEditParam:             postEditParam{node: newNode("")},
	}

	submitID := uuid.NewString()
	componentID := uuid.NewString()
	d := s.imageDraft(componentID, "blend", abilities{node: newNode(""), Blend: blend})
	metrics := imageMetrics{
		PromptSource:  "custom",
		GenerateCount: 1,
		EnterFrom:     "click",
		GenerateID:    submitID,
	}

	job := domain.GenerationJob{
		Kind:          domain.JobComposite,
		Model:         modelOrDefault(req.Model, DefaultImageModel),
		ProviderModel: model,
		Prompt:        req.Prompt,
		Width:         size.Width,
		Height:        size.Height,
	}
	slog.InfoContext(ctx, "画像合成を送信します",
		"credential_id", cred.ID,
		"model", job.Model,
		"images", len(imageURIs),
		"width", size.Width,
		"height", size.Height,
	)
	return s.submit(ctx, cred, job, submitID, extend{RootModel: model}, metrics, d, nil)
}

// SubmitVideo は動画生成を送信します。末尾フレームがある場合は 3.0 のルートモデルを使います。
func (s *Submitter) SubmitVideo(ctx context.Context, cred domain.Credential, req domain.VideoRequest, frames VideoFrames) (domain.GenerationJob, error) {
	if strings.TrimSpace(req.Prompt) == "" && frames.First == "" {
		return domain.GenerationJob{}, errors.New("prompt or first frame is required")
	}
	if err := req.Options.Validate(); err != nil {
		return domain.GenerationJob{}, err
	}

	model := ResolveVideoModel(req.Model)
	width, height := req.Options.Width, req.Options.Height
	if width == 0 || height == 0 {
		width, height = domain.DefaultVideoSide, domain.DefaultVideoSide
	}
	duration := req.Options.DurationMs
	if duration == 0 {
		duration = domain.DefaultVideoDurationMs
	}
	resolution := req.Options.VideoResolution
	if resolution == "" {
		resolution = domain.DefaultVideoResolution
	}

	var first, last *imageRef
	if frames.First != "" {
		first = newImageRef(frames.First, width, height)
	}
	if frames.Last != "" {
		last = newImageRef(frames.Last, width, height)
	}

	rootModel := model
	if last != nil {
		rootModel = ResolveVideoModel(DefaultVideoModel)
	}

	now := s.now()
	metrics := videoMetrics{
		EnterFrom:      "click",
		IsDefaultSeed:  1,
		PromptSource:   "custom",
		OriginSubmitID: uuid.NewString(),
	}
	metricsJSON, err := json.Marshal(metrics)
	if err != nil {
		return domain.GenerationJob{}, fmt.Errorf("failed to encode video metrics: %w", err)
	}

	componentID := uuid.NewString()
	d := draft{
		node:            newNode("draft"),
		MinVersion:      DraftMinVersion,
		IsFromTSN:       true,
		Version:         DraftVersion,
		MainComponentID: componentID,
		ComponentList: []component{{
			node:         node{Type: "video_base_component", ID: componentID},
			MinVersion:   videoComponentMinV,
			AigcMode:     aigcModeWorkbench,
			Metadata:     s.metadata(now.UnixMilli()),
			GenerateType: "gen_video",
			Abilities: abilities{
				node: newNode(""),
				GenVideo: &genVideoAbility{
					node: newNode(""),
					TextToVideoParams: textToVideoParams{
						node:             newNode(""),
						ModelReqKey:      model,
						Seed:             now.UnixMilli()%seedSpan + seedBase,
						VideoAspectRatio: utils.SimplifyRatio(width, height),
						VideoGenInputs: []videoGenInput{{
							node:            newNode(""),
							DurationMs:      duration,
							FirstFrameImage: first,
							EndFrameImage:   last,
							Fps:             videoFPS,
							MinVersion:      DraftMinVersion,
							Prompt:          req.Prompt,
							Resolution:      resolution,
							VideoMode:       videoModeDefault,
						}},
					},
					VideoTaskExtra: string(metricsJSON),
				},
			},
		}},
	}

	info := videoCommerceInfo
	ext := extend{
		RootModel:              rootModel,
		MVideoCommerceInfo:     &info,
		MVideoCommerceInfoList: []commerceInfo{videoCommerceInfo},
	}
	params := url.Values{
		"aigc_features": {"app_lip_sync"},
		"web_version":   {videoWebVersion},
		"da_version":    {DraftVersion},
	}

	job := domain.GenerationJob{
		Kind:          domain.JobVideo,
		Model:         modelOrDefault(req.Model, DefaultVideoModel),
		ProviderModel: model,
		Prompt:        req.Prompt,
		Width:         width,
		Height:        height,
	}
	slog.InfoContext(ctx, "動画生成を送信します",
		"credential_id", cred.ID,
		"model", job.Model,
		"root_model", rootModel,
		"width", width,
		"height", height,
		"resolution", resolution,
		"duration_ms", duration,
	)
	return s.submit(ctx, cred, job, uuid.NewString(), ext, metrics, d, params)
}

func (s *Submitter) imageDraft(componentID, generateType string, ab abilities) draft {
	features := []string{}
	return draft{
		node:            newNode("draft"),
		MinVersion:      DraftMinVersion,
		MinFeatures:     &features,
		IsFromTSN:       true,
		Version:         DraftVersion,
		MainComponentID: componentID,
		ComponentList: []component{{
			node:         node{Type: "image_base_component", ID: componentID},
			MinVersion:   DraftMinVersion,
			AigcMode:     aigcModeWorkbench,
			Metadata:     s.metadata(strconv.FormatInt(s.now().UnixMilli(), 10)),
			GenerateType: generateType,
			Abilities:    ab,
		}},
	}
}

func (s *Submitter) metadata(createdAt any) metadata {
	return metadata{
		node:            newNode(""),
		CreatedPlatform: createdPlatformWeb,
		CreatedTimeInMs: createdAt,
	}
}

func (s *Submitter) submit(ctx context.Context, cred domain.Credential, job domain.GenerationJob, submitID string, ext extend, metrics any, d draft, params url.Values) (domain.GenerationJob, error) {
	metricsJSON, err := json.Marshal(metrics)
	if err != nil {
		return domain.GenerationJob{}, fmt.Errorf("failed to encode metrics: %w", err)
	}
	draftJSON, err := json.Marshal(d)
	if err != nil {
		return domain.GenerationJob{}, fmt.Errorf("failed to encode draft: %w", err)
	}

	body := generateBody{
		Extend:         ext,
		SubmitID:       submitID,
		MetricsExtra:   string(metricsJSON),
		DraftContent:   string(draftJSON),
		HTTPCommonInfo: httpCommonInfo{Aid: signer.ProfileFor(cred.Region).AppID},
	}

	resp, err := s.caller.Call(ctx, cred, api.Request{
		Method: http.MethodPost,
		Path:   generatePath,
		Params: params,
		Data:   body,
	})
	if err != nil {
		return domain.GenerationJob{}, fmt.Errorf("failed to submit %s job: %w", job.Kind, err)
	}

	job.SubmissionID = submitID
	job.Status = domain.StatusSubmitted
	job.FreshCookies = resp.Cookies
	job.RemoteHistoryID = resp.Field("aigc_data.history_record_id").String()
	if job.RemoteHistoryID == "" {
		slog.WarnContext(ctx, "送信は成功しましたが履歴 ID が返りませんでした", "credential_id", cred.ID, "submit_id", submitID)
	}
	return job, nil
}

func newLargeImageInfo(r Resolution) largeImageInfo {
	return largeImageInfo{
		node:           newNode(""),
		Height:         r.Height,
		Width:          r.Width,
		ResolutionType: r.Type,
	}
}

func modelOrDefault(name, fallback string) string {
	if name == "" {
		return fallback
	}
	return name
}
