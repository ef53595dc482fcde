package submitter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/shouni/jimeng-image-kit/pkg/domain"
)

const historyBody = `{"ret":"0","data":{"aigc_data":{"history_record_id":"4711"}}}`

func fixedClock() time.Time { return time.UnixMilli(1_700_000_123_456) }

func newTestSubmitter(t *testing.T, caller *mockCaller) *Submitter {
	t.Helper()
	s, err := New(caller, WithClock(fixedClock), WithSeedSource(func() int64 { return 2_512_345_678 }))
	require.NoError(t, err)
	return s
}

func TestResolutionTable(t *testing.T) {
	for _, res := range resolutionOrder {
		for _, ratio := range ratioOrder {
			r, err := LookupResolution(res, ratio)
			require.NoError(t, err, "%s %s", res, ratio)
			assert.Positive(t, r.Width)
			assert.Positive(t, r.Height)
			assert.Zero(t, r.Width%2, "%s %s width must be even", res, ratio)
			assert.Zero(t, r.Height%2, "%s %s height must be even", res, ratio)
			assert.Equal(t, res, r.Type)
		}
	}

	t.Run("未知の解像度は対応一覧付きのエラー", func(t *testing.T) {
		_, err := LookupResolution("8k", "1:1")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "1k, 2k, 4k")
	})

	t.Run("未知の比率", func(t *testing.T) {
		_, err := LookupResolution("2k", "5:4")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "21:9")
	})

	t.Run("幅と高さから比率を求める", func(t *testing.T) {
		r, err := ResolveImageSize(domain.Options{Width: 1920, Height: 1080})
		require.NoError(t, err)
		assert.Equal(t, 2560, r.Width)
		assert.Equal(t, 3, r.ImageRatio)
		assert.Equal(t, "2k", r.Type)
	})

	t.Run("既定は 2k の 1:1", func(t *testing.T) {
		r, err := ResolveImageSize(domain.Options{})
		require.NoError(t, err)
		assert.Equal(t, Resolution{Width: 2048, Height: 2048, ImageRatio: 1, Type: "2k"}, r)
	})
}

func TestResolveImageModel(t *testing.T) {
	tests := []struct {
		name    string
		model   string
		region  domain.Region
		want    string
		wantErr bool
	}{
		{"国内版の既定", "", domain.RegionDomestic, "high_aes_general_v40", false},
		{"国内版の既知モデル", "jimeng-xl-pro", domain.RegionDomestic, "text2img_xl_sft", false},
		{"国内版の未知モデルは既定に戻る", "unknown", domain.RegionDomestic, "high_aes_general_v40", false},
		{"国際版の nanobanana", "nanobanana", domain.RegionInternational, "external_model_gemini_flash_image_v25", false},
		{"国際版の未知モデルはエラー", "jimeng-2.1", domain.RegionInternational, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveImageModel(tt.model, tt.region)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	assert.Equal(t, "dreamina_ic_generate_video_model_vgfm_lite", ResolveVideoModel("jimeng-video-2.0"))
	assert.Equal(t, "dreamina_ic_generate_video_model_vgfm_3.0", ResolveVideoModel("nope"))
}

func TestSubmitter_SubmitImage(t *testing.T) {
	ctx := context.Background()
	cred := domain.NewCredential(1, "alice", "tok")

	t.Run("ドラフトの形と履歴 ID", func(t *testing.T) {
		caller := &mockCaller{body: historyBody, cookies: []domain.Cookie{{Name: "sessionid", Value: "fresh"}}}
		s := newTestSubmitter(t, caller)

		job, err := s.SubmitImage(ctx, cred, domain.ImageRequest{
			Model:  "jimeng-3.0",
			Prompt: "a cat",
			Options: domain.Options{
				Ratio:          "16:9",
				Resolution:     "1k",
				NegativePrompt: "blurry",
			},
		})
		require.NoError(t, err)

		assert.Equal(t, "4711", job.RemoteHistoryID)
		assert.Equal(t, domain.StatusSubmitted, job.Status)
		assert.Equal(t, domain.JobImage, job.Kind)
		assert.Equal(t, 1664, job.Width)
		assert.Equal(t, 936, job.Height)
		assert.Len(t, job.FreshCookies, 1)
		assert.Equal(t, generatePath, caller.last.Path)

		body := caller.sent()
		assert.Equal(t, "high_aes_general_v30l:general_v3.0_18b", body.Extend.RootModel)
		assert.Equal(t, 513695, body.HTTPCommonInfo.Aid)
		assert.Equal(t, job.SubmissionID, body.SubmitID)

		d := gjson.Parse(body.DraftContent)
		assert.Equal(t, "draft", d.Get("type").String())
		assert.Equal(t, "3.3.2", d.Get("version").String())
		assert.Equal(t, "3.0.5", d.Get("min_version").String())
		assert.True(t, d.Get("min_features").IsArray())
		assert.True(t, d.Get("is_from_tsn").Bool())

		comp := d.Get("component_list.0")
		assert.Equal(t, d.Get("main_component_id").String(), comp.Get("id").String())
		assert.Equal(t, "generate", comp.Get("generate_type").String())
		assert.Equal(t, gjson.String, comp.Get("metadata.created_time_in_ms").Type)
		assert.Equal(t, "1700000123456", comp.Get("metadata.created_time_in_ms").String())

		core := comp.Get("abilities.generate.core_param")
		assert.Equal(t, "a cat", core.Get("prompt").String())
		assert.Equal(t, "blurry", core.Get("negative_prompt").String())
		assert.Equal(t, int64(2_512_345_678), core.Get("seed").Int())
		assert.Equal(t, 0.5, core.Get("sample_strength").Float())
		assert.Equal(t, int64(3), core.Get("image_ratio").Int())
		assert.Equal(t, "1k", core.Get("large_image_info.resolution_type").String())
		assert.False(t, core.Get("intelligent_ratio").Bool())
		assert.True(t, core.Get("id").Exists())
		assert.Equal(t, "", core.Get("type").String())

		m := gjson.Parse(body.MetricsExtra)
		assert.Equal(t, "custom", m.Get("promptSource").String())
		assert.Equal(t, int64(1), m.Get("generateCount").Int())
	})

	t.Run("指定したシードを使う", func(t *testing.T) {
		caller := &mockCaller{body: historyBody}
		s := newTestSubmitter(t, caller)
		seed := int64(42)

		_, err := s.SubmitImage(ctx, cred, domain.ImageRequest{Prompt: "x", Options: domain.Options{Seed: &seed}})
		require.NoError(t, err)
		assert.Equal(t, int64(42), gjson.Get(caller.sent().DraftContent, "component_list.0.abilities.generate.core_param.seed").Int())
	})

	t.Run("国際版は別の aid", func(t *testing.T) {
		caller := &mockCaller{body: `{"aigc_data":{"history_record_id":"9"}}`}
		s := newTestSubmitter(t, caller)

		job, err := s.SubmitImage(ctx, domain.NewCredential(2, "bob", "us-tok"), domain.ImageRequest{Model: "nanobanana", Prompt: "x"})
		require.NoError(t, err)
		assert.Equal(t, "9", job.RemoteHistoryID, "top-level aigc_data is accepted")
		assert.Equal(t, 513641, caller.sent().HTTPCommonInfo.Aid)
	})

	t.Run("履歴 ID が無くてもエラーにしない", func(t *testing.T) {
		s := newTestSubmitter(t, &mockCaller{body: `{"ret":"0","data":{}}`})
		job, err := s.SubmitImage(ctx, cred, domain.ImageRequest{Prompt: "x"})
		require.NoError(t, err)
		assert.Empty(t, job.RemoteHistoryID)
		assert.NotEmpty(t, job.SubmissionID)
	})

	t.Run("入力エラー", func(t *testing.T) {
		s := newTestSubmitter(t, &mockCaller{body: historyBody})
		_, err := s.SubmitImage(ctx, cred, domain.ImageRequest{})
		assert.Error(t, err)
		_, err = s.SubmitImage(ctx, cred, domain.ImageRequest{Prompt: "x", Options: domain.Options{Resolution: "8k"}})
		assert.Error(t, err)
	})

	t.Run("送信エラーを包む", func(t *testing.T) {
		s := newTestSubmitter(t, &mockCaller{err: &domain.TransportError{Err: errors.New("eof")}})
		_, err := s.SubmitImage(ctx, cred, domain.ImageRequest{Prompt: "x"})
		assert.True(t, domain.IsRetryable(err))
	})
}

func TestSubmitter_SubmitComposite(t *testing.T) {
	caller := &mockCaller{body: historyBody}
	s := newTestSubmitter(t, caller)

	job, err := s.SubmitComposite(context.Background(), domain.NewCredential(1, "alice", "tok"),
		domain.CompositeRequest{Prompt: "merge"}, []string{"tos/a", "tos/b"})
	require.NoError(t, err)
	assert.Equal(t, domain.JobComposite, job.Kind)

	body := caller.sent()
	blend := gjson.Get(body.DraftContent, "component_list.0.abilities.blend")
	assert.Equal(t, "blend", gjson.Get(body.DraftContent, "component_list.0.generate_type").String())
	assert.Equal(t, "##merge", blend.Get("core_param.prompt").String())
	assert.False(t, blend.Get("core_param.seed").Exists())
	assert.False(t, blend.Get("core_param.negative_prompt").Exists())
	assert.Len(t, blend.Get("ability_list").Array(), 2)
	assert.Equal(t, "byte_edit", blend.Get("ability_list.0.name").String())
	assert.Equal(t, "tos/b", blend.Get("ability_list.1.image_uri_list.0").String())
	assert.Equal(t, "upload", blend.Get("ability_list.1.image_list.0.source_from").String())
	assert.Equal(t, int64(1), blend.Get("prompt_placeholder_info_list.1.ability_index").Int())
	assert.Equal(t, int64(0), blend.Get("postedit_param.generate_type").Int())
	assert.Equal(t, body.SubmitID, gjson.Get(body.MetricsExtra, "generateId").String())

	_, err = s.SubmitComposite(context.Background(), domain.NewCredential(1, "alice", "tok"), domain.CompositeRequest{Prompt: "x"}, nil)
	assert.Error(t, err)
}

func TestSubmitter_SubmitVideo(t *testing.T) {
	ctx := context.Background()
	cred := domain.NewCredential(1, "alice", "tok")

	t.Run("テキストのみ", func(t *testing.T) {
		caller := &mockCaller{body: historyBody}
		s := newTestSubmitter(t, caller)

		job, err := s.SubmitVideo(ctx, cred, domain.VideoRequest{Model: "jimeng-video-2.0", Prompt: "waves"}, VideoFrames{})
		require.NoError(t, err)
		assert.Equal(t, domain.JobVideo, job.Kind)
		assert.Equal(t, 1024, job.Width)

		assert.Equal(t, "6.6.0", caller.last.Params.Get("web_version"))
		assert.Equal(t, "3.3.2", caller.last.Params.Get("da_version"))

		body := caller.sent()
		assert.Equal(t, "dreamina_ic_generate_video_model_vgfm_lite", body.Extend.RootModel)
		require.NotNil(t, body.Extend.MVideoCommerceInfo)
		assert.Equal(t, "basic_video_operation_vgfm_v_three", body.Extend.MVideoCommerceInfo.BenefitType)
		assert.Len(t, body.Extend.MVideoCommerceInfoList, 1)

		d := gjson.Parse(body.DraftContent)
		assert.False(t, d.Get("min_features").Exists())
		comp := d.Get("component_list.0")
		assert.Equal(t, "video_base_component", comp.Get("type").String())
		assert.Equal(t, "1.0.0", comp.Get("min_version").String())
		assert.Equal(t, gjson.Number, comp.Get("metadata.created_time_in_ms").Type)

		params := comp.Get("abilities.gen_video.text_to_video_params")
		assert.Equal(t, "1:1", params.Get("video_aspect_ratio").String())
		assert.Equal(t, int64(1_700_000_123_456%100_000_000+2_500_000_000), params.Get("seed").Int())
		in := params.Get("video_gen_inputs.0")
		assert.Equal(t, int64(5000), in.Get("duration_ms").Int())
		assert.Equal(t, "720p", in.Get("resolution").String())
		assert.Equal(t, int64(24), in.Get("fps").Int())
		assert.Equal(t, int64(2), in.Get("video_mode").Int())
		assert.Equal(t, gjson.Null, in.Get("first_frame_image").Type)
		assert.Equal(t, gjson.Null, in.Get("end_frame_image").Type)

		extra := comp.Get("abilities.gen_video.video_task_extra").String()
		assert.Equal(t, body.MetricsExtra, extra)
		assert.Equal(t, int64(1), gjson.Get(extra, "isDefaultSeed").Int())
	})

	t.Run("末尾フレームがあれば 3.0 のルートモデル", func(t *testing.T) {
		caller := &mockCaller{body: historyBody}
		s := newTestSubmitter(t, caller)

		_, err := s.SubmitVideo(ctx, cred, domain.VideoRequest{
			Model:   "jimeng-video-3.0-pro",
			Prompt:  "morph",
			Options: domain.Options{Width: 1280, Height: 720, DurationMs: 10000},
		}, VideoFrames{First: "tos/first", Last: "tos/last"})
		require.NoError(t, err)

		body := caller.sent()
		assert.Equal(t, "dreamina_ic_generate_video_model_vgfm_3.0", body.Extend.RootModel)
		params := gjson.Get(body.DraftContent, "component_list.0.abilities.gen_video.text_to_video_params")
		assert.Equal(t, "dreamina_ic_generate_video_model_vgfm_3.0_pro", params.Get("model_req_key").String())
		assert.Equal(t, "16:9", params.Get("video_aspect_ratio").String())
		in := params.Get("video_gen_inputs.0")
		assert.Equal(t, "tos/first", in.Get("first_frame_image.image_uri").String())
		assert.Equal(t, int64(1280), in.Get("first_frame_image.width").Int())
		assert.Equal(t, "tos/last", in.Get("end_frame_image.uri").String())
		assert.Equal(t, "image", in.Get("end_frame_image.type").String())
	})

	t.Run("プロンプトもフレームも無ければエラー", func(t *testing.T) {
		s := newTestSubmitter(t, &mockCaller{body: historyBody})
		_, err := s.SubmitVideo(ctx, cred, domain.VideoRequest{}, VideoFrames{})
		assert.Error(t, err)
	})
}
