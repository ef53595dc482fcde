package submitter

import "github.com/google/uuid"

const (
	DraftVersion        = "3.3.2"
	DraftMinVersion     = "3.0.5"
	videoComponentMinV  = "1.0.0"
	createdPlatformWeb  = 3
	aigcModeWorkbench   = "workbench"
	uploadSourceFrom    = "upload"
	uploadPlatformType  = 1
	defaultAbilityScale = 0.5
	videoFPS            = 24
	videoModeDefault    = 2
)

// node はドラフト内のすべての要素が持つ type と id です。
type node struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

func newNode(typ string) node {
	return node{Type: typ, ID: uuid.NewString()}
}

type draft struct {
	node
	MinVersion      string      `json:"min_version"`
	MinFeatures     *[]string   `json:"min_features,omitempty"`
	IsFromTSN       bool        `json:"is_from_tsn"`
	Version         string      `json:"version"`
	MainComponentID string      `json:"main_component_id"`
	ComponentList   []component `json:"component_list"`
}

type component struct {
	node
	MinVersion   string    `json:"min_version"`
	AigcMode     string    `json:"aigc_mode"`
	Metadata     metadata  `json:"metadata"`
	GenerateType string    `json:"generate_type"`
	Abilities    abilities `json:"abilities"`
}

// metadata の created_time_in_ms は画像では文字列、動画では数値で送ります。
type metadata struct {
	node
	CreatedPlatform        int    `json:"created_platform"`
	CreatedPlatformVersion string `json:"created_platform_version"`
	CreatedTimeInMs        any    `json:"created_time_in_ms"`
	CreatedDid             string `json:"created_did"`
}

type abilities struct {
	node
	Generate *generateAbility `json:"generate,omitempty"`
	Blend    *blendAbility    `json:"blend,omitempty"`
	GenVideo *genVideoAbility `json:"gen_video,omitempty"`
}

type generateAbility struct {
	node
	CoreParam coreParam `json:"core_param"`
}

type coreParam struct {
	node
	Model            string         `json:"model"`
	Prompt           string         `json:"prompt"`
	NegativePrompt   *string        `json:"negative_prompt,omitempty"`
	Seed             *int64         `json:"seed,omitempty"`
	SampleStrength   float64        `json:"sample_strength"`
	ImageRatio       int            `json:"image_ratio"`
	LargeImageInfo   largeImageInfo `json:"large_image_info"`
	IntelligentRatio bool           `json:"intelligent_ratio"`
}

type largeImageInfo struct {
	node
	Height         int    `json:"height"`
	Width          int    `json:"width"`
	ResolutionType string `json:"resolution_type"`
}

type blendAbility struct {
	node
	MinFeatures               []string       `json:"min_features"`
	CoreParam                 coreParam      `json:"core_param"`
	AbilityList               []abilityEntry `json:"ability_list"`
	PromptPlaceholderInfoList []placeholder  `json:"prompt_placeholder_info_list"`
	PostEditParam             postEditParam  `json:"postedit_param"`
}

type abilityEntry struct {
	node
	Name         string     `json:"name"`
	ImageURIList []string   `json:"image_uri_list"`
	ImageList    []imageRef `json:"image_list"`
	Strength     float64    `json:"strength"`
}

// imageRef はアップロード済み画像への参照です。合成の入力と動画のフレームで共用します。
type imageRef struct {
	node
	SourceFrom   string `json:"source_from"`
	PlatformType int    `json:"platform_type"`
	Name         string `json:"name"`
	ImageURI     string `json:"image_uri"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	Format       string `json:"format"`
	URI          string `json:"uri"`
}

func newImageRef(uri string, width, height int) *imageRef {
	return &imageRef{
		node:         newNode("image"),
		SourceFrom:   uploadSourceFrom,
		PlatformType: uploadPlatformType,
		ImageURI:     uri,
		Width:        width,
		Height:       height,
		URI:          uri,
	}
}

type placeholder struct {
	node
	AbilityIndex int `json:"ability_index"`
}

type postEditParam struct {
	node
	GenerateType int `json:"generate_type"`
}

type genVideoAbility struct {
	node
	TextToVideoParams textToVideoParams `json:"text_to_video_params"`
	VideoTaskExtra    string            `json:"video_task_extra"`
}

type textToVideoParams struct {
	node
	ModelReqKey      string          `json:"model_req_key"`
	Priority         int             `json:"priority"`
	Seed             int64           `json:"seed"`
	VideoAspectRatio string          `json:"video_aspect_ratio"`
	VideoGenInputs   []videoGenInput `json:"video_gen_inputs"`
}

// videoGenInput のフレームは未指定なら null で送ります。
type videoGenInput struct {
	node
	DurationMs      int       `json:"duration_ms"`
	FirstFrameImage *imageRef `json:"first_frame_image"`
	EndFrameImage   *imageRef `json:"end_frame_image"`
	Fps             int       `json:"fps"`
	MinVersion      string    `json:"min_version"`
	Prompt          string    `json:"prompt"`
	Resolution      string    `json:"resolution"`
	VideoMode       int       `json:"video_mode"`
}

// imageMetrics は画像生成の metrics_extra です。
type imageMetrics struct {
	PromptSource  string `json:"promptSource"`
	GenerateCount int    `json:"generateCount"`
	EnterFrom     string `json:"enterFrom"`
	GenerateID    string `json:"generateId"`
	IsRegenerate  bool   `json:"isRegenerate"`
}

// videoMetrics は動画生成の metrics_extra と video_task_extra です。
type videoMetrics struct {
	EnterFrom      string `json:"enterFrom"`
	IsDefaultSeed  int    `json:"isDefaultSeed"`
	PromptSource   string `json:"promptSource"`
	IsRegenerate   bool   `json:"isRegenerate"`
	OriginSubmitID string `json:"originSubmitId"`
}

type commerceInfo struct {
	BenefitType     string `json:"benefit_type"`
	ResourceID      string `json:"resource_id"`
	ResourceIDType  string `json:"resource_id_type"`
	ResourceSubType string `json:"resource_sub_type"`
}

var videoCommerceInfo = commerceInfo{
	BenefitType:     "basic_video_operation_vgfm_v_three",
	ResourceID:      "generate_video",
	ResourceIDType:  "str",
	ResourceSubType: "aigc",
}

type extend struct {
	RootModel              string         `json:"root_model"`
	MVideoCommerceInfo     *commerceInfo  `json:"m_video_commerce_info,omitempty"`
	MVideoCommerceInfoList []commerceInfo `json:"m_video_commerce_info_list,omitempty"`
}

type httpCommonInfo struct {
	Aid int `json:"aid"`
}

// generateBody は aigc_draft/generate の本文です。
// metrics_extra と draft_content は JSON 文字列として埋め込みます。
type generateBody struct {
	Extend         extend         `json:"extend"`
	SubmitID       string         `json:"submit_id"`
	MetricsExtra   string         `json:"metrics_extra"`
	DraftContent   string         `json:"draft_content"`
	HTTPCommonInfo httpCommonInfo `json:"http_common_info"`
}
