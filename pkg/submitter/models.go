package submitter

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shouni/jimeng-image-kit/pkg/domain"
)

const (
	DefaultImageModel = "jimeng-4.0"
	DefaultVideoModel = "jimeng-video-3.0"
)

var domesticImageModels = map[string]string{
	"jimeng-4.0":     "high_aes_general_v40",
	"jimeng-3.1":     "high_aes_general_v30l_art_fangzhou:general_v3.0_18b",
	"jimeng-3.0":     "high_aes_general_v30l:general_v3.0_18b",
	"jimeng-2.1":     "high_aes_general_v21_L:general_v2.1_L",
	"jimeng-2.0-pro": "high_aes_general_v20_L:general_v2.0_L",
	"jimeng-2.0":     "high_aes_general_v20:general_v2.0",
	"jimeng-1.4":     "high_aes_general_v14:general_v1.4",
	"jimeng-xl-pro":  "text2img_xl_sft",
}

var internationalImageModels = map[string]string{
	"jimeng-4.0": "high_aes_general_v40",
	"jimeng-3.0": "high_aes_general_v30l:general_v3.0_18b",
	"nanobanana": "external_model_gemini_flash_image_v25",
}

var videoModels = map[string]string{
	"jimeng-video-3.0":     "dreamina_ic_generate_video_model_vgfm_3.0",
	"jimeng-video-3.0-pro": "dreamina_ic_generate_video_model_vgfm_3.0_pro",
	"jimeng-video-2.0":     "dreamina_ic_generate_video_model_vgfm_lite",
	"jimeng-video-2.0-pro": "dreamina_ic_generate_video_model_vgfm1.0",
}

// ResolveImageModel は公開モデル名をプロバイダーのモデルキーに変換します。
// 国内版は未知の名前を既定モデルに戻し、国際版はエラーにします。
func ResolveImageModel(name string, region domain.Region) (string, error) {
	if name == "" {
		name = DefaultImageModel
	}
	if region.IsInternational() {
		if key, ok := internationalImageModels[name]; ok {
			return key, nil
		}
		return "", fmt.Errorf("model %q is not available in region %s (supported: %s)", name, region, strings.Join(modelNames(internationalImageModels), ", "))
	}
	if key, ok := domesticImageModels[name]; ok {
		return key, nil
	}
	return domesticImageModels[DefaultImageModel], nil
}

// ResolveVideoModel は動画モデル名を変換します。未知の名前は既定モデルです。
func ResolveVideoModel(name string) string {
	if key, ok := videoModels[name]; ok {
		return key
	}
	return videoModels[DefaultVideoModel]
}

func modelNames(m map[string]string) []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
