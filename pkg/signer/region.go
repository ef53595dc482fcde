package signer

import "github.com/shouni/jimeng-image-kit/pkg/domain"

const (
	// BaseURL は両リージョン共通の Web API ホストです。
	BaseURL = "https://jimeng.jianying.com"

	AppIDDomestic      = 513695
	AppIDInternational = 513641

	// ImageGeneratePage と VideoGeneratePage は Referer に使う生成画面です。
	ImageGeneratePage = BaseURL + "/ai-tool/image/generate"
	VideoGeneratePage = BaseURL + "/ai-tool/video/generate"
)

// Profile はリージョンごとの接続パラメータです。
type Profile struct {
	Region  domain.Region
	AppID   int
	BaseURL string
}

// ProfileFor はリージョンに対応する Profile を返します。未知のリージョンは国内版として扱います。
func ProfileFor(region domain.Region) Profile {
	if region.IsInternational() {
		return Profile{Region: domain.RegionInternational, AppID: AppIDInternational, BaseURL: BaseURL}
	}
	return Profile{Region: domain.RegionDomestic, AppID: AppIDDomestic, BaseURL: BaseURL}
}

// RegionCode は Cookie とクエリに載せるリージョン文字列です。
func (p Profile) RegionCode() string {
	return string(p.Region)
}
