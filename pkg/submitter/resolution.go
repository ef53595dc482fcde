package submitter

import (
	"fmt"
	"strings"

	"github.com/shouni/jimeng-image-kit/pkg/domain"
	"github.com/shouni/jimeng-image-kit/pkg/utils"
)

// Resolution は解像度プリセットと比率から決まる出力サイズです。
type Resolution struct {
	Width      int
	Height     int
	ImageRatio int
	Type       string
}

var (
	resolutionOrder = []string{"1k", "2k", "4k"}
	ratioOrder      = []string{"1:1", "4:3", "3:4", "16:9", "9:16", "3:2", "2:3", "21:9"}
)

var resolutionTable = map[string]map[string]Resolution{
	"1k": {
		"1:1":  {Width: 1328, Height: 1328, ImageRatio: 1},
		"4:3":  {Width: 1472, Height: 1104, ImageRatio: 4},
		"3:4":  {Width: 1104, Height: 1472, ImageRatio: 2},
		"16:9": {Width: 1664, Height: 936, ImageRatio: 3},
		"9:16": {Width: 936, Height: 1664, ImageRatio: 5},
		"3:2":  {Width: 1584, Height: 1056, ImageRatio: 7},
		"2:3":  {Width: 1056, Height: 1584, ImageRatio: 6},
		"21:9": {Width: 2016, Height: 864, ImageRatio: 8},
	},
	"2k": {
		"1:1":  {Width: 2048, Height: 2048, ImageRatio: 1},
		"4:3":  {Width: 2304, Height: 1728, ImageRatio: 4},
		"3:4":  {Width: 1728, Height: 2304, ImageRatio: 2},
		"16:9": {Width: 2560, Height: 1440, ImageRatio: 3},
		"9:16": {Width: 1440, Height: 2560, ImageRatio: 5},
		"3:2":  {Width: 2496, Height: 1664, ImageRatio: 7},
		"2:3":  {Width: 1664, Height: 2496, ImageRatio: 6},
		"21:9": {Width: 3024, Height: 1296, ImageRatio: 8},
	},
	"4k": {
		"1:1":  {Width: 4096, Height: 4096, ImageRatio: 101},
		"4:3":  {Width: 4608, Height: 3456, ImageRatio: 104},
		"3:4":  {Width: 3456, Height: 4608, ImageRatio: 102},
		"16:9": {Width: 5120, Height: 2880, ImageRatio: 103},
		"9:16": {Width: 2880, Height: 5120, ImageRatio: 105},
		"3:2":  {Width: 4992, Height: 3328, ImageRatio: 107},
		"2:3":  {Width: 3328, Height: 4992, ImageRatio: 106},
		"21:9": {Width: 6048, Height: 2592, ImageRatio: 108},
	},
}

// LookupResolution はプリセット表からサイズを引きます。
func LookupResolution(resolution, ratio string) (Resolution, error) {
	group, ok := resolutionTable[resolution]
	if !ok {
		return Resolution{}, fmt.Errorf("unsupported resolution %q (supported: %s)", resolution, strings.Join(resolutionOrder, ", "))
	}
	r, ok := group[ratio]
	if !ok {
		return Resolution{}, fmt.Errorf("unsupported ratio %q for resolution %q (supported: %s)", ratio, resolution, strings.Join(ratioOrder, ", "))
	}
	r.Type = resolution
	return r, nil
}

// ResolveImageSize はオプションから出力サイズを決めます。
// 幅と高さが指定されていれば約分した比率と 2k で引き直します。
func ResolveImageSize(opts domain.Options) (Resolution, error) {
	if opts.Width > 0 && opts.Height > 0 {
		return LookupResolution(domain.DefaultResolution, utils.SimplifyRatio(opts.Width, opts.Height))
	}
	resolution := opts.Resolution
	if resolution == "" {
		resolution = domain.DefaultResolution
	}
	ratio := opts.Ratio
	if ratio == "" {
		ratio = domain.DefaultRatio
	}
	return LookupResolution(resolution, ratio)
}
