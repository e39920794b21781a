package camera

import (
	"errors"
	"io/fs"
	"syscall"

	"github.com/blackjack/webcam"

	"wcam/internal/wcam"
)

// fourcc は4文字コードをV4L2のピクセルフォーマット値に変換する
func fourcc(code string) webcam.PixelFormat {
	if len(code) != 4 {
		return 0
	}
	return webcam.PixelFormat(uint32(code[0]) |
		uint32(code[1])<<8 |
		uint32(code[2])<<16 |
		uint32(code[3])<<24)
}

// fourccString はピクセルフォーマット値を4文字コードに戻す
func fourccString(format webcam.PixelFormat) string {
	return string([]byte{
		byte(format),
		byte(format >> 8),
		byte(format >> 16),
		byte(format >> 24),
	})
}

// preferredFormats はネゴシエーションの優先順
// MJPGは帯域が軽く、YUYVはほぼ全デバイスが対応する
var preferredFormats = []webcam.PixelFormat{
	fourcc("MJPG"),
	fourcc("YUYV"),
}

// chooseFormat は対応フォーマットから使用するものを選ぶ
// 優先リストに該当がなければ解像度を持つ任意のフォーマットを使う
func chooseFormat(cam formatReader) (webcam.PixelFormat, bool) {
	supported := cam.GetSupportedFormats()

	for _, format := range preferredFormats {
		if _, ok := supported[format]; !ok {
			continue
		}
		if len(cam.GetSupportedFrameSizes(format)) > 0 {
			return format, true
		}
	}
	for format := range supported {
		if len(cam.GetSupportedFrameSizes(format)) > 0 {
			return format, true
		}
	}
	return 0, false
}

// formatReader はフォーマット問い合わせに必要な操作の抽出
// テストで *webcam.Webcam を差し替えるために切り出している
type formatReader interface {
	GetSupportedFormats() map[webcam.PixelFormat]string
	GetSupportedFrameSizes(f webcam.PixelFormat) []webcam.FrameSize
}

// frameSizesToResolutions はV4L2のフレームサイズ記述を解像度一覧に展開する
// 離散サイズはそのまま、範囲指定（stepwise）は最小と最大の角だけを公開する
func frameSizesToResolutions(sizes []webcam.FrameSize) []wcam.Resolution {
	var resolutions []wcam.Resolution
	for _, size := range sizes {
		if size.MinWidth == size.MaxWidth && size.MinHeight == size.MaxHeight {
			resolutions = append(resolutions, wcam.Resolution{
				Width:  int(size.MaxWidth),
				Height: int(size.MaxHeight),
			})
			continue
		}
		resolutions = append(resolutions,
			wcam.Resolution{Width: int(size.MinWidth), Height: int(size.MinHeight)},
			wcam.Resolution{Width: int(size.MaxWidth), Height: int(size.MaxHeight)},
		)
	}
	return resolutions
}

// nearestResolution は候補の中から要求に最も近い解像度を選ぶ
// 画素数の差で比較し、同差なら先に並ぶ候補を採用する
func nearestResolution(candidates []wcam.Resolution, want wcam.Resolution) (wcam.Resolution, bool) {
	if len(candidates) == 0 {
		return wcam.Resolution{}, false
	}

	best := candidates[0]
	bestDiff := pixelDiff(best, want)
	for _, candidate := range candidates[1:] {
		if diff := pixelDiff(candidate, want); diff < bestDiff {
			best = candidate
			bestDiff = diff
		}
	}
	return best, true
}

func pixelDiff(a, b wcam.Resolution) int {
	diff := a.PixelCount() - b.PixelCount()
	if diff < 0 {
		return -diff
	}
	return diff
}

// classifyOpenError はデバイスオープンの失敗を wcam.OpenError に分類する
// デバイスファイルの消失は抜かれたと解釈し、EBUSYは他プロセスの使用中とする
func classifyOpenError(err error) *wcam.OpenError {
	switch {
	case errors.Is(err, fs.ErrNotExist), errors.Is(err, syscall.ENODEV), errors.Is(err, syscall.ENXIO):
		return &wcam.OpenError{Reason: wcam.ErrorUnplugged, Err: err}
	case errors.Is(err, syscall.EBUSY):
		return &wcam.OpenError{Reason: wcam.ErrorAlreadyInUse, Err: err}
	default:
		return &wcam.OpenError{Reason: wcam.ErrorOther, Err: err}
	}
}
