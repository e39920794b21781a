package wcam

import (
	"fmt"
	"sort"
)

// Resolution はキャプチャ解像度を表す不変の値
type Resolution struct {
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`
}

// PixelCount は総画素数を返す
func (r Resolution) PixelCount() int {
	return r.Width * r.Height
}

// String は "幅x高さ" 形式の文字列を返す
func (r Resolution) String() string {
	return fmt.Sprintf("%dx%d", r.Width, r.Height)
}

// rankHigher は解像度の既定順序を定義する
// 画素数の多い順、同数の場合は幅の大きい順
func rankHigher(a, b Resolution) bool {
	if a.PixelCount() != b.PixelCount() {
		return a.PixelCount() > b.PixelCount()
	}
	return a.Width > b.Width
}

// sortResolutions は解像度を既定順序でソートし、重複を取り除く
func sortResolutions(resolutions []Resolution) []Resolution {
	sorted := make([]Resolution, len(resolutions))
	copy(sorted, resolutions)

	sort.Slice(sorted, func(i, j int) bool {
		return rankHigher(sorted[i], sorted[j])
	})

	// ソート済みのため、隣接する重複のみ取り除けばよい
	deduped := sorted[:0]
	for _, res := range sorted {
		if len(deduped) > 0 && deduped[len(deduped)-1] == res {
			continue
		}
		deduped = append(deduped, res)
	}

	return deduped
}

// DeviceID は物理デバイスを識別する安定したキー
// 同じデバイスなら抜き差しを挟んでも同じ値になる
type DeviceID string

// NewDeviceID はデバイスパスからDeviceIDを導出する
// パスが取得できないデバイスは表示名にフォールバックする
func NewDeviceID(devicePath, friendlyName string) DeviceID {
	if devicePath != "" {
		return DeviceID(devicePath)
	}
	return DeviceID(friendlyName)
}

// String はDeviceIDの文字列表現を返す
func (id DeviceID) String() string {
	return string(id)
}

// Info は列挙されたデバイスの情報を表す
// 列挙のたびに新しく生成され、永続化はされない
type Info struct {
	Name        string       `json:"name"`
	ID          DeviceID     `json:"id"`
	Resolutions []Resolution `json:"resolutions"` // 既定順序でソート・重複排除済み
}
