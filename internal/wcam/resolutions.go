package wcam

import (
	"sync"
)

// ResolutionsManager はデバイスごとに選択された解像度を保持する
//
// このテーブルはManagerの寿命から意図的に切り離されている
// ユーザーの選択はキャプチャセッションやManagerの再起動をまたいで
// 保持され、デバイスが抜かれてもエントリは無効化されない
type ResolutionsManager struct {
	mu       sync.Mutex
	selected map[DeviceID]Resolution

	// 既定解像度の問い合わせと再起動要求の送り先
	// Managerが接続されていない間はnil
	manager *Manager
}

// NewResolutionsManager は独立したResolutionsManagerを作成する
// 通常はプロセス共有のResolutions()を使う
func NewResolutionsManager() *ResolutionsManager {
	return &ResolutionsManager{
		selected: make(map[DeviceID]Resolution),
	}
}

var (
	resolutionsOnce     sync.Once
	resolutionsInstance *ResolutionsManager
)

// Resolutions はプロセス共有のResolutionsManagerを返す
// 遅延初期化され、プログラム終了まで生存する
func Resolutions() *ResolutionsManager {
	resolutionsOnce.Do(func() {
		resolutionsInstance = NewResolutionsManager()
	})
	return resolutionsInstance
}

// SelectedResolution は指定デバイスに対して使用すべき解像度を返す
// 明示的に選択された値があればそれを、なければManagerの既定解像度を返す
func (rm *ResolutionsManager) SelectedResolution(id DeviceID) Resolution {
	rm.mu.Lock()
	resolution, ok := rm.selected[id]
	manager := rm.manager
	rm.mu.Unlock()

	if ok {
		return resolution
	}
	if manager != nil {
		return manager.DefaultResolution(id)
	}
	return Resolution{Width: 1, Height: 1}
}

// SetSelectedResolution は指定デバイスの解像度を選択する
//
// 既に同じ値が選択されている場合は何もしない（不要な再起動を避ける）
// 値が変わった場合は保存し、生存中のキャプチャがあれば再起動を要求する
// 新しい解像度は次のループティック以降に反映される
func (rm *ResolutionsManager) SetSelectedResolution(id DeviceID, resolution Resolution) {
	rm.mu.Lock()
	if current, ok := rm.selected[id]; ok && current == resolution {
		rm.mu.Unlock()
		return
	}
	rm.selected[id] = resolution
	manager := rm.manager
	rm.mu.Unlock()

	if manager != nil {
		manager.RequestRestart(id)
	}
}

// attach はManagerを接続する
func (rm *ResolutionsManager) attach(m *Manager) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.manager = m
}

// detach はManagerの接続を解除する
// 別のManagerが既に接続し直している場合は何もしない
func (rm *ResolutionsManager) detach(m *Manager) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if rm.manager == m {
		rm.manager = nil
	}
}
