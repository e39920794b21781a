package wcam

import (
	"sync"
)

// Request は1つのデバイスに対するキャプチャリクエストを表す可変セル
// Managerのループと全てのSharedWebcamハンドルが共同で所有する
type Request struct {
	id DeviceID

	mu    sync.Mutex
	state CaptureState
	alive bool // 最後のハンドルが閉じられるとfalseになる

	// refs はこのリクエストを参照しているハンドル数
	// Managerのレジストリロックで保護される
	refs int
}

// newRequest は初期状態のリクエストを作成する
func newRequest(id DeviceID) *Request {
	return &Request{
		id:    id,
		state: StateNotInitialized{},
		alive: true,
	}
}

// ID はリクエスト対象のデバイスIDを返す
func (r *Request) ID() DeviceID {
	return r.id
}

// State は現在のキャプチャ状態のスナップショットを返す
func (r *Request) State() CaptureState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Image は最新フレームを取り出す
// キャプチャが動作中でなければ現在の状態に応じたマーカーを返す
func (r *Request) Image() MaybeImage {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch s := r.state.(type) {
	case StateActive:
		return s.Session.Image()
	case StateError:
		return MaybeImage{Status: ImageError, Reason: s.Reason, Message: s.Message}
	default:
		return MaybeImage{Status: ImageNotInitialized}
	}
}

// isAlive はまだハンドルに所有されているかを返す
func (r *Request) isAlive() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.alive
}

// isActive はキャプチャが動作中かを返す
func (r *Request) isActive() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.state.(StateActive)
	return ok
}

// replaceState は状態を置き換え、置き換えられた側のセッションを閉じる
// 死んだリクエストには何もしない
func (r *Request) replaceState(next CaptureState) {
	r.mu.Lock()
	if !r.alive {
		r.mu.Unlock()
		return
	}
	old := r.state
	r.state = next
	r.mu.Unlock()

	// セッションの解放はロックの外で行う（Closeはバックエンド依存の時間がかかる）
	closeIfActive(old)
}

// setError はエラー状態へ遷移させる
func (r *Request) setError(state StateError) {
	r.replaceState(state)
}

// reset は初期状態へ戻し、次のティックで再オープンさせる
func (r *Request) reset() {
	r.replaceState(StateNotInitialized{})
}

// adopt はオープンに成功したセッションを取り付ける
// 全ハンドルが閉じられた後に完了したオープンは、セッションを即座に破棄する
func (r *Request) adopt(session Session) {
	r.mu.Lock()
	if !r.alive {
		r.mu.Unlock()
		_ = session.Close()
		return
	}
	old := r.state
	r.state = StateActive{Session: session, Resolution: session.Resolution()}
	r.mu.Unlock()

	closeIfActive(old)
}

// kill は最後のハンドルが閉じられたときに呼ばれ、セッションを同期的に解放する
func (r *Request) kill() {
	r.mu.Lock()
	old := r.state
	r.alive = false
	r.state = StateNotInitialized{}
	r.mu.Unlock()

	closeIfActive(old)
}

// closeIfActive は状態が動作中セッションを保持していた場合に閉じる
func closeIfActive(state CaptureState) {
	if active, ok := state.(StateActive); ok && active.Session != nil {
		_ = active.Session.Close()
	}
}

// SharedWebcam はコンシューマ向けのカメラハンドル
// 同じデバイスへのハンドルは全て同一のRequestを共有する
type SharedWebcam struct {
	manager   *Manager
	request   *Request
	closeOnce sync.Once
}

// ID は対象デバイスのIDを返す
func (w *SharedWebcam) ID() DeviceID {
	return w.request.id
}

// Image は最新フレームを取り出す
// ブロックせず、新着フレームがなければマーカーを返す
// バックグラウンドループと並行して呼び出してよい
func (w *SharedWebcam) Image() MaybeImage {
	return w.request.Image()
}

// State は現在のキャプチャ状態のスナップショットを返す
func (w *SharedWebcam) State() CaptureState {
	return w.request.State()
}

// Close はハンドルの参照を解放する
// このデバイスへの最後のハンドルだった場合、キャプチャセッションを
// 同期的に解放し、Managerのレジストリから取り除く
// 複数回呼び出しても安全
func (w *SharedWebcam) Close() error {
	w.closeOnce.Do(func() {
		w.manager.releaseRequest(w.request)
	})
	return nil
}
