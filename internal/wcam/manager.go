package wcam

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"
)

// Manager はデバイスの列挙と全リクエストのキャプチャ状態を駆動する
//
// 1つのManagerにつき1つのバックグラウンドゴルーチンがポーリングループを
// 実行する。他の全ての操作は任意のゴルーチンから呼び出してよく、
// ループと任意の時点で交錯しても安全である
type Manager struct {
	backend     Backend
	resolutions *ResolutionsManager

	// ポーリングの最小間隔。0の場合は列挙コストのみが自然なスロットルになる
	pollInterval time.Duration

	// 最新の列挙スナップショット
	infosMu sync.RWMutex
	infos   []Info

	// デバイスIDから生存中リクエストへのレジストリ
	// ポインタの登録・削除のみに使い、バックエンド呼び出し中は保持しない
	requestsMu sync.Mutex
	requests   map[DeviceID]*Request

	// 制御用
	runMu   sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewManager は新しいManagerを作成する
// resolutionsがnilの場合はプロセス共有のResolutionsManagerを使用する
func NewManager(backend Backend, resolutions *ResolutionsManager, pollInterval time.Duration) *Manager {
	if resolutions == nil {
		resolutions = Resolutions()
	}
	m := &Manager{
		backend:      backend,
		resolutions:  resolutions,
		pollInterval: pollInterval,
		requests:     make(map[DeviceID]*Request),
	}
	resolutions.attach(m)
	return m
}

// Start はバックグラウンドのポーリングループを開始する
// 初回の列挙を同期的に実行するため、戻った時点でInfosが利用できる
func (m *Manager) Start(ctx context.Context) error {
	m.runMu.Lock()
	defer m.runMu.Unlock()

	if m.running {
		return fmt.Errorf("マネージャーは既に開始されています")
	}

	m.resolutions.attach(m)

	// 初回スキャンを実行
	m.update(ctx)

	m.stopCh = make(chan struct{})
	m.wg.Add(1)
	go m.run(ctx)

	m.running = true
	return nil
}

// Stop はループに停止を通知し、終了を待ってから戻る
// 戻った後はManagerによる状態変更は一切発生しない
func (m *Manager) Stop(_ context.Context) error {
	m.runMu.Lock()
	defer m.runMu.Unlock()

	if !m.running {
		return nil
	}

	close(m.stopCh)
	m.wg.Wait()

	m.resolutions.detach(m)
	m.running = false
	return nil
}

// Infos は最新の列挙スナップショットを返す
// I/Oは発生せず、キャッシュ済みのコピーを返すだけでブロックしない
func (m *Manager) Infos() []Info {
	m.infosMu.RLock()
	defer m.infosMu.RUnlock()

	infos := make([]Info, len(m.infos))
	copy(infos, m.infos)
	return infos
}

// IsPluggedIn は指定デバイスが最新のスナップショットに存在するかを返す
func (m *Manager) IsPluggedIn(id DeviceID) bool {
	m.infosMu.RLock()
	defer m.infosMu.RUnlock()

	for _, info := range m.infos {
		if info.ID == id {
			return true
		}
	}
	return false
}

// DefaultResolution は指定デバイスの最上位の解像度を返す
// 未知のデバイスや解像度を報告しないデバイスには(1,1)を返す
// エラーではなく安全な縮退値として扱う
func (m *Manager) DefaultResolution(id DeviceID) Resolution {
	m.infosMu.RLock()
	defer m.infosMu.RUnlock()

	for _, info := range m.infos {
		if info.ID == id {
			if len(info.Resolutions) == 0 {
				break
			}
			// 解像度は大きい順にソート済みのため、先頭が既定値になる
			return info.Resolutions[0]
		}
	}
	return Resolution{Width: 1, Height: 1}
}

// OpenOrGetWebcam は指定デバイスへの共有ハンドルを返す
//
// 同じデバイスへの生存中リクエストが既にあればそれを共有し、
// なければ未初期化状態の新しいリクエストを作成する
// 実際のキャプチャ作成は次のループティックで行われる
func (m *Manager) OpenOrGetWebcam(id DeviceID) *SharedWebcam {
	m.requestsMu.Lock()
	defer m.requestsMu.Unlock()

	if request, ok := m.requests[id]; ok && request.isAlive() {
		// 生存中のリクエストを再利用する（同じデバイスを二重にキャプチャすることはできない）
		request.refs++
		return &SharedWebcam{manager: m, request: request}
	}

	request := newRequest(id)
	request.refs = 1
	m.requests[id] = request
	return &SharedWebcam{manager: m, request: request}
}

// RequestRestart は生存中のリクエストを未初期化状態へ戻す
// リクエストが存在しない場合は何もしない
// 解像度変更後の再オープンに使われる
func (m *Manager) RequestRestart(id DeviceID) {
	m.requestsMu.Lock()
	request, ok := m.requests[id]
	m.requestsMu.Unlock()

	if !ok {
		return
	}
	request.reset()
}

// releaseRequest はハンドル1つ分の参照を解放する
// 最後の参照だった場合、レジストリから取り除きセッションを解放する
func (m *Manager) releaseRequest(request *Request) {
	m.requestsMu.Lock()
	request.refs--
	last := request.refs == 0
	if last {
		// 解放中に作り直された同名エントリを消さないよう、同一ポインタの場合のみ削除する
		if current, ok := m.requests[request.id]; ok && current == request {
			delete(m.requests, request.id)
		}
	}
	m.requestsMu.Unlock()

	if last {
		// セッションの解放はレジストリのロックの外で行う
		request.kill()
	}
}

// run はポーリングループの本体
func (m *Manager) run(ctx context.Context) {
	defer m.wg.Done()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		m.update(ctx)

		if m.pollInterval > 0 {
			select {
			case <-m.stopCh:
				return
			case <-ctx.Done():
				return
			case <-time.After(m.pollInterval):
			}
		}
	}
}

// update は1ティック分の処理を実行する
// 列挙スナップショットの更新と、全生存リクエストの状態遷移を行う
func (m *Manager) update(ctx context.Context) {
	infos, err := m.backend.Enumerate(ctx)
	if err != nil {
		// 列挙の一時的な失敗でループは止めない
		// 古いスナップショットを維持し、誤った抜き取り判定を避ける
		log.Printf("デバイスの列挙に失敗しました: %v", err)
	} else {
		for i := range infos {
			infos[i].Resolutions = sortResolutions(infos[i].Resolutions)
		}
		m.infosMu.Lock()
		m.infos = infos
		m.infosMu.Unlock()
	}

	// レジストリのコピーに対して処理する
	// ロックを保持したままオープンすると、その間ハンドルの作成がブロックされてしまう
	m.requestsMu.Lock()
	requests := make([]*Request, 0, len(m.requests))
	for _, request := range m.requests {
		requests = append(requests, request)
	}
	m.requestsMu.Unlock()

	for _, request := range requests {
		if !request.isAlive() {
			// 全ハンドルが閉じられたリクエストには何もしない
			continue
		}

		if !m.IsPluggedIn(request.id) {
			// 抜かれたデバイスは進行中の試行を含む他のどの状態よりも優先する
			request.setError(StateError{Reason: ErrorUnplugged})
			continue
		}

		if request.isActive() {
			// キャプチャは正常なので触らない
			continue
		}

		// 接続されているがキャプチャが無効なので(再)作成を試みる
		resolution := m.resolutions.SelectedResolution(request.id)
		session, err := m.backend.Open(ctx, request.id, resolution)
		if err != nil {
			request.setError(classifyOpenError(err))
			continue
		}
		request.adopt(session)
	}
}
