package wcam

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MockBackend はテスト用のバックエンド実装
// デバイスの抜き差しやオープン失敗を任意に再現できる
type MockBackend struct {
	mu           sync.Mutex
	order        []DeviceID
	infos        map[DeviceID]Info
	openErrs     map[DeviceID]error
	enumerateErr error

	openCounts   map[DeviceID]int
	liveSessions map[DeviceID]int
}

// NewMockBackend は指定デバイスを持つMockBackendを作成する
func NewMockBackend(infos ...Info) *MockBackend {
	b := &MockBackend{
		infos:        make(map[DeviceID]Info),
		openErrs:     make(map[DeviceID]error),
		openCounts:   make(map[DeviceID]int),
		liveSessions: make(map[DeviceID]int),
	}
	for _, info := range infos {
		b.AddDevice(info)
	}
	return b
}

// AddDevice はデバイスを接続状態にする
func (b *MockBackend) AddDevice(info Info) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.infos[info.ID]; !ok {
		b.order = append(b.order, info.ID)
	}
	b.infos[info.ID] = info
}

// RemoveDevice はデバイスを抜かれた状態にする
func (b *MockBackend) RemoveDevice(id DeviceID) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.infos, id)
	for i, existing := range b.order {
		if existing == id {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
}

// SetOpenError は指定デバイスのオープンを失敗させる
// nilを渡すと解除される
func (b *MockBackend) SetOpenError(id DeviceID, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		delete(b.openErrs, id)
		return
	}
	b.openErrs[id] = err
}

// SetEnumerateError は列挙を失敗させる
func (b *MockBackend) SetEnumerateError(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.enumerateErr = err
}

// OpenCount は指定デバイスのオープン試行回数を返す
func (b *MockBackend) OpenCount(id DeviceID) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.openCounts[id]
}

// LiveSessions は指定デバイスの生存中セッション数を返す
func (b *MockBackend) LiveSessions(id DeviceID) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.liveSessions[id]
}

// Enumerate は現在の接続デバイス一覧を返す
func (b *MockBackend) Enumerate(_ context.Context) ([]Info, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.enumerateErr != nil {
		return nil, b.enumerateErr
	}

	infos := make([]Info, 0, len(b.order))
	for _, id := range b.order {
		infos = append(infos, b.infos[id])
	}
	return infos, nil
}

// Open はモックセッションを作成する
func (b *MockBackend) Open(_ context.Context, id DeviceID, resolution Resolution) (Session, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.openCounts[id]++

	if err, ok := b.openErrs[id]; ok {
		return nil, err
	}
	if _, ok := b.infos[id]; !ok {
		return nil, &OpenError{Reason: ErrorUnplugged, Err: fmt.Errorf("デバイスが見つかりません: %s", id)}
	}

	b.liveSessions[id]++
	return &MockSession{backend: b, id: id, resolution: resolution}, nil
}

// MockSession はテスト用のキャプチャセッション実装
type MockSession struct {
	backend    *MockBackend
	id         DeviceID
	resolution Resolution

	mu     sync.Mutex
	frame  *Frame
	seq    uint64
	closed bool
}

// PushFrame はテストからフレームの到着を再現する
func (s *MockSession) PushFrame(data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	s.frame = &Frame{
		Seq:        s.seq,
		Timestamp:  time.Now(),
		Resolution: s.resolution,
		Format:     "MOCK",
		Data:       data,
	}
}

// Image は最新フレームを取り出す
// 一度取り出したフレームは再配信しない
func (s *MockSession) Image() MaybeImage {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.frame == nil {
		return MaybeImage{Status: ImageNoNewFrame}
	}
	frame := s.frame
	s.frame = nil
	return MaybeImage{Status: ImageAvailable, Frame: frame}
}

// Resolution はセッションの解像度を返す
func (s *MockSession) Resolution() Resolution {
	return s.resolution
}

// Close はセッションを解放する
func (s *MockSession) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.backend.mu.Lock()
	s.backend.liveSessions[s.id]--
	s.backend.mu.Unlock()
	return nil
}

// IsClosed はセッションが解放済みかを返す
func (s *MockSession) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
