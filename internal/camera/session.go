package camera

import (
	"fmt"
	"sync"
	"time"

	"github.com/blackjack/webcam"

	"wcam/internal/wcam"
)

// waitFrameTimeoutSec はWaitForFrameのタイムアウト（秒）
// タイムアウト自体はエラーではなく、停止チェックの機会として使う
const waitFrameTimeoutSec = 1

// captureSession は1つのV4L2デバイスからのストリーミングを表す
// 読み取りゴルーチンが最新フレームをセルに置き、Imageが取り出す
type captureSession struct {
	cam        *webcam.Webcam
	resolution wcam.Resolution
	format     string

	cell frameCell

	stopCh    chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
	closeErr  error
}

// openSession はデバイスを開いてストリーミングを開始する
// 要求解像度に最も近い対応サイズでネゴシエーションする
func openSession(path string, want wcam.Resolution) (*captureSession, error) {
	cam, err := webcam.Open(path)
	if err != nil {
		return nil, err
	}

	format, ok := chooseFormat(cam)
	if !ok {
		_ = cam.Close()
		return nil, fmt.Errorf("対応フォーマットがありません: %s", path)
	}

	candidates := frameSizesToResolutions(cam.GetSupportedFrameSizes(format))
	target, ok := nearestResolution(candidates, want)
	if !ok {
		_ = cam.Close()
		return nil, fmt.Errorf("対応解像度がありません: %s", path)
	}

	// デバイス側の裁量でさらに丸められる場合があるため実値を使う
	actualFormat, width, height, err := cam.SetImageFormat(format, uint32(target.Width), uint32(target.Height))
	if err != nil {
		_ = cam.Close()
		return nil, fmt.Errorf("フォーマット設定に失敗: %w", err)
	}

	if err := cam.SetBufferCount(1); err != nil {
		_ = cam.Close()
		return nil, fmt.Errorf("バッファ設定に失敗: %w", err)
	}

	if err := cam.StartStreaming(); err != nil {
		_ = cam.Close()
		return nil, fmt.Errorf("ストリーミング開始に失敗: %w", err)
	}

	session := &captureSession{
		cam:        cam,
		resolution: wcam.Resolution{Width: int(width), Height: int(height)},
		format:     fourccString(actualFormat),
		stopCh:     make(chan struct{}),
	}

	session.wg.Add(1)
	go session.readLoop()

	return session, nil
}

// readLoop はフレームを読み続けてセルに置く
// 読み取りエラーはセルに記録し、以後のImageがエラーを返す
func (s *captureSession) readLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.stopCh:
			return
		default:
		}

		err := s.cam.WaitForFrame(waitFrameTimeoutSec)
		switch err.(type) {
		case nil:
		case *webcam.Timeout:
			continue
		default:
			s.cell.setError(err)
			return
		}

		data, err := s.cam.ReadFrame()
		if err != nil {
			s.cell.setError(err)
			return
		}
		if len(data) == 0 {
			continue
		}

		// ReadFrameのバッファはドライバが使い回すためコピーする
		frame := make([]byte, len(data))
		copy(frame, data)
		s.cell.store(frame, s.resolution, s.format)
	}
}

// Image は最新フレームを取り出す
// 一度取り出したフレームは再配信しない
func (s *captureSession) Image() wcam.MaybeImage {
	return s.cell.take()
}

// Resolution はネゴシエーション後の実解像度を返す
func (s *captureSession) Resolution() wcam.Resolution {
	return s.resolution
}

// Close はストリーミングを停止しデバイスを同期的に解放する
func (s *captureSession) Close() error {
	s.closeOnce.Do(func() {
		close(s.stopCh)
		s.wg.Wait()

		if err := s.cam.StopStreaming(); err != nil {
			s.closeErr = err
		}
		if err := s.cam.Close(); err != nil && s.closeErr == nil {
			s.closeErr = err
		}
	})
	return s.closeErr
}

// frameCell は最新フレーム1枚だけを保持する受け渡しセル
// 新着が取り出されるまでに次が届いた場合は古い方を捨てる
type frameCell struct {
	mu    sync.Mutex
	frame *wcam.Frame
	err   error
	seq   uint64
}

func (c *frameCell) store(data []byte, resolution wcam.Resolution, format string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seq++
	c.frame = &wcam.Frame{
		Seq:        c.seq,
		Timestamp:  time.Now(),
		Resolution: resolution,
		Format:     format,
		Data:       data,
	}
}

func (c *frameCell) setError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
}

func (c *frameCell) take() wcam.MaybeImage {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.err != nil {
		return wcam.MaybeImage{
			Status:  wcam.ImageError,
			Reason:  wcam.ErrorOther,
			Message: c.err.Error(),
		}
	}
	if c.frame == nil {
		return wcam.MaybeImage{Status: wcam.ImageNoNewFrame}
	}

	frame := c.frame
	c.frame = nil
	return wcam.MaybeImage{Status: wcam.ImageAvailable, Frame: frame}
}
