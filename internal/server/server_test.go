package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"wcam/internal/config"
	"wcam/internal/wcam"
)

// testEnv はテスト用のサーバー一式
type testEnv struct {
	engine  http.Handler
	backend *wcam.MockBackend
	manager *wcam.Manager
}

// newTestEnv はモックバックエンドで動くサーバー環境を構築する
func newTestEnv(t *testing.T, infos ...wcam.Info) *testEnv {
	t.Helper()

	cfg := &config.Config{
		Server: config.ServerConfig{
			Host: "127.0.0.1",
			Port: 8080,
		},
		Camera: config.CameraConfig{
			PollInterval:      config.Duration(10 * time.Millisecond),
			FramePollInterval: config.Duration(5 * time.Millisecond),
		},
	}

	backend := wcam.NewMockBackend(infos...)
	resolutions := wcam.NewResolutionsManager()
	manager := wcam.NewManager(backend, resolutions, cfg.Camera.PollInterval.AsDuration())

	ctx := context.Background()
	if err := manager.Start(ctx); err != nil {
		t.Fatalf("Managerの起動に失敗しました: %v", err)
	}
	t.Cleanup(func() { _ = manager.Stop(ctx) })

	srv := New(cfg, manager, resolutions)

	return &testEnv{
		engine:  srv.engine,
		backend: backend,
		manager: manager,
	}
}

func testDevice(id string, resolutions ...wcam.Resolution) wcam.Info {
	if len(resolutions) == 0 {
		resolutions = []wcam.Resolution{{Width: 1280, Height: 720}}
	}
	return wcam.Info{
		Name:        "テストカメラ " + id,
		ID:          wcam.DeviceID(id),
		Resolutions: resolutions,
	}
}

// TestHealthAndStatus はヘルスチェックとステータスをテストする
func TestHealthAndStatus(t *testing.T) {
	env := newTestEnv(t, testDevice("cam0"))

	for _, endpoint := range []string{"/health", "/api/status"} {
		req := httptest.NewRequest(http.MethodGet, endpoint, nil)
		rec := httptest.NewRecorder()
		env.engine.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("%s: 予期しないステータスコード: got %d, want %d", endpoint, rec.Code, http.StatusOK)
		}
		if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
			t.Errorf("%s: 予期しないContent-Type: %s", endpoint, ct)
		}
	}
}

// TestListWebcams はデバイス一覧の配信をテストする
func TestListWebcams(t *testing.T) {
	env := newTestEnv(t,
		testDevice("cam0", wcam.Resolution{Width: 1920, Height: 1080}, wcam.Resolution{Width: 640, Height: 480}),
		testDevice("cam1"),
	)

	req := httptest.NewRequest(http.MethodGet, "/api/webcams", nil)
	rec := httptest.NewRecorder()
	env.engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("予期しないステータスコード: got %d", rec.Code)
	}

	var response webcamsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
		t.Fatalf("応答の解析に失敗しました: %v", err)
	}
	if len(response.Webcams) != 2 {
		t.Fatalf("デバイス数が一致しません: got %d, want 2", len(response.Webcams))
	}

	first := response.Webcams[0]
	if first.ID != "cam0" {
		t.Errorf("デバイスIDが一致しません: got %s", first.ID)
	}
	// 既定解像度（最上位）が選択値として返る
	if first.SelectedResolution != (wcam.Resolution{Width: 1920, Height: 1080}) {
		t.Errorf("選択解像度が一致しません: got %s", first.SelectedResolution)
	}
}

// TestSnapshot はスナップショット取得をテストする
func TestSnapshot(t *testing.T) {
	env := newTestEnv(t, testDevice("cam0"))

	// キャプチャが立ち上がるのを待ってフレームを入れる
	webcam := env.manager.OpenOrGetWebcam("cam0")
	defer func() { _ = webcam.Close() }()

	session := waitForSession(t, webcam)
	session.PushFrame([]byte("jpeg-bytes"))

	req := httptest.NewRequest(http.MethodGet, "/api/webcams/snapshot?id=cam0", nil)
	rec := httptest.NewRecorder()
	env.engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("予期しないステータスコード: got %d, body=%s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/jpeg" {
		t.Errorf("予期しないContent-Type: %s", ct)
	}
	if !bytes.Equal(rec.Body.Bytes(), []byte("jpeg-bytes")) {
		t.Errorf("フレームデータが一致しません: got %q", rec.Body.Bytes())
	}
}

// TestSnapshotErrors はスナップショットのエラー応答をテストする
func TestSnapshotErrors(t *testing.T) {
	env := newTestEnv(t, testDevice("cam0"))

	// id なしは 400
	req := httptest.NewRequest(http.MethodGet, "/api/webcams/snapshot", nil)
	rec := httptest.NewRecorder()
	env.engine.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("予期しないステータスコード: got %d, want %d", rec.Code, http.StatusBadRequest)
	}

	// 存在しないデバイスは 404（ループが unplugged と判定する）
	req = httptest.NewRequest(http.MethodGet, "/api/webcams/snapshot?id=missing", nil)
	rec = httptest.NewRecorder()
	env.engine.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("予期しないステータスコード: got %d, want %d", rec.Code, http.StatusNotFound)
	}
}

// TestStream はMJPEGストリーミングをテストする
func TestStream(t *testing.T) {
	env := newTestEnv(t, testDevice("cam0"))

	webcam := env.manager.OpenOrGetWebcam("cam0")
	defer func() { _ = webcam.Close() }()
	session := waitForSession(t, webcam)

	httpSrv := httptest.NewServer(env.engine)
	defer httpSrv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 応答ヘッダは最初のパートと同時に送られるため、先にフレームを流し始める
	pushDone := make(chan struct{})
	go func() {
		defer close(pushDone)
		for i := 0; i < 200; i++ {
			select {
			case <-ctx.Done():
				return
			default:
			}
			session.PushFrame([]byte("frame-data"))
			time.Sleep(10 * time.Millisecond)
		}
	}()

	streamReq, err := http.NewRequestWithContext(ctx, http.MethodGet, httpSrv.URL+"/api/webcams/stream?id=cam0", nil)
	if err != nil {
		t.Fatalf("リクエストの作成に失敗しました: %v", err)
	}
	resp, err := http.DefaultClient.Do(streamReq)
	if err != nil {
		t.Fatalf("ストリーミング接続に失敗しました: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "multipart/x-mixed-replace") {
		t.Fatalf("予期しないContent-Type: %s", ct)
	}

	reader := bufio.NewReader(resp.Body)
	boundary, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("ストリームの読み込みに失敗しました: %v", err)
	}
	if !strings.HasPrefix(boundary, "--frame") {
		t.Errorf("予期しない境界行: %q", boundary)
	}

	// クライアント切断でハンドラが終了する
	cancel()
	<-pushDone
}

// TestPutResolution は解像度選択エンドポイントをテストする
func TestPutResolution(t *testing.T) {
	env := newTestEnv(t, testDevice("cam0",
		wcam.Resolution{Width: 1920, Height: 1080},
		wcam.Resolution{Width: 640, Height: 480},
	))

	body := `{"id":"cam0","width":640,"height":480}`
	req := httptest.NewRequest(http.MethodPut, "/api/webcams/resolution", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	env.engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("予期しないステータスコード: got %d, body=%s", rec.Code, rec.Body.String())
	}

	var response webcamInfo
	if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
		t.Fatalf("応答の解析に失敗しました: %v", err)
	}
	if response.SelectedResolution != (wcam.Resolution{Width: 640, Height: 480}) {
		t.Errorf("選択解像度が一致しません: got %s", response.SelectedResolution)
	}

	// 不正な解像度は 400
	for _, invalid := range []string{
		`{"id":"cam0","width":0,"height":480}`,
		`{"id":"","width":640,"height":480}`,
		`not-json`,
	} {
		req := httptest.NewRequest(http.MethodPut, "/api/webcams/resolution", strings.NewReader(invalid))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		env.engine.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("予期しないステータスコード: got %d, body=%q", rec.Code, invalid)
		}
	}
}

// TestServerStartAndShutdown はサーバーの起動とシャットダウンをテストする
func TestServerStartAndShutdown(t *testing.T) {
	cfg := &config.Config{
		Server: config.ServerConfig{
			Host:         "127.0.0.1",
			Port:         0, // ランダムポートを使用
			ReadTimeout:  config.Duration(5 * time.Second),
			WriteTimeout: config.Duration(5 * time.Second),
		},
		Camera: config.CameraConfig{
			PollInterval:      config.Duration(100 * time.Millisecond),
			FramePollInterval: config.Duration(33 * time.Millisecond),
		},
	}

	backend := wcam.NewMockBackend()
	resolutions := wcam.NewResolutionsManager()
	manager := wcam.NewManager(backend, resolutions, cfg.Camera.PollInterval.AsDuration())
	srv := New(cfg, manager, resolutions)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(ctx)
	}()

	// サーバーが起動するまで少し待つ
	time.Sleep(100 * time.Millisecond)

	// コンテキストをキャンセルしてサーバーを停止
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("サーバーの起動/停止でエラーが発生しました: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("サーバーの停止がタイムアウトしました")
	}
}

// waitForSession はキャプチャの立ち上がりを待ってモックセッションを返す
func waitForSession(t *testing.T, webcam *wcam.SharedWebcam) *wcam.MockSession {
	t.Helper()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if active, ok := webcam.State().(wcam.StateActive); ok {
			session, ok := active.Session.(*wcam.MockSession)
			if !ok {
				t.Fatal("モックセッションではありません")
			}
			return session
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("キャプチャの立ち上がりがタイムアウトしました")
	return nil
}
