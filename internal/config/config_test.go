package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestConfigLoad は設定の読み込みをテストする
func TestConfigLoad(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("設定の読み込みに失敗しました: %v", err)
	}

	if cfg == nil {
		t.Fatal("設定がnilです")
	}

	// サーバー設定の検証
	if cfg.Server.Host == "" {
		t.Error("サーバーホストが設定されていません")
	}
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		t.Errorf("無効なポート番号: %d", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout <= 0 {
		t.Error("読み込みタイムアウトが設定されていません")
	}
	// WriteTimeout は 0（無効）でも正常
	if cfg.Server.WriteTimeout < 0 {
		t.Error("書き込みタイムアウトが負の値です")
	}

	// カメラ設定の検証
	if cfg.Camera.PollInterval < 0 {
		t.Error("監視間隔が負の値です")
	}
	if cfg.Camera.FramePollInterval <= 0 {
		t.Error("フレーム確認間隔が設定されていません")
	}
}

// TestConfigValidation は設定の検証をテストする
func TestConfigValidation(t *testing.T) {
	testCases := []struct {
		name      string
		config    *Config
		expectErr bool
	}{
		{
			name: "正常な設定",
			config: &Config{
				Server: ServerConfig{
					Host: "localhost",
					Port: 8080,
				},
				Camera: CameraConfig{
					PollInterval:      Duration(500 * time.Millisecond),
					FramePollInterval: Duration(33 * time.Millisecond),
				},
			},
			expectErr: false,
		},
		{
			name: "監視間隔ゼロは有効",
			config: &Config{
				Server: ServerConfig{
					Host: "localhost",
					Port: 8080,
				},
				Camera: CameraConfig{
					PollInterval:      0,
					FramePollInterval: Duration(33 * time.Millisecond),
				},
			},
			expectErr: false,
		},
		{
			name: "無効なポート番号",
			config: &Config{
				Server: ServerConfig{
					Host: "localhost",
					Port: 99999, // 無効なポート
				},
				Camera: CameraConfig{
					PollInterval:      Duration(500 * time.Millisecond),
					FramePollInterval: Duration(33 * time.Millisecond),
				},
			},
			expectErr: true,
		},
		{
			name: "負の監視間隔",
			config: &Config{
				Server: ServerConfig{
					Host: "localhost",
					Port: 8080,
				},
				Camera: CameraConfig{
					PollInterval:      Duration(-time.Second),
					FramePollInterval: Duration(33 * time.Millisecond),
				},
			},
			expectErr: true,
		},
		{
			name: "フレーム確認間隔なし",
			config: &Config{
				Server: ServerConfig{
					Host: "localhost",
					Port: 8080,
				},
				Camera: CameraConfig{
					PollInterval:      Duration(500 * time.Millisecond),
					FramePollInterval: 0,
				},
			},
			expectErr: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.config.Validate()
			if tc.expectErr && err == nil {
				t.Error("エラーが期待されましたが、エラーが発生しませんでした")
			}
			if !tc.expectErr && err != nil {
				t.Errorf("予期しないエラーが発生しました: %v", err)
			}
		})
	}
}

// TestServerAddress はサーバーアドレスの生成をテストする
func TestServerAddress(t *testing.T) {
	cfg := &Config{
		Server: ServerConfig{
			Host: "192.168.1.100",
			Port: 9090,
		},
	}

	expected := "192.168.1.100:9090"
	actual := cfg.ServerAddress()

	if actual != expected {
		t.Errorf("サーバーアドレスが一致しません: got %s, want %s", actual, expected)
	}
}

// TestConfigFile は設定ファイルの読み込みをテストする
func TestConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := []byte(`
server:
  host: 127.0.0.1
  port: 9000
camera:
  poll_interval: 1s
  frame_poll_interval: 50ms
`)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("設定ファイルの作成に失敗しました: %v", err)
	}

	t.Setenv("WCAM_CONFIG", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("設定の読み込みに失敗しました: %v", err)
	}

	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("設定ファイルのホストが反映されていません: got %s", cfg.Server.Host)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("設定ファイルのポートが反映されていません: got %d", cfg.Server.Port)
	}
	if cfg.Camera.PollInterval != Duration(time.Second) {
		t.Errorf("設定ファイルの監視間隔が反映されていません: got %s", cfg.Camera.PollInterval)
	}
	if cfg.Camera.FramePollInterval != Duration(50*time.Millisecond) {
		t.Errorf("設定ファイルのフレーム確認間隔が反映されていません: got %s", cfg.Camera.FramePollInterval)
	}
}

// TestEnvironmentVariables は環境変数の処理をテストする
// 注意: このテストは環境変数を変更するため、parallelは使わない
func TestEnvironmentVariables(t *testing.T) {
	t.Setenv("SERVER_HOST", "test.example.com")
	t.Setenv("SERVER_PORT", "9999")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("設定の読み込みに失敗しました: %v", err)
	}

	if cfg.Server.Host != "test.example.com" {
		t.Errorf("環境変数のホストが反映されていません: got %s, want test.example.com", cfg.Server.Host)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("環境変数のポートが反映されていません: got %d, want 9999", cfg.Server.Port)
	}
}
