package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config はアプリケーション全体の設定を保持する構造体
type Config struct {
	Server ServerConfig `yaml:"server"`
	Camera CameraConfig `yaml:"camera"`
}

// Duration はYAML中で "500ms" のような表記を受け付ける時間設定
type Duration time.Duration

// UnmarshalYAML は time.ParseDuration の形式で値を解釈する
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("無効な時間表記: %q", value.Value)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML は "500ms" 形式の文字列として出力する
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// String は time.Duration と同じ表記を返す
func (d Duration) String() string {
	return time.Duration(d).String()
}

// AsDuration は標準の time.Duration に変換する
func (d Duration) AsDuration() time.Duration {
	return time.Duration(d)
}

// ServerConfig はHTTPサーバーの設定
type ServerConfig struct {
	Host string `yaml:"host"` // リッスンするホスト
	Port int    `yaml:"port"` // リッスンするポート番号

	// タイムアウト設定
	ReadTimeout  Duration `yaml:"read_timeout"`  // 読み込みタイムアウト
	WriteTimeout Duration `yaml:"write_timeout"` // 書き込みタイムアウト
}

// CameraConfig はデバイス監視とストリーミングの設定
type CameraConfig struct {
	// デバイス列挙ループの間隔
	// 0にすると列挙コスト自体が自然なスロットルになる
	PollInterval Duration `yaml:"poll_interval"`

	// ストリーミング配信時のフレーム確認間隔
	FramePollInterval Duration `yaml:"frame_poll_interval"`
}

// Load は設定を読み込む
// デフォルト値 → 設定ファイル（WCAM_CONFIGで指定）→ 環境変数の順で上書きする
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  Duration(10 * time.Second),
			WriteTimeout: 0, // ストリーミング用にタイムアウト無効化
		},
		Camera: CameraConfig{
			PollInterval:      Duration(500 * time.Millisecond),
			FramePollInterval: Duration(33 * time.Millisecond),
		},
	}

	if path := os.Getenv("WCAM_CONFIG"); path != "" {
		if err := loadFile(cfg, path); err != nil {
			return nil, err
		}
	}

	// 環境変数による上書き
	cfg.Server.Host = getEnvOrDefault("SERVER_HOST", cfg.Server.Host)
	cfg.Server.Port = getEnvAsIntOrDefault("SERVER_PORT", cfg.Server.Port)

	// 設定の検証
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("設定の検証に失敗: %w", err)
	}

	return cfg, nil
}

// loadFile はYAMLファイルから設定を読み込んで上書きする
func loadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("設定ファイルの読み込みに失敗: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("設定ファイルの解析に失敗: %w", err)
	}
	return nil
}

// Validate は設定の妥当性を検証する
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("無効なポート番号: %d", c.Server.Port)
	}
	if c.Camera.PollInterval < 0 {
		return fmt.Errorf("無効な監視間隔: %s", c.Camera.PollInterval)
	}
	if c.Camera.FramePollInterval <= 0 {
		return fmt.Errorf("無効なフレーム確認間隔: %s", c.Camera.FramePollInterval)
	}

	return nil
}

// ServerAddress はサーバーのリッスンアドレスを返す
func (c *Config) ServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// getEnvOrDefault は環境変数を取得し、設定されていない場合はデフォルト値を返す
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsIntOrDefault は環境変数を整数として取得し、設定されていない場合はデフォルト値を返す
func getEnvAsIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var intVal int
		if _, err := fmt.Sscanf(value, "%d", &intVal); err == nil {
			return intVal
		}
	}
	return defaultValue
}
