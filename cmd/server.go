// Package main はwcamサーバーコマンドの実装です
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"wcam/internal/camera"
	"wcam/internal/config"
	"wcam/internal/server"
	"wcam/internal/wcam"
)

func main() {
	// コマンドラインオプション
	var (
		host = flag.String("host", "", "サーバーのホスト (デフォルト: 0.0.0.0)")
		port = flag.Int("port", 0, "サーバーのポート (デフォルト: 8080)")
		help = flag.Bool("help", false, "ヘルプを表示")
	)

	flag.Parse()

	// ヘルプ表示
	if *help {
		fmt.Println("wcam")
		fmt.Println()
		fmt.Println("使用方法:")
		fmt.Println("  server [オプション]")
		fmt.Println()
		fmt.Println("オプション:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	// 設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("設定の読み込みに失敗しました: %v", err)
	}

	// コマンドラインオプションで設定を上書き
	if *host != "" {
		cfg.Server.Host = *host
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}

	ctx := context.Background()

	// デバイス監視を起動
	manager := wcam.NewManager(camera.NewBackend(), wcam.Resolutions(), cfg.Camera.PollInterval.AsDuration())
	if err := manager.Start(ctx); err != nil {
		log.Fatalf("デバイス監視の起動に失敗しました: %v", err)
	}
	defer func() {
		if err := manager.Stop(ctx); err != nil {
			log.Printf("デバイス監視の停止に失敗しました: %v", err)
		}
	}()

	// サーバーを起動
	log.Printf("wcam サーバーを起動します: %s", cfg.ServerAddress())
	srv := server.New(cfg, manager, wcam.Resolutions())
	if err := srv.Start(ctx); err != nil {
		log.Fatalf("サーバーの起動に失敗しました: %v", err)
	}
}
