package main

import (
	"context"
	"log"

	"wcam/internal/camera"
	"wcam/internal/config"
	"wcam/internal/server"
	"wcam/internal/wcam"
)

func main() {
	// 設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("設定の読み込みに失敗しました: %v", err)
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
	srv := server.New(cfg, manager, wcam.Resolutions())
	if err := srv.Start(ctx); err != nil {
		log.Fatalf("サーバーの起動に失敗しました: %v", err)
	}
}
