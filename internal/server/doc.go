// Package server は、ウェブカメラ管理のHTTP APIを提供します。
//
// このパッケージは、HTTPサーバーの起動、ルーティング、
// デバイス一覧・スナップショット・ストリーミングの配信を担当します。
//
// 責務:
//   - HTTPサーバーの起動とグレースフルシャットダウン
//   - デバイス一覧と状態のJSON配信
//   - スナップショット取得とMJPEGストリーミング配信
//   - 解像度選択の受け付け
//
// 仕様:
//   - ルーティングにはgin-gonic/ginを使用
//   - デバイスIDはパスを含むため、クエリパラメータ id で受け取る
//   - ストリーミング接続はuuidで識別してログに残す
//   - 複数クライアントの同時接続をサポート
package server
