// Package camera はLinux環境向けのキャプチャバックエンドを実装する
//
// # 責務
// - /dev/video* デバイスの列挙と対応解像度の取得
// - 安定したデバイスID（/dev/v4l/by-id パス、なければカメラ名）の導出
// - V4L2デバイスからのストリーミングキャプチャセッションの提供
// - オープン失敗の分類（抜かれた・使用中・その他）
//
// # 使い分け
// このパッケージは以下の場合に使用する：
// - wcam.Manager に実デバイスのバックエンドを与えたい
// - V4L2デバイスからフレームを連続取得したい
//
// # 仕様
// - Backend: wcam.Backend の実装（列挙・オープン）
// - フォーマットはMJPG優先でネゴシエーションし、ピクセル変換は行わない
// - 解像度一覧はデバイスごとにキャッシュし、列挙のたびに問い直さない
// - デバイスとの通信には github.com/blackjack/webcam を使用
//
// # 前提要件
//   - videoグループへの参加: デバイスアクセス権限
//     sudo usermod -a -G video $USER
package camera
