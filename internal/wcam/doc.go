// Package wcam はWebカメラのデバイスリクエストライフサイクルを管理する
//
// # 責務
// - 接続中のカメラデバイスの継続的な列挙とスナップショット管理
// - デバイスごとのキャプチャセッションの遅延生成と再生成
// - 同一デバイスへの同時リクエストの重複排除（1デバイス1セッション）
// - 抜き差し・解像度変更の検出とキャプチャ状態の自動復旧
// - 選択解像度のプロセス全体での保持（Managerの寿命から独立）
//
// # 使い分け
// このパッケージは以下の場合に使用する：
// - 複数のコンシューマが同じカメラのフレームを共有したい
// - カメラの抜き差しをコンシューマ側で意識せずに扱いたい
// - 解像度変更時の再オープンを自動化したい
//
// # 仕様
// - Manager: バックグラウンドのポーリングループで全リクエストの状態を駆動
// - Request / SharedWebcam: 参照カウント付きのリクエストセルと共有ハンドル
// - ResolutionsManager: デバイスごとの選択解像度を保持する共有テーブル
// - Backend / Session: プラットフォーム依存のキャプチャ実装との境界
// - Thread-safe な操作をサポート（ループと任意のスレッドが交錯してよい）
// - バックエンドの失敗はすべてリクエスト状態に吸収され、ループは停止しない
package wcam
