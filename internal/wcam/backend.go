package wcam

import (
	"context"
	"time"
)

// Backend はプラットフォーム依存のキャプチャ実装との境界
//
// 実装は以下を保証すること：
//   - Enumerate は遅くてもよいが、呼び出し単位で一貫した結果を返す
//   - デバイスが1台もない場合はエラーではなく空のスライスを返す
//   - Open の失敗は *OpenError で分類して返す
type Backend interface {
	// Enumerate は現在接続されているデバイスの一覧を返す
	Enumerate(ctx context.Context) ([]Info, error)

	// Open は指定デバイスのキャプチャセッションを指定解像度で開く
	Open(ctx context.Context, id DeviceID, resolution Resolution) (Session, error)
}

// Session は1つの物理デバイスへの1つのストリーミング接続を表す
//
// 実装は以下を保証すること：
//   - Image はブロックせず、最新フレームか「新着なし」マーカーを返す
//   - 一度返したフレームは再配信しない（at-most-once）
//   - Close はデバイスリソースを同期的に解放し、無期限にブロックしない
type Session interface {
	// Image は最新のフレームを取り出す
	Image() MaybeImage

	// Resolution はセッションが実際に使用している解像度を返す
	// デバイスとのネゴシエーション結果のため、要求値と異なる場合がある
	Resolution() Resolution

	// Close はストリーミングを停止しデバイスを解放する
	Close() error
}

// ImageStatus はImageの結果種別を表す
type ImageStatus string

const (
	// ImageAvailable は新しいフレームが取得できたことを表す
	ImageAvailable ImageStatus = "available"
	// ImageNoNewFrame は前回取得後に新しいフレームが届いていないことを表す
	ImageNoNewFrame ImageStatus = "no_new_frame"
	// ImageNotInitialized はキャプチャが未作成（作成待ち）であることを表す
	ImageNotInitialized ImageStatus = "not_initialized"
	// ImageError はキャプチャがエラー状態であることを表す
	ImageError ImageStatus = "error"
)

// MaybeImage はフレーム取得の結果を表す
// Status が ImageAvailable の場合のみ Frame が設定される
type MaybeImage struct {
	Status  ImageStatus
	Frame   *Frame
	Reason  ErrorReason // Status が ImageError の場合のみ有効
	Message string
}

// Frame は1枚のキャプチャ画像を表す
type Frame struct {
	Seq        uint64     // セッション内で単調増加する連番
	Timestamp  time.Time  // フレームを受信した時刻
	Resolution Resolution // フレームの解像度
	Format     string     // ピクセルフォーマット（例: "MJPG", "YUYV"）
	Data       []byte     // フレームデータ（フォーマット変換はしない）
}
