package camera

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"sync"

	"github.com/blackjack/webcam"

	"wcam/internal/wcam"
)

// byIDDir は物理デバイスごとに安定したシンボリックリンクが並ぶディレクトリ
const byIDDir = "/dev/v4l/by-id"

// Backend はV4L2デバイスを扱う wcam.Backend の実装
type Backend struct {
	mu sync.Mutex

	// 最後の列挙で確認したDeviceID→デバイスファイルの対応
	paths map[wcam.DeviceID]string

	// デバイスごとの解像度一覧キャッシュ
	// フレームサイズの問い合わせは抜き差しでも変わらないため使い回す
	resolutions map[wcam.DeviceID][]wcam.Resolution
}

// NewBackend は新しいV4L2バックエンドを作成する
func NewBackend() *Backend {
	return &Backend{
		paths:       make(map[wcam.DeviceID]string),
		resolutions: make(map[wcam.DeviceID][]wcam.Resolution),
	}
}

// Enumerate は /dev/video* を走査して接続中のデバイス一覧を返す
// 開けないデバイスと解像度を1つも持たないデバイス（メタデータ
// チャンネルなど）はスキップする
func (b *Backend) Enumerate(ctx context.Context) ([]wcam.Info, error) {
	matches, err := filepath.Glob("/dev/video*")
	if err != nil {
		return nil, fmt.Errorf("デバイスのスキャンに失敗: %w", err)
	}

	// デバイス番号でソート
	sort.Slice(matches, func(i, j int) bool {
		return extractDeviceNumber(matches[i]) < extractDeviceNumber(matches[j])
	})

	infos := make([]wcam.Info, 0, len(matches))
	paths := make(map[wcam.DeviceID]string, len(matches))
	for _, path := range matches {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		info, ok := b.probeDevice(path)
		if !ok {
			continue
		}
		// 同一物理デバイスの複数ノードは最小番号のものを採用する
		if _, exists := paths[info.ID]; exists {
			continue
		}
		paths[info.ID] = path
		infos = append(infos, info)
	}

	// 抜かれたデバイスの対応を残さないよう丸ごと入れ替える
	b.mu.Lock()
	b.paths = paths
	b.mu.Unlock()

	return infos, nil
}

// probeDevice は1つのデバイスファイルを調べてInfoを構築する
func (b *Backend) probeDevice(path string) (wcam.Info, bool) {
	cam, err := webcam.Open(path)
	if err != nil {
		// 列挙中に抜かれた・権限がないなどは珍しくないため警告に留める
		log.Printf("デバイスを開けないためスキップ: %s: %v", path, err)
		return wcam.Info{}, false
	}
	defer func() { _ = cam.Close() }()

	name, err := cam.GetName()
	if err != nil || name == "" {
		name = "Unnamed webcam"
	}

	id := wcam.NewDeviceID(stableDevicePath(path), name)

	b.mu.Lock()
	resolutions, cached := b.resolutions[id]
	b.mu.Unlock()

	if !cached {
		resolutions = queryResolutions(cam)
		b.mu.Lock()
		b.resolutions[id] = resolutions
		b.mu.Unlock()
	}
	if len(resolutions) == 0 {
		return wcam.Info{}, false
	}

	return wcam.Info{Name: name, ID: id, Resolutions: resolutions}, true
}

// queryResolutions は対応フォーマット全体から解像度一覧を集める
func queryResolutions(cam formatReader) []wcam.Resolution {
	var resolutions []wcam.Resolution
	for format := range cam.GetSupportedFormats() {
		sizes := cam.GetSupportedFrameSizes(format)
		resolutions = append(resolutions, frameSizesToResolutions(sizes)...)
	}
	return resolutions
}

// Open は指定デバイスのキャプチャセッションを開く
// 失敗は *wcam.OpenError に分類して返す
func (b *Backend) Open(ctx context.Context, id wcam.DeviceID, resolution wcam.Resolution) (wcam.Session, error) {
	b.mu.Lock()
	path, ok := b.paths[id]
	b.mu.Unlock()

	if !ok {
		// 列挙より先にOpenが来た場合は一度だけ走査し直す
		if _, err := b.Enumerate(ctx); err != nil {
			return nil, &wcam.OpenError{Reason: wcam.ErrorOther, Err: err}
		}
		b.mu.Lock()
		path, ok = b.paths[id]
		b.mu.Unlock()
		if !ok {
			return nil, &wcam.OpenError{Reason: wcam.ErrorUnplugged, Err: fmt.Errorf("デバイスが見つかりません: %s", id)}
		}
	}

	session, err := openSession(path, resolution)
	if err != nil {
		return nil, classifyOpenError(err)
	}
	return session, nil
}

// stableDevicePath は /dev/v4l/by-id 配下から指定デバイスを指す
// シンボリックリンクを探す。見つからなければ空文字を返し、
// 呼び出し側は表示名にフォールバックする
func stableDevicePath(devicePath string) string {
	entries, err := os.ReadDir(byIDDir)
	if err != nil {
		return ""
	}

	for _, entry := range entries {
		link := filepath.Join(byIDDir, entry.Name())
		target, err := filepath.EvalSymlinks(link)
		if err != nil {
			continue
		}
		if target == devicePath {
			return link
		}
	}
	return ""
}

// extractDeviceNumber はデバイスパスから番号を抽出する
func extractDeviceNumber(device string) int {
	re := regexp.MustCompile(`video(\d+)`)
	matches := re.FindStringSubmatch(device)
	if len(matches) < 2 {
		return 0
	}

	num, err := strconv.Atoi(matches[1])
	if err != nil {
		return 0
	}
	return num
}
