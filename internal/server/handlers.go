package server

import (
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"wcam/internal/config"
	"wcam/internal/wcam"
)

// snapshotTimeout は最初のフレームを待つ最大時間
const snapshotTimeout = 5 * time.Second

// handler はAPIエンドポイントの実装を束ねる
type handler struct {
	config      *config.Config
	manager     *wcam.Manager
	resolutions *wcam.ResolutionsManager
	startedAt   time.Time
}

func newHandler(cfg *config.Config, manager *wcam.Manager, resolutions *wcam.ResolutionsManager) *handler {
	return &handler{
		config:      cfg,
		manager:     manager,
		resolutions: resolutions,
		startedAt:   time.Now(),
	}
}

// registerRoutes はルーティングを設定する
// デバイスIDは /dev/v4l/by-id/... のようにスラッシュを含むため、
// パスパラメータではなくクエリパラメータ id で受け取る
func (h *handler) registerRoutes(engine *gin.Engine) {
	engine.GET("/health", h.healthCheck)

	api := engine.Group("/api")
	{
		api.GET("/status", h.getStatus)
		api.GET("/webcams", h.listWebcams)
		api.GET("/webcams/snapshot", h.getSnapshot)
		api.GET("/webcams/stream", h.getStream)
		api.PUT("/webcams/resolution", h.putResolution)
	}
}

// レスポンス型

// healthResponse はヘルスチェックの応答
type healthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// statusResponse はシステム状態の応答
type statusResponse struct {
	Status    string     `json:"status"`
	Server    serverInfo `json:"server"`
	Webcams   int        `json:"webcams"`
	Uptime    string     `json:"uptime"`
	Timestamp time.Time  `json:"timestamp"`
}

type serverInfo struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// webcamInfo は1台のデバイスの情報
type webcamInfo struct {
	ID                 string            `json:"id"`
	Name               string            `json:"name"`
	Resolutions        []wcam.Resolution `json:"resolutions"`
	SelectedResolution wcam.Resolution   `json:"selected_resolution"`
}

type webcamsResponse struct {
	Webcams []webcamInfo `json:"webcams"`
}

// errorResponse はエラー応答の共通形式
type errorResponse struct {
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// resolutionRequest は解像度選択の要求
type resolutionRequest struct {
	ID     string `json:"id"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// healthCheck はヘルスチェックエンドポイントの実装
func (h *handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, healthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
	})
}

// getStatus はシステム状態取得エンドポイントの実装
func (h *handler) getStatus(c *gin.Context) {
	c.JSON(http.StatusOK, statusResponse{
		Status: "running",
		Server: serverInfo{
			Host: h.config.Server.Host,
			Port: h.config.Server.Port,
		},
		Webcams:   len(h.manager.Infos()),
		Uptime:    time.Since(h.startedAt).Round(time.Second).String(),
		Timestamp: time.Now(),
	})
}

// listWebcams は接続中デバイスの一覧取得エンドポイントの実装
func (h *handler) listWebcams(c *gin.Context) {
	infos := h.manager.Infos()

	webcams := make([]webcamInfo, 0, len(infos))
	for _, info := range infos {
		webcams = append(webcams, webcamInfo{
			ID:                 info.ID.String(),
			Name:               info.Name,
			Resolutions:        info.Resolutions,
			SelectedResolution: h.resolutions.SelectedResolution(info.ID),
		})
	}

	c.JSON(http.StatusOK, webcamsResponse{Webcams: webcams})
}

// deviceIDParam はクエリパラメータからデバイスIDを取り出す
func deviceIDParam(c *gin.Context) (wcam.DeviceID, bool) {
	id := c.Query("id")
	if id == "" {
		c.JSON(http.StatusBadRequest, errorResponse{
			Error:     "missing_id",
			Message:   "クエリパラメータ id を指定してください",
			Timestamp: time.Now(),
		})
		return "", false
	}
	return wcam.DeviceID(id), true
}

// getSnapshot は1枚のフレームを取得して返す
// キャプチャの起動を待つため、最初のフレームまで最大5秒待機する
func (h *handler) getSnapshot(c *gin.Context) {
	id, ok := deviceIDParam(c)
	if !ok {
		return
	}

	webcam := h.manager.OpenOrGetWebcam(id)
	defer func() { _ = webcam.Close() }()

	deadline := time.Now().Add(snapshotTimeout)
	pollInterval := h.config.Camera.FramePollInterval.AsDuration()

	for {
		image := webcam.Image()
		switch image.Status {
		case wcam.ImageAvailable:
			c.Data(http.StatusOK, frameContentType(image.Frame), image.Frame.Data)
			return

		case wcam.ImageError:
			h.writeCaptureError(c, image)
			return
		}

		// 未初期化または新着なし: 少し待って再確認する
		if time.Now().After(deadline) {
			c.JSON(http.StatusGatewayTimeout, errorResponse{
				Error:     "frame_timeout",
				Message:   "フレームの取得がタイムアウトしました",
				Timestamp: time.Now(),
			})
			return
		}

		select {
		case <-c.Request.Context().Done():
			return
		case <-time.After(pollInterval):
		}
	}
}

// getStream はMJPEGストリーミングエンドポイントの実装
func (h *handler) getStream(c *gin.Context) {
	id, ok := deviceIDParam(c)
	if !ok {
		return
	}

	clientID := uuid.NewString()
	log.Printf("ストリーミング開始: client=%s device=%s", clientID, id)
	defer log.Printf("ストリーミング終了: client=%s device=%s", clientID, id)

	webcam := h.manager.OpenOrGetWebcam(id)
	defer func() { _ = webcam.Close() }()

	// レスポンスヘッダーを設定
	c.Header("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("Access-Control-Allow-Origin", "*")

	writer := c.Writer
	flusher, ok := writer.(http.Flusher)
	if !ok {
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}

	clientGone := c.Request.Context().Done()
	pollInterval := h.config.Camera.FramePollInterval.AsDuration()

	// ストリーミングループ
	// 同一フレームは再配信されないため、新着が来るまでポーリングする
	for {
		select {
		case <-clientGone:
			return
		case <-time.After(pollInterval):
		}

		image := webcam.Image()
		switch image.Status {
		case wcam.ImageAvailable:
			if err := writeMJPEGPart(writer, image.Frame); err != nil {
				return
			}
			flusher.Flush()

		case wcam.ImageError:
			// 抜かれた・使用中などは次のティックで回復しうるため待ち続ける
			continue
		}
	}
}

// writeMJPEGPart は1フレームをmultipartの1パートとして書き込む
func writeMJPEGPart(w http.ResponseWriter, frame *wcam.Frame) error {
	parts := [][]byte{
		[]byte("--frame\r\n"),
		[]byte("Content-Type: " + frameContentType(frame) + "\r\n\r\n"),
		frame.Data,
		[]byte("\r\n"),
	}
	for _, part := range parts {
		if _, err := w.Write(part); err != nil {
			return err
		}
	}
	return nil
}

// frameContentType はフレームのピクセルフォーマットからContent-Typeを決める
func frameContentType(frame *wcam.Frame) string {
	if frame.Format == "MJPG" || frame.Format == "MOCK" {
		return "image/jpeg"
	}
	return "application/octet-stream"
}

// writeCaptureError はキャプチャエラーをHTTPステータスに対応付ける
func (h *handler) writeCaptureError(c *gin.Context, image wcam.MaybeImage) {
	switch image.Reason {
	case wcam.ErrorUnplugged:
		c.JSON(http.StatusNotFound, errorResponse{
			Error:     "webcam_unplugged",
			Message:   "デバイスが接続されていません",
			Timestamp: time.Now(),
		})
	case wcam.ErrorAlreadyInUse:
		c.JSON(http.StatusServiceUnavailable, errorResponse{
			Error:     "webcam_in_use",
			Message:   "デバイスは他のアプリケーションが使用中です",
			Timestamp: time.Now(),
		})
	default:
		c.JSON(http.StatusServiceUnavailable, errorResponse{
			Error:     "capture_error",
			Message:   image.Message,
			Timestamp: time.Now(),
		})
	}
}

// putResolution は解像度選択エンドポイントの実装
// 選択は保存され、動作中のキャプチャがあれば再起動される
func (h *handler) putResolution(c *gin.Context) {
	var req resolutionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{
			Error:     "invalid_body",
			Message:   "リクエストボディを解析できません",
			Timestamp: time.Now(),
		})
		return
	}

	if req.ID == "" {
		c.JSON(http.StatusBadRequest, errorResponse{
			Error:     "missing_id",
			Message:   "デバイスIDを指定してください",
			Timestamp: time.Now(),
		})
		return
	}
	if req.Width <= 0 || req.Height <= 0 {
		c.JSON(http.StatusBadRequest, errorResponse{
			Error:     "invalid_resolution",
			Message:   "解像度は正の値で指定してください",
			Timestamp: time.Now(),
		})
		return
	}

	id := wcam.DeviceID(req.ID)
	resolution := wcam.Resolution{Width: req.Width, Height: req.Height}
	h.resolutions.SetSelectedResolution(id, resolution)

	c.JSON(http.StatusOK, webcamInfo{
		ID:                 req.ID,
		SelectedResolution: h.resolutions.SelectedResolution(id),
	})
}
