package ttsapi

import (
	"context"
	stderrors "errors"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"mochimon-server-go/internal/domain/tts/aggregate"
	"mochimon-server-go/internal/domain/tts/blob"
	"mochimon-server-go/internal/platform/errors"
	"mochimon-server-go/internal/platform/logging"
	httptransport "mochimon-server-go/internal/transport/http"
)

const defaultSpeakerID = 1

// AudioService is the cache service as seen by the HTTP layer.
type AudioService interface {
	GetAudio(ctx context.Context, text string, speakerID int) aggregate.AudioResult
	Stats(ctx context.Context) (map[string]any, error)
}

// BlobServer serves locally stored objects behind signed tokens.
type BlobServer interface {
	Verify(objectPath, token string) error
	Open(objectPath string) (*os.File, blob.ObjectInfo, error)
}

// Service TTS接口的HTTP传输层实现
type Service struct {
	audio  AudioService
	blobs  BlobServer
	logger *logging.Logger
}

// NewService 创建TTS HTTP服务，blobs 为空时不注册下载路由
func NewService(audio AudioService, blobs BlobServer, logger *logging.Logger) (*Service, error) {
	if audio == nil {
		return nil, errors.New(errors.KindConfig, "ttsapi.new", "audio service is required")
	}
	return &Service{audio: audio, blobs: blobs, logger: logger}, nil
}

// Register 注册TTS相关的HTTP路由
func (s *Service) Register(ctx context.Context, secured, public *gin.RouterGroup) error {
	group := secured.Group("/tts")
	group.POST("/synthesize", s.handleSynthesize)
	group.GET("/audio", s.handleAudio)
	group.GET("/stats", s.handleStats)

	if s.blobs != nil {
		public.GET("/tts/blob/*path", s.handleBlob)
	}

	s.logger.InfoTag("HTTP", "TTS服务路由注册完成")
	return nil
}

type synthesizeRequest struct {
	Text      string `json:"text" binding:"required"`
	SpeakerID *int   `json:"speaker_id"`
}

// handleSynthesize 合成或复用音频并返回描述
func (s *Service) handleSynthesize(c *gin.Context) {
	var req synthesizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httptransport.RespondError(c, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	speakerID := defaultSpeakerID
	if req.SpeakerID != nil {
		speakerID = *req.SpeakerID
	}
	s.respondAudio(c, req.Text, speakerID)
}

// handleAudio 通过查询参数获取音频描述
func (s *Service) handleAudio(c *gin.Context) {
	speakerID := defaultSpeakerID
	if raw := c.Query("speaker_id"); raw != "" {
		id, err := strconv.Atoi(raw)
		if err != nil {
			httptransport.RespondError(c, http.StatusBadRequest, "speaker_id must be an integer", nil)
			return
		}
		speakerID = id
	}
	s.respondAudio(c, c.Query("text"), speakerID)
}

// respondAudio only rejects a missing text. Anything else the engine cannot
// handle comes back as a degraded descriptor.
func (s *Service) respondAudio(c *gin.Context, text string, speakerID int) {
	if text == "" {
		httptransport.RespondError(c, http.StatusBadRequest, "text is required", nil)
		return
	}

	result := s.audio.GetAudio(c.Request.Context(), text, speakerID)
	if result.Err != nil {
		_ = c.Error(result.Err)
	}
	c.JSON(http.StatusOK, result.Descriptor())
}

// handleStats 返回缓存统计
func (s *Service) handleStats(c *gin.Context) {
	stats, err := s.audio.Stats(c.Request.Context())
	if err != nil {
		s.logger.ErrorTag("HTTP", "读取缓存统计失败: %v", err)
		httptransport.RespondError(c, http.StatusInternalServerError, "failed to read stats", nil)
		return
	}
	httptransport.RespondSuccess(c, http.StatusOK, stats, "")
}

// handleBlob 校验签名后输出音频文件
func (s *Service) handleBlob(c *gin.Context) {
	objectPath := strings.TrimPrefix(c.Param("path"), "/")
	token := c.Query("token")
	if objectPath == "" || token == "" {
		httptransport.RespondError(c, http.StatusBadRequest, "path and token are required", nil)
		return
	}

	if err := s.blobs.Verify(objectPath, token); err != nil {
		s.logger.WarnTag("Blob", "签名校验失败 path=%s: %v", objectPath, err)
		httptransport.RespondError(c, http.StatusForbidden, "invalid or expired token", nil)
		return
	}

	file, info, err := s.blobs.Open(objectPath)
	if stderrors.Is(err, os.ErrNotExist) {
		httptransport.RespondError(c, http.StatusNotFound, "object not found", nil)
		return
	}
	if err != nil {
		s.logger.ErrorTag("Blob", "打开音频失败 path=%s: %v", objectPath, err)
		httptransport.RespondError(c, http.StatusInternalServerError, "failed to open object", nil)
		return
	}
	defer file.Close()

	c.Header("Content-Type", info.ContentType)
	c.Header("Cache-Control", "private, max-age=3600")
	http.ServeContent(c.Writer, c.Request, objectPath, info.ModTime, file)
}
