package speech

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/apex/log"
	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/janvani/backend/internal/model/speech"
	"github.com/zhouzirui/janvani/backend/pkg/utils"
)

const (
	maxAudioBytes = 16 << 20
	maxJSONBytes  = 1 << 20
)

// SpeechService 抽象语音业务，便于测试与替换实现
type SpeechService interface {
	SpeechToText(ctx context.Context, req *speech.ASRRequest) (*speech.ASRResponse, error)
	TextToSpeech(ctx context.Context, req *speech.TTSRequest) (*speech.TTSResponse, error)
}

// Handler 语音服务的HTTP处理器
type Handler struct {
	speechSvc SpeechService
}

// New 创建语音处理器
func New(speechSvc SpeechService) *Handler {
	return &Handler{speechSvc: speechSvc}
}

// RegisterRoutes 注册语音相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/speech_input", h.handleSpeechInput)
	r.Post("/text_to_speech", h.handleTextToSpeech)
}

type speechInputResponse struct {
	Text     string `json:"text"`
	Language string `json:"language"`
}

// handleSpeechInput 处理语音转文本请求
func (h *Handler) handleSpeechInput(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxAudioBytes)
	if err := r.ParseMultipartForm(maxAudioBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			utils.RespondError(w, http.StatusRequestEntityTooLarge, "audio too large")
			return
		}
		utils.RespondError(w, http.StatusBadRequest, "failed to parse multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("audio")
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "audio file is required")
		return
	}
	defer file.Close()

	audio, err := io.ReadAll(file)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "failed to read audio")
		return
	}

	format := strings.TrimSpace(r.FormValue("format"))
	if format == "" {
		format = inferAudioFormat(header.Filename)
	}

	resp, err := h.speechSvc.SpeechToText(r.Context(), &speech.ASRRequest{
		SessionID: r.FormValue("sessionId"),
		Audio:     audio,
		Format:    format,
		Language:  r.FormValue("language"),
	})
	if err != nil {
		utils.RespondAppError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, speechInputResponse{Text: resp.Text, Language: resp.Language})
}

// handleTextToSpeech 处理文本转语音请求，直接返回音频字节
func (h *Handler) handleTextToSpeech(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBytes)

	var req speech.TTSRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		utils.RespondError(w, http.StatusBadRequest, "text is required")
		return
	}

	resp, err := h.speechSvc.TextToSpeech(r.Context(), &req)
	if err != nil {
		utils.RespondAppError(w, err)
		return
	}

	w.Header().Set("Content-Type", resp.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(resp.Audio)))
	w.Header().Set("Content-Disposition", "inline; filename=speech."+resp.Format)
	if resp.Cached {
		w.Header().Set("X-Audio-Cache", "hit")
	}
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(resp.Audio); err != nil {
		log.WithError(err).Warn("speech.write_audio")
	}
}

// inferAudioFormat 从文件名推断音频格式
func inferAudioFormat(filename string) string {
	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".flac":
		return "flac"
	case ".ogg", ".opus":
		return "ogg"
	case ".webm":
		return "webm"
	case ".pcm", ".raw":
		return "pcm"
	default:
		return "wav"
	}
}
