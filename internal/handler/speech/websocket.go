package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/apex/log"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/zhouzirui/janvani/backend/internal/errs"
	"github.com/zhouzirui/janvani/backend/internal/model/chat"
	"github.com/zhouzirui/janvani/backend/internal/model/speech"
	"github.com/zhouzirui/janvani/backend/internal/service/conversation"
	"github.com/zhouzirui/janvani/backend/internal/session"
)

const (
	readTimeout  = 60 * time.Second
	pingInterval = 54 * time.Second
	writeTimeout = 10 * time.Second
)

// Conversation runs one chat turn.
type Conversation interface {
	HandleTurn(ctx context.Context, req conversation.TurnRequest) (conversation.TurnResult, error)
}

// WebSocketHandler WebSocket语音对话处理器
type WebSocketHandler struct {
	speechSvc SpeechService
	conv      Conversation
	sessions  *session.Manager
	upgrader  websocket.Upgrader
}

// NewWebSocketHandler 创建WebSocket处理器。checkOrigin 为 nil 时接受任意来源。
func NewWebSocketHandler(speechSvc SpeechService, conv Conversation, sessions *session.Manager, checkOrigin func(*http.Request) bool) *WebSocketHandler {
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	return &WebSocketHandler{
		speechSvc: speechSvc,
		conv:      conv,
		sessions:  sessions,
		upgrader: websocket.Upgrader{
			CheckOrigin:     checkOrigin,
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterWebSocketRoutes 注册WebSocket路由
func (h *WebSocketHandler) RegisterWebSocketRoutes(r chi.Router) {
	r.Get("/ws/chat", h.handleWebSocket)
}

type inboundMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// AudioMessage 音频消息，isFinal 为 true 时对缓冲区做一次识别
type AudioMessage struct {
	AudioData []byte `json:"audioData"`
	Format    string `json:"format"`
	Language  string `json:"language"`
	IsFinal   bool   `json:"isFinal"`
}

// TextMessage 文本消息
type TextMessage struct {
	Text     string `json:"text"`
	Language string `json:"language"`
}

// ConfigMessage 配置消息
type ConfigMessage struct {
	Language   string `json:"language"`
	TTSEnabled *bool  `json:"ttsEnabled,omitempty"`
}

type outgoingMessage struct {
	Type      string      `json:"type"`
	SessionID string      `json:"sessionId,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

type connectionState struct {
	sessionID   string
	language    string
	ttsEnabled  bool
	audioFormat string
	buffer      bytes.Buffer
}

func newConnectionState(sessionID string) *connectionState {
	return &connectionState{
		sessionID:  sessionID,
		language:   "en",
		ttsEnabled: false,
	}
}

// handleWebSocket 处理WebSocket连接。会话 id 取自 query，其次取 cookie，否则新建。
func (h *WebSocketHandler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	explicit := strings.TrimSpace(r.URL.Query().Get("sessionId"))
	if explicit != "" && !chat.ValidSessionID(explicit) {
		http.Error(w, "invalid sessionId", http.StatusBadRequest)
		return
	}
	sessionID := explicit
	if sessionID == "" {
		sessionID = h.sessions.FromRequest(r)
	}

	var header http.Header
	if sessionID == "" {
		// 新会话在握手响应里下发 cookie
		rec := &headerRecorder{header: http.Header{}}
		id, err := h.sessions.Resolve(rec, r, "")
		if err != nil {
			http.Error(w, "session unavailable", http.StatusInternalServerError)
			return
		}
		sessionID, header = id, rec.header
	}

	state := newConnectionState(sessionID)
	if lang := r.URL.Query().Get("language"); lang != "" {
		state.language = lang
	}

	conn, err := h.upgrader.Upgrade(w, r, header)
	if err != nil {
		log.WithError(err).Warn("ws.upgrade")
		return
	}
	defer conn.Close()

	log.WithField("session", sessionID).Info("ws.connected")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	go pingLoop(ctx, conn)

	h.sendInfo(conn, sessionID, map[string]any{
		"type":     "connected",
		"language": state.language,
	})

	for {
		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.WithError(err).WithField("session", sessionID).Warn("ws.read")
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))

		h.handleMessage(ctx, conn, state, &msg)
	}
}

func (h *WebSocketHandler) handleMessage(ctx context.Context, conn *websocket.Conn, state *connectionState, msg *inboundMessage) {
	switch msg.Type {
	case "audio":
		h.handleAudioMessage(ctx, conn, state, msg.Data)
	case "text":
		h.handleTextMessage(ctx, conn, state, msg.Data)
	case "config":
		h.handleConfigMessage(conn, state, msg.Data)
	default:
		h.sendError(conn, "unsupported message type: "+msg.Type)
	}
}

func (h *WebSocketHandler) handleAudioMessage(ctx context.Context, conn *websocket.Conn, state *connectionState, raw json.RawMessage) {
	var audio AudioMessage
	if err := json.Unmarshal(raw, &audio); err != nil {
		h.sendError(conn, "invalid audio payload")
		return
	}

	if state.buffer.Len()+len(audio.AudioData) > maxAudioBytes {
		state.buffer.Reset()
		h.sendError(conn, "audio too large")
		return
	}
	state.buffer.Write(audio.AudioData)
	if audio.Format != "" {
		state.audioFormat = audio.Format
	}
	if audio.Language != "" {
		state.language = audio.Language
	}

	if audio.IsFinal {
		h.processBufferedAudio(ctx, conn, state)
	}
}

func (h *WebSocketHandler) processBufferedAudio(ctx context.Context, conn *websocket.Conn, state *connectionState) {
	audioBytes := append([]byte(nil), state.buffer.Bytes()...)
	state.buffer.Reset()
	if len(audioBytes) == 0 {
		return
	}

	format := state.audioFormat
	if format == "" {
		format = "wav"
	}

	asrResp, err := h.speechSvc.SpeechToText(ctx, &speech.ASRRequest{
		SessionID: state.sessionID,
		Audio:     audioBytes,
		Format:    format,
		Language:  state.language,
	})
	if err != nil {
		h.sendError(conn, errs.PublicMessage(err))
		return
	}

	h.sendInfo(conn, state.sessionID, map[string]any{
		"type":     "asr",
		"text":     asrResp.Text,
		"language": asrResp.Language,
	})

	h.processUserText(ctx, conn, state, asrResp.Text)
}

func (h *WebSocketHandler) handleTextMessage(ctx context.Context, conn *websocket.Conn, state *connectionState, raw json.RawMessage) {
	var text TextMessage
	if err := json.Unmarshal(raw, &text); err != nil {
		h.sendError(conn, "invalid text payload")
		return
	}
	if strings.TrimSpace(text.Text) == "" {
		return
	}
	if text.Language != "" {
		state.language = text.Language
	}

	h.processUserText(ctx, conn, state, text.Text)
}

func (h *WebSocketHandler) processUserText(ctx context.Context, conn *websocket.Conn, state *connectionState, userText string) {
	result, err := h.conv.HandleTurn(ctx, conversation.TurnRequest{
		SessionID: state.sessionID,
		Text:      userText,
		Language:  state.language,
	})
	if err != nil {
		h.sendError(conn, errs.PublicMessage(err))
		return
	}

	h.sendInfo(conn, state.sessionID, map[string]any{
		"type":     "reply",
		"text":     result.Reply,
		"language": result.Language,
	})

	if state.ttsEnabled {
		h.sendTTS(ctx, conn, state, result.Reply, result.Language)
	}
}

func (h *WebSocketHandler) sendTTS(ctx context.Context, conn *websocket.Conn, state *connectionState, text, lang string) {
	ttsResp, err := h.speechSvc.TextToSpeech(ctx, &speech.TTSRequest{
		SessionID: state.sessionID,
		Text:      text,
		Language:  lang,
	})
	if err != nil {
		h.sendInfo(conn, state.sessionID, map[string]any{
			"type":  "tts",
			"error": errs.PublicMessage(err),
		})
		return
	}

	// []byte 经 JSON 编码为 base64
	h.sendInfo(conn, state.sessionID, map[string]any{
		"type":        "tts",
		"audioData":   ttsResp.Audio,
		"format":      ttsResp.Format,
		"contentType": ttsResp.ContentType,
	})
}

func (h *WebSocketHandler) handleConfigMessage(conn *websocket.Conn, state *connectionState, raw json.RawMessage) {
	var cfg ConfigMessage
	if err := json.Unmarshal(raw, &cfg); err != nil {
		h.sendError(conn, "invalid config payload")
		return
	}

	applyConfig(state, cfg)

	h.sendInfo(conn, state.sessionID, map[string]any{
		"type":     "config",
		"language": state.language,
		"tts":      state.ttsEnabled,
	})
}

func applyConfig(state *connectionState, cfg ConfigMessage) {
	if cfg.Language != "" {
		state.language = cfg.Language
	}
	if cfg.TTSEnabled != nil {
		state.ttsEnabled = *cfg.TTSEnabled
	}
}

func (h *WebSocketHandler) sendInfo(conn *websocket.Conn, sessionID string, data map[string]any) {
	h.write(conn, outgoingMessage{
		Type:      "result",
		SessionID: sessionID,
		Data:      data,
		Timestamp: time.Now().Unix(),
	})
}

func (h *WebSocketHandler) sendError(conn *websocket.Conn, message string) {
	h.write(conn, outgoingMessage{
		Type:      "error",
		Data:      map[string]string{"message": message},
		Timestamp: time.Now().Unix(),
	})
}

func (h *WebSocketHandler) write(conn *websocket.Conn, msg outgoingMessage) {
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(msg); err != nil {
		log.WithError(err).Warn("ws.write")
	}
}

// pingLoop 定期发送ping；WriteControl 可与 WriteJSON 并发调用
func pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		}
	}
}

// headerRecorder 只收集 Set-Cookie，用于把 cookie 带进升级响应
type headerRecorder struct {
	header http.Header
}

func (h *headerRecorder) Header() http.Header         { return h.header }
func (h *headerRecorder) Write(b []byte) (int, error) { return len(b), nil }
func (h *headerRecorder) WriteHeader(int)             {}
