package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/janvani/backend/internal/errs"
	"github.com/zhouzirui/janvani/backend/internal/model/chat"
	"github.com/zhouzirui/janvani/backend/internal/model/language"
	chatservice "github.com/zhouzirui/janvani/backend/internal/service/chat"
	"github.com/zhouzirui/janvani/backend/internal/service/conversation"
	"github.com/zhouzirui/janvani/backend/internal/session"
	"github.com/zhouzirui/janvani/backend/pkg/utils"
)

const maxBodyBytes = 1 << 20

// Conversation is the orchestrator surface the handler needs.
type Conversation interface {
	HandleTurn(ctx context.Context, req conversation.TurnRequest) (conversation.TurnResult, error)
	Transcript(ctx context.Context, sessionID string) ([]chat.Turn, error)
	Reset(ctx context.Context, sessionID string) error
}

// Translator backs the standalone /translate endpoint.
type Translator interface {
	Translate(ctx context.Context, text, source, target string) (string, error)
}

// Handler 聊天服务的HTTP处理器
type Handler struct {
	conv       Conversation
	translator Translator
	catalog    language.Store
	sessions   *session.Manager
}

// New 创建聊天处理器
func New(conv Conversation, translator Translator, catalog language.Store, sessions *session.Manager) *Handler {
	return &Handler{
		conv:       conv,
		translator: translator,
		catalog:    catalog,
		sessions:   sessions,
	}
}

// RegisterRoutes 注册聊天相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/chat", h.handleChat)
	r.Post("/translate", h.handleTranslate)
	r.Get("/history", h.handleHistory)
	r.Delete("/history", h.handleResetHistory)
}

type chatRequest struct {
	Message   string `json:"message"`
	Language  string `json:"language"`
	SessionID string `json:"sessionId"`
}

type chatResponse struct {
	Reply     string `json:"reply"`
	Language  string `json:"language"`
	SessionID string `json:"sessionId"`
}

// handleChat 处理一轮对话
func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	var payload chatRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		utils.RespondAppError(w, err)
		return
	}

	if strings.TrimSpace(payload.Message) == "" {
		utils.RespondError(w, http.StatusBadRequest, "message is required")
		return
	}

	sessionID, err := h.sessions.Resolve(w, r, strings.TrimSpace(payload.SessionID))
	if err != nil {
		utils.RespondAppError(w, err)
		return
	}

	result, err := h.conv.HandleTurn(r.Context(), conversation.TurnRequest{
		SessionID: sessionID,
		Text:      payload.Message,
		Language:  payload.Language,
	})
	if err != nil {
		utils.RespondAppError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, chatResponse{
		Reply:     result.Reply,
		Language:  result.Language,
		SessionID: result.SessionID,
	})
}

type translateRequest struct {
	Text           string `json:"text"`
	SourceLanguage string `json:"sourceLanguage"`
	TargetLanguage string `json:"targetLanguage"`
}

type translateResponse struct {
	TranslatedText string `json:"translatedText"`
	SourceLanguage string `json:"sourceLanguage"`
	TargetLanguage string `json:"targetLanguage"`
}

// handleTranslate 独立翻译接口
func (h *Handler) handleTranslate(w http.ResponseWriter, r *http.Request) {
	var payload translateRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		utils.RespondAppError(w, err)
		return
	}

	if strings.TrimSpace(payload.Text) == "" {
		utils.RespondError(w, http.StatusBadRequest, "text is required")
		return
	}

	source, target := language.Normalize(payload.SourceLanguage), language.Normalize(payload.TargetLanguage)
	for _, code := range []string{source, target} {
		if _, ok := h.catalog.FindByCode(code); !ok {
			utils.RespondAppError(w, errs.E(errs.KindInvalidLanguage, "chat.translate", fmt.Errorf("unknown language %q", code)))
			return
		}
	}

	out, err := h.translator.Translate(r.Context(), payload.Text, source, target)
	if err != nil {
		utils.RespondAppError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, translateResponse{
		TranslatedText: out,
		SourceLanguage: source,
		TargetLanguage: target,
	})
}

type historyResponse struct {
	SessionID string      `json:"sessionId"`
	Turns     []chat.Turn `json:"turns"`
}

// handleHistory 返回会话全部轮次
func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.sessionFromQuery(w, r)
	if !ok {
		return
	}

	turns, err := h.conv.Transcript(r.Context(), sessionID)
	if errors.Is(err, chatservice.ErrSessionNotFound) {
		utils.RespondError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		utils.RespondAppError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, historyResponse{SessionID: sessionID, Turns: turns})
}

// handleResetHistory 清空会话
func (h *Handler) handleResetHistory(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.sessionFromQuery(w, r)
	if !ok {
		return
	}

	if err := h.conv.Reset(r.Context(), sessionID); err != nil {
		utils.RespondAppError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) sessionFromQuery(w http.ResponseWriter, r *http.Request) (string, bool) {
	sessionID := strings.TrimSpace(r.URL.Query().Get("sessionId"))
	if sessionID == "" {
		sessionID = h.sessions.FromRequest(r)
	}
	if sessionID == "" {
		utils.RespondError(w, http.StatusBadRequest, "sessionId is required")
		return "", false
	}
	if !chat.ValidSessionID(sessionID) {
		utils.RespondError(w, http.StatusBadRequest, "invalid sessionId")
		return "", false
	}
	return sessionID, true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return errs.E(errs.KindInvalidInput, "chat.decode", err)
	}
	return nil
}
