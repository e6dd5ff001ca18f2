package language

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/janvani/backend/internal/model/language"
	"github.com/zhouzirui/janvani/backend/pkg/utils"
)

// Handler 语言目录的HTTP处理器
type Handler struct {
	catalog language.Store
}

// New 创建语言目录处理器
func New(catalog language.Store) *Handler {
	return &Handler{catalog: catalog}
}

// RegisterRoutes 注册语言目录路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/get_languages", h.handleListLanguages)
}

type languageView struct {
	Code        string `json:"code"`
	DisplayName string `json:"displayName"`
	NativeName  string `json:"nativeName,omitempty"`
}

// handleListLanguages 返回静态目录，与会话状态无关
func (h *Handler) handleListLanguages(w http.ResponseWriter, _ *http.Request) {
	entries := h.catalog.List()
	views := make([]languageView, 0, len(entries))
	for _, e := range entries {
		views = append(views, languageView{Code: e.Code, DisplayName: e.DisplayName, NativeName: e.NativeName})
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{"languages": views})
}
