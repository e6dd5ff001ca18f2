package utils

import (
	"encoding/json"
	"net/http"

	"github.com/apex/log"

	"github.com/zhouzirui/janvani/backend/internal/errs"
)

// RespondJSON 发送JSON响应
func RespondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.WithError(err).Error("failed to encode response")
	}
}

// RespondError 发送错误响应
func RespondError(w http.ResponseWriter, status int, message string) {
	RespondJSON(w, status, map[string]string{"error": message})
}

// RespondAppError 按错误类别映射状态码，只向客户端返回通用描述。
func RespondAppError(w http.ResponseWriter, err error) {
	status := errs.HTTPStatus(err)
	if status >= http.StatusInternalServerError && status != http.StatusBadGateway {
		log.WithError(err).Error("request failed")
	}
	RespondError(w, status, errs.PublicMessage(err))
}
