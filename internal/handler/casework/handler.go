package casework

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/janvani/backend/internal/model/casework"
	caseworkservice "github.com/zhouzirui/janvani/backend/internal/service/casework"
	"github.com/zhouzirui/janvani/backend/pkg/utils"
)

const maxBodyBytes = 1 << 20

// Handler 投诉与申请的HTTP处理器
type Handler struct {
	svc *caseworkservice.Service
}

// New 创建处理器
func New(svc *caseworkservice.Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes 注册投诉与申请路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/complaints", func(cr chi.Router) {
		cr.Post("/", h.handleCreateComplaint)
		cr.Get("/", h.handleListComplaints)
		cr.Get("/{id}", h.handleGetComplaint)
		cr.Patch("/{id}", h.handleUpdateComplaint)
	})
	r.Route("/applications", func(ar chi.Router) {
		ar.Post("/", h.handleCreateApplication)
		ar.Get("/", h.handleListApplications)
		ar.Get("/{id}", h.handleGetApplication)
		ar.Patch("/{id}", h.handleUpdateApplication)
	})
}

type complaintRequest struct {
	Name    string `json:"name"`
	Contact string `json:"contact"`
	Issue   string `json:"issue"`
}

type applicationRequest struct {
	ApplicantName   string          `json:"applicantName"`
	ApplicationType string          `json:"applicationType"`
	Details         json.RawMessage `json:"details"`
}

type statusRequest struct {
	Status string `json:"status"`
}

type statusResponse struct {
	ID     int64  `json:"id"`
	Status string `json:"status"`
}

func (h *Handler) handleCreateComplaint(w http.ResponseWriter, r *http.Request) {
	var req complaintRequest
	if !decode(w, r, &req) {
		return
	}

	c, err := h.svc.FileComplaint(r.Context(), caseworkservice.ComplaintInput{
		Name:    req.Name,
		Contact: req.Contact,
		Issue:   req.Issue,
	})
	if err != nil {
		respondStoreError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusCreated, c)
}

func (h *Handler) handleListComplaints(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.ListComplaints(r.Context())
	if err != nil {
		respondStoreError(w, err)
		return
	}
	if list == nil {
		list = []casework.Complaint{}
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{"complaints": list})
}

func (h *Handler) handleGetComplaint(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	c, err := h.svc.GetComplaint(r.Context(), id)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, c)
}

func (h *Handler) handleUpdateComplaint(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req statusRequest
	if !decode(w, r, &req) {
		return
	}
	status, err := h.svc.UpdateComplaintStatus(r.Context(), id, req.Status)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, statusResponse{ID: id, Status: status})
}

func (h *Handler) handleCreateApplication(w http.ResponseWriter, r *http.Request) {
	var req applicationRequest
	if !decode(w, r, &req) {
		return
	}

	a, err := h.svc.SubmitApplication(r.Context(), caseworkservice.ApplicationInput{
		ApplicantName:   req.ApplicantName,
		ApplicationType: req.ApplicationType,
		Details:         req.Details,
	})
	if err != nil {
		respondStoreError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusCreated, a)
}

func (h *Handler) handleListApplications(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.ListApplications(r.Context())
	if err != nil {
		respondStoreError(w, err)
		return
	}
	if list == nil {
		list = []casework.Application{}
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{"applications": list})
}

func (h *Handler) handleGetApplication(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	a, err := h.svc.GetApplication(r.Context(), id)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, a)
}

func (h *Handler) handleUpdateApplication(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req statusRequest
	if !decode(w, r, &req) {
		return
	}
	status, err := h.svc.UpdateApplicationStatus(r.Context(), id, req.Status)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, statusResponse{ID: id, Status: status})
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 1 {
		utils.RespondError(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

func respondStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, casework.ErrNotFound) {
		utils.RespondError(w, http.StatusNotFound, "not found")
		return
	}
	utils.RespondAppError(w, err)
}
