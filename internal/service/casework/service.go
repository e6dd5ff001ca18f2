// Package casework validates and records complaints and certificate applications.
package casework

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/apex/log"

	"github.com/zhouzirui/janvani/backend/internal/errs"
	"github.com/zhouzirui/janvani/backend/internal/model/casework"
)

var (
	complaintStatuses   = []string{"open", "in_progress", "resolved", "closed"}
	applicationStatuses = []string{"submitted", "in_review", "approved", "rejected"}
)

const maxFieldLen = 255

// Service 投诉与申请的业务逻辑
type Service struct {
	store casework.Store
}

// NewService creates the casework service.
func NewService(store casework.Store) *Service {
	return &Service{store: store}
}

// ComplaintInput 新建投诉的字段
type ComplaintInput struct {
	Name    string
	Contact string
	Issue   string
}

// ApplicationInput 新建申请的字段
type ApplicationInput struct {
	ApplicantName   string
	ApplicationType string
	Details         json.RawMessage
}

// FileComplaint records a complaint with status open. Issue is required.
func (s *Service) FileComplaint(ctx context.Context, in ComplaintInput) (casework.Complaint, error) {
	const op = "casework.FileComplaint"

	c := casework.Complaint{
		Name:    strings.TrimSpace(in.Name),
		Contact: strings.TrimSpace(in.Contact),
		Issue:   strings.TrimSpace(in.Issue),
		Status:  casework.ComplaintOpen,
	}
	if c.Issue == "" {
		return casework.Complaint{}, errs.New(errs.KindInvalidInput, op, "issue is required")
	}
	if len(c.Name) > maxFieldLen || len(c.Contact) > maxFieldLen {
		return casework.Complaint{}, errs.New(errs.KindInvalidInput, op, "field too long")
	}

	if err := s.store.CreateComplaint(ctx, &c); err != nil {
		return casework.Complaint{}, err
	}
	log.WithFields(log.Fields{"id": c.ID}).Info("casework.complaint.created")
	return c, nil
}

func (s *Service) ListComplaints(ctx context.Context) ([]casework.Complaint, error) {
	return s.store.ListComplaints(ctx)
}

func (s *Service) GetComplaint(ctx context.Context, id int64) (casework.Complaint, error) {
	return s.store.GetComplaint(ctx, id)
}

// UpdateComplaintStatus moves a complaint to one of open, in_progress, resolved or closed.
func (s *Service) UpdateComplaintStatus(ctx context.Context, id int64, status string) (string, error) {
	status, err := normalizeStatus("casework.UpdateComplaintStatus", status, complaintStatuses)
	if err != nil {
		return "", err
	}
	if err := s.store.UpdateComplaintStatus(ctx, id, status); err != nil {
		return "", err
	}
	return status, nil
}

// SubmitApplication records an application with status submitted. Details must be a JSON object
// when present.
func (s *Service) SubmitApplication(ctx context.Context, in ApplicationInput) (casework.Application, error) {
	const op = "casework.SubmitApplication"

	a := casework.Application{
		ApplicantName:   strings.TrimSpace(in.ApplicantName),
		ApplicationType: strings.ToLower(strings.TrimSpace(in.ApplicationType)),
		Details:         in.Details,
		Status:          casework.ApplicationSubmitted,
	}
	if len(a.ApplicantName) > maxFieldLen || len(a.ApplicationType) > 64 {
		return casework.Application{}, errs.New(errs.KindInvalidInput, op, "field too long")
	}
	if len(a.Details) == 0 || string(a.Details) == "null" {
		a.Details = json.RawMessage("{}")
	}
	var obj map[string]any
	if err := json.Unmarshal(a.Details, &obj); err != nil {
		return casework.Application{}, errs.E(errs.KindInvalidInput, op, fmt.Errorf("details must be an object: %w", err))
	}

	if err := s.store.CreateApplication(ctx, &a); err != nil {
		return casework.Application{}, err
	}
	log.WithFields(log.Fields{"id": a.ID, "type": a.ApplicationType}).Info("casework.application.created")
	return a, nil
}

func (s *Service) ListApplications(ctx context.Context) ([]casework.Application, error) {
	return s.store.ListApplications(ctx)
}

func (s *Service) GetApplication(ctx context.Context, id int64) (casework.Application, error) {
	return s.store.GetApplication(ctx, id)
}

// UpdateApplicationStatus moves an application to submitted, in_review, approved or rejected.
func (s *Service) UpdateApplicationStatus(ctx context.Context, id int64, status string) (string, error) {
	status, err := normalizeStatus("casework.UpdateApplicationStatus", status, applicationStatuses)
	if err != nil {
		return "", err
	}
	if err := s.store.UpdateApplicationStatus(ctx, id, status); err != nil {
		return "", err
	}
	return status, nil
}

func normalizeStatus(op, status string, allowed []string) (string, error) {
	status = strings.ToLower(strings.TrimSpace(status))
	if status == "" {
		return "", errs.New(errs.KindInvalidInput, op, "status is required")
	}
	for _, s := range allowed {
		if s == status {
			return status, nil
		}
	}
	return "", errs.E(errs.KindInvalidInput, op, fmt.Errorf("status %q not one of %s", status, strings.Join(allowed, ", ")))
}
