// Package casework 描述市民提交的投诉与证件申请。
package casework

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var ErrNotFound = errors.New("casework record not found")

const (
	ComplaintOpen        = "open"
	ApplicationSubmitted = "submitted"
)

// Complaint 投诉工单
type Complaint struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Contact   string    `json:"contact"`
	Issue     string    `json:"issue"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

// Application 证件或服务申请，例如出生证明、收入证明、水费。
type Application struct {
	ID              int64           `json:"id"`
	ApplicantName   string          `json:"applicantName"`
	ApplicationType string          `json:"applicationType"`
	Details         json.RawMessage `json:"details"`
	Status          string          `json:"status"`
	CreatedAt       time.Time       `json:"createdAt"`
}

// Store persists complaints and applications. List methods return newest first.
type Store interface {
	CreateComplaint(ctx context.Context, c *Complaint) error
	ListComplaints(ctx context.Context) ([]Complaint, error)
	GetComplaint(ctx context.Context, id int64) (Complaint, error)
	UpdateComplaintStatus(ctx context.Context, id int64, status string) error

	CreateApplication(ctx context.Context, a *Application) error
	ListApplications(ctx context.Context) ([]Application, error)
	GetApplication(ctx context.Context, id int64) (Application, error)
	UpdateApplicationStatus(ctx context.Context, id int64, status string) error
}
