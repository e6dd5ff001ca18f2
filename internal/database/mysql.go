// Package database 提供 MySQL 连接与投诉/申请记录的持久化。
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/apex/log"
	"github.com/go-sql-driver/mysql"

	"github.com/zhouzirui/janvani/backend/internal/model/casework"
)

// Options 连接池参数
type Options struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DefaultOptions returns the pool settings used in production.
func DefaultOptions() Options {
	return Options{
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// Open connects to MySQL and verifies the connection. parseTime is forced on so TIMESTAMP
// columns scan into time.Time.
func Open(ctx context.Context, dsn string, opts Options) (*sql.DB, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse mysql dsn: %w", err)
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC

	db, err := sql.Open("mysql", cfg.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(opts.MaxOpenConns)
	db.SetMaxIdleConns(opts.MaxIdleConns)
	db.SetConnMaxLifetime(opts.ConnMaxLifetime)

	log.WithFields(log.Fields{"addr": cfg.Addr, "db": cfg.DBName}).Info("database.connected")
	return db, nil
}

// CaseworkStore implements casework.Store on MySQL.
type CaseworkStore struct {
	db *sql.DB
}

var _ casework.Store = (*CaseworkStore)(nil)

// NewCaseworkStore wraps an open connection.
func NewCaseworkStore(db *sql.DB) *CaseworkStore {
	return &CaseworkStore{db: db}
}

// EnsureSchema creates the complaints and applications tables if they do not exist.
func (s *CaseworkStore) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS complaints (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			name VARCHAR(255) NOT NULL DEFAULT '',
			contact VARCHAR(255) NOT NULL DEFAULT '',
			issue TEXT NOT NULL,
			status VARCHAR(32) NOT NULL DEFAULT 'open',
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS applications (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			applicant_name VARCHAR(255) NOT NULL DEFAULT '',
			application_type VARCHAR(64) NOT NULL DEFAULT '',
			details JSON,
			status VARCHAR(32) NOT NULL DEFAULT 'submitted',
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to ensure casework schema: %w", err)
		}
	}
	return nil
}

func (s *CaseworkStore) CreateComplaint(ctx context.Context, c *casework.Complaint) error {
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO complaints (name, contact, issue, status) VALUES (?, ?, ?, ?)",
		c.Name, c.Contact, c.Issue, c.Status)
	if err != nil {
		return fmt.Errorf("failed to insert complaint: %w", err)
	}
	if c.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("failed to read complaint id: %w", err)
	}
	c.CreatedAt = time.Now().UTC()
	return nil
}

func (s *CaseworkStore) ListComplaints(ctx context.Context) ([]casework.Complaint, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, contact, issue, status, created_at FROM complaints ORDER BY created_at DESC, id DESC")
	if err != nil {
		return nil, fmt.Errorf("failed to list complaints: %w", err)
	}
	defer rows.Close()

	var out []casework.Complaint
	for rows.Next() {
		var c casework.Complaint
		if err := rows.Scan(&c.ID, &c.Name, &c.Contact, &c.Issue, &c.Status, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan complaint: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *CaseworkStore) GetComplaint(ctx context.Context, id int64) (casework.Complaint, error) {
	var c casework.Complaint
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, contact, issue, status, created_at FROM complaints WHERE id = ?", id).
		Scan(&c.ID, &c.Name, &c.Contact, &c.Issue, &c.Status, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return casework.Complaint{}, casework.ErrNotFound
	}
	if err != nil {
		return casework.Complaint{}, fmt.Errorf("failed to get complaint %d: %w", id, err)
	}
	return c, nil
}

func (s *CaseworkStore) UpdateComplaintStatus(ctx context.Context, id int64, status string) error {
	return s.updateStatus(ctx, "complaints", id, status)
}

func (s *CaseworkStore) CreateApplication(ctx context.Context, a *casework.Application) error {
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO applications (applicant_name, application_type, details, status) VALUES (?, ?, ?, ?)",
		a.ApplicantName, a.ApplicationType, string(a.Details), a.Status)
	if err != nil {
		return fmt.Errorf("failed to insert application: %w", err)
	}
	if a.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("failed to read application id: %w", err)
	}
	a.CreatedAt = time.Now().UTC()
	return nil
}

func (s *CaseworkStore) ListApplications(ctx context.Context) ([]casework.Application, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, applicant_name, application_type, details, status, created_at FROM applications ORDER BY created_at DESC, id DESC")
	if err != nil {
		return nil, fmt.Errorf("failed to list applications: %w", err)
	}
	defer rows.Close()

	var out []casework.Application
	for rows.Next() {
		a, err := scanApplication(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *CaseworkStore) GetApplication(ctx context.Context, id int64) (casework.Application, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, applicant_name, application_type, details, status, created_at FROM applications WHERE id = ?", id)
	a, err := scanApplication(row)
	if errors.Is(err, sql.ErrNoRows) {
		return casework.Application{}, casework.ErrNotFound
	}
	return a, err
}

func (s *CaseworkStore) UpdateApplicationStatus(ctx context.Context, id int64, status string) error {
	return s.updateStatus(ctx, "applications", id, status)
}

// updateStatus 的 table 只来自本包常量，不接受外部输入。
func (s *CaseworkStore) updateStatus(ctx context.Context, table string, id int64, status string) error {
	res, err := s.db.ExecContext(ctx, "UPDATE "+table+" SET status = ? WHERE id = ?", status, id)
	if err != nil {
		return fmt.Errorf("failed to update %s status: %w", table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		// MySQL 对值未变化的行返回 0，需要再确认记录是否存在
		var exists int
		err := s.db.QueryRowContext(ctx, "SELECT 1 FROM "+table+" WHERE id = ?", id).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return casework.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to check %s existence: %w", table, err)
		}
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanApplication(row scanner) (casework.Application, error) {
	var (
		a       casework.Application
		details sql.NullString
	)
	if err := row.Scan(&a.ID, &a.ApplicantName, &a.ApplicationType, &details, &a.Status, &a.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return casework.Application{}, err
		}
		return casework.Application{}, fmt.Errorf("failed to scan application: %w", err)
	}
	if details.Valid && details.String != "" {
		a.Details = []byte(details.String)
	} else {
		a.Details = []byte("{}")
	}
	return a, nil
}
