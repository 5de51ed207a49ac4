package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"form-analytics/pkg/models"

	_ "github.com/mattn/go-sqlite3"
)

// OpenSQLite opens a SQLite database with foreign keys enabled.
// Use ":memory:" for a throwaway database.
func OpenSQLite(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", sqliteDSN(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	// A single connection keeps in-memory databases alive and serialises writers.
	db.SetMaxOpenConns(1)
	return db, nil
}

// sqliteDSN appends the foreign key switch to any query the path carries
func sqliteDSN(path string) string {
	if strings.Contains(path, "?") {
		return path + "&_foreign_keys=on"
	}
	return path + "?_foreign_keys=on"
}

// SQLiteResponseRepository implements ResponseRepository
type SQLiteResponseRepository struct {
	db *sql.DB
}

func NewSQLiteResponseRepository(db *sql.DB) *SQLiteResponseRepository {
	return &SQLiteResponseRepository{db: db}
}

func (r *SQLiteResponseRepository) Create(ctx context.Context, response *models.FormResponse) error {
	answersJSON, err := json.Marshal(response.Answers)
	if err != nil {
		return fmt.Errorf("failed to marshal answers: %w", err)
	}
	if response.CreatedAt.IsZero() {
		response.CreatedAt = time.Now()
	}
	response.CreatedAt = response.CreatedAt.UTC()

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO form_responses (id, template_id, user_id, answers, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, response.ID, response.TemplateID, response.UserID, string(answersJSON), response.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create response: %w", err)
	}
	return nil
}

const sqliteResponseColumns = `
	r.id, r.template_id, r.user_id, COALESCE(u.name, ''), r.answers, r.created_at
	FROM form_responses r
	LEFT JOIN users u ON u.id = r.user_id
`

func (r *SQLiteResponseRepository) GetByID(ctx context.Context, responseID string) (*models.FormResponse, error) {
	response, err := scanResponse(r.db.QueryRowContext(ctx, `SELECT`+sqliteResponseColumns+`WHERE r.id = ?`, responseID))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("response %s: %w", responseID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get response: %w", err)
	}
	return response, nil
}

func (r *SQLiteResponseRepository) ListByTemplate(ctx context.Context, templateID string) ([]models.FormResponse, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT`+sqliteResponseColumns+`
		WHERE r.template_id = ?
		ORDER BY r.created_at ASC, r.id ASC
	`, templateID)
	if err != nil {
		return nil, fmt.Errorf("failed to query responses: %w", err)
	}
	defer rows.Close()

	responses := []models.FormResponse{}
	for rows.Next() {
		resp, err := scanResponse(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		responses = append(responses, *resp)
	}
	return responses, rows.Err()
}

// SQLiteTemplateRepository implements TemplateRepository. Options and
// allowed user IDs are stored as JSON arrays.
type SQLiteTemplateRepository struct {
	db *sql.DB
}

func NewSQLiteTemplateRepository(db *sql.DB) *SQLiteTemplateRepository {
	return &SQLiteTemplateRepository{db: db}
}

func (r *SQLiteTemplateRepository) Create(ctx context.Context, t *models.Template) error {
	if err := validateTemplate(t); err != nil {
		return err
	}
	allowed, err := json.Marshal(nonNil(t.AllowedUserIDs))
	if err != nil {
		return fmt.Errorf("failed to marshal allowed users: %w", err)
	}
	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = t.CreatedAt
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO templates (id, title, description, author_id, is_public, allowed_user_ids, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.Title, t.Description, t.AuthorID, t.IsPublic, string(allowed), t.CreatedAt.UTC(), t.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to create template: %w", err)
	}

	for _, q := range t.Questions {
		options, err := json.Marshal(nonNil(q.Options))
		if err != nil {
			return fmt.Errorf("failed to marshal options: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO questions (id, template_id, title, description, type, position, show_in_results, options)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, q.ID, t.ID, q.Title, q.Description, string(q.Type), q.Order, q.ShowInResults, string(options))
		if err != nil {
			return fmt.Errorf("failed to create question %s: %w", q.ID, err)
		}
	}

	return tx.Commit()
}

func (r *SQLiteTemplateRepository) GetByID(ctx context.Context, templateID string) (*models.Template, error) {
	var t models.Template
	var allowed string
	err := r.db.QueryRowContext(ctx, `
		SELECT id, title, description, author_id, is_public, allowed_user_ids, created_at, updated_at
		FROM templates
		WHERE id = ?
	`, templateID).Scan(&t.ID, &t.Title, &t.Description, &t.AuthorID, &t.IsPublic, &allowed, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("template %s: %w", templateID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get template: %w", err)
	}
	if err := json.Unmarshal([]byte(allowed), &t.AllowedUserIDs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal allowed users: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, template_id, title, description, type, position, show_in_results, options
		FROM questions
		WHERE template_id = ?
		ORDER BY position ASC
	`, templateID)
	if err != nil {
		return nil, fmt.Errorf("failed to query questions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var q models.Question
		var options string
		if err := rows.Scan(&q.ID, &q.TemplateID, &q.Title, &q.Description, &q.Type, &q.Order, &q.ShowInResults, &options); err != nil {
			return nil, fmt.Errorf("failed to scan question: %w", err)
		}
		if err := json.Unmarshal([]byte(options), &q.Options); err != nil {
			return nil, fmt.Errorf("failed to unmarshal options: %w", err)
		}
		if len(q.Options) == 0 {
			q.Options = nil
		}
		t.Questions = append(t.Questions, q)
	}

	return &t, rows.Err()
}

// SQLiteUserRepository implements UserRepository
type SQLiteUserRepository struct {
	db *sql.DB
}

func NewSQLiteUserRepository(db *sql.DB) *SQLiteUserRepository {
	return &SQLiteUserRepository{db: db}
}

func (r *SQLiteUserRepository) Create(ctx context.Context, u *models.User) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	u.CreatedAt = u.CreatedAt.UTC()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, name, email, is_admin, is_blocked, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, u.ID, u.Name, u.Email, u.IsAdmin, u.IsBlocked, u.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (r *SQLiteUserRepository) GetByID(ctx context.Context, userID string) (*models.User, error) {
	return scanUser(r.db.QueryRowContext(ctx, `
		SELECT id, name, email, is_admin, is_blocked, created_at
		FROM users
		WHERE id = ?
	`, userID), userID)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
