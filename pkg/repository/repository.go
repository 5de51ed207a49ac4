package repository

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"form-analytics/pkg/models"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// ErrNotFound is returned when a lookup matches no row or document
var ErrNotFound = errors.New("not found")

// ResponseRepository handles form response persistence
type ResponseRepository interface {
	Create(ctx context.Context, response *models.FormResponse) error
	GetByID(ctx context.Context, responseID string) (*models.FormResponse, error)
	// ListByTemplate returns every response for the template, oldest first
	ListByTemplate(ctx context.Context, templateID string) ([]models.FormResponse, error)
}

// TemplateRepository handles template definitions
type TemplateRepository interface {
	Create(ctx context.Context, template *models.Template) error
	GetByID(ctx context.Context, templateID string) (*models.Template, error)
}

// UserRepository handles user accounts
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, userID string) (*models.User, error)
}

// PostgresResponseRepository implements ResponseRepository
type PostgresResponseRepository struct {
	db *sql.DB
}

func NewPostgresResponseRepository(db *sql.DB) *PostgresResponseRepository {
	return &PostgresResponseRepository{db: db}
}

func (r *PostgresResponseRepository) Create(ctx context.Context, response *models.FormResponse) error {
	answersJSON, err := json.Marshal(response.Answers)
	if err != nil {
		return fmt.Errorf("failed to marshal answers: %w", err)
	}

	query := `
		INSERT INTO form_responses (id, template_id, user_id, answers, created_at)
		VALUES ($1, $2, $3, $4, COALESCE($5, NOW()))
		RETURNING created_at
	`

	err = r.db.QueryRowContext(ctx, query,
		response.ID,
		response.TemplateID,
		response.UserID,
		answersJSON,
		nullTime(response.CreatedAt),
	).Scan(&response.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to create response: %w", err)
	}

	return nil
}

const postgresResponseColumns = `
	r.id, r.template_id, r.user_id, COALESCE(u.name, ''), r.answers, r.created_at
	FROM form_responses r
	LEFT JOIN users u ON u.id = r.user_id
`

func (r *PostgresResponseRepository) GetByID(ctx context.Context, responseID string) (*models.FormResponse, error) {
	query := `SELECT` + postgresResponseColumns + `WHERE r.id = $1`

	response, err := scanResponse(r.db.QueryRowContext(ctx, query, responseID))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("response %s: %w", responseID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get response: %w", err)
	}

	return response, nil
}

func (r *PostgresResponseRepository) ListByTemplate(ctx context.Context, templateID string) ([]models.FormResponse, error) {
	query := `SELECT` + postgresResponseColumns + `
		WHERE r.template_id = $1
		ORDER BY r.created_at ASC, r.id ASC
	`

	rows, err := r.db.QueryContext(ctx, query, templateID)
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

// PostgresTemplateRepository implements TemplateRepository
type PostgresTemplateRepository struct {
	db *sql.DB
}

func NewPostgresTemplateRepository(db *sql.DB) *PostgresTemplateRepository {
	return &PostgresTemplateRepository{db: db}
}

func (r *PostgresTemplateRepository) Create(ctx context.Context, t *models.Template) error {
	if err := validateTemplate(t); err != nil {
		return err
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO templates (id, title, description, author_id, is_public, allowed_user_ids, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, NOW()), COALESCE($8, NOW()))
	`,
		t.ID, t.Title, t.Description, t.AuthorID, t.IsPublic,
		pq.Array(t.AllowedUserIDs), nullTime(t.CreatedAt), nullTime(t.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create template: %w", err)
	}

	for _, q := range t.Questions {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO questions (id, template_id, title, description, type, position, show_in_results, options)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, q.ID, t.ID, q.Title, q.Description, string(q.Type), q.Order, q.ShowInResults, pq.Array(q.Options))
		if err != nil {
			return fmt.Errorf("failed to create question %s: %w", q.ID, err)
		}
	}

	return tx.Commit()
}

func (r *PostgresTemplateRepository) GetByID(ctx context.Context, templateID string) (*models.Template, error) {
	query := `
		SELECT id, title, description, author_id, is_public, allowed_user_ids, created_at, updated_at
		FROM templates
		WHERE id = $1
	`

	var t models.Template
	err := r.db.QueryRowContext(ctx, query, templateID).Scan(
		&t.ID,
		&t.Title,
		&t.Description,
		&t.AuthorID,
		&t.IsPublic,
		pq.Array(&t.AllowedUserIDs),
		&t.CreatedAt,
		&t.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("template %s: %w", templateID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get template: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, template_id, title, description, type, position, show_in_results, options
		FROM questions
		WHERE template_id = $1
		ORDER BY position ASC
	`, templateID)
	if err != nil {
		return nil, fmt.Errorf("failed to query questions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var q models.Question
		err := rows.Scan(
			&q.ID,
			&q.TemplateID,
			&q.Title,
			&q.Description,
			&q.Type,
			&q.Order,
			&q.ShowInResults,
			pq.Array(&q.Options),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan question: %w", err)
		}
		t.Questions = append(t.Questions, q)
	}

	return &t, rows.Err()
}

// PostgresUserRepository implements UserRepository
type PostgresUserRepository struct {
	db *sql.DB
}

func NewPostgresUserRepository(db *sql.DB) *PostgresUserRepository {
	return &PostgresUserRepository{db: db}
}

func (r *PostgresUserRepository) Create(ctx context.Context, u *models.User) error {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO users (id, name, email, is_admin, is_blocked, created_at)
		VALUES ($1, $2, $3, $4, $5, COALESCE($6, NOW()))
		RETURNING created_at
	`, u.ID, u.Name, u.Email, u.IsAdmin, u.IsBlocked, nullTime(u.CreatedAt)).Scan(&u.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (r *PostgresUserRepository) GetByID(ctx context.Context, userID string) (*models.User, error) {
	return scanUser(r.db.QueryRowContext(ctx, `
		SELECT id, name, email, is_admin, is_blocked, created_at
		FROM users
		WHERE id = $1
	`, userID), userID)
}

// rowScanner is satisfied by *sql.Row and *sql.Rows
// validateTemplate rejects templates the analytics engine could not use.
// The *models.ValidationError stays reachable through errors.As.
func validateTemplate(t *models.Template) error {
	if err := t.Validate(); err != nil {
		return fmt.Errorf("invalid template: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanResponse(row rowScanner) (*models.FormResponse, error) {
	var resp models.FormResponse
	var answersJSON []byte

	err := row.Scan(
		&resp.ID,
		&resp.TemplateID,
		&resp.UserID,
		&resp.UserName,
		&answersJSON,
		&resp.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	resp.Answers, err = decodeAnswers(answersJSON)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal answers: %w", err)
	}
	return &resp, nil
}

func scanUser(row rowScanner, userID string) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.IsAdmin, &u.IsBlocked, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &u, nil
}

// decodeAnswers keeps numbers as json.Number so large integers survive
func decodeAnswers(b []byte) ([]models.Answer, error) {
	answers := []models.Answer{}
	if len(b) == 0 {
		return answers, nil
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(&answers); err != nil {
		return nil, err
	}
	return answers, nil
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}

// GenerateID generates a new UUID
func GenerateID() string {
	return uuid.New().String()
}
