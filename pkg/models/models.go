package models

import (
	"sort"
	"time"
)

// QuestionType defines which answer shape a question accepts
type QuestionType string

const (
	QuestionTypeText      QuestionType = "text"       // Single-line string
	QuestionTypeMultiLine QuestionType = "multi-line" // Free-form string
	QuestionTypeInteger   QuestionType = "integer"    // Whole number
	QuestionTypeCheckbox  QuestionType = "checkbox"   // Boolean
	QuestionTypeSelect    QuestionType = "select"     // One of Options
)

// IsNumeric reports whether answers of this type feed numeric statistics
func (t QuestionType) IsNumeric() bool {
	return t == QuestionTypeInteger
}

// User represents an account known to the identity provider
type User struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Email     string    `json:"email" db:"email"`
	IsAdmin   bool      `json:"is_admin" db:"is_admin"`
	IsBlocked bool      `json:"is_blocked" db:"is_blocked"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Question is a typed prompt inside a template
type Question struct {
	ID            string       `json:"id" db:"id"`
	TemplateID    string       `json:"template_id,omitempty" db:"template_id"`
	Title         string       `json:"title" db:"title"`
	Description   string       `json:"description" db:"description"`
	Type          QuestionType `json:"type" db:"type"`
	Order         int          `json:"order" db:"position"`
	ShowInResults bool         `json:"show_in_results" db:"show_in_results"`
	Options       []string     `json:"options,omitempty" db:"options"` // select only
}

// Template is a form definition owned by its author
type Template struct {
	ID             string     `json:"id" db:"id"`
	Title          string     `json:"title" db:"title"`
	Description    string     `json:"description" db:"description"`
	AuthorID       string     `json:"author_id" db:"author_id"`
	IsPublic       bool       `json:"is_public" db:"is_public"`
	AllowedUserIDs []string   `json:"allowed_user_ids,omitempty" db:"allowed_user_ids"`
	Questions      []Question `json:"questions"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`
}

// OrderedQuestions returns a copy of the questions in display order.
// Questions sharing an order keep their declaration order.
func (t *Template) OrderedQuestions() []Question {
	out := make([]Question, len(t.Questions))
	copy(out, t.Questions)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

// Question looks up a question by id
func (t *Template) Question(id string) (Question, bool) {
	for _, q := range t.Questions {
		if q.ID == id {
			return q, true
		}
	}
	return Question{}, false
}

// Answer is a single raw answer value as submitted.
// Value is decoded JSON (string, float64, bool, json.Number) and is only
// trusted after TypedValue accepts it for the owning question.
type Answer struct {
	QuestionID string `json:"question_id"`
	Value      any    `json:"value"`
}

// FormResponse represents one user's submission to a template
type FormResponse struct {
	ID         string    `json:"id" db:"id"`
	TemplateID string    `json:"template_id" db:"template_id"`
	UserID     string    `json:"user_id" db:"user_id"`
	UserName   string    `json:"user_name" db:"user_name"` // joined from users
	Answers    []Answer  `json:"answers" db:"answers"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// AnswerFor returns the first answer for the question, if any
func (r *FormResponse) AnswerFor(questionID string) (Answer, bool) {
	for _, a := range r.Answers {
		if a.QuestionID == questionID {
			return a, true
		}
	}
	return Answer{}, false
}

// TimeRange represents a date range. Zero bounds are open.
type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// Contains reports whether t falls inside the range (inclusive)
func (r TimeRange) Contains(t time.Time) bool {
	if !r.From.IsZero() && t.Before(r.From) {
		return false
	}
	if !r.To.IsZero() && t.After(r.To) {
		return false
	}
	return true
}

// SubmitResponseRequest represents API request to submit a response
type SubmitResponseRequest struct {
	Answers []Answer `json:"answers"`
}

// SubmitResponseResponse represents API response
type SubmitResponseResponse struct {
	ResponseID  string    `json:"response_id"`
	SubmittedAt time.Time `json:"submitted_at"`
}
