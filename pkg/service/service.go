package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/text/language"

	"form-analytics/pkg/analytics"
	"form-analytics/pkg/models"
	"form-analytics/pkg/repository"
)

// ExportResult is a rendered download
type ExportResult struct {
	Filename    string
	ContentType string
	Body        []byte
}

const csvContentType = "text/csv; charset=utf-8"

// AnalyticsService serves aggregate views of a template's responses
type AnalyticsService struct {
	templateRepo repository.TemplateRepository
	responseRepo repository.ResponseRepository
	logger       *slog.Logger
}

func NewAnalyticsService(
	templateRepo repository.TemplateRepository,
	responseRepo repository.ResponseRepository,
	logger *slog.Logger,
) *AnalyticsService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AnalyticsService{
		templateRepo: templateRepo,
		responseRepo: responseRepo,
		logger:       logger,
	}
}

// Snapshot computes the analytics block for a template the user may view
func (s *AnalyticsService) Snapshot(ctx context.Context, user *models.User, templateID string, opts analytics.Options) (*models.AnalyticsSnapshot, error) {
	tmpl, responses, err := loadResults(ctx, s.templateRepo, s.responseRepo, user, templateID)
	if err != nil {
		return nil, err
	}
	return s.compute(tmpl, responses, opts)
}

// Chart projects one question into a chart series. ok is false when the
// kind is unknown, the question is missing, or the kind needs data the
// question does not have.
func (s *AnalyticsService) Chart(ctx context.Context, user *models.User, templateID, questionID string, kind models.ChartKind) (models.ChartSeries, bool, error) {
	tmpl, responses, err := loadResults(ctx, s.templateRepo, s.responseRepo, user, templateID)
	if err != nil {
		return models.ChartSeries{}, false, err
	}
	snapshot, err := s.compute(tmpl, responses, analytics.Options{TimeSeries: kind == models.ChartKindLine})
	if err != nil {
		return models.ChartSeries{}, false, err
	}
	series, ok := analytics.Project(snapshot, kind, questionID)
	return series, ok, nil
}

// ExportCSV renders the per-question summary as a CSV download
func (s *AnalyticsService) ExportCSV(ctx context.Context, user *models.User, templateID string) (*ExportResult, error) {
	tmpl, responses, err := loadResults(ctx, s.templateRepo, s.responseRepo, user, templateID)
	if err != nil {
		return nil, err
	}
	snapshot, err := s.compute(tmpl, responses, analytics.Options{})
	if err != nil {
		return nil, err
	}
	body, err := analytics.ToCSV(tmpl, snapshot)
	if err != nil {
		return nil, fmt.Errorf("failed to render csv: %w", err)
	}
	return &ExportResult{
		Filename:    analytics.ExportFilename(tmpl),
		ContentType: csvContentType,
		Body:        []byte(body),
	}, nil
}

func (s *AnalyticsService) compute(tmpl *models.Template, responses []models.FormResponse, opts analytics.Options) (*models.AnalyticsSnapshot, error) {
	snapshot, err := analytics.ComputeAnalytics(tmpl, responses, opts)
	if err != nil {
		// Stored templates are validated on write, so this is a data fault.
		s.logger.Error("stored template rejected by analytics", "template_id", tmpl.ID, "error", err)
		return nil, fmt.Errorf("failed to compute analytics: %w", err)
	}
	return snapshot, nil
}

// ResponseListQuery narrows and orders the results table
type ResponseListQuery struct {
	Sort      analytics.SortField
	Direction analytics.SortDirection
	Filter    analytics.ResponseFilter
	// Locale drives name collation; the zero tag collates by root rules
	Locale language.Tag
}

// ResponseService accepts submissions and lists individual responses
type ResponseService struct {
	templateRepo repository.TemplateRepository
	responseRepo repository.ResponseRepository
	logger       *slog.Logger
	now          func() time.Time
}

func NewResponseService(
	templateRepo repository.TemplateRepository,
	responseRepo repository.ResponseRepository,
	logger *slog.Logger,
) *ResponseService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ResponseService{
		templateRepo: templateRepo,
		responseRepo: responseRepo,
		logger:       logger,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Submit validates answers against the template and stores a new response.
// Integer answers given as numeric strings are stored as numbers.
func (s *ResponseService) Submit(ctx context.Context, user *models.User, templateID string, req models.SubmitResponseRequest) (*models.SubmitResponseResponse, error) {
	if user == nil {
		return nil, NewUnauthorizedError("authentication required")
	}
	tmpl, err := s.templateRepo.GetByID(ctx, templateID)
	if err != nil {
		return nil, notFoundOr(err, "template")
	}
	if !CanSubmit(user, tmpl) {
		return nil, NewForbiddenError("not allowed to submit this form")
	}

	answers, err := normalizeAnswers(tmpl, req.Answers)
	if err != nil {
		return nil, err
	}

	response := &models.FormResponse{
		ID:         repository.GenerateID(),
		TemplateID: tmpl.ID,
		UserID:     user.ID,
		UserName:   user.Name,
		Answers:    answers,
		CreatedAt:  s.now(),
	}
	if err := s.responseRepo.Create(ctx, response); err != nil {
		return nil, fmt.Errorf("failed to save response: %w", err)
	}

	s.logger.Info("response submitted", "template_id", tmpl.ID, "response_id", response.ID, "answers", len(answers))
	return &models.SubmitResponseResponse{
		ResponseID:  response.ID,
		SubmittedAt: response.CreatedAt,
	}, nil
}

func normalizeAnswers(tmpl *models.Template, in []models.Answer) ([]models.Answer, error) {
	seen := make(map[string]bool, len(in))
	out := make([]models.Answer, 0, len(in))
	for _, a := range in {
		q, ok := tmpl.Question(a.QuestionID)
		if !ok {
			return nil, NewInvalidError(fmt.Sprintf("unknown question %q", a.QuestionID))
		}
		if seen[a.QuestionID] {
			return nil, NewInvalidError(fmt.Sprintf("question %q answered more than once", a.QuestionID))
		}
		seen[a.QuestionID] = true

		v, ok := models.TypedValue(q, a)
		if !ok {
			return nil, NewInvalidError(fmt.Sprintf("answer to %q is not a valid %s", a.QuestionID, q.Type))
		}
		out = append(out, models.Answer{QuestionID: q.ID, Value: v.Native()})
	}
	return out, nil
}

// List returns the results table for a template, filtered then sorted
func (s *ResponseService) List(ctx context.Context, user *models.User, templateID string, query ResponseListQuery) (*analytics.ResultsTable, error) {
	tmpl, responses, err := loadResults(ctx, s.templateRepo, s.responseRepo, user, templateID)
	if err != nil {
		return nil, err
	}
	table := buildTable(tmpl, responses, query)
	return &table, nil
}

// Get returns one response of a template
func (s *ResponseService) Get(ctx context.Context, user *models.User, templateID, responseID string) (*models.FormResponse, error) {
	if user == nil {
		return nil, NewUnauthorizedError("authentication required")
	}
	tmpl, err := s.templateRepo.GetByID(ctx, templateID)
	if err != nil {
		return nil, notFoundOr(err, "template")
	}
	response, err := s.responseRepo.GetByID(ctx, responseID)
	if err != nil {
		return nil, notFoundOr(err, "response")
	}
	if response.TemplateID != tmpl.ID {
		return nil, NewNotFoundError("response not found")
	}
	if !CanViewResponse(user, tmpl, response) {
		return nil, NewForbiddenError("not allowed to view this response")
	}
	return response, nil
}

// ExportResponsesCSV renders the results table, one row per response
func (s *ResponseService) ExportResponsesCSV(ctx context.Context, user *models.User, templateID string, query ResponseListQuery) (*ExportResult, error) {
	tmpl, responses, err := loadResults(ctx, s.templateRepo, s.responseRepo, user, templateID)
	if err != nil {
		return nil, err
	}
	body, err := analytics.ResultsCSV(buildTable(tmpl, responses, query))
	if err != nil {
		return nil, fmt.Errorf("failed to render csv: %w", err)
	}
	return &ExportResult{
		Filename:    analytics.ResultsFilename(tmpl),
		ContentType: csvContentType,
		Body:        body,
	}, nil
}

func buildTable(tmpl *models.Template, responses []models.FormResponse, query ResponseListQuery) analytics.ResultsTable {
	field, dir := query.Sort, query.Direction
	if field == "" {
		field = analytics.SortByCreatedAt
	}
	if dir == "" {
		dir = analytics.SortDesc
	}
	filtered := analytics.FilterResponses(responses, query.Filter)
	sorted := analytics.SortResponsesLocale(filtered, field, dir, query.Locale)
	return analytics.BuildResultsTable(tmpl, sorted)
}

// loadResults fetches a template and its responses once the user is known
// to be allowed to see them
func loadResults(
	ctx context.Context,
	templateRepo repository.TemplateRepository,
	responseRepo repository.ResponseRepository,
	user *models.User,
	templateID string,
) (*models.Template, []models.FormResponse, error) {
	if user == nil {
		return nil, nil, NewUnauthorizedError("authentication required")
	}
	tmpl, err := templateRepo.GetByID(ctx, templateID)
	if err != nil {
		return nil, nil, notFoundOr(err, "template")
	}
	if !CanViewResults(user, tmpl) {
		return nil, nil, NewForbiddenError("only the author or an admin can view results")
	}
	responses, err := responseRepo.ListByTemplate(ctx, tmpl.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list responses: %w", err)
	}
	return tmpl, responses, nil
}
