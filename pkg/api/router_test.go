package api

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"form-analytics/pkg/analytics"
	"form-analytics/pkg/middleware"
	"form-analytics/pkg/models"
	"form-analytics/pkg/repository"
	"form-analytics/pkg/service"
)

var testSecret = []byte("router-test-secret")

type testServer struct {
	handler http.Handler
	tokens  map[string]string
}

// setupServer wires the full stack over an in-memory SQLite database
func setupServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()

	db, err := repository.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, repository.CreateSchema(ctx, db, repository.DialectSQLite))

	users := repository.NewSQLiteUserRepository(db)
	templates := repository.NewSQLiteTemplateRepository(db)
	responses := repository.NewSQLiteResponseRepository(db)

	tokens := map[string]string{}
	for _, u := range []*models.User{
		{ID: "ann", Name: "Ann"},
		{ID: "bob", Name: "bob"},
		{ID: "cleo", Name: "Cléo"},
		{ID: "root", Name: "Root", IsAdmin: true},
		{ID: "eve", Name: "Eve"},
	} {
		require.NoError(t, users.Create(ctx, u))
		tok, err := middleware.SignToken(testSecret, u.ID, time.Hour)
		require.NoError(t, err)
		tokens[u.ID] = tok
	}

	require.NoError(t, templates.Create(ctx, &models.Template{
		ID:             "job",
		Title:          "Job Application",
		AuthorID:       "ann",
		AllowedUserIDs: []string{"bob", "cleo"},
		Questions: []models.Question{
			{ID: "role", Title: "Role", Type: models.QuestionTypeSelect, Order: 0, Options: []string{"dev", "ops"}, ShowInResults: true},
			{ID: "years", Title: "Years", Type: models.QuestionTypeInteger, Order: 1, ShowInResults: true},
			{ID: "remote", Title: "Remote?", Type: models.QuestionTypeCheckbox, Order: 2},
		},
	}))

	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	h := NewHandler(
		service.NewAnalyticsService(templates, responses, logger),
		service.NewResponseService(templates, responses, logger),
		logger,
	)
	return &testServer{
		handler: NewRouter(h, middleware.NewAuthenticator(testSecret, users, logger), logger),
		tokens:  tokens,
	}
}

func (s *testServer) do(t *testing.T, method, path, user string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rdr)
	if user != "" {
		req.Header.Set("Authorization", "Bearer "+s.tokens[user])
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) submit(t *testing.T, user string, answers ...models.Answer) {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/v1/templates/job/responses", user, models.SubmitResponseRequest{Answers: answers})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

// seeded submits three responses: bob, Cléo, then Ann
func seeded(t *testing.T) *testServer {
	s := setupServer(t)
	s.submit(t, "bob", models.Answer{QuestionID: "role", Value: "dev"}, models.Answer{QuestionID: "years", Value: 5})
	s.submit(t, "cleo", models.Answer{QuestionID: "role", Value: "dev"}, models.Answer{QuestionID: "years", Value: "3"})
	s.submit(t, "ann", models.Answer{QuestionID: "role", Value: "ops"}, models.Answer{QuestionID: "remote", Value: true})
	return s
}

// snapshotView mirrors the analytics JSON; modes are rendered values
// that only decode against their question, so they are left out
type snapshotView struct {
	TotalResponses int `json:"total_responses"`
	PerQuestion    map[string]struct {
		Distribution map[string]int           `json:"distribution"`
		Average      *float64                 `json:"average"`
		TimeSeries   []models.TimeSeriesPoint `json:"time_series"`
	} `json:"per_question"`
	DailyResponses []models.DailyCount `json:"daily_responses"`
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealthEndpoint(t *testing.T) {
	s := setupServer(t)
	rec := s.do(t, http.MethodGet, "/health", "", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decode[map[string]string](t, rec)["status"])
}

func TestSubmitResponseEndpoint(t *testing.T) {
	s := setupServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/templates/job/responses", "bob", models.SubmitResponseRequest{Answers: []models.Answer{
		{QuestionID: "years", Value: 4},
	}})
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode[models.SubmitResponseResponse](t, rec)
	assert.NotEmpty(t, created.ResponseID)
	assert.False(t, created.SubmittedAt.IsZero())

	tests := []struct {
		name   string
		path   string
		user   string
		body   any
		status int
	}{
		{"anonymous", "/api/v1/templates/job/responses", "", models.SubmitResponseRequest{}, http.StatusUnauthorized},
		{"not invited", "/api/v1/templates/job/responses", "eve", models.SubmitResponseRequest{}, http.StatusForbidden},
		{"unknown template", "/api/v1/templates/nope/responses", "bob", models.SubmitResponseRequest{}, http.StatusNotFound},
		{"wrong type", "/api/v1/templates/job/responses", "bob", models.SubmitResponseRequest{Answers: []models.Answer{
			{QuestionID: "remote", Value: "yes"},
		}}, http.StatusBadRequest},
		{"malformed body", "/api/v1/templates/job/responses", "bob", "not an object", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, tt.path, tt.user, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.NotEmpty(t, decode[map[string]string](t, rec)["error"])
		})
	}
}

func TestGetResponseEndpoint(t *testing.T) {
	s := setupServer(t)
	rec := s.do(t, http.MethodPost, "/api/v1/templates/job/responses", "bob", models.SubmitResponseRequest{Answers: []models.Answer{
		{QuestionID: "years", Value: 4},
	}})
	require.Equal(t, http.StatusCreated, rec.Code)
	path := "/api/v1/templates/job/responses/" + decode[models.SubmitResponseResponse](t, rec).ResponseID

	rec = s.do(t, http.MethodGet, path, "bob", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decode[models.FormResponse](t, rec)
	assert.Equal(t, "bob", got.UserID)
	require.Len(t, got.Answers, 1)
	assert.Equal(t, float64(4), got.Answers[0].Value)

	tests := []struct {
		name   string
		path   string
		user   string
		status int
	}{
		{"author", path, "ann", http.StatusOK},
		{"admin", path, "root", http.StatusOK},
		{"someone else", path, "cleo", http.StatusForbidden},
		{"anonymous", path, "", http.StatusUnauthorized},
		{"unknown response", "/api/v1/templates/job/responses/nope", "ann", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.status, s.do(t, http.MethodGet, tt.path, tt.user, nil).Code)
		})
	}
}

func TestAnalyticsEndpoint(t *testing.T) {
	s := seeded(t)

	rec := s.do(t, http.MethodGet, "/api/v1/templates/job/analytics?timeseries=1", "ann", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	snapshot := decode[snapshotView](t, rec)
	assert.Equal(t, 3, snapshot.TotalResponses)
	assert.Equal(t, map[string]int{"dev": 2, "ops": 1}, snapshot.PerQuestion["role"].Distribution)
	years := snapshot.PerQuestion["years"]
	require.NotNil(t, years.Average)
	assert.InDelta(t, 4.0, *years.Average, 1e-9)
	assert.NotEmpty(t, years.TimeSeries)
	assert.Len(t, snapshot.DailyResponses, 1)

	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/v1/templates/job/analytics", "root", nil).Code)
	assert.Equal(t, http.StatusForbidden, s.do(t, http.MethodGet, "/api/v1/templates/job/analytics", "bob", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/api/v1/templates/job/analytics", "", nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/api/v1/templates/nope/analytics", "ann", nil).Code)
}

func TestChartEndpoint(t *testing.T) {
	s := seeded(t)

	rec := s.do(t, http.MethodGet, "/api/v1/templates/job/analytics/questions/role/chart?kind=pie", "ann", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	chart := decode[ChartResponse](t, rec)
	require.True(t, chart.Available)
	require.Len(t, chart.Series.Points, 2)
	assert.Equal(t, "dev", chart.Series.Points[0].Label)
	require.NotNil(t, chart.Series.Points[0].Percent)
	assert.InDelta(t, 66.7, *chart.Series.Points[0].Percent, 1e-9)
	assert.Equal(t, "hsl(0, 70%, 50%)", chart.Series.Points[0].Color)

	line := decode[ChartResponse](t, s.do(t, http.MethodGet, "/api/v1/templates/job/analytics/questions/years/chart?kind=line", "ann", nil))
	assert.True(t, line.Available)

	for _, path := range []string{
		"/api/v1/templates/job/analytics/questions/role/chart?kind=radar",
		"/api/v1/templates/job/analytics/questions/role/chart?kind=line",
		"/api/v1/templates/job/analytics/questions/missing/chart?kind=bar",
	} {
		rec := s.do(t, http.MethodGet, path, "ann", nil)
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.JSONEq(t, `{"available":false}`, rec.Body.String(), path)
	}
}

func TestAnalyticsCSVEndpoint(t *testing.T) {
	s := seeded(t)

	rec := s.do(t, http.MethodGet, "/api/v1/templates/job/analytics.csv", "ann", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="Job Application_analytics.csv"`, rec.Header().Get("Content-Disposition"))

	recs, err := csv.NewReader(rec.Body).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"Question", "Total Responses", "Average", "Median", "Mode"},
		{"Role", "3", "", "", "dev"},
		{"Years", "2", "4.00", "4.00", "5"},
		{"Remote?", "1", "", "", "true"},
	}, recs)
}

func TestResponsesEndpoint(t *testing.T) {
	s := seeded(t)

	rec := s.do(t, http.MethodGet, "/api/v1/templates/job/responses?sort=userName&dir=asc", "ann", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	table := decode[analytics.ResultsTable](t, rec)
	require.Len(t, table.Columns, 2)
	names := []string{}
	for _, row := range table.Rows {
		names = append(names, row.UserName)
	}
	assert.Equal(t, []string{"Ann", "bob", "Cléo"}, names)
	assert.Equal(t, []string{"ops", "-"}, table.Rows[0].Cells)

	filtered := decode[analytics.ResultsTable](t, s.do(t, http.MethodGet, "/api/v1/templates/job/responses?q=CL%C3%89", "ann", nil))
	require.Len(t, filtered.Rows, 1)
	assert.Equal(t, "Cléo", filtered.Rows[0].UserName)

	future := decode[analytics.ResultsTable](t, s.do(t, http.MethodGet, "/api/v1/templates/job/responses?from=2999-01-01", "ann", nil))
	assert.Empty(t, future.Rows)

	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/api/v1/templates/job/responses?sort=score", "ann", nil).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/api/v1/templates/job/responses?to=yesterday", "ann", nil).Code)
	assert.Equal(t, http.StatusForbidden, s.do(t, http.MethodGet, "/api/v1/templates/job/responses", "cleo", nil).Code)
}

func TestResponsesCSVEndpoint(t *testing.T) {
	s := seeded(t)

	rec := s.do(t, http.MethodGet, "/api/v1/templates/job/responses.csv?dir=asc", "root", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "Job Application_responses.csv")

	recs, err := csv.NewReader(strings.NewReader(rec.Body.String())).ReadAll()
	require.NoError(t, err)
	require.Len(t, recs, 4)
	assert.Equal(t, []string{"response_id", "user", "submitted_at", "Role", "Years"}, recs[0])
	assert.Equal(t, "bob", recs[1][1])
	assert.Equal(t, []string{"dev", "5"}, recs[1][3:])
}

func TestParseTime(t *testing.T) {
	from, err := parseTime("2024-03-01", false)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), from)

	to, err := parseTime("2024-03-01", true)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 1, 23, 59, 59, 999999999, time.UTC), to)

	exact, err := parseTime("2024-03-01T10:00:00+02:00", true)
	require.NoError(t, err)
	assert.True(t, exact.Equal(time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)))

	zero, err := parseTime("", true)
	require.NoError(t, err)
	assert.True(t, zero.IsZero())
}
