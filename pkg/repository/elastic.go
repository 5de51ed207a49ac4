package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"form-analytics/pkg/models"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// Index names used by the Elasticsearch repositories, before the prefix
const (
	indexTemplates = "templates"
	indexResponses = "form_responses"
	indexUsers     = "users"
)

// responsePageSize is the number of hits fetched per ListByTemplate page
const responsePageSize = 1000

var indexMappings = map[string]string{
	indexTemplates: `{"mappings":{"dynamic":false,"properties":{
		"id":{"type":"keyword"},"author_id":{"type":"keyword"},"is_public":{"type":"boolean"},
		"created_at":{"type":"date"},"updated_at":{"type":"date"}}}}`,
	indexResponses: `{"mappings":{"dynamic":false,"properties":{
		"id":{"type":"keyword"},"template_id":{"type":"keyword"},"user_id":{"type":"keyword"},
		"user_name":{"type":"keyword"},"created_at":{"type":"date"}}}}`,
	indexUsers: `{"mappings":{"dynamic":false,"properties":{
		"id":{"type":"keyword"},"name":{"type":"keyword"}}}}`,
}

// NewElasticClient connects to the given nodes, or to the client's default
// (ELASTICSEARCH_URL or localhost:9200) when none are given.
func NewElasticClient(addresses []string) (*elasticsearch.Client, error) {
	if len(addresses) == 0 {
		return elasticsearch.NewDefaultClient()
	}
	return elasticsearch.NewClient(elasticsearch.Config{Addresses: addresses})
}

// EnsureElasticIndices creates any missing index with its mapping
func EnsureElasticIndices(ctx context.Context, es *elasticsearch.Client, prefix string) error {
	for _, name := range []string{indexTemplates, indexResponses, indexUsers} {
		index := prefix + name

		res, err := esapi.IndicesExistsRequest{Index: []string{index}}.Do(ctx, es)
		if err != nil {
			return fmt.Errorf("failed to check index %s: %w", index, err)
		}
		res.Body.Close()
		if res.StatusCode == http.StatusOK {
			continue
		}

		res, err = esapi.IndicesCreateRequest{
			Index: index,
			Body:  strings.NewReader(indexMappings[name]),
		}.Do(ctx, es)
		if err != nil {
			return fmt.Errorf("failed to create index %s: %w", index, err)
		}
		err = esError(res, "create index "+index)
		res.Body.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

// ElasticResponseRepository implements ResponseRepository. The responder's
// name is stored on the document since the index has no joins.
type ElasticResponseRepository struct {
	es       *elasticsearch.Client
	index    string
	pageSize int
}

func NewElasticResponseRepository(es *elasticsearch.Client, prefix string) *ElasticResponseRepository {
	return &ElasticResponseRepository{es: es, index: prefix + indexResponses, pageSize: responsePageSize}
}

func (r *ElasticResponseRepository) Create(ctx context.Context, response *models.FormResponse) error {
	if response.CreatedAt.IsZero() {
		response.CreatedAt = time.Now()
	}
	response.CreatedAt = response.CreatedAt.UTC()
	if err := indexDocument(ctx, r.es, r.index, response.ID, response); err != nil {
		return fmt.Errorf("failed to create response: %w", err)
	}
	return nil
}

func (r *ElasticResponseRepository) GetByID(ctx context.Context, responseID string) (*models.FormResponse, error) {
	var resp models.FormResponse
	if err := getDocument(ctx, r.es, r.index, responseID, &resp); err != nil {
		return nil, fmt.Errorf("response %s: %w", responseID, err)
	}
	return &resp, nil
}

// ListByTemplate pages through every response with search_after on the
// (created_at, id) sort, so no template is cut off at one page.
func (r *ElasticResponseRepository) ListByTemplate(ctx context.Context, templateID string) ([]models.FormResponse, error) {
	responses := []models.FormResponse{}
	var after json.RawMessage
	for {
		hits, err := r.searchPage(ctx, templateID, after)
		if err != nil {
			return nil, err
		}
		for _, hit := range hits {
			var resp models.FormResponse
			if err := decodeSource(hit.Source, &resp); err != nil {
				return nil, fmt.Errorf("failed to decode response: %w", err)
			}
			responses = append(responses, resp)
		}
		if len(hits) < r.pageSize {
			return responses, nil
		}
		after = hits[len(hits)-1].Sort
		if len(after) == 0 {
			return nil, fmt.Errorf("search responses: hit without sort values")
		}
	}
}

type searchHit struct {
	Source json.RawMessage `json:"_source"`
	Sort   json.RawMessage `json:"sort"`
}

func (r *ElasticResponseRepository) searchPage(ctx context.Context, templateID string, after json.RawMessage) ([]searchHit, error) {
	query := map[string]any{
		"query": map[string]any{
			"term": map[string]any{"template_id": templateID},
		},
		"sort": []any{
			map[string]any{"created_at": "asc"},
			map[string]any{"id": "asc"},
		},
	}
	if after != nil {
		query["search_after"] = after
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(query); err != nil {
		return nil, fmt.Errorf("failed to encode query: %w", err)
	}

	res, err := esapi.SearchRequest{
		Index:          []string{r.index},
		Body:           &buf,
		Size:           esapi.IntPtr(r.pageSize),
		TrackTotalHits: false,
	}.Do(ctx, r.es)
	if err != nil {
		return nil, fmt.Errorf("failed to search responses: %w", err)
	}
	defer res.Body.Close()
	if err := esError(res, "search responses"); err != nil {
		return nil, err
	}

	var result struct {
		Hits struct {
			Hits []searchHit `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode search result: %w", err)
	}
	return result.Hits.Hits, nil
}

// ElasticTemplateRepository implements TemplateRepository; questions are
// embedded in the template document.
type ElasticTemplateRepository struct {
	es    *elasticsearch.Client
	index string
}

func NewElasticTemplateRepository(es *elasticsearch.Client, prefix string) *ElasticTemplateRepository {
	return &ElasticTemplateRepository{es: es, index: prefix + indexTemplates}
}

func (r *ElasticTemplateRepository) Create(ctx context.Context, t *models.Template) error {
	if err := validateTemplate(t); err != nil {
		return err
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = t.CreatedAt
	}
	for i := range t.Questions {
		t.Questions[i].TemplateID = t.ID
	}
	if err := indexDocument(ctx, r.es, r.index, t.ID, t); err != nil {
		return fmt.Errorf("failed to create template: %w", err)
	}
	return nil
}

func (r *ElasticTemplateRepository) GetByID(ctx context.Context, templateID string) (*models.Template, error) {
	var t models.Template
	if err := getDocument(ctx, r.es, r.index, templateID, &t); err != nil {
		return nil, fmt.Errorf("template %s: %w", templateID, err)
	}
	t.Questions = t.OrderedQuestions()
	return &t, nil
}

// ElasticUserRepository implements UserRepository
type ElasticUserRepository struct {
	es    *elasticsearch.Client
	index string
}

func NewElasticUserRepository(es *elasticsearch.Client, prefix string) *ElasticUserRepository {
	return &ElasticUserRepository{es: es, index: prefix + indexUsers}
}

func (r *ElasticUserRepository) Create(ctx context.Context, u *models.User) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	if err := indexDocument(ctx, r.es, r.index, u.ID, u); err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (r *ElasticUserRepository) GetByID(ctx context.Context, userID string) (*models.User, error) {
	var u models.User
	if err := getDocument(ctx, r.es, r.index, userID, &u); err != nil {
		return nil, fmt.Errorf("user %s: %w", userID, err)
	}
	return &u, nil
}

func indexDocument(ctx context.Context, es *elasticsearch.Client, index, id string, doc any) error {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(doc); err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}

	res, err := esapi.IndexRequest{
		Index:      index,
		DocumentID: id,
		Body:       &buf,
		Refresh:    "true",
	}.Do(ctx, es)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	return esError(res, "index "+index)
}

func getDocument(ctx context.Context, es *elasticsearch.Client, index, id string, dst any) error {
	res, err := esapi.GetRequest{Index: index, DocumentID: id}.Do(ctx, es)
	if err != nil {
		return fmt.Errorf("failed to get document: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if err := esError(res, "get "+index); err != nil {
		return err
	}

	var doc struct {
		Found  bool            `json:"found"`
		Source json.RawMessage `json:"_source"`
	}
	if err := json.NewDecoder(res.Body).Decode(&doc); err != nil {
		return fmt.Errorf("failed to decode document: %w", err)
	}
	if !doc.Found {
		return ErrNotFound
	}
	return decodeSource(doc.Source, dst)
}

// decodeSource keeps answer numbers as json.Number, matching the SQL stores
func decodeSource(src json.RawMessage, dst any) error {
	dec := json.NewDecoder(bytes.NewReader(src))
	dec.UseNumber()
	return dec.Decode(dst)
}

func esError(res *esapi.Response, op string) error {
	if !res.IsError() {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
	return fmt.Errorf("elasticsearch %s: %s: %s", op, res.Status(), strings.TrimSpace(string(body)))
}
