package analytics

import (
	"sort"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"form-analytics/pkg/models"
)

// SortField names the key responses are ordered by
type SortField string

const (
	SortByCreatedAt SortField = "createdAt"
	SortByUserName  SortField = "userName"
)

// SortDirection is ascending or descending
type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// ParseSortField maps query values onto a SortField
func ParseSortField(s string) (SortField, bool) {
	switch SortField(s) {
	case SortByCreatedAt, "":
		return SortByCreatedAt, true
	case SortByUserName, "user":
		return SortByUserName, true
	}
	return "", false
}

// ParseSortDirection maps query values onto a SortDirection
func ParseSortDirection(s string) (SortDirection, bool) {
	switch SortDirection(strings.ToLower(s)) {
	case SortAsc:
		return SortAsc, true
	case SortDesc, "":
		return SortDesc, true
	}
	return "", false
}

// SortResponses returns a sorted copy using root-locale collation for names
func SortResponses(responses []models.FormResponse, field SortField, dir SortDirection) []models.FormResponse {
	return SortResponsesLocale(responses, field, dir, language.Und)
}

// SortResponsesLocale returns a sorted copy of responses. Equal keys keep
// their input order in both directions.
func SortResponsesLocale(responses []models.FormResponse, field SortField, dir SortDirection, tag language.Tag) []models.FormResponse {
	out := make([]models.FormResponse, len(responses))
	copy(out, responses)

	var cmp func(a, b *models.FormResponse) int
	switch field {
	case SortByUserName:
		// Collators keep scratch buffers, so each call owns one.
		col := collate.New(tag, collate.IgnoreCase)
		cmp = func(a, b *models.FormResponse) int { return col.CompareString(a.UserName, b.UserName) }
	default:
		cmp = func(a, b *models.FormResponse) int { return a.CreatedAt.Compare(b.CreatedAt) }
	}

	sign := 1
	if dir == SortDesc {
		sign = -1
	}
	sort.SliceStable(out, func(i, j int) bool { return sign*cmp(&out[i], &out[j]) < 0 })
	return out
}

// ResponseFilter narrows a response collection; zero values match everything
type ResponseFilter struct {
	TimeRange models.TimeRange
	Search    string // case-insensitive, matched against user name and text answers
}

// FilterResponses keeps matching responses in their original order
func FilterResponses(responses []models.FormResponse, f ResponseFilter) []models.FormResponse {
	needle := strings.ToLower(strings.TrimSpace(f.Search))
	out := make([]models.FormResponse, 0, len(responses))
	for i := range responses {
		r := &responses[i]
		if !f.TimeRange.Contains(r.CreatedAt) {
			continue
		}
		if needle != "" && !matchesSearch(r, needle) {
			continue
		}
		out = append(out, *r)
	}
	return out
}

func matchesSearch(r *models.FormResponse, needle string) bool {
	if strings.Contains(strings.ToLower(r.UserName), needle) {
		return true
	}
	for _, a := range r.Answers {
		if s, ok := a.Value.(string); ok && strings.Contains(strings.ToLower(s), needle) {
			return true
		}
	}
	return false
}
