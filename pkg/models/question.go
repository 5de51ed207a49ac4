package models

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ValidationError describes why a question or template is malformed
type ValidationError struct {
	QuestionID string
	Field      string
	Reason     string
}

func (e *ValidationError) Error() string {
	if e.QuestionID == "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("question %s: %s: %s", e.QuestionID, e.Field, e.Reason)
}

func invalid(qid, field, reason string) error {
	return &ValidationError{QuestionID: qid, Field: field, Reason: reason}
}

// Validate checks a single question in isolation.
// Order uniqueness is a template-level rule, see Template.Validate.
func (q Question) Validate() error {
	if strings.TrimSpace(q.ID) == "" {
		return invalid(q.ID, "id", "must not be empty")
	}
	switch q.Type {
	case QuestionTypeText, QuestionTypeMultiLine, QuestionTypeInteger, QuestionTypeCheckbox:
		if len(q.Options) > 0 {
			return invalid(q.ID, "options", "only select questions take options")
		}
	case QuestionTypeSelect:
		if len(q.Options) == 0 {
			return invalid(q.ID, "options", "select question requires options")
		}
		seen := make(map[string]bool, len(q.Options))
		for _, opt := range q.Options {
			if strings.TrimSpace(opt) == "" {
				return invalid(q.ID, "options", "option must not be blank")
			}
			if seen[opt] {
				return invalid(q.ID, "options", fmt.Sprintf("duplicate option %q", opt))
			}
			seen[opt] = true
		}
	default:
		return invalid(q.ID, "type", fmt.Sprintf("unknown question type %q", q.Type))
	}
	if q.Order < 0 {
		return invalid(q.ID, "order", "must be non-negative")
	}
	return nil
}

// Validate checks the template id, every question, and question id and
// order uniqueness
func (t *Template) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return invalid("", "id", "template id must not be empty")
	}
	ids := make(map[string]bool, len(t.Questions))
	orders := make(map[int]string, len(t.Questions))
	for _, q := range t.Questions {
		if err := q.Validate(); err != nil {
			return err
		}
		if ids[q.ID] {
			return invalid(q.ID, "id", "duplicate question id")
		}
		ids[q.ID] = true
		if other, ok := orders[q.Order]; ok {
			return invalid(q.ID, "order", fmt.Sprintf("order %d already used by question %s", q.Order, other))
		}
		orders[q.Order] = q.ID
	}
	return nil
}

// Value is an answer value narrowed to its question's declared type.
// Exactly one of Text, Int or Bool is meaningful, selected by Type.
type Value struct {
	Type QuestionType
	Text string
	Int  int64
	Bool bool
}

// String renders the value the way distributions key it
func (v Value) String() string {
	switch v.Type {
	case QuestionTypeInteger:
		return strconv.FormatInt(v.Int, 10)
	case QuestionTypeCheckbox:
		return strconv.FormatBool(v.Bool)
	default:
		return v.Text
	}
}

// Native returns the Go value carried by v
func (v Value) Native() any {
	switch v.Type {
	case QuestionTypeInteger:
		return v.Int
	case QuestionTypeCheckbox:
		return v.Bool
	default:
		return v.Text
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Native())
}

// CheckAnswerMatchesType reports whether the answer's value is acceptable
// for the question's declared type.
func CheckAnswerMatchesType(q Question, a Answer) bool {
	_, ok := TypedValue(q, a)
	return ok
}

// TypedValue narrows a raw answer value to the question's type
func TypedValue(q Question, a Answer) (Value, bool) {
	switch q.Type {
	case QuestionTypeText, QuestionTypeMultiLine:
		s, ok := a.Value.(string)
		if !ok {
			return Value{}, false
		}
		return Value{Type: q.Type, Text: s}, true
	case QuestionTypeInteger:
		n, ok := asInteger(a.Value)
		if !ok {
			return Value{}, false
		}
		return Value{Type: q.Type, Int: n}, true
	case QuestionTypeCheckbox:
		b, ok := a.Value.(bool)
		if !ok {
			return Value{}, false
		}
		return Value{Type: q.Type, Bool: b}, true
	case QuestionTypeSelect:
		s, ok := a.Value.(string)
		if !ok {
			return Value{}, false
		}
		for _, opt := range q.Options {
			if opt == s {
				return Value{Type: q.Type, Text: s}, true
			}
		}
		return Value{}, false
	}
	return Value{}, false
}

func asInteger(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return uintToInt64(uint64(n))
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		return uintToInt64(n)
	case float32:
		return floatToInt64(float64(n))
	case float64:
		return floatToInt64(n)
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return floatToInt64(f)
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		if err != nil {
			return 0, false
		}
		return i, true
	}
	return 0, false
}

func uintToInt64(n uint64) (int64, bool) {
	if n > math.MaxInt64 {
		return 0, false
	}
	return int64(n), true
}

func floatToInt64(f float64) (int64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || math.Trunc(f) != f {
		return 0, false
	}
	// 2^63 is exactly representable; anything at or beyond it overflows
	if f >= math.MaxInt64 || f < math.MinInt64 {
		return 0, false
	}
	return int64(f), true
}
