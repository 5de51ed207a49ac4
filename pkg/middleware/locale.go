package middleware

import (
	"context"
	"net/http"

	"golang.org/x/text/language"
)

// WithLocale stores the caller's preferred language, from the lang query
// parameter or Accept-Language, in the request context
func WithLocale(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tag := DetermineLocale(r.URL.Query().Get("lang"), r.Header.Get("Accept-Language"))
		ctx := context.WithValue(r.Context(), localeKey, tag)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// DetermineLocale prefers an explicit tag, then the highest weighted
// Accept-Language entry. Anything unparsable yields language.Und.
func DetermineLocale(queryLang, acceptLanguage string) language.Tag {
	if queryLang != "" {
		if tag, err := language.Parse(queryLang); err == nil {
			return tag
		}
	}
	if acceptLanguage != "" {
		tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
		if err == nil && len(tags) > 0 {
			return tags[0]
		}
	}
	return language.Und
}

// LocaleFromContext retrieves the tag stored by WithLocale
func LocaleFromContext(ctx context.Context) language.Tag {
	if tag, ok := ctx.Value(localeKey).(language.Tag); ok {
		return tag
	}
	return language.Und
}
