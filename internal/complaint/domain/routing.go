package domain

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/civic-complaints/platform/internal/shared/errors"
	"github.com/civic-complaints/platform/internal/shared/types"
)

const (
	maxGeneratedSubject = 120
	derivedSubjectWords = 10
)

// CategoryOption is a category the classifier may choose from
type CategoryOption struct {
	ID       types.ID `json:"id"`
	Name     string   `json:"name"`
	AgencyID types.ID `json:"agency_id"`
}

// Classification is the raw, untrusted classifier answer
type Classification struct {
	Category string `json:"category"`
	Subject  string `json:"subject"`
}

// Route is a validated routing decision
type Route struct {
	CategoryID   types.ID `json:"category_id"`
	CategoryName string   `json:"category_name"`
	AgencyID     types.ID `json:"agency_id"`
	Subject      string   `json:"subject"`
}

// ResolveRoute validates a classifier answer against the supplied
// categories. A category name that matches none of them, case-insensitively,
// is an UnroutableComplaint; no complaint may be created from it.
func ResolveRoute(description string, categories []CategoryOption, c Classification) (Route, error) {
	name := normalizeCategoryName(c.Category)
	if name == "" {
		return Route{}, errors.Unroutable("classifier did not choose a category", nil)
	}

	for _, cat := range categories {
		if strings.EqualFold(normalizeCategoryName(cat.Name), name) {
			if cat.AgencyID.IsZero() {
				return Route{}, errors.Unroutable("matched category has no agency",
					map[string]string{"category": cat.Name})
			}
			return Route{
				CategoryID:   cat.ID,
				CategoryName: cat.Name,
				AgencyID:     cat.AgencyID,
				Subject:      CleanSubject(c.Subject, description),
			}, nil
		}
	}

	return Route{}, errors.Unroutable("no matching category found",
		map[string]string{"category": strings.TrimSpace(c.Category)})
}

// ManualRoute routes to a category the citizen picked. The category must be
// one of the supplied ones.
func ManualRoute(categoryID types.ID, categories []CategoryOption, subject, description string) (Route, error) {
	for _, cat := range categories {
		if cat.ID == categoryID {
			if cat.AgencyID.IsZero() {
				return Route{}, errors.Unroutable("category has no agency",
					map[string]string{"category": cat.Name})
			}
			return Route{
				CategoryID:   cat.ID,
				CategoryName: cat.Name,
				AgencyID:     cat.AgencyID,
				Subject:      CleanSubject(subject, description),
			}, nil
		}
	}
	return Route{}, errors.Validation("unknown category", map[string]string{"category_id": categoryID.String()})
}

// CleanSubject tidies a generated subject line: surrounding quotes and
// whitespace runs are removed and long lines cut at a word boundary. An
// empty subject is derived from the first words of the description.
func CleanSubject(subject, description string) string {
	s := strings.Join(strings.Fields(subject), " ")
	s = strings.Trim(s, "\"'`")
	s = strings.TrimSpace(strings.TrimPrefix(s, "Subject:"))
	if s == "" {
		words := strings.Fields(description)
		if len(words) > derivedSubjectWords {
			words = words[:derivedSubjectWords]
		}
		s = strings.Join(words, " ")
		s = strings.TrimRightFunc(s, func(r rune) bool { return unicode.IsPunct(r) })
	}
	return truncateWords(s, maxGeneratedSubject)
}

func truncateWords(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)[:max]
	cut := string(runes)
	if i := strings.LastIndex(cut, " "); i > max/2 {
		cut = cut[:i]
	}
	return strings.TrimSpace(cut) + "…"
}

func normalizeCategoryName(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "\"'`.")
	return strings.Join(strings.Fields(s), " ")
}
