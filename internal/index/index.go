// Package index selects the tables that are relevant to a question.
package index

import (
	"context"
	"sort"
	"strings"
	"unicode"

	"github.com/capitalize-ai/data-question-platform/internal/datasource"
)

// Mode selects an index implementation.
type Mode string

const (
	ModeAll     Mode = "all"
	ModeKeyword Mode = "keyword"
)

// Source is the part of a data source an index reads.
type Source interface {
	AwaitReady(ctx context.Context) error
	Tables() []datasource.TableSchema
}

// Static returns every table for every question.
type Static struct {
	source Source
}

// NewStatic creates a Static index.
func NewStatic(source Source) *Static {
	return &Static{source: source}
}

// Search returns the IDs of all tables.
func (s *Static) Search(ctx context.Context, _ string) ([]string, error) {
	if err := s.source.AwaitReady(ctx); err != nil {
		return nil, err
	}
	tables := s.source.Tables()
	ids := make([]string, len(tables))
	for i, t := range tables {
		ids[i] = t.UniqueID()
	}
	return ids, nil
}

// Keyword ranks tables by how many question words match their table and
// column names.
type Keyword struct {
	source    Source
	maxTables int
}

// NewKeyword creates a Keyword index returning at most maxTables tables.
// A non-positive maxTables means no limit.
func NewKeyword(source Source, maxTables int) *Keyword {
	return &Keyword{source: source, maxTables: maxTables}
}

// Search returns matching table IDs, best first. When no table matches
// every table is returned.
func (k *Keyword) Search(ctx context.Context, question string) ([]string, error) {
	if err := k.source.AwaitReady(ctx); err != nil {
		return nil, err
	}
	tables := k.source.Tables()

	words := make(map[string]bool)
	for _, w := range tokenize(question) {
		words[w] = true
	}

	type scored struct {
		id    string
		score int
	}
	var matches []scored
	for _, t := range tables {
		score := 0
		for _, w := range tokenize(t.Name) {
			if words[w] {
				score += 3
			}
		}
		for _, c := range t.Columns {
			for _, w := range tokenize(c.Name) {
				if words[w] {
					score++
				}
			}
		}
		if score > 0 {
			matches = append(matches, scored{id: t.UniqueID(), score: score})
		}
	}

	if len(matches) == 0 {
		return NewStatic(k.source).Search(ctx, question)
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].score > matches[j].score
	})
	if k.maxTables > 0 && len(matches) > k.maxTables {
		matches = matches[:k.maxTables]
	}

	ids := make([]string, len(matches))
	for i, m := range matches {
		ids[i] = m.id
	}
	return ids, nil
}

// tokenize splits s into lower-case words on non-alphanumerics and
// camelCase boundaries. A trailing plural "s" is dropped.
func tokenize(s string) []string {
	var words []string
	var cur []rune
	flush := func() {
		if len(cur) > 1 {
			w := strings.ToLower(string(cur))
			if len(w) > 3 && strings.HasSuffix(w, "s") {
				w = strings.TrimSuffix(w, "s")
			}
			words = append(words, w)
		}
		cur = cur[:0]
	}

	var prev rune
	for _, r := range s {
		switch {
		case !unicode.IsLetter(r) && !unicode.IsDigit(r):
			flush()
		case unicode.IsUpper(r) && unicode.IsLower(prev):
			flush()
			cur = append(cur, r)
		default:
			cur = append(cur, r)
		}
		prev = r
	}
	flush()
	return words
}
