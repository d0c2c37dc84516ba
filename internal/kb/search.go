package kb

import (
	"context"
	"math"
	"sort"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/linnemanlabs/sift/internal/kb")

// SymptomBonus is added when a symptom phrase appears verbatim in the description.
const SymptomBonus = 0.1

type indexedEntry struct {
	entry    Entry
	tokens   TokenSet
	symptoms []string // trimmed, lowercased, non-empty
}

// Index is an immutable, pre-tokenized snapshot of the knowledge base.
// It is safe for concurrent use.
type Index struct {
	entries []indexedEntry
}

// NewIndex copies entries and precomputes their token sets.
func NewIndex(entries []Entry) *Index {
	idx := &Index{entries: make([]indexedEntry, 0, len(entries))}
	for _, e := range entries {
		e.Symptoms = append([]string(nil), e.Symptoms...)

		toks := Tokenize(e.Title)
		toks.addAll(Tokenize(e.Category))
		var syms []string
		for _, s := range e.Symptoms {
			toks.addAll(Tokenize(s))
			if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
				syms = append(syms, s)
			}
		}

		idx.entries = append(idx.entries, indexedEntry{entry: e, tokens: toks, symptoms: syms})
	}
	return idx
}

// Len returns the number of entries in the snapshot.
func (idx *Index) Len() int {
	if idx == nil {
		return 0
	}
	return len(idx.entries)
}

// snapshot returns a copy of the indexed entries in load order.
func (idx *Index) snapshot() []Entry {
	if idx == nil {
		return nil
	}
	out := make([]Entry, len(idx.entries))
	for i, ie := range idx.entries {
		out[i] = ie.entry
		out[i].Symptoms = append([]string(nil), ie.entry.Symptoms...)
	}
	return out
}

// Rank scores every entry against description and returns at most limit
// matches, most similar first. Ties keep knowledge base order. Entries with
// no token overlap are never returned.
func (idx *Index) Rank(ctx context.Context, description string, limit int) []Match {
	_, span := tracer.Start(ctx, "kb.rank", trace.WithAttributes(
		attribute.Int("sift.kb.entries", idx.Len()),
		attribute.Int("sift.kb.limit", limit),
	))
	defer span.End()

	matches := idx.rank(description, limit)
	span.SetAttributes(attribute.Int("sift.kb.matches", len(matches)))
	return matches
}

func (idx *Index) rank(description string, limit int) []Match {
	if limit <= 0 || idx.Len() == 0 {
		return []Match{}
	}

	descTokens := Tokenize(description)
	if len(descTokens) == 0 {
		return []Match{}
	}
	lowered := strings.ToLower(description)

	var out []Match
	for _, ie := range idx.entries {
		base := jaccard(descTokens, ie.tokens)
		if base == 0 {
			continue
		}

		score := base
		for _, s := range ie.symptoms {
			if strings.Contains(lowered, s) {
				score += SymptomBonus
				break
			}
		}

		score = round3(math.Min(score, 1.0))
		if score == 0 {
			continue
		}

		out = append(out, Match{
			ID:                orDefault(ie.entry.ID, UnknownID),
			Title:             orDefault(ie.entry.Title, UntitledTitle),
			Similarity:        score,
			RecommendedAction: ie.entry.RecommendedAction,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Similarity > out[j].Similarity
	})

	if len(out) > limit {
		out = out[:limit]
	}
	if out == nil {
		out = []Match{}
	}
	return out
}

// round3 rounds the exact value of v to three decimal places. Exact halves go
// to even; scaling by 1000 first would round twice.
func round3(v float64) float64 {
	r, err := strconv.ParseFloat(strconv.FormatFloat(v, 'f', 3, 64), 64)
	if err != nil {
		return v
	}
	return r
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
