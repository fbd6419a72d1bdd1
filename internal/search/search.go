// Package search implements the weighted multi-field relevance scorer
// used by the message store. Each searchable field contributes a
// similarity in [0,1] scaled by its field weight; documents whose
// combined score falls below the threshold are excluded.
package search

import (
	"sort"
	"strings"

	"github.com/sahilm/fuzzy"
)

// Field weights. Subject dominates, sender identity and body carry
// less, the AI summary least.
const (
	WeightSubject     = 0.4
	WeightSenderName  = 0.3
	WeightSenderEmail = 0.2
	WeightContent     = 0.3
	WeightSummary     = 0.2
)

// DefaultThreshold is the minimum combined score for a document to be
// considered a match.
const DefaultThreshold = 0.3

// Document is the searchable projection of a message.
type Document struct {
	Subject     string
	SenderName  string
	SenderEmail string
	Content     string
	Summary     string
}

// Result pairs a document index with its relevance score.
type Result struct {
	Index int
	Score float64
}

// Rank scores every document against the query and returns the indexes
// of documents at or above threshold, ordered by descending score.
// Ties keep the original list order (stable sort). An empty query
// returns every index in original order: search is opt-in.
func Rank(query string, docs []Document, threshold float64) []Result {
	results := make([]Result, 0, len(docs))

	if strings.TrimSpace(query) == "" {
		for i := range docs {
			results = append(results, Result{Index: i, Score: 0})
		}
		return results
	}

	for i, doc := range docs {
		score := Score(query, doc)
		if score >= threshold {
			results = append(results, Result{Index: i, Score: score})
		}
	}

	sort.SliceStable(results, func(a, b int) bool {
		return results[a].Score > results[b].Score
	})

	return results
}

// Score computes the combined weighted relevance of a document.
func Score(query string, doc Document) float64 {
	return WeightSubject*fieldSimilarity(query, doc.Subject) +
		WeightSenderName*fieldSimilarity(query, doc.SenderName) +
		WeightSenderEmail*fieldSimilarity(query, doc.SenderEmail) +
		WeightContent*fieldSimilarity(query, doc.Content) +
		WeightSummary*fieldSimilarity(query, doc.Summary)
}

// fieldSimilarity returns 1.0 for a case-insensitive substring match.
// Otherwise it falls back to fuzzy matching and scores by how tightly
// the matched characters cluster: a contiguous fuzzy match scores 1.0,
// a match spread across the field approaches 0.
func fieldSimilarity(query, text string) float64 {
	if query == "" || text == "" {
		return 0
	}

	if strings.Contains(strings.ToLower(text), strings.ToLower(query)) {
		return 1.0
	}

	matches := fuzzy.Find(query, []string{text})
	if len(matches) == 0 {
		return 0
	}

	idx := matches[0].MatchedIndexes
	if len(idx) == 0 {
		return 0
	}
	span := idx[len(idx)-1] - idx[0] + 1
	return float64(len(idx)) / float64(span)
}
