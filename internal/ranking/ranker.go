// Package ranking scores candidate content indexes against a chat query
// using lexical overlap between the query and each index's metadata.
package ranking

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/parchmentlabs/parchment/internal/models"
)

const maxMatches = 5

// Match is one scored candidate. Produced by Rank and handed straight to
// the retrieval layer; never persisted.
type Match struct {
	IndexID       string
	Score         int
	MatchedFields []string
}

// Ranker ranks content indexes by lexical relevance to a query.
type Ranker struct {
	logger *zap.Logger
}

func NewRanker(logger *zap.Logger) *Ranker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ranker{logger: logger}
}

// Rank returns up to 5 candidates in non-increasing score order. Ties keep
// the original candidate order. Candidates scoring zero are dropped. An
// empty query or candidate list yields an empty result, not an error.
func (r *Ranker) Rank(query string, candidates []*models.ContentIndex) []Match {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" || len(candidates) == 0 {
		return nil
	}
	terms := strings.Fields(query)

	matches := make([]Match, 0, len(candidates))
	for _, c := range candidates {
		if c == nil {
			continue
		}
		blob, fields := importantText(c)
		score := scoreBlob(query, terms, blob)
		if score <= 0 {
			continue
		}
		matches = append(matches, Match{IndexID: c.ID, Score: score, MatchedFields: fields})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	if len(matches) > maxMatches {
		matches = matches[:maxMatches]
	}
	r.logger.Debug("Ranked candidates",
		zap.Int("candidates", len(candidates)),
		zap.Int("matches", len(matches)),
	)
	return matches
}

// importantText concatenates the lowercase title, summary, keywords, themes
// and entities of an index. If every field is empty it falls back to a
// stringified dump of the whole record so odd metadata still ranks.
func importantText(c *models.ContentIndex) (string, []string) {
	var parts []string
	var fields []string
	add := func(name, v string) {
		v = strings.TrimSpace(v)
		if v == "" {
			return
		}
		parts = append(parts, strings.ToLower(v))
		fields = append(fields, name)
	}
	add("title", c.Title)
	add("summary", c.Auto.Summary)
	add("keywords", strings.Join(c.Auto.Keywords, " "))
	add("themes", strings.Join(c.Auto.Themes, " "))
	add("entities", strings.Join(c.Auto.Entities, " "))
	if len(parts) == 0 {
		return strings.ToLower(fmt.Sprintf("%+v", *c)), []string{"metadata"}
	}
	return strings.Join(parts, " "), fields
}

func scoreBlob(query string, terms []string, blob string) int {
	matched := 0
	for _, t := range terms {
		if strings.Contains(blob, t) {
			matched++
		}
	}

	score := matched
	if strings.Contains(blob, query) {
		score += 10
	}
	if phraseMatch(terms, blob) {
		score += 5
	}
	if len(terms) > 0 {
		coverage := float64(matched) / float64(len(terms))
		score += int(5 * coverage)
	}
	return score
}

// phraseMatch reports whether any 3-consecutive-word window of the query
// appears verbatim in the blob. Queries shorter than 3 words never match.
func phraseMatch(terms []string, blob string) bool {
	if len(terms) < 3 {
		return false
	}
	for i := 0; i+3 <= len(terms); i++ {
		if strings.Contains(blob, strings.Join(terms[i:i+3], " ")) {
			return true
		}
	}
	return false
}
