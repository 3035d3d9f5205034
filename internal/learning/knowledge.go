package learning

import (
	"context"
	"fmt"
	"strings"

	"github.com/philippgille/chromem-go"

	"github.com/fyrsmithlabs/cortexd/internal/understanding"
)

// indexExample stores the example's derived knowledge for retrieval.
func (e *Engine) indexExample(ctx context.Context, example *Example) error {
	var content strings.Builder
	content.WriteString(strings.Join(example.Lessons, ". "))
	if len(example.SuccessFactors) > 0 {
		content.WriteString(". works with ")
		content.WriteString(strings.ReplaceAll(strings.Join(example.SuccessFactors, " "), "_", " "))
	}
	if len(example.FailureFactors) > 0 {
		content.WriteString(". fails with ")
		content.WriteString(strings.ReplaceAll(strings.Join(example.FailureFactors, " "), "_", " "))
	}

	doc := chromem.Document{
		ID:      example.ID,
		Content: content.String(),
		Metadata: map[string]string{
			"kind":           "lesson",
			"domain":         example.Domain,
			"classification": string(example.Classification),
		},
	}
	if err := e.knowledge.AddDocuments(ctx, []chromem.Document{doc}, 1); err != nil {
		return fmt.Errorf("indexing example %s: %w", example.ID, err)
	}
	return nil
}

// GetRelevantKnowledge ranks stored knowledge against a new understanding
// and returns up to limit recommendations. Items are filtered to the
// understanding's domain (plus domain-agnostic entries) and ordered by
// similarity.
func (e *Engine) GetRelevantKnowledge(ctx context.Context, u *understanding.Understanding, limit int) ([]Recommendation, error) {
	if u == nil || strings.TrimSpace(u.Message) == "" {
		return nil, ErrEmptyQuery
	}
	if limit <= 0 {
		limit = 5
	}

	count := e.knowledge.Count()
	if count == 0 {
		return nil, nil
	}

	domain := u.Semantic.Context.Domain
	if domain == "" {
		domain = "general"
	}

	// Over-fetch so domain filtering still leaves enough hits.
	n := limit * 3
	if n > count {
		n = count
	}
	query := u.Message + " " + domain

	results, err := e.knowledge.Query(ctx, query, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("querying knowledge base: %w", err)
	}

	var recs []Recommendation
	for _, r := range results {
		itemDomain := r.Metadata["domain"]
		if itemDomain != domain && itemDomain != "general" {
			continue
		}
		recs = append(recs, Recommendation{
			Kind:        r.Metadata["kind"],
			Domain:      itemDomain,
			Description: r.Content,
			Score:       float64(r.Similarity),
		})
		if len(recs) == limit {
			break
		}
	}

	// Strategy and mitigation summaries ride along when they match the
	// domain and there is room left.
	e.mu.Lock()
	if strategy, ok := e.strategies[domain]; ok && len(recs) < limit {
		recs = append(recs, Recommendation{
			Kind:   "strategy",
			Domain: domain,
			Description: fmt.Sprintf("%s (rolling success rate %.2f over %d uses)",
				strategy.Description, strategy.SuccessRate, strategy.Uses),
			Score: strategy.Confidence,
		})
	}
	e.mu.Unlock()

	return recs, nil
}
