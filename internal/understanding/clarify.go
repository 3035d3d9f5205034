package understanding

import (
	"fmt"
	"sort"
	"strings"

	"github.com/fyrsmithlabs/cortexd/internal/memory"
)

// GenerateClarifications derives questions from the understanding's
// unresolved ambiguities, ordered by criticality descending, capped at the
// configured maximum (default 3). Each question is tagged with its source
// ambiguity id.
func (e *Engine) GenerateClarifications(u *Understanding) []ClarificationQuestion {
	ambiguities := append([]Ambiguity(nil), u.Semantic.Ambiguities...)
	sort.SliceStable(ambiguities, func(i, j int) bool {
		return ambiguities[i].Criticality.Rank() > ambiguities[j].Criticality.Rank()
	})

	max := e.cfg.MaxClarifications
	if max <= 0 {
		max = 3
	}
	if len(ambiguities) > max {
		ambiguities = ambiguities[:max]
	}

	questions := make([]ClarificationQuestion, 0, len(ambiguities))
	for _, a := range ambiguities {
		questions = append(questions, ClarificationQuestion{
			AmbiguityID: a.ID,
			Question:    formatQuestion(a),
			Criticality: a.Criticality,
		})
	}
	return questions
}

// formatQuestion renders one ambiguity as a user-facing question.
func formatQuestion(a Ambiguity) string {
	if len(a.Interpretations) >= 2 {
		return fmt.Sprintf("To make sure I understand (%s): did you mean %q, or %q?",
			a.Description, a.Interpretations[0], a.Interpretations[1])
	}
	return fmt.Sprintf("Could you clarify: %s?", a.Description)
}

// IncorporateFeedback applies a clarification answer tied to an ambiguity id.
// It returns a new Understanding with that ambiguity removed, confidence
// raised by the configured step (clamped to 1), and RequiresClarification
// recomputed. The exchange is appended to the user's clarification history
// so the same ambiguity is not raised again.
func (e *Engine) IncorporateFeedback(u *Understanding, ambiguityID, answer string) (*Understanding, error) {
	if ambiguityID == "" {
		return nil, ErrAmbiguityUnknown
	}

	found := false
	var resolved Ambiguity
	for _, a := range u.Semantic.Ambiguities {
		if a.ID == ambiguityID {
			found = true
			resolved = a
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrAmbiguityUnknown, ambiguityID)
	}

	out := u.Clone()
	kept := out.Semantic.Ambiguities[:0]
	for _, a := range out.Semantic.Ambiguities {
		if a.ID != ambiguityID {
			kept = append(kept, a)
		}
	}
	out.Semantic.Ambiguities = kept
	out.Confidence = clamp01(out.Confidence + e.cfg.ClarificationStep)
	out.RequiresClarification = out.HighCriticalityAmbiguities() > 0

	if strings.TrimSpace(answer) != "" {
		err := e.store.RecordClarification(u.UserID, memory.ClarificationExchange{
			AmbiguityID: resolved.ID,
			Question:    formatQuestion(resolved),
			Answer:      answer,
		})
		if err != nil {
			return nil, fmt.Errorf("recording clarification: %w", err)
		}
	}
	return out, nil
}
