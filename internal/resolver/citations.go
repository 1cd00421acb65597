package resolver

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/Idan-Levin/slack-shopping-agent/internal/domain"
)

// fuzzyMatchThreshold is the minimum normalized similarity for a citation
// title to be considered the same product as a candidate title.
const fuzzyMatchThreshold = 0.6

// Reconciler matches AI-search candidates against citation URLs. Citation
// URLs are grounded — the search backend actually visited them — so they are
// preferred over model-generated URLs, which are frequently invented. Each
// citation is consumable at most once per search call so two candidates never
// end up sharing a URL.
type Reconciler struct {
	validator domain.URLValidator
	logger    *zap.Logger
}

// NewReconciler creates a citation reconciler backed by the given validator.
func NewReconciler(validator domain.URLValidator, logger *zap.Logger) *Reconciler {
	return &Reconciler{validator: validator, logger: logger}
}

// Reconcile picks the best URL for a candidate. Matching order: exact
// substring between titles, then fuzzy similarity above the threshold, then —
// only when the candidate's own URL failed validation (urlValid false, checked
// by the caller so batches can fan out) — any remaining unused citation that
// validates, as a blind substitute. Returns "" when no citation applies; the
// caller keeps the candidate URL in that case.
func (r *Reconciler) Reconcile(ctx context.Context, candidateTitle, candidateURL string, urlValid bool, citations []*domain.SearchCitation) string {
	if len(citations) == 0 {
		return ""
	}

	lower := strings.ToLower(strings.TrimSpace(candidateTitle))

	// 1. Case-insensitive substring match, either direction.
	if lower != "" {
		for _, cit := range citations {
			if cit.Used || cit.Title == "" {
				continue
			}
			citLower := strings.ToLower(cit.Title)
			if strings.Contains(citLower, lower) || strings.Contains(lower, citLower) {
				cit.Used = true
				r.logger.Debug("citation matched by substring",
					zap.String("candidate", candidateTitle), zap.String("url", cit.URL))
				return cit.URL
			}
		}

		// 2. Fuzzy similarity against all unused citations; best match wins
		// if it clears the threshold.
		var best *domain.SearchCitation
		bestScore := 0.0
		for _, cit := range citations {
			if cit.Used || cit.Title == "" {
				continue
			}
			score := similarity(lower, strings.ToLower(cit.Title))
			if score > bestScore {
				bestScore = score
				best = cit
			}
		}
		if best != nil && bestScore > fuzzyMatchThreshold {
			best.Used = true
			r.logger.Debug("citation matched by similarity",
				zap.String("candidate", candidateTitle),
				zap.Float64("score", bestScore),
				zap.String("url", best.URL))
			return best.URL
		}
	}

	// 3. No title match. If the candidate's own URL doesn't hold up, any
	// remaining validated citation beats a model-invented link.
	if candidateURL == "" || !urlValid {
		for _, cit := range citations {
			if cit.Used {
				continue
			}
			if r.validator.Validate(ctx, cit.URL, false) {
				cit.Used = true
				r.logger.Debug("citation substituted for failing candidate URL",
					zap.String("candidate", candidateTitle),
					zap.String("rejected_url", candidateURL),
					zap.String("url", cit.URL))
				return cit.URL
			}
		}
	}

	return ""
}

// similarity is a normalized edit-distance ratio in [0, 1]. The distance and
// the length normalization both count runes, so multibyte titles score the
// same as ASCII ones.
func similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	la, lb := len([]rune(a)), len([]rune(b))
	if la == 0 || lb == 0 {
		return 0
	}
	longest := la
	if lb > longest {
		longest = lb
	}
	return 1 - float64(levenshtein(a, b))/float64(longest)
}

// levenshtein computes edit distance with a two-row table.
func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min3(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
