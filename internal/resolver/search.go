package resolver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/Idan-Levin/slack-shopping-agent/internal/domain"
)

const defaultMaxResults = 3

const searchSystemPrompt = `You are a product search assistant. Use web search to find product options based on the user's query.
Focus ONLY on products available at Target (target.com) in the US.
For each product (max %d), provide ONLY the following information in a JSON list format:
- name: The product name.
- price: The approximate price as a number (e.g., 10.99, NOT a string like '$10.99'). Use null if unknown.
- url: The URL of the product page on target.com. Use null if unsure.
- image_url: A direct URL to an image of the product. Use null if unavailable.
- in_stock: Boolean or null, indicating likely availability.
Return ONLY the JSON list, no explanatory text. If nothing relevant is found at Target, return [].`

var (
	jsonArrayPattern  = regexp.MustCompile(`(?s)\[.*\]`)
	productURLPattern = regexp.MustCompile(`https?://(?:www\.)?target\.com/p/[\w-]+(?:/-/A-\w+)?`)
)

// citationPlaceholderTitle labels last-resort candidates whose only evidence
// is a URL found in the response body.
const citationPlaceholderTitle = "Product found at Target"

// SearchClient turns a free-text query into validated product candidates via
// one AI web-search call. Model output is unreliable in structure (breaks the
// JSON contract) and in content (invents plausible URLs), so the client
// degrades progressively — strict JSON, regex array extraction, citation
// synthesis, raw URL extraction — and prefers citation URLs whenever the
// reconciler finds a match. It never returns an error; total failure is an
// empty slice.
type SearchClient struct {
	llm        ChatCompleter
	reconciler *Reconciler
	validator  domain.URLValidator
	logger     *zap.Logger
}

// NewSearchClient wires the search pipeline.
func NewSearchClient(llm ChatCompleter, reconciler *Reconciler, validator domain.URLValidator, logger *zap.Logger) *SearchClient {
	return &SearchClient{llm: llm, reconciler: reconciler, validator: validator, logger: logger}
}

// Search resolves query into at most maxResults candidates.
func (s *SearchClient) Search(ctx context.Context, query string, maxResults int) []domain.ProductCandidate {
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}
	s.logger.Info("AI product search", zap.String("query", query))

	text, citations, err := s.llm.Complete(ctx,
		fmt.Sprintf(searchSystemPrompt, maxResults),
		fmt.Sprintf("Find products at Target for: %s", query),
	)
	if err != nil {
		s.logger.Error("AI search request failed", zap.String("query", query), zap.Error(err))
		return nil
	}

	// Only citations that point at the product path are worth anything.
	citations = filterCitations(citations)

	raws, perr := parseCandidates(text)
	if perr != nil {
		s.logger.Warn("AI response was not parseable JSON, degrading",
			zap.String("query", query), zap.Error(perr))
		return s.degrade(text, citations, maxResults)
	}
	if len(raws) > maxResults {
		raws = raws[:maxResults]
	}

	// Independent validation checks fan out together, bounded by the
	// candidate count.
	urls := make([]string, len(raws))
	for i, raw := range raws {
		if productURLPattern.MatchString(raw.URL) {
			urls[i] = raw.URL
		}
	}
	valid := s.validateBatch(ctx, urls)

	out := make([]domain.ProductCandidate, 0, maxResults)
	for i, raw := range raws {
		title := raw.title()
		if title == "" {
			continue
		}
		cand := domain.ProductCandidate{
			Title:    title,
			Price:    normalizePrice(raw.Price),
			ImageURL: raw.ImageURL,
			InStock:  normalizeStock(raw.InStock),
			Source:   domain.SourceAISearchJSON,
		}
		if chosen := s.reconciler.Reconcile(ctx, title, urls[i], valid[i], citations); chosen != "" {
			cand.URL = chosen
		} else if valid[i] {
			cand.URL = urls[i]
		}
		if !cand.Usable() {
			continue
		}
		out = append(out, cand)
	}

	// Unused citations fill the quota: the search visited those pages even
	// if the model didn't print them in its answer.
	out = appendCitationCandidates(out, citations, maxResults)

	s.logger.Info("AI search complete",
		zap.String("query", query), zap.Int("candidates", len(out)))
	return out
}

// degrade is the fallback chain when the primary text is unparsable:
// citation-only synthesis, then raw URL extraction with a placeholder title.
func (s *SearchClient) degrade(text string, citations []*domain.SearchCitation, maxResults int) []domain.ProductCandidate {
	out := appendCitationCandidates(nil, citations, maxResults)
	if len(out) > 0 {
		return out
	}

	seen := make(map[string]bool)
	for _, u := range productURLPattern.FindAllString(text, -1) {
		if len(out) >= maxResults || seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, domain.ProductCandidate{
			Title:  citationPlaceholderTitle,
			URL:    u,
			Source: domain.SourceAICitation,
		})
	}
	return out
}

// validateBatch runs network validation for each non-empty URL concurrently
// and awaits all of them.
func (s *SearchClient) validateBatch(ctx context.Context, urls []string) []bool {
	results := make([]bool, len(urls))
	var wg sync.WaitGroup
	for i, u := range urls {
		if u == "" {
			continue
		}
		wg.Add(1)
		go func(i int, u string) {
			defer wg.Done()
			results[i] = s.validator.Validate(ctx, u, false)
		}(i, u)
	}
	wg.Wait()
	return results
}

func appendCitationCandidates(out []domain.ProductCandidate, citations []*domain.SearchCitation, maxResults int) []domain.ProductCandidate {
	for _, cit := range citations {
		if len(out) >= maxResults {
			break
		}
		if cit.Used {
			continue
		}
		title := strings.TrimSpace(cit.Title)
		if title == "" {
			title = citationPlaceholderTitle
		}
		cit.Used = true
		out = append(out, domain.ProductCandidate{
			Title:  title,
			URL:    cit.URL,
			Source: domain.SourceAICitation,
		})
	}
	return out
}

func filterCitations(citations []*domain.SearchCitation) []*domain.SearchCitation {
	kept := citations[:0]
	for _, cit := range citations {
		if productURLPattern.MatchString(cit.URL) {
			kept = append(kept, cit)
		}
	}
	return kept
}

// rawCandidate tolerates the shapes models actually emit: string prices,
// string stock flags, "name" or "title" keys.
type rawCandidate struct {
	Name     string          `json:"name"`
	Title    string          `json:"title"`
	Price    json.RawMessage `json:"price"`
	URL      string          `json:"url"`
	ImageURL string          `json:"image_url"`
	InStock  json.RawMessage `json:"in_stock"`
}

func (r rawCandidate) title() string {
	if t := strings.TrimSpace(r.Name); t != "" {
		return t
	}
	return strings.TrimSpace(r.Title)
}

// parseCandidates extracts the candidate array from the model's primary text.
// It strips fenced code blocks, then normalizes the decoded JSON; if strict
// parsing fails it falls back to extracting a bracketed array substring.
func parseCandidates(text string) ([]rawCandidate, error) {
	data := []byte(stripFences(text))

	raws, err := normalizeCandidates(data)
	if err == nil {
		return raws, nil
	}

	if arr := jsonArrayPattern.Find(data); arr != nil {
		if raws, arrErr := normalizeCandidates(arr); arrErr == nil {
			return raws, nil
		}
	}
	return nil, err
}

// normalizeCandidates accepts exactly the known response shapes — a bare
// array, an object nesting the array under "results" or "products", or a
// single candidate object — and fails explicitly on anything else.
func normalizeCandidates(data []byte) ([]rawCandidate, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("empty response")
	}

	switch data[0] {
	case '[':
		var raws []rawCandidate
		if err := json.Unmarshal(data, &raws); err != nil {
			return nil, fmt.Errorf("decoding candidate array: %w", err)
		}
		return raws, nil
	case '{':
		var envelope struct {
			Results  []rawCandidate `json:"results"`
			Products []rawCandidate `json:"products"`
		}
		if err := json.Unmarshal(data, &envelope); err != nil {
			return nil, fmt.Errorf("decoding candidate object: %w", err)
		}
		if len(envelope.Results) > 0 {
			return envelope.Results, nil
		}
		if len(envelope.Products) > 0 {
			return envelope.Products, nil
		}
		var single rawCandidate
		if err := json.Unmarshal(data, &single); err == nil && single.title() != "" {
			return []rawCandidate{single}, nil
		}
		return nil, fmt.Errorf("object response carries no candidate list")
	default:
		return nil, fmt.Errorf("response is not JSON")
	}
}

func stripFences(text string) string {
	s := strings.TrimSpace(text)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func normalizePrice(raw json.RawMessage) *float64 {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var num float64
	if err := json.Unmarshal(raw, &num); err == nil {
		return &num
	}
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return ParsePrice(str)
	}
	return nil
}

// normalizeStock defaults to in-stock when the flag is absent; search results
// are overwhelmingly for purchasable items.
func normalizeStock(raw json.RawMessage) *bool {
	t := true
	if len(raw) == 0 || string(raw) == "null" {
		return &t
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return &b
	}
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		switch strings.ToLower(strings.TrimSpace(str)) {
		case "true", "yes", "in stock", "in_stock", "available":
			return &t
		default:
			f := false
			return &f
		}
	}
	return &t
}
