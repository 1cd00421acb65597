package resolver

import (
	"context"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/Idan-Levin/slack-shopping-agent/internal/domain"
)

// minKeywordLength guards the scrape-to-search fallback against uselessly
// generic queries derived from short URL slugs.
const minKeywordLength = 6

// fallbackNote marks candidates found through search after the user's URL
// failed to scrape.
const fallbackNote = "Original URL failed, found similar product through search"

// Service is the resolution entry point: URLs go through the scraper with a
// keyword fallback to search, queries go straight to search. One scrape
// attempt and one search attempt per call; transient failures surface as an
// empty result or ErrNoCandidate, never as a fault that aborts the
// conversation turn.
type Service struct {
	scraper  domain.Scraper
	searcher domain.Searcher
	logger   *zap.Logger
}

// NewService creates a resolution service.
func NewService(scraper domain.Scraper, searcher domain.Searcher, logger *zap.Logger) *Service {
	return &Service{scraper: scraper, searcher: searcher, logger: logger}
}

// ResolveFromURL scrapes the product page, falling back to keyword search
// when scraping yields nothing usable. Returns ErrNoCandidate when both
// strategies fail.
func (s *Service) ResolveFromURL(ctx context.Context, rawURL string) (*domain.ProductCandidate, error) {
	cand, err := s.scraper.Scrape(ctx, rawURL)
	if err != nil {
		s.logger.Warn("scrape failed", zap.String("url", rawURL), zap.Error(err))
	}
	if cand.Usable() {
		cand.Source = domain.SourceDirectScrape
		return cand, nil
	}

	keywords := keywordsFromURL(rawURL)
	if len(keywords) < minKeywordLength {
		return nil, domain.ErrNoCandidate
	}

	s.logger.Info("scrape yielded nothing, searching by URL keywords",
		zap.String("url", rawURL), zap.String("keywords", keywords))
	results := s.ResolveFromQuery(ctx, keywords, 1)
	if len(results) == 0 {
		return nil, domain.ErrNoCandidate
	}
	first := results[0]
	first.Note = fallbackNote
	return &first, nil
}

// ResolveFromQuery delegates to the search client; its results are already
// validated and reconciled.
func (s *Service) ResolveFromQuery(ctx context.Context, query string, maxResults int) []domain.ProductCandidate {
	return s.searcher.Search(ctx, query, maxResults)
}

// keywordsFromURL derives search text from a product URL's slug segment,
// stripping hyphens and encoding boilerplate.
func keywordsFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")

	slug := ""
	for i, seg := range segments {
		if seg == "p" && i+1 < len(segments) {
			slug = segments[i+1]
			break
		}
	}
	if slug == "" && len(segments) > 0 {
		slug = segments[len(segments)-1]
	}

	slug = strings.ReplaceAll(slug, "-", " ")
	slug = strings.ReplaceAll(slug, "amp;", "")
	slug = strings.TrimSuffix(slug, ".html")
	return strings.TrimSpace(slug)
}
