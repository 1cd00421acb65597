package domain

// TitleNotFound is the sentinel title used when a scrape could not extract a
// product name. A candidate carrying it together with a nil price is unusable.
const TitleNotFound = "Title not found"

// CandidateSource records where a product candidate came from, used for trust
// ranking: direct scrapes beat AI answers, citation-derived URLs beat
// model-generated ones.
type CandidateSource string

const (
	SourceDirectScrape CandidateSource = "direct_scrape"
	SourceAISearchJSON CandidateSource = "ai_search_json"
	SourceAICitation   CandidateSource = "ai_citation"
)

// ProductCandidate is a tentative structured product record produced by the
// resolution pipeline, pending user confirmation.
type ProductCandidate struct {
	Title    string          `json:"title"`
	Price    *float64        `json:"price"`
	ImageURL string          `json:"image_url,omitempty"`
	URL      string          `json:"url,omitempty"` // canonical page URL after redirects
	InStock  *bool           `json:"in_stock"`
	Source   CandidateSource `json:"source"`
	Note     string          `json:"note,omitempty"` // provenance note, e.g. original URL failed
}

// Usable reports whether the candidate carries enough information to surface
// to a user. A sentinel title with no price means the extraction failed.
func (c *ProductCandidate) Usable() bool {
	if c == nil {
		return false
	}
	if (c.Title == "" || c.Title == TitleNotFound) && c.Price == nil {
		return false
	}
	return true
}

// SearchCitation is a URL the AI search backend asserts it consulted,
// independent of the model's generated answer text. Each citation may be
// assigned to at most one candidate within a single search call.
type SearchCitation struct {
	URL   string
	Title string
	Used  bool
}
