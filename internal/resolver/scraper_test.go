package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Idan-Levin/slack-shopping-agent/internal/domain"
)

const productPageHTML = `<html><body>
<div id="pageBodyContainer">
  <h1 data-test="product-title">Tide PODS Laundry Detergent Pacs -
    Original</h1>
  <span data-test="product-price">$21.49</span>
  <div data-test="product-image">
    <img src="https://target.scene7.com/is/image/Target/GUEST_abc123" alt="Tide PODS">
  </div>
</div>
</body></html>`

func TestParseProduct(t *testing.T) {
	got := parseProduct(productPageHTML, "https://www.target.com/p/tide-pods/-/A-75558283")
	require.NotNil(t, got)

	assert.Equal(t, "Tide PODS Laundry Detergent Pacs - Original", got.Title)
	require.NotNil(t, got.Price)
	assert.InDelta(t, 21.49, *got.Price, 0.001)
	assert.Equal(t, "https://target.scene7.com/is/image/Target/GUEST_abc123", got.ImageURL)
	assert.Equal(t, domain.SourceDirectScrape, got.Source)
	assert.Equal(t, "https://www.target.com/p/tide-pods/-/A-75558283", got.URL)
}

func TestParseProductPriceRange(t *testing.T) {
	html := `<html><body>
	  <h1 data-test="product-title">Goodfellow T-Shirt</h1>
	  <span data-test="product-price">$8.00 - $12.00</span>
	</body></html>`

	got := parseProduct(html, "https://www.target.com/p/goodfellow-t-shirt/-/A-111")
	require.NotNil(t, got)
	require.NotNil(t, got.Price)
	assert.InDelta(t, 8.00, *got.Price, 0.001)
}

func TestParseProductMissingTitleWithPrice(t *testing.T) {
	// A price alone still identifies a sellable page; the title falls back to
	// the sentinel and the caller decides how to present it.
	html := `<html><body><span data-test="product-price">$4.99</span></body></html>`

	got := parseProduct(html, "https://www.target.com/p/something/-/A-222")
	require.NotNil(t, got)
	assert.Equal(t, domain.TitleNotFound, got.Title)
}

func TestParseProductNothingExtractable(t *testing.T) {
	html := `<html><body><h1>Oops! We can't find that page.</h1></body></html>`
	assert.Nil(t, parseProduct(html, "https://www.target.com/p/gone/-/A-333"))
}

func TestExtractCandidateRedirectOffProductPath(t *testing.T) {
	s := NewPageScraper("", zap.NewNop())

	// Removed items redirect to category or search pages. Even a page full of
	// extractable-looking markup must be treated as unavailable then.
	redirects := []string{
		"https://www.target.com/c/laundry-detergent/-/N-5xsz4",
		"https://www.target.com/s?searchTerm=tide+pods",
		"https://www.target.com/",
	}
	for _, finalURL := range redirects {
		assert.Nil(t, s.extractCandidate("https://www.target.com/p/tide-pods/-/A-75558283", finalURL, productPageHTML),
			"final URL %s should yield no candidate", finalURL)
	}
}

func TestExtractCandidateStaysOnProductPath(t *testing.T) {
	s := NewPageScraper("", zap.NewNop())

	got := s.extractCandidate(
		"https://www.target.com/p/tide-pods/-/A-75558283",
		"https://www.target.com/p/tide-pods-laundry-detergent/-/A-75558283",
		productPageHTML)
	require.NotNil(t, got)
	assert.Equal(t, "Tide PODS Laundry Detergent Pacs - Original", got.Title)
	assert.Equal(t, "https://www.target.com/p/tide-pods-laundry-detergent/-/A-75558283", got.URL)
}
