package resolver

import (
	"context"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/Idan-Levin/slack-shopping-agent/internal/domain"
)

const browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/110.0.0.0 Safari/537.36"

const (
	navigationTimeout = 28 * time.Second
	selectorTimeout   = 10 * time.Second
	defaultRegionZip  = "10001"
)

// Target selectors are volatile; inspect the page structure when extraction
// starts returning the sentinel title.
const (
	titleSelector = "h1[data-test='product-title']"
	priceSelector = "[data-test='product-price']"
	imageSelector = "div[data-test='product-image'] img"
)

// PageScraper drives a headless browser to a product URL, localizes it to a
// fixed reference region and extracts title/price/image from the rendered
// markup. Each call owns its own browser context, torn down on every exit
// path.
type PageScraper struct {
	regionZip string
	logger    *zap.Logger
}

// NewPageScraper creates a scraper localized to regionZip (defaults to a US
// reference region when empty).
func NewPageScraper(regionZip string, logger *zap.Logger) *PageScraper {
	if regionZip == "" {
		regionZip = defaultRegionZip
	}
	return &PageScraper{regionZip: regionZip, logger: logger}
}

// Scrape navigates to url and extracts a product candidate. It returns
// (nil, nil) when the page exists but is not a usable product page — in
// particular when the final URL after redirects left the product path, which
// means the item no longer exists. Browser-launch and navigation errors are
// non-retryable here; the caller decides whether to fall back to search.
func (s *PageScraper) Scrape(ctx context.Context, url string) (*domain.ProductCandidate, error) {
	s.logger.Info("scraping product page", zap.String("url", url))

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserAgent(browserUserAgent),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
	)
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	navCtx, cancelNav := context.WithTimeout(browserCtx, navigationTimeout)
	defer cancelNav()

	err := chromedp.Run(navCtx,
		network.Enable(),
		network.SetExtraHTTPHeaders(network.Headers{"Accept-Language": "en-US,en;q=0.9"}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			return network.SetCookie("visitorZipCode", s.regionZip).
				WithDomain(".target.com").
				WithPath("/").
				Do(ctx)
		}),
		chromedp.Navigate(url),
	)
	if err != nil {
		s.logger.Warn("browser navigation failed", zap.String("url", url), zap.Error(err))
		return nil, nil
	}

	// Wait briefly for a key content marker; its absence is not fatal, the
	// page may still yield a title or image.
	waitCtx, cancelWait := context.WithTimeout(browserCtx, selectorTimeout)
	if err := chromedp.Run(waitCtx, chromedp.WaitReady(priceSelector, chromedp.ByQuery)); err != nil {
		s.logger.Debug("price marker did not appear, extracting anyway",
			zap.String("url", url), zap.Error(err))
	}
	cancelWait()

	var html, finalURL string
	captureCtx, cancelCapture := context.WithTimeout(browserCtx, selectorTimeout)
	defer cancelCapture()
	err = chromedp.Run(captureCtx,
		chromedp.Location(&finalURL),
		chromedp.OuterHTML("html", &html),
	)
	if err != nil {
		s.logger.Warn("failed to capture rendered page", zap.String("url", url), zap.Error(err))
		return nil, nil
	}

	cand := s.extractCandidate(url, finalURL, html)
	if cand == nil {
		return nil, nil
	}
	s.logger.Info("scraped product",
		zap.String("title", cand.Title),
		zap.String("price", FormatPrice(cand.Price)),
		zap.String("final_url", finalURL))
	return cand, nil
}

// extractCandidate decides what the rendered page yielded. A final URL off
// the product path means the item no longer exists, no matter what the page
// contains; otherwise the markup is parsed for product data.
func (s *PageScraper) extractCandidate(requestURL, finalURL, html string) *domain.ProductCandidate {
	// A redirect to a category or search page means the item doesn't exist.
	if !productPathPattern.MatchString(finalURL) {
		s.logger.Info("redirected off product path, treating as unavailable",
			zap.String("url", requestURL), zap.String("final_url", finalURL))
		return nil
	}

	cand := parseProduct(html, finalURL)
	if cand == nil {
		s.logger.Warn("could not extract usable product data", zap.String("url", requestURL))
		return nil
	}
	return cand
}

// parseProduct extracts a candidate from rendered markup using the fixed
// structural selectors. Price parse failures null the price rather than
// failing the whole scrape.
func parseProduct(html, finalURL string) *domain.ProductCandidate {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	cand := &domain.ProductCandidate{
		URL:    finalURL,
		Source: domain.SourceDirectScrape,
	}

	title := strings.TrimSpace(doc.Find(titleSelector).First().Text())
	if title == "" {
		title = domain.TitleNotFound
	}
	cand.Title = strings.Join(strings.Fields(title), " ")

	cand.Price = ParsePrice(doc.Find(priceSelector).First().Text())

	if src, ok := doc.Find(imageSelector).First().Attr("src"); ok {
		cand.ImageURL = src
	}

	if !cand.Usable() {
		return nil
	}
	return cand
}
