package resolver

import (
	"context"
	"net/http"
	"regexp"
	"time"

	"go.uber.org/zap"
)

// productPathPattern matches canonical Target product-page URLs:
// scheme + host + /p/ + slug + optional /-/A-<tcin> suffix.
var productPathPattern = regexp.MustCompile(`^https?://(?:www\.)?target\.com/p/[\w-]+(?:/-/A-\w+)?/?(?:[?#].*)?$`)

const validateTimeout = 7 * time.Second

// Validator checks whether a candidate product URL both matches the expected
// path shape and (optionally) resolves over the network.
//
// The network policy is deliberately asymmetric: a false negative discards a
// product the user never sees, while a false positive merely surfaces a bad
// link for confirmation. So 403s (bot defenses), transport errors and
// timeouts all count as valid; only a definitive non-200 status rejects.
type Validator struct {
	httpClient *http.Client
	pattern    *regexp.Regexp
	logger     *zap.Logger
}

// NewValidator creates a URL validator. The client follows redirects and uses
// a short per-attempt timeout.
func NewValidator(logger *zap.Logger) *Validator {
	return &Validator{
		httpClient: &http.Client{Timeout: validateTimeout},
		pattern:    productPathPattern,
		logger:     logger,
	}
}

// Validate reports whether rawURL looks like a real product page. With
// skipNetworkCheck the format check alone decides, used when network calls
// are too slow to gate on.
func (v *Validator) Validate(ctx context.Context, rawURL string, skipNetworkCheck bool) bool {
	if rawURL == "" || !v.pattern.MatchString(rawURL) {
		return false
	}
	if skipNetworkCheck {
		return true
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		// Passed the format check but the request could not be built;
		// fail open rather than discard a good candidate over a
		// validator bug.
		return true
	}
	req.Header.Set("User-Agent", browserUserAgent)

	resp, err := v.httpClient.Do(req)
	if err != nil {
		// Transient network failure must not block legitimate URLs.
		v.logger.Debug("URL validation request failed, treating as valid",
			zap.String("url", rawURL), zap.Error(err))
		return true
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		return true
	case resp.StatusCode == http.StatusForbidden:
		// Bot defenses reject legitimate URLs with 403.
		return true
	default:
		v.logger.Debug("URL validation rejected by status",
			zap.String("url", rawURL), zap.Int("status", resp.StatusCode))
		return false
	}
}
