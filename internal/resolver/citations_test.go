package resolver

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/Idan-Levin/slack-shopping-agent/internal/domain"
)

// fakeValidator approves every URL unless listed in rejected.
type fakeValidator struct {
	rejected map[string]bool
	calls    int
}

func (v *fakeValidator) Validate(ctx context.Context, rawURL string, skip bool) bool {
	v.calls++
	return !v.rejected[rawURL]
}

func cits(pairs ...[2]string) []*domain.SearchCitation {
	out := make([]*domain.SearchCitation, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, &domain.SearchCitation{URL: p[0], Title: p[1]})
	}
	return out
}

func TestReconcileSubstringMatch(t *testing.T) {
	r := NewReconciler(&fakeValidator{}, zap.NewNop())
	citations := cits(
		[2]string{"https://www.target.com/p/dawn-soap/-/A-111", "Dawn Ultra Dishwashing Liquid Dish Soap"},
		[2]string{"https://www.target.com/p/oreo/-/A-222", "OREO Chocolate Sandwich Cookies"},
	)

	got := r.Reconcile(context.Background(), "dawn ultra dishwashing liquid", "https://model.invented/url", true, citations)
	if got != "https://www.target.com/p/dawn-soap/-/A-111" {
		t.Errorf("Reconcile = %q, want dawn citation", got)
	}
	if !citations[0].Used {
		t.Error("matched citation should be marked used")
	}
	if citations[1].Used {
		t.Error("unmatched citation should stay unused")
	}
}

func TestReconcileSubstringEitherDirection(t *testing.T) {
	r := NewReconciler(&fakeValidator{}, zap.NewNop())
	citations := cits([2]string{"https://www.target.com/p/tide/-/A-333", "Tide PODS"})

	// Citation title is a substring of the candidate title.
	got := r.Reconcile(context.Background(), "Tide PODS Laundry Detergent Pacs 81ct", "", false, citations)
	if got != "https://www.target.com/p/tide/-/A-333" {
		t.Errorf("Reconcile = %q, want tide citation", got)
	}
}

func TestReconcileFuzzyMatch(t *testing.T) {
	r := NewReconciler(&fakeValidator{}, zap.NewNop())
	citations := cits(
		[2]string{"https://www.target.com/p/oreo/-/A-444", "Oreo Cookies Original 12oz"},
		[2]string{"https://www.target.com/p/milk/-/A-555", "Whole Milk One Gallon"},
	)

	// Not a substring either way (cookie vs cookies) but well above the
	// similarity threshold.
	got := r.Reconcile(context.Background(), "Oreo Cookie Original 12oz", "", false, citations)
	if got != "https://www.target.com/p/oreo/-/A-444" {
		t.Errorf("Reconcile = %q, want oreo citation", got)
	}
}

func TestReconcileBelowThresholdKeepsValidURL(t *testing.T) {
	r := NewReconciler(&fakeValidator{}, zap.NewNop())
	citations := cits([2]string{"https://www.target.com/p/milk/-/A-555", "Whole Milk One Gallon"})

	got := r.Reconcile(context.Background(), "Nintendo Switch Game", "https://www.target.com/p/zelda/-/A-666", true, citations)
	if got != "" {
		t.Errorf("Reconcile = %q, want no citation for unrelated valid candidate", got)
	}
	if citations[0].Used {
		t.Error("citation must not be consumed by a non-match")
	}
}

func TestReconcileBlindSubstituteWhenURLInvalid(t *testing.T) {
	r := NewReconciler(&fakeValidator{}, zap.NewNop())
	citations := cits([2]string{"https://www.target.com/p/milk/-/A-555", "Whole Milk One Gallon"})

	got := r.Reconcile(context.Background(), "Nintendo Switch Game", "https://www.target.com/p/dead/-/A-000", false, citations)
	if got != "https://www.target.com/p/milk/-/A-555" {
		t.Errorf("Reconcile = %q, want blind substitute", got)
	}
}

func TestReconcileBlindSubstituteSkipsInvalidCitations(t *testing.T) {
	v := &fakeValidator{rejected: map[string]bool{"https://www.target.com/p/bad/-/A-777": true}}
	r := NewReconciler(v, zap.NewNop())
	citations := cits(
		[2]string{"https://www.target.com/p/bad/-/A-777", ""},
		[2]string{"https://www.target.com/p/good/-/A-888", ""},
	)

	got := r.Reconcile(context.Background(), "Something", "", false, citations)
	if got != "https://www.target.com/p/good/-/A-888" {
		t.Errorf("Reconcile = %q, want the citation that validates", got)
	}
	if citations[0].Used {
		t.Error("rejected citation should not be marked used")
	}
}

func TestReconcileCitationConsumedOnce(t *testing.T) {
	r := NewReconciler(&fakeValidator{}, zap.NewNop())
	citations := cits([2]string{"https://www.target.com/p/dawn/-/A-999", "Dawn Dish Soap"})

	first := r.Reconcile(context.Background(), "Dawn Dish Soap", "", false, citations)
	if first == "" {
		t.Fatal("first candidate should claim the citation")
	}
	second := r.Reconcile(context.Background(), "Dawn Dish Soap Refill", "https://www.target.com/p/refill/-/A-101", true, citations)
	if second == first {
		t.Error("a citation must never be assigned to two candidates in one search call")
	}
}

func TestSimilarity(t *testing.T) {
	if got := similarity("abc", "abc"); got != 1 {
		t.Errorf("similarity(identical) = %v, want 1", got)
	}
	if got := similarity("", "abc"); got != 0 {
		t.Errorf("similarity(empty) = %v, want 0", got)
	}
	if got := similarity("kitten", "sitting"); got < 0.5 || got > 0.6 {
		t.Errorf("similarity(kitten, sitting) = %v, want ~0.57", got)
	}
}

func TestSimilarityMultibyte(t *testing.T) {
	// Normalization counts runes, not bytes. Four entirely different
	// multibyte runes are a complete mismatch, not a byte-inflated 0.67.
	if got := similarity("ああああ", "いいいい"); got != 0 {
		t.Errorf("similarity(disjoint multibyte) = %v, want 0", got)
	}
	if got := similarity("café", "cafe"); got != 0.75 {
		t.Errorf("similarity(café, cafe) = %v, want 0.75", got)
	}
}
