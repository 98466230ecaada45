package intent

import (
	"reflect"
	"slices"
	"testing"

	"github.com/ashureev/advisor-gateway/internal/domain"
)

func TestAnalyzeExtractsTelevisorQuery(t *testing.T) {
	t.Parallel()

	ctx, in := Analyze("Busco un televisor Samsung con presupuesto de 1.500.000 a 2.000.000", nil)

	if in.Primary != domain.IntentSearch {
		t.Fatalf("expected search intent, got %s", in.Primary)
	}
	if in.Entities.Category != "televisor" {
		t.Errorf("expected category televisor, got %q", in.Entities.Category)
	}
	if !reflect.DeepEqual(in.Entities.Brands, []string{"samsung"}) {
		t.Errorf("expected brands [samsung], got %v", in.Entities.Brands)
	}
	want := &domain.PriceRange{Min: 1500000, Max: 2000000}
	if !reflect.DeepEqual(in.Entities.PriceRange, want) {
		t.Errorf("expected price range %+v, got %+v", want, in.Entities.PriceRange)
	}

	if ctx.CurrentSearch == nil {
		t.Fatal("expected current search to be set")
	}
	if !reflect.DeepEqual(ctx.CurrentSearch.MissingInfo, []string{MissingUsage}) {
		t.Errorf("unexpected missing info: %v", ctx.CurrentSearch.MissingInfo)
	}
	if ctx.UserProfile == nil || ctx.UserProfile.BudgetMax != 2000000 {
		t.Errorf("expected profile budget to be recorded, got %+v", ctx.UserProfile)
	}
}

func TestClassifyCompareIgnoresCase(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"quiero COMPARAR dos celulares",
		"¿Cuál es mejor, el iPhone o el Galaxy?",
		"Samsung VS LG",
		"DIFERENCIA entre oled y qled",
		"Hazme una Comparación",
	}
	for _, text := range inputs {
		_, in := Analyze(text, nil)
		if in.Primary != domain.IntentCompare || in.Confidence != 0.9 {
			t.Errorf("Analyze(%q) = %s/%v, want compare/0.9", text, in.Primary, in.Confidence)
		}
	}
}

func TestClassifyPriorityAndDefaults(t *testing.T) {
	t.Parallel()

	tests := []struct {
		text       string
		want       domain.IntentType
		confidence float64
	}{
		{"hola", domain.IntentSearch, 0.7},
		{"", domain.IntentSearch, 0.7},
		{"quiero comprar este", domain.IntentPurchase, 0.85},
		{"necesito ayuda con la garantía", domain.IntentSupport, 0.85},
		{"¿qué es un panel OLED?", domain.IntentQuestion, 0.8},
		{"necesito un portátil", domain.IntentSearch, 0.8},
	}
	for _, tt := range tests {
		_, in := Analyze(tt.text, nil)
		if in.Primary != tt.want || in.Confidence != tt.confidence {
			t.Errorf("Analyze(%q) = %s/%v, want %s/%v", tt.text, in.Primary, in.Confidence, tt.want, tt.confidence)
		}
	}
}

func TestAnalyzeEmptyInput(t *testing.T) {
	t.Parallel()

	ctx, in := Analyze("", nil)
	if in.Entities.PriceRange != nil || in.Entities.Category != "" || len(in.Entities.Brands) != 0 {
		t.Errorf("expected no entities, got %+v", in.Entities)
	}
	if ctx.Satisfaction != domain.SatisfactionMedium {
		t.Errorf("expected medium satisfaction, got %s", ctx.Satisfaction)
	}
	want := []string{MissingCategory, MissingBudget, MissingUsage}
	if !reflect.DeepEqual(ctx.CurrentSearch.MissingInfo, want) {
		t.Errorf("expected missing %v, got %v", want, ctx.CurrentSearch.MissingInfo)
	}
	if ctx.UserProfile != nil {
		t.Errorf("expected no profile, got %+v", ctx.UserProfile)
	}
}

func TestTurnCountAndPhase(t *testing.T) {
	t.Parallel()

	wantPhases := []domain.SearchPhase{
		domain.PhaseDiscovery, domain.PhaseDiscovery,
		domain.PhaseNarrowing, domain.PhaseNarrowing,
		domain.PhaseComparison, domain.PhaseComparison,
		domain.PhaseDecision, domain.PhaseDecision,
	}

	var prev *domain.ConversationContext
	for i, want := range wantPhases {
		next, _ := Analyze("busco algo", prev)
		if next.TurnCount != i+1 {
			t.Fatalf("turn %d: expected count %d, got %d", i, i+1, next.TurnCount)
		}
		if next.CurrentSearch.Phase != want {
			t.Errorf("turn %d: expected phase %s, got %s", next.TurnCount, want, next.CurrentSearch.Phase)
		}
		prev = &next
	}
}

func TestBrandSubstringsAreNotPreferences(t *testing.T) {
	t.Parallel()

	tests := []struct {
		text       string
		wantBrands []string
		wantPrefs  []string
	}{
		{text: "busco algo para hacer tareas", wantBrands: []string{"lg", "acer"}, wantPrefs: nil},
		{text: "un portátil Acer o HP", wantBrands: []string{"hp", "acer"}, wantPrefs: []string{"hp", "acer"}},
		{text: "nevera LG, algo barato", wantBrands: []string{"lg"}, wantPrefs: []string{"lg"}},
	}

	for _, tt := range tests {
		ctx, in := Analyze(tt.text, nil)
		for _, b := range tt.wantBrands {
			if !slices.Contains(in.Entities.Brands, b) {
				t.Errorf("%q: entities should contain %s, got %v", tt.text, b, in.Entities.Brands)
			}
		}
		var prefs []string
		if ctx.UserProfile != nil {
			prefs = ctx.UserProfile.PreferredBrands
		}
		if len(prefs) != len(tt.wantPrefs) {
			t.Errorf("%q: preferred brands = %v, want %v", tt.text, prefs, tt.wantPrefs)
			continue
		}
		for _, b := range tt.wantPrefs {
			if !slices.Contains(prefs, b) {
				t.Errorf("%q: preferred brands = %v, want %v", tt.text, prefs, tt.wantPrefs)
			}
		}
	}
}

func TestAnalyzeDoesNotMutatePrevious(t *testing.T) {
	t.Parallel()

	prev := domain.ConversationContext{
		TurnCount:     3,
		ProductsShown: 4,
		UserProfile:   &domain.UserProfile{PreferredBrands: []string{"lg"}},
	}
	next, _ := Analyze("me gusta el samsung", &prev)

	if prev.TurnCount != 3 || len(prev.UserProfile.PreferredBrands) != 1 {
		t.Fatalf("previous context was modified: %+v", prev)
	}
	if next.ProductsShown != 4 {
		t.Errorf("expected products shown to carry over, got %d", next.ProductsShown)
	}
	if !reflect.DeepEqual(next.UserProfile.PreferredBrands, []string{"lg", "samsung"}) {
		t.Errorf("unexpected preferred brands %v", next.UserProfile.PreferredBrands)
	}
	if next.Satisfaction != domain.SatisfactionHigh {
		t.Errorf("expected high satisfaction, got %s", next.Satisfaction)
	}
}

func TestEstimateSatisfaction(t *testing.T) {
	t.Parallel()

	tests := map[string]domain.Satisfaction{
		"muchas gracias":          domain.SatisfactionHigh,
		"esto es terrible":        domain.SatisfactionLow,
		"está muy caro":           domain.SatisfactionLow,
		"muéstrame otro televisor": domain.SatisfactionMedium,
	}
	for text, want := range tests {
		if got := EstimateSatisfaction(normalize(text)); got != want {
			t.Errorf("EstimateSatisfaction(%q) = %s, want %s", text, got, want)
		}
	}
}

func TestProgressFollowsIntent(t *testing.T) {
	t.Parallel()

	ctx, _ := Analyze("comparar precios", nil)
	if ctx.Progress != domain.ProgressComparison || ctx.LastAction != "compare_products" {
		t.Errorf("unexpected compare context %+v", ctx)
	}
	ctx, _ = Analyze("lo quiero, vamos a pagar", nil)
	if ctx.Progress != domain.ProgressPurchase || ctx.LastAction != "assist_purchase" {
		t.Errorf("unexpected purchase context %+v", ctx)
	}
}

func TestExtractPriceRangeSingleValue(t *testing.T) {
	t.Parallel()

	e := ExtractEntities(normalize("algo de 800,000 pesos"))
	if e.PriceRange == nil || e.PriceRange.Min != 800000 || e.PriceRange.Max != 800000 {
		t.Errorf("unexpected price range %+v", e.PriceRange)
	}
}
