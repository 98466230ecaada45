// Package intent classifies user messages and folds them into the
// conversation context.
//
// Everything here is deterministic keyword and regex matching over the
// tables in keywords.go. Analyze never fails and performs no I/O.
package intent

import (
	"regexp"
	"slices"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/ashureev/advisor-gateway/internal/domain"
)

var numberPattern = regexp.MustCompile(`\d+(?:[.,]\d+)*`)

// Analyze classifies text and returns the context that follows prev.
// prev may be nil for the first turn of a session; it is never modified.
func Analyze(text string, prev *domain.ConversationContext) (domain.ConversationContext, domain.Intent) {
	normalized := normalize(text)

	in := Classify(normalized)
	in.Entities = ExtractEntities(normalized)

	turn := 1
	productsShown := 0
	var profile *domain.UserProfile
	if prev != nil {
		turn = prev.TurnCount + 1
		productsShown = prev.ProductsShown
		profile = prev.UserProfile
	}

	next := domain.ConversationContext{
		TurnCount:     turn,
		LastAction:    actions[in.Primary],
		Progress:      progressFor(in.Primary),
		Satisfaction:  EstimateSatisfaction(normalized),
		CurrentSearch: searchState(turn, in),
		UserProfile:   mergeProfile(profile, in.Entities, normalized),
		ProductsShown: productsShown,
	}
	return next, in
}

// Classify returns the intent of already-normalized text without entities.
func Classify(normalized string) domain.Intent {
	for _, rule := range intentRules {
		if containsAny(normalized, rule.triggers) {
			return domain.Intent{Primary: rule.intent, Confidence: rule.confidence}
		}
	}
	return domain.Intent{Primary: defaultIntent, Confidence: defaultConfidence}
}

// ExtractEntities pulls category, brands, price range and features out of
// normalized text.
func ExtractEntities(normalized string) domain.Entities {
	var e domain.Entities
	for _, c := range categories {
		if strings.Contains(normalized, c) {
			e.Category = c
			break
		}
	}
	e.Brands = allMatches(normalized, brands)
	e.Features = allMatches(normalized, features)
	e.PriceRange = extractPriceRange(normalized)
	return e
}

// EstimateSatisfaction guesses the user's mood. Positive words are checked first.
func EstimateSatisfaction(normalized string) domain.Satisfaction {
	switch {
	case containsAny(normalized, positiveWords):
		return domain.SatisfactionHigh
	case containsAny(normalized, negativeWords):
		return domain.SatisfactionLow
	default:
		return domain.SatisfactionMedium
	}
}

// PhaseForTurn maps a turn count onto the search phase.
func PhaseForTurn(turn int) domain.SearchPhase {
	switch {
	case turn <= 2:
		return domain.PhaseDiscovery
	case turn <= 4:
		return domain.PhaseNarrowing
	case turn <= 6:
		return domain.PhaseComparison
	default:
		return domain.PhaseDecision
	}
}

func searchState(turn int, in domain.Intent) *domain.SearchState {
	e := in.Entities
	missing := make([]string, 0, 3)
	if e.Category == "" {
		missing = append(missing, MissingCategory)
	}
	if e.PriceRange == nil {
		missing = append(missing, MissingBudget)
	}
	if in.Primary == domain.IntentSearch && len(e.Features) == 0 {
		missing = append(missing, MissingUsage)
	}

	criteria := make(map[string]string)
	if e.Category != "" {
		criteria["categoria"] = e.Category
	}
	if len(e.Brands) > 0 {
		criteria["marcas"] = strings.Join(e.Brands, ",")
	}
	if e.PriceRange != nil {
		criteria["precio_min"] = strconv.FormatInt(e.PriceRange.Min, 10)
		criteria["precio_max"] = strconv.FormatInt(e.PriceRange.Max, 10)
	}
	if len(e.Features) > 0 {
		criteria["caracteristicas"] = strings.Join(e.Features, ",")
	}

	return &domain.SearchState{
		Category:    e.Category,
		Criteria:    criteria,
		Phase:       PhaseForTurn(turn),
		MissingInfo: missing,
	}
}

// mergeProfile returns a new profile combining prev with what e adds. Only
// brands written as whole words become preferences, so "algo" does not make
// lg a preferred brand for the rest of the conversation.
func mergeProfile(prev *domain.UserProfile, e domain.Entities, normalized string) *domain.UserProfile {
	var brands []string
	for _, b := range e.Brands {
		if containsWord(normalized, b) {
			brands = append(brands, b)
		}
	}
	if prev == nil && e.PriceRange == nil && len(brands) == 0 {
		return nil
	}

	p := &domain.UserProfile{}
	if prev != nil {
		p.BudgetMin = prev.BudgetMin
		p.BudgetMax = prev.BudgetMax
		p.PreferredBrands = append(p.PreferredBrands, prev.PreferredBrands...)
	}
	if e.PriceRange != nil {
		p.BudgetMin = e.PriceRange.Min
		p.BudgetMax = e.PriceRange.Max
	}
	for _, b := range brands {
		if !slices.Contains(p.PreferredBrands, b) {
			p.PreferredBrands = append(p.PreferredBrands, b)
		}
	}
	return p
}

func progressFor(t domain.IntentType) domain.Progress {
	switch t {
	case domain.IntentCompare:
		return domain.ProgressComparison
	case domain.IntentPurchase:
		return domain.ProgressPurchase
	default:
		return domain.ProgressResearch
	}
}

func extractPriceRange(normalized string) *domain.PriceRange {
	matches := numberPattern.FindAllString(normalized, -1)
	var r *domain.PriceRange
	for _, m := range matches {
		digits := strings.NewReplacer(".", "", ",", "").Replace(m)
		n, err := strconv.ParseInt(digits, 10, 64)
		if err != nil {
			continue
		}
		if r == nil {
			r = &domain.PriceRange{Min: n, Max: n}
			continue
		}
		r.Min = min(r.Min, n)
		r.Max = max(r.Max, n)
	}
	return r
}

// normalize lower-cases text and pads it with spaces so that word-delimited
// triggers such as " vs " also match at the edges.
func normalize(text string) string {
	return " " + strings.ToLower(strings.TrimSpace(text)) + " "
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

// containsWord reports whether word occurs in s not surrounded by letters or
// digits.
func containsWord(s, word string) bool {
	for i := 0; ; {
		j := strings.Index(s[i:], word)
		if j < 0 {
			return false
		}
		start, end := i+j, i+j+len(word)
		before, _ := utf8.DecodeLastRuneInString(s[:start])
		after, _ := utf8.DecodeRuneInString(s[end:])
		if !isWordRune(before) && !isWordRune(after) {
			return true
		}
		i = start + 1
	}
}

func isWordRune(r rune) bool {
	return r != utf8.RuneError && (unicode.IsLetter(r) || unicode.IsDigit(r))
}

func allMatches(s string, words []string) []string {
	var out []string
	for _, w := range words {
		if strings.Contains(s, w) {
			out = append(out, w)
		}
	}
	return out
}
