package domain

// IntentType is the coarse purpose of a user message.
type IntentType string

const (
	IntentSearch   IntentType = "search"
	IntentCompare  IntentType = "compare"
	IntentQuestion IntentType = "question"
	IntentPurchase IntentType = "purchase"
	IntentSupport  IntentType = "support"
)

// Progress is how far along the buying journey the user is.
type Progress string

const (
	ProgressResearch   Progress = "research"
	ProgressComparison Progress = "comparison"
	ProgressPurchase   Progress = "purchase"
)

// SearchPhase is derived from the number of turns in the conversation.
type SearchPhase string

const (
	PhaseDiscovery  SearchPhase = "discovery"
	PhaseNarrowing  SearchPhase = "narrowing"
	PhaseComparison SearchPhase = "comparison"
	PhaseDecision   SearchPhase = "decision"
)

// Satisfaction is the estimated mood of the user's latest message.
type Satisfaction string

const (
	SatisfactionHigh   Satisfaction = "high"
	SatisfactionMedium Satisfaction = "medium"
	SatisfactionLow    Satisfaction = "low"
)

// PriceRange is an inclusive budget in whole pesos.
type PriceRange struct {
	Min int64 `json:"min"`
	Max int64 `json:"max"`
}

// Entities are the values extracted from a single message.
type Entities struct {
	Category   string      `json:"category,omitempty"`
	Brands     []string    `json:"brands,omitempty"`
	PriceRange *PriceRange `json:"priceRange,omitempty"`
	Features   []string    `json:"features,omitempty"`
}

// Intent is the classification of one message. It is never stored on its own.
type Intent struct {
	Primary    IntentType `json:"primary"`
	Confidence float64    `json:"confidence"`
	Entities   Entities   `json:"entities"`
}

// SearchState describes the product search in progress.
type SearchState struct {
	Category    string            `json:"category,omitempty"`
	Criteria    map[string]string `json:"criteria,omitempty"`
	Phase       SearchPhase       `json:"phase"`
	MissingInfo []string          `json:"missingInfo"`
}

// UserProfile accumulates preferences stated across turns.
type UserProfile struct {
	BudgetMin       int64    `json:"budgetMin,omitempty"`
	BudgetMax       int64    `json:"budgetMax,omitempty"`
	PreferredBrands []string `json:"preferredBrands,omitempty"`
}

// ConversationContext is the per-session record that is replaced every turn.
type ConversationContext struct {
	TurnCount     int          `json:"turnCount"`
	LastAction    string       `json:"lastAction,omitempty"`
	Progress      Progress     `json:"progress"`
	Satisfaction  Satisfaction `json:"satisfaction"`
	CurrentSearch *SearchState `json:"currentSearch,omitempty"`
	UserProfile   *UserProfile `json:"userProfile,omitempty"`
	ProductsShown int          `json:"productsShown"`
}
