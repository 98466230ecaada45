// Package prompt assembles the system prompt and request metadata sent to
// the advisor backend for each user turn.
package prompt

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/ashureev/advisor-gateway/internal/domain"
)

// Agent instructions understood by the backend.
const (
	InstructionAskFor              = "ASK_FOR"
	InstructionSuggestAlternative  = "SUGGEST_ALTERNATIVE_APPROACH"
	InstructionClarifyIntent       = "CLARIFY_USER_INTENT"
	alternativeApproachTurnCeiling = 5
	clarifyConfidenceFloor         = 0.6
)

// Metadata is the structured half of the request payload.
type Metadata struct {
	SessionID    string                     `json:"sessionId" jsonschema:"description=Session the message belongs to"`
	MessageID    string                     `json:"messageId" jsonschema:"description=Identifier of the user message"`
	Intent       domain.Intent              `json:"intent"`
	Context      domain.ConversationContext `json:"context"`
	Criteria     map[string]string          `json:"criteria" jsonschema:"description=Flattened search criteria including budget bounds"`
	Instructions []string                   `json:"instructions" jsonschema:"description=Machine-readable agent instructions"`
}

// Payload is everything the assembler produces for one turn.
type Payload struct {
	SystemPrompt string   `json:"systemPrompt"`
	Metadata     Metadata `json:"metadata"`
}

// Build assembles the payload for a turn. It is a pure function.
func Build(ctx domain.ConversationContext, in domain.Intent, sessionID, messageID string) Payload {
	return Payload{
		SystemPrompt: SystemPrompt(ctx),
		Metadata: Metadata{
			SessionID:    sessionID,
			MessageID:    messageID,
			Intent:       in,
			Context:      ctx,
			Criteria:     FlattenCriteria(ctx),
			Instructions: Instructions(ctx, in),
		},
	}
}

// SystemPrompt renders the context as prompt text. Search and profile
// sections appear only when the context carries them.
func SystemPrompt(ctx domain.ConversationContext) string {
	var b strings.Builder
	b.WriteString("Eres un asesor de compras de tecnología para una tienda en línea. ")
	b.WriteString("Responde en español, de forma breve y orientada a ayudar al cliente a decidir.\n\n")

	b.WriteString("ESTADO DE LA CONVERSACIÓN:\n")
	fmt.Fprintf(&b, "- Turno: %d\n", ctx.TurnCount)
	fmt.Fprintf(&b, "- Última acción: %s\n", ctx.LastAction)
	fmt.Fprintf(&b, "- Progreso: %s\n", ctx.Progress)
	fmt.Fprintf(&b, "- Satisfacción: %s\n", ctx.Satisfaction)

	if s := ctx.CurrentSearch; s != nil {
		b.WriteString("\nBÚSQUEDA ACTUAL:\n")
		if s.Category != "" {
			fmt.Fprintf(&b, "- Categoría: %s\n", s.Category)
		}
		fmt.Fprintf(&b, "- Fase: %s\n", s.Phase)
		for _, k := range slices.Sorted(maps.Keys(s.Criteria)) {
			fmt.Fprintf(&b, "- %s: %s\n", k, s.Criteria[k])
		}
		if len(s.MissingInfo) > 0 {
			fmt.Fprintf(&b, "- Información faltante: %s\n", strings.Join(s.MissingInfo, ", "))
		}
	}

	if p := ctx.UserProfile; p != nil {
		b.WriteString("\nPERFIL DEL USUARIO:\n")
		if p.BudgetMin > 0 || p.BudgetMax > 0 {
			fmt.Fprintf(&b, "- Presupuesto: %s - %s\n",
				domain.FormatPrice(float64(p.BudgetMin)), domain.FormatPrice(float64(p.BudgetMax)))
		}
		if len(p.PreferredBrands) > 0 {
			fmt.Fprintf(&b, "- Marcas preferidas: %s\n", strings.Join(p.PreferredBrands, ", "))
		}
	}

	return b.String()
}

// FlattenCriteria merges the profile's budget bounds with the search
// criteria. Search criteria win on conflicting keys.
func FlattenCriteria(ctx domain.ConversationContext) map[string]string {
	out := make(map[string]string)
	if p := ctx.UserProfile; p != nil {
		if p.BudgetMin > 0 {
			out["presupuesto_min"] = strconv.FormatInt(p.BudgetMin, 10)
		}
		if p.BudgetMax > 0 {
			out["presupuesto_max"] = strconv.FormatInt(p.BudgetMax, 10)
		}
	}
	if s := ctx.CurrentSearch; s != nil {
		maps.Copy(out, s.Criteria)
	}
	return out
}

// Instructions derives the agent instructions for a turn.
func Instructions(ctx domain.ConversationContext, in domain.Intent) []string {
	out := []string{}
	if s := ctx.CurrentSearch; s != nil && in.Primary == domain.IntentSearch && len(s.MissingInfo) > 0 {
		out = append(out, InstructionAskFor+": "+strings.Join(s.MissingInfo, ", "))
	}
	if ctx.TurnCount > alternativeApproachTurnCeiling && ctx.ProductsShown == 0 {
		out = append(out, InstructionSuggestAlternative)
	}
	if in.Confidence < clarifyConfidenceFloor {
		out = append(out, InstructionClarifyIntent)
	}
	return out
}
