package backend

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ashureev/advisor-gateway/internal/domain"
)

// Contract selects which response shape the backend speaks.
type Contract string

const (
	// ContractFlat is {message, confidence, suggestions, products}.
	ContractFlat Contract = "flat"
	// ContractNested is {response: {response, ...}, mode, sessionId}.
	ContractNested Contract = "nested"
)

// ParseContract validates a contract name.
func ParseContract(s string) (Contract, error) {
	switch c := Contract(strings.ToLower(strings.TrimSpace(s))); c {
	case ContractFlat, ContractNested:
		return c, nil
	case "":
		return ContractFlat, nil
	default:
		return "", fmt.Errorf("unknown backend contract %q", s)
	}
}

// Response is the normalized result of Send. Error is set when the call
// failed for good; Message then holds the user-facing fallback text.
type Response struct {
	Message      string            `json:"message"`
	Confidence   domain.Confidence `json:"confidence,omitempty"`
	Suggestions  []string          `json:"suggestions,omitempty"`
	Products     []domain.Product  `json:"products,omitempty"`
	Mode         string            `json:"mode,omitempty"`
	ResponseTime int64             `json:"responseTime"`
	Attempts     int               `json:"attempts"`
	Error        *ErrorContext     `json:"error,omitempty"`
}

// Failed reports whether the response is a fallback for a failed call.
func (r *Response) Failed() bool {
	return r.Error != nil
}

type answer struct {
	Confidence  string           `json:"confidence"`
	Suggestions []string         `json:"suggestions"`
	Products    []domain.Product `json:"products"`
}

type flatBody struct {
	Message string `json:"message"`
	Mode    string `json:"mode"`
	answer
}

type nestedBody struct {
	Response *struct {
		Response string `json:"response"`
		answer
	} `json:"response"`
	Mode      string `json:"mode"`
	SessionID string `json:"sessionId"`
}

// decodeResponse parses a 2xx body according to the configured contract.
func decodeResponse(contract Contract, data []byte) (*Response, error) {
	var (
		msg  string
		mode string
		a    answer
	)

	switch contract {
	case ContractNested:
		var body nestedBody
		if err := json.Unmarshal(data, &body); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidResponse, err)
		}
		if body.Response == nil {
			return nil, fmt.Errorf("%w: missing response object", ErrInvalidResponse)
		}
		msg, mode, a = body.Response.Response, body.Mode, body.Response.answer
	default:
		var body flatBody
		if err := json.Unmarshal(data, &body); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidResponse, err)
		}
		msg, mode, a = body.Message, body.Mode, body.answer
	}

	if strings.TrimSpace(msg) == "" {
		return nil, fmt.Errorf("%w: empty message", ErrInvalidResponse)
	}

	products := make([]domain.Product, 0, len(a.Products))
	for _, p := range a.Products {
		products = append(products, p.Normalize())
	}

	return &Response{
		Message:     msg,
		Confidence:  domain.ParseConfidence(a.Confidence),
		Suggestions: a.Suggestions,
		Products:    products,
		Mode:        mode,
	}, nil
}
