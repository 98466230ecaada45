package backend

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

var (
	// ErrTransport marks failures to reach the backend or read its reply.
	ErrTransport = errors.New("backend transport failure")
	// ErrInvalidResponse marks a reply whose body does not fit the contract.
	ErrInvalidResponse = errors.New("invalid backend response")
)

// StatusError is returned when the backend answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend returned status %d", e.StatusCode)
}

// ErrorType is the failure taxonomy used for retries and user messages.
type ErrorType string

const (
	ErrorNetwork    ErrorType = "network"
	ErrorServer     ErrorType = "server"
	ErrorRateLimit  ErrorType = "rate_limit"
	ErrorValidation ErrorType = "validation"
	ErrorUnknown    ErrorType = "unknown"
)

// ErrorContext describes a failed call. It is built per failure and never stored.
type ErrorContext struct {
	Type             ErrorType `json:"type"`
	StatusCode       int       `json:"statusCode,omitempty"`
	Retryable        bool      `json:"retryable"`
	UserMessage      string    `json:"userMessage"`
	TechnicalMessage string    `json:"technicalMessage"`
}

// Classify maps an error from a single attempt onto the taxonomy.
func Classify(err error) ErrorContext {
	ec := ErrorContext{Type: ErrorUnknown}
	if err != nil {
		ec.TechnicalMessage = err.Error()
	}

	var statusErr *StatusError
	var netErr net.Error
	switch {
	case err == nil:
	case errors.Is(err, ErrTransport), errors.As(err, &netErr):
		ec.Type, ec.Retryable = ErrorNetwork, true
	case errors.As(err, &statusErr):
		ec.StatusCode = statusErr.StatusCode
		ec.Type, ec.Retryable = classifyStatus(statusErr.StatusCode)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		ec.Type, ec.Retryable = ErrorNetwork, true
	case errors.Is(err, ErrInvalidResponse):
		ec.Type, ec.Retryable = ErrorValidation, false
	}

	ec.UserMessage = userMessages[ec.Type]
	return ec
}

func classifyStatus(code int) (ErrorType, bool) {
	switch {
	case code >= http.StatusInternalServerError:
		return ErrorServer, true
	case code == http.StatusTooManyRequests:
		return ErrorRateLimit, true
	case code == http.StatusBadRequest:
		return ErrorValidation, false
	case code == http.StatusNotFound:
		return ErrorServer, false
	default:
		return ErrorServer, false
	}
}

var userMessages = map[ErrorType]string{
	ErrorNetwork:    "No pude conectarme con el asesor. Revisa tu conexión a internet e inténtalo de nuevo.",
	ErrorServer:     "El asesor está teniendo problemas en este momento. Por favor intenta de nuevo en unos minutos.",
	ErrorRateLimit:  "Estoy recibiendo muchas consultas en este momento. Espera un momento antes de enviar otro mensaje.",
	ErrorValidation: "No pude procesar tu mensaje. ¿Podrías escribirlo de otra forma?",
	ErrorUnknown:    "Ocurrió un error inesperado. Por favor intenta de nuevo.",
}

var errorSuggestions = map[ErrorType][]string{
	ErrorNetwork:    {"Reintentar", "Verificar mi conexión"},
	ErrorServer:     {"Intentar de nuevo", "Buscar otro producto"},
	ErrorRateLimit:  {"Esperar un momento", "Reintentar"},
	ErrorValidation: {"Reformular mi pregunta", "Ver productos populares"},
	ErrorUnknown:    {"Reintentar", "Empezar una nueva conversación"},
}

// SuggestionsFor returns the fixed suggestion chips for an error type.
func SuggestionsFor(t ErrorType) []string {
	s := errorSuggestions[t]
	if s == nil {
		s = errorSuggestions[ErrorUnknown]
	}
	return append([]string(nil), s...)
}
