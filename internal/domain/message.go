// Package domain contains core domain types for the product-advisor gateway.
package domain

import (
	"time"
)

// Sender identifies who authored a chat message.
type Sender string

const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"
	SenderSystem    Sender = "system"
)

// Confidence is the reliability label the backend attaches to an answer.
type Confidence string

const (
	ConfidenceHigh   Confidence = "HIGH"
	ConfidenceMedium Confidence = "MEDIUM"
	ConfidenceLow    Confidence = "LOW"
)

// HistoryLimit is the number of most recent messages kept when persisting.
const HistoryLimit = 50

// ChatMessage is a single entry of the chat transcript.
// Messages are never edited after creation; transcripts only grow.
type ChatMessage struct {
	ID           string     `json:"id"`
	Text         string     `json:"text"`
	Sender       Sender     `json:"sender"`
	Timestamp    time.Time  `json:"timestamp"`
	Confidence   Confidence `json:"confidence,omitempty"`
	ResponseTime int64      `json:"responseTime,omitempty"`
	Suggestions  []string   `json:"suggestions,omitempty"`
	IsError      bool       `json:"isError,omitempty"`
	Products     []Product  `json:"products,omitempty"`
}

// TrimHistory returns the last HistoryLimit messages of msgs.
func TrimHistory(msgs []ChatMessage) []ChatMessage {
	if len(msgs) <= HistoryLimit {
		return msgs
	}
	return msgs[len(msgs)-HistoryLimit:]
}

// ParseConfidence maps a backend confidence label onto a Confidence.
// Unknown labels yield the empty value.
func ParseConfidence(s string) Confidence {
	switch Confidence(s) {
	case ConfidenceHigh, ConfidenceMedium, ConfidenceLow:
		return Confidence(s)
	}
	switch s {
	case "high":
		return ConfidenceHigh
	case "medium":
		return ConfidenceMedium
	case "low":
		return ConfidenceLow
	}
	return ""
}
