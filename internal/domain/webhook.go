package domain

import (
	"fmt"
	"sort"
	"strings"
)

// WebhookRequest is a conversational-agent fulfillment request.
// Plain clients may send {"query": "..."} instead of queryResult.
type WebhookRequest struct {
	ResponseID  string      `json:"responseId,omitempty"`
	Session     string      `json:"session,omitempty"`
	QueryResult QueryResult `json:"queryResult"`
	Query       string      `json:"query,omitempty"`
}

// QueryResult carries the user's utterance and any extracted parameters.
type QueryResult struct {
	QueryText    string         `json:"queryText"`
	Parameters   map[string]any `json:"parameters,omitempty"`
	LanguageCode string         `json:"languageCode,omitempty"`
}

// Text returns the utterance to search for: queryText, then query, then the
// string parameter values in key order.
func (r WebhookRequest) Text() string {
	if text := strings.TrimSpace(r.QueryResult.QueryText); text != "" {
		return text
	}
	if text := strings.TrimSpace(r.Query); text != "" {
		return text
	}

	keys := make([]string, 0, len(r.QueryResult.Parameters))
	for k := range r.QueryResult.Parameters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var parts []string
	for _, k := range keys {
		switch v := r.QueryResult.Parameters[k].(type) {
		case string:
			if v = strings.TrimSpace(v); v != "" {
				parts = append(parts, v)
			}
		case []any:
			for _, item := range v {
				if s := strings.TrimSpace(fmt.Sprint(item)); s != "" {
					parts = append(parts, s)
				}
			}
		}
	}
	return strings.Join(parts, " ")
}

// WebhookResponse is the fulfillment reply.
type WebhookResponse struct {
	FulfillmentText     string               `json:"fulfillmentText"`
	FulfillmentMessages []FulfillmentMessage `json:"fulfillmentMessages"`
	Source              string               `json:"source,omitempty"`
}

// FulfillmentMessage wraps one text message.
type FulfillmentMessage struct {
	Text FulfillmentText `json:"text"`
}

// FulfillmentText holds the lines of a text message.
type FulfillmentText struct {
	Text []string `json:"text"`
}

// NewWebhookResponse builds a single-message reply.
func NewWebhookResponse(text string) WebhookResponse {
	return WebhookResponse{
		FulfillmentText: text,
		FulfillmentMessages: []FulfillmentMessage{
			{Text: FulfillmentText{Text: []string{text}}},
		},
		Source: "gemsearch",
	}
}
