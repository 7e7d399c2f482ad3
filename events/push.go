package events

import (
	"encoding/json"
	"errors"
)

// PushEnvelope is the body Pub/Sub push subscriptions POST to the service.
type PushEnvelope struct {
	Message struct {
		Data       []byte            `json:"data"`
		MessageId  string            `json:"messageId"`
		Attributes map[string]string `json:"attributes"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

// ERPImportPayload asks for a receivables sync. An empty payload is valid.
type ERPImportPayload struct {
	Reason string `json:"reason,omitempty"`
}

var ErrMalformedPush = errors.New("malformed push message")

// DecodeERPImport parses a push body into its import payload.
func DecodeERPImport(body []byte) (PushEnvelope, ERPImportPayload, error) {
	var envelope PushEnvelope
	var payload ERPImportPayload
	if err := json.Unmarshal(body, &envelope); err != nil {
		return envelope, payload, ErrMalformedPush
	}
	if envelope.Message.MessageId == "" && len(envelope.Message.Data) == 0 {
		return envelope, payload, ErrMalformedPush
	}
	if len(envelope.Message.Data) > 0 {
		if err := json.Unmarshal(envelope.Message.Data, &payload); err != nil {
			return envelope, payload, ErrMalformedPush
		}
	}
	return envelope, payload, nil
}
