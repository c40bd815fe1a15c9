package phonepe

import (
	"encoding/base64"
	"encoding/json"
	"strings"

	pkgerrors "github.com/saffronhouse/orders-backend/pkg/errors"
)

// WebhookEvent is the transaction update carried by a server-to-server callback.
type WebhookEvent struct {
	MerchantTransactionID string
	TransactionID         string
	State                 string
	Code                  string
	Amount                int64
}

// Outcome interprets the webhook state, falling back to the response code.
func (e WebhookEvent) Outcome() Outcome {
	if e.State != "" {
		return ParseOutcome(e.State)
	}
	return ParseOutcome(e.Code)
}

type webhookEnvelope struct {
	Response string          `json:"response"`
	Success  bool            `json:"success"`
	Code     string          `json:"code"`
	Data     *webhookPayload `json:"data"`
}

type webhookPayload struct {
	MerchantTransactionID string `json:"merchantTransactionId"`
	TransactionID         string `json:"transactionId"`
	State                 string `json:"state"`
	ResponseCode          string `json:"responseCode"`
	Amount                int64  `json:"amount"`
}

// ParseWebhook decodes a webhook body. PhonePe either posts the payload
// directly or wraps it as base64 in a "response" field.
func ParseWebhook(body []byte) (*WebhookEvent, error) {
	var env webhookEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid webhook payload")
	}

	if env.Data == nil && strings.TrimSpace(env.Response) != "" {
		decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(env.Response))
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid webhook response encoding")
		}
		var inner webhookEnvelope
		if err := json.Unmarshal(decoded, &inner); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid webhook response payload")
		}
		env = inner
	}

	if env.Data == nil || strings.TrimSpace(env.Data.MerchantTransactionID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "webhook missing merchantTransactionId")
	}

	code := env.Data.ResponseCode
	if code == "" {
		code = env.Code
	}
	return &WebhookEvent{
		MerchantTransactionID: strings.TrimSpace(env.Data.MerchantTransactionID),
		TransactionID:         env.Data.TransactionID,
		State:                 env.Data.State,
		Code:                  code,
		Amount:                env.Data.Amount,
	}, nil
}
