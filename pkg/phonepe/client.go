// Package phonepe talks to the PhonePe Hermes payment gateway: signed pay
// requests, status checks and webhook signature validation.
package phonepe

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/saffronhouse/orders-backend/pkg/config"
	pkgerrors "github.com/saffronhouse/orders-backend/pkg/errors"
)

const (
	HostProd = "https://api.phonepe.com/apis/hermes"
	HostUAT  = "https://mercury-uat.phonepe.com/apis/hermes"

	PayPath        = "/pg/v1/pay"
	statusPathFmt  = "/pg/v1/status/%s/%s"
	callbackPath   = "/api/payments/phonepe/callback"
	webhookPath    = "/api/payments/phonepe/webhook"
	instrumentType = "PAY_PAGE"
	redirectMode   = "REDIRECT"

	defaultTimeout          = 30 * time.Second
	responseReadLimit int64 = 4096
)

var (
	errMerchantRequired = errors.New("phonepe merchant id is required")
	errSaltKeyRequired  = errors.New("phonepe salt key is required")
)

// Observer receives provider call latencies.
type Observer interface {
	ObserveProvider(provider, operation string, duration time.Duration)
}

// Settings holds the merchant credentials and the URLs PhonePe calls back on.
type Settings struct {
	MerchantID  string
	SaltKey     string
	SaltIndex   string
	BaseURL     string
	RedirectURL string
	CallbackURL string
}

// SettingsFromConfig derives client settings from application config.
func SettingsFromConfig(cfg config.PhonePeConfig) Settings {
	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		base = HostUAT
		if strings.EqualFold(strings.TrimSpace(cfg.Env), "PROD") {
			base = HostProd
		}
	}
	backend := strings.TrimRight(strings.TrimSpace(cfg.BackendURL), "/")
	return Settings{
		MerchantID:  cfg.MerchantID,
		SaltKey:     cfg.SaltKey,
		SaltIndex:   cfg.SaltIndex,
		BaseURL:     base,
		RedirectURL: backend + callbackPath,
		CallbackURL: backend + webhookPath,
	}
}

// Client signs and sends requests to PhonePe.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	merchantID  string
	saltKey     string
	saltIndex   string
	redirectURL string
	callbackURL string
	now         func() time.Time
	observer    Observer
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithClock overrides the time source used for request ids.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// WithObserver reports call latencies to the given observer.
func WithObserver(observer Observer) Option {
	return func(c *Client) {
		c.observer = observer
	}
}

// WithTimeout sets the HTTP timeout on the default client.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient = &http.Client{Timeout: timeout}
		}
	}
}

// NewClient builds a PhonePe client.
func NewClient(settings Settings, opts ...Option) (*Client, error) {
	merchant := strings.TrimSpace(settings.MerchantID)
	if merchant == "" {
		return nil, errMerchantRequired
	}
	if settings.SaltKey == "" {
		return nil, errSaltKeyRequired
	}
	saltIndex := strings.TrimSpace(settings.SaltIndex)
	if saltIndex == "" {
		saltIndex = "1"
	}
	baseURL := strings.TrimRight(strings.TrimSpace(settings.BaseURL), "/")
	if baseURL == "" {
		baseURL = HostUAT
	}

	client := &Client{
		httpClient:  &http.Client{Timeout: defaultTimeout},
		baseURL:     baseURL,
		merchantID:  merchant,
		saltKey:     settings.SaltKey,
		saltIndex:   saltIndex,
		redirectURL: settings.RedirectURL,
		callbackURL: settings.CallbackURL,
		now:         time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// MerchantID returns the configured merchant identifier.
func (c *Client) MerchantID() string {
	return c.merchantID
}

// InitiateRequest describes a payment to start for an order.
type InitiateRequest struct {
	OrderNumber string
	Amount      decimal.Decimal
	Phone       string
}

// InitiateResult carries everything needed to correlate the provider's later
// callbacks with the order.
type InitiateResult struct {
	RequestID     string
	TransactionID string
	RedirectURL   string
	MerchantID    string
	AmountPaise   int64
	// EncodedPayload and Checksum are exactly what was sent.
	EncodedPayload string
	Checksum       string
}

type payPayload struct {
	MerchantID            string            `json:"merchantId"`
	MerchantTransactionID string            `json:"merchantTransactionId"`
	MerchantUserID        string            `json:"merchantUserId"`
	Amount                int64             `json:"amount"`
	RedirectURL           string            `json:"redirectUrl"`
	RedirectMode          string            `json:"redirectMode"`
	CallbackURL           string            `json:"callbackUrl"`
	MobileNumber          string            `json:"mobileNumber,omitempty"`
	PaymentInstrument     paymentInstrument `json:"paymentInstrument"`
}

type paymentInstrument struct {
	Type string `json:"type"`
}

type payResponse struct {
	Success bool   `json:"success"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Data    struct {
		MerchantID            string `json:"merchantId"`
		MerchantTransactionID string `json:"merchantTransactionId"`
		TransactionID         string `json:"transactionId"`
		InstrumentResponse    struct {
			Type         string `json:"type"`
			RedirectInfo struct {
				URL    string `json:"url"`
				Method string `json:"method"`
			} `json:"redirectInfo"`
		} `json:"instrumentResponse"`
	} `json:"data"`
}

// Initiate starts a pay-page transaction. Every failure is returned as a
// CodeUpstream error so callers can treat it as a routine outcome.
func (c *Client) Initiate(ctx context.Context, req InitiateRequest) (*InitiateResult, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeUpstream, "phonepe client not configured")
	}
	if strings.TrimSpace(req.OrderNumber) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order number is required")
	}
	paise := AmountInPaise(req.Amount)
	if paise <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}

	requestID := NewRequestID(req.OrderNumber, c.now())
	phone := nationalNumber(req.Phone)
	payload := payPayload{
		MerchantID:            c.merchantID,
		MerchantTransactionID: requestID,
		MerchantUserID:        merchantUserID(phone, req.OrderNumber),
		Amount:                paise,
		RedirectURL:           c.redirectURL,
		RedirectMode:          redirectMode,
		CallbackURL:           c.callbackURL,
		MobileNumber:          phone,
		PaymentInstrument:     paymentInstrument{Type: instrumentType},
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeUpstream, err, "marshal phonepe payload")
	}
	encoded := base64.StdEncoding.EncodeToString(raw)
	checksum := c.PayChecksum(encoded)

	body, err := json.Marshal(map[string]string{"request": encoded})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeUpstream, err, "marshal phonepe request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+PayPath, bytes.NewReader(body))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeUpstream, err, "build phonepe pay request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("X-VERIFY", checksum)

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	c.observe("initiate", start)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeUpstream, err, "execute phonepe pay request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseReadLimit))
		return nil, pkgerrors.Wrap(pkgerrors.CodeUpstream, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))), "phonepe pay request failed")
	}

	var apiResp payResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, responseReadLimit*4)).Decode(&apiResp); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeUpstream, err, "decode phonepe pay response")
	}
	if !apiResp.Success {
		return nil, pkgerrors.New(pkgerrors.CodeUpstream, fmt.Sprintf("phonepe rejected payment: %s %s", apiResp.Code, apiResp.Message))
	}
	redirect := apiResp.Data.InstrumentResponse.RedirectInfo.URL
	if redirect == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUpstream, "phonepe response missing redirect url")
	}

	return &InitiateResult{
		RequestID:      requestID,
		TransactionID:  apiResp.Data.TransactionID,
		RedirectURL:    redirect,
		MerchantID:     c.merchantID,
		AmountPaise:    paise,
		EncodedPayload: encoded,
		Checksum:       checksum,
	}, nil
}

// StatusResponse is the raw provider status payload.
type StatusResponse struct {
	Success bool       `json:"success"`
	Code    string     `json:"code"`
	Message string     `json:"message"`
	Data    StatusData `json:"data"`
}

type StatusData struct {
	MerchantID            string `json:"merchantId"`
	MerchantTransactionID string `json:"merchantTransactionId"`
	TransactionID         string `json:"transactionId"`
	Amount                int64  `json:"amount"`
	State                 string `json:"state"`
	ResponseCode          string `json:"responseCode"`
}

// Outcome interprets the status payload.
func (s StatusResponse) Outcome() Outcome {
	if s.Data.State != "" {
		return ParseOutcome(s.Data.State)
	}
	return ParseOutcome(s.Code)
}

// Verify asks PhonePe for the current state of a transaction.
func (c *Client) Verify(ctx context.Context, requestID string) (*StatusResponse, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeUpstream, "phonepe client not configured")
	}
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction reference is required")
	}

	path := c.statusPath(requestID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeUpstream, err, "build phonepe status request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-VERIFY", c.StatusChecksum(requestID))
	httpReq.Header.Set("X-MERCHANT-ID", c.merchantID)

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	c.observe("status", start)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeUpstream, err, "execute phonepe status request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseReadLimit))
		return nil, pkgerrors.Wrap(pkgerrors.CodeUpstream, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))), "phonepe status request failed")
	}

	var status StatusResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, responseReadLimit*4)).Decode(&status); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeUpstream, err, "decode phonepe status response")
	}
	return &status, nil
}

func (c *Client) statusPath(requestID string) string {
	return fmt.Sprintf(statusPathFmt, c.merchantID, requestID)
}

func (c *Client) observe(operation string, start time.Time) {
	if c.observer == nil {
		return
	}
	c.observer.ObserveProvider("phonepe", operation, time.Since(start))
}

// AmountInPaise converts rupees to integer paise, rounding half away from zero.
func AmountInPaise(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

// NewRequestID builds the merchant transaction id for one payment attempt.
// PhonePe caps it at 38 characters, so the attempt time is base36 encoded.
func NewRequestID(orderNumber string, at time.Time) string {
	return orderNumber + "_" + strings.ToUpper(strconv.FormatInt(at.UnixMilli(), 36))
}

func merchantUserID(phone, orderNumber string) string {
	if phone != "" {
		return "MU" + phone
	}
	return "MU" + strings.ReplaceAll(orderNumber, "_", "")
}

// nationalNumber keeps the trailing ten digits of an Indian mobile number.
func nationalNumber(value string) string {
	digits := digitsOnly(value)
	if len(digits) > 10 {
		return digits[len(digits)-10:]
	}
	return digits
}

func digitsOnly(value string) string {
	var b strings.Builder
	for _, r := range value {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
