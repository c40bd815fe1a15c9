// Package whatsapp sends template messages through the WhatsApp Business
// Cloud API.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/saffronhouse/orders-backend/pkg/config"
)

const (
	defaultTimeout          = 30 * time.Second
	defaultCountryCode      = "91"
	responseReadLimit int64 = 4096
)

// Observer receives provider call latencies.
type Observer interface {
	ObserveProvider(provider, operation string, duration time.Duration)
}

// Settings configures the API endpoint and credentials.
type Settings struct {
	APIURL        string
	PhoneNumberID string
	AccessToken   string
	CountryCode   string
}

func SettingsFromConfig(cfg config.WhatsAppConfig) Settings {
	return Settings{
		APIURL:        cfg.APIURL,
		PhoneNumberID: cfg.PhoneNumberID,
		AccessToken:   cfg.AccessToken,
		CountryCode:   cfg.CountryCode,
	}
}

// Client is safe for concurrent use.
type Client struct {
	httpClient    *http.Client
	apiURL        string
	phoneNumberID string
	token         string
	countryCode   string
	observer      Observer
}

type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient = &http.Client{Timeout: timeout}
		}
	}
}

func WithObserver(observer Observer) Option {
	return func(c *Client) {
		c.observer = observer
	}
}

// NewClient builds a client. Without an access token or phone number id the
// client is disabled and every send reports failure without a network call.
func NewClient(settings Settings, opts ...Option) *Client {
	cc := digitsOnly(settings.CountryCode)
	if cc == "" {
		cc = defaultCountryCode
	}
	client := &Client{
		httpClient:    &http.Client{Timeout: defaultTimeout},
		apiURL:        strings.TrimRight(strings.TrimSpace(settings.APIURL), "/"),
		phoneNumberID: strings.TrimSpace(settings.PhoneNumberID),
		token:         strings.TrimSpace(settings.AccessToken),
		countryCode:   cc,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client
}

func (c *Client) Enabled() bool {
	return c != nil && c.token != "" && c.phoneNumberID != "" && c.apiURL != ""
}

// SendResult reports the outcome of one message. Send never returns an error.
type SendResult struct {
	Success   bool
	MessageID string
	Message   string
}

type messageRequest struct {
	MessagingProduct string          `json:"messaging_product"`
	To               string          `json:"to"`
	Type             string          `json:"type"`
	Template         templatePayload `json:"template"`
}

type templatePayload struct {
	Name       string      `json:"name"`
	Language   language    `json:"language"`
	Components []component `json:"components,omitempty"`
}

type language struct {
	Code string `json:"code"`
}

type component struct {
	Type       string      `json:"type"`
	Parameters []parameter `json:"parameters"`
}

type parameter struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type messageResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// Send delivers a template message with positional body parameters.
func (c *Client) Send(ctx context.Context, phone string, tpl Template, params []string) SendResult {
	if !c.Enabled() {
		return SendResult{Message: "whatsapp disabled"}
	}
	to := NormalizePhone(phone, c.countryCode)
	if to == "" {
		return SendResult{Message: "invalid phone number"}
	}
	lang := tpl.Language
	if lang == "" {
		lang = "en_US"
	}

	req := messageRequest{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "template",
		Template: templatePayload{
			Name:     tpl.Name,
			Language: language{Code: lang},
		},
	}
	if len(params) > 0 {
		parameters := make([]parameter, 0, len(params))
		for _, p := range params {
			parameters = append(parameters, parameter{Type: "text", Text: p})
		}
		req.Template.Components = []component{{Type: "body", Parameters: parameters}}
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return SendResult{Message: fmt.Sprintf("marshal message: %v", err)}
	}

	url := fmt.Sprintf("%s/%s/messages", c.apiURL, c.phoneNumberID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return SendResult{Message: fmt.Sprintf("build request: %v", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.token)

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if c.observer != nil {
		c.observer.ObserveProvider("whatsapp", "send", time.Since(start))
	}
	if err != nil {
		return SendResult{Message: fmt.Sprintf("send message: %v", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	var apiResp messageResponse
	body, _ := io.ReadAll(io.LimitReader(resp.Body, responseReadLimit))
	_ = json.Unmarshal(body, &apiResp)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if apiResp.Error != nil && apiResp.Error.Message != "" {
			return SendResult{Message: fmt.Sprintf("status %d: %s", resp.StatusCode, apiResp.Error.Message)}
		}
		return SendResult{Message: fmt.Sprintf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))}
	}

	result := SendResult{Success: true, Message: "sent"}
	if len(apiResp.Messages) > 0 {
		result.MessageID = apiResp.Messages[0].ID
	}
	return result
}

// NormalizePhone strips formatting and prefixes the country code to bare
// national numbers.
func NormalizePhone(raw, countryCode string) string {
	digits := digitsOnly(raw)
	switch {
	case digits == "":
		return ""
	case len(digits) == 11 && digits[0] == '0':
		return countryCode + digits[1:]
	case len(digits) == 10:
		return countryCode + digits
	case strings.HasPrefix(digits, countryCode):
		return digits
	default:
		return countryCode + digits
	}
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
