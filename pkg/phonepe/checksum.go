package phonepe

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

const checksumSeparator = "###"

// PayChecksum signs a base64 encoded pay payload for the X-VERIFY header.
func (c *Client) PayChecksum(encodedPayload string) string {
	return c.sign(encodedPayload + PayPath)
}

// StatusChecksum signs a status check for the given merchant transaction id.
func (c *Client) StatusChecksum(requestID string) string {
	return c.sign(c.statusPath(requestID))
}

// WebhookChecksum is the signature PhonePe sends with a webhook body.
func (c *Client) WebhookChecksum(body []byte) string {
	return c.sign(string(body))
}

// ValidateWebhookSignature recomputes the signature over the raw request
// body and compares it in constant time.
func (c *Client) ValidateWebhookSignature(body []byte, provided string) bool {
	if c == nil {
		return false
	}
	provided = strings.TrimSpace(provided)
	if provided == "" {
		return false
	}
	expected := c.WebhookChecksum(body)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(provided)) == 1
}

// Checksum computes hex(SHA256(message + saltKey)) + "###" + saltIndex.
func Checksum(message, saltKey, saltIndex string) string {
	sum := sha256.Sum256([]byte(message + saltKey))
	return hex.EncodeToString(sum[:]) + checksumSeparator + saltIndex
}

func (c *Client) sign(message string) string {
	return Checksum(message, c.saltKey, c.saltIndex)
}
