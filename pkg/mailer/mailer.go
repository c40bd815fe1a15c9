// Package mailer sends order receipts over SMTP.
package mailer

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"strings"

	"gopkg.in/gomail.v2"

	"github.com/saffronhouse/orders-backend/pkg/config"
)

// Sender delivers composed messages. *gomail.Dialer satisfies it.
type Sender interface {
	DialAndSend(m ...*gomail.Message) error
}

type Mailer struct {
	sender Sender
	from   string
}

// New returns nil when SMTP is not configured; a nil *Mailer is a valid,
// disabled mailer.
func New(cfg config.SMTPConfig) *Mailer {
	if !cfg.Enabled() {
		return nil
	}
	return NewWithSender(gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password), cfg.From)
}

func NewWithSender(sender Sender, from string) *Mailer {
	return &Mailer{sender: sender, from: from}
}

func (m *Mailer) Enabled() bool {
	return m != nil && m.sender != nil
}

// ReceiptLine is one rendered order line.
type ReceiptLine struct {
	Name      string
	Quantity  int
	LineTotal string
}

// Receipt carries everything the receipt body renders.
type Receipt struct {
	To           string
	OrderNumber  string
	CustomerName string
	DeliveryType string
	Lines        []ReceiptLine
	Total        string
	Currency     string
}

var receiptTemplate = template.Must(template.New("receipt").Parse(`<h2>Thank you, {{.CustomerName}}!</h2>
<p>Your order <strong>{{.OrderNumber}}</strong> is confirmed ({{.DeliveryType}}).</p>
<table cellpadding="4">
{{range .Lines}}<tr><td>{{.Name}}</td><td>x{{.Quantity}}</td><td>{{$.Currency}} {{.LineTotal}}</td></tr>
{{end}}<tr><td colspan="2"><strong>Total</strong></td><td><strong>{{.Currency}} {{.Total}}</strong></td></tr>
</table>
`))

// SendReceipt renders and sends the order receipt.
func (m *Mailer) SendReceipt(ctx context.Context, receipt Receipt) error {
	if !m.Enabled() {
		return fmt.Errorf("mailer disabled")
	}
	if strings.TrimSpace(receipt.To) == "" {
		return fmt.Errorf("receipt recipient required")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if receipt.Currency == "" {
		receipt.Currency = "INR"
	}

	var body bytes.Buffer
	if err := receiptTemplate.Execute(&body, receipt); err != nil {
		return fmt.Errorf("render receipt: %w", err)
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", receipt.To)
	msg.SetHeader("Subject", fmt.Sprintf("Your Saffron House order %s", receipt.OrderNumber))
	msg.SetBody("text/html", body.String())

	if err := m.sender.DialAndSend(msg); err != nil {
		return fmt.Errorf("send receipt: %w", err)
	}
	return nil
}
