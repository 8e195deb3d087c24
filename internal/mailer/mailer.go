package mailer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"net/smtp"
	"strings"

	"github.com/bloomcart/bloomcart-backend/pkg/config"
	"github.com/bloomcart/bloomcart-backend/pkg/logger"
)

// Message is one outbound email.
type Message struct {
	To      string
	Subject string
	HTML    string
}

// Sender delivers email. Implementations must be safe for concurrent use.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

type smtpSender struct {
	cfg config.SMTPConfig
}

// NewSMTPSender builds a Sender speaking plain SMTP with AUTH when
// credentials are configured.
func NewSMTPSender(cfg config.SMTPConfig) (Sender, error) {
	if cfg.Host == "" {
		return nil, errors.New("smtp host is required")
	}
	return &smtpSender{cfg: cfg}, nil
}

func (s *smtpSender) Send(_ context.Context, msg Message) error {
	if msg.To == "" {
		return errors.New("recipient is required")
	}

	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}

	var body strings.Builder
	fmt.Fprintf(&body, "From: %s <%s>\r\n", s.cfg.ShopName, s.cfg.DefaultFrom)
	fmt.Fprintf(&body, "To: %s\r\n", msg.To)
	fmt.Fprintf(&body, "Subject: %s\r\n", msg.Subject)
	body.WriteString("MIME-Version: 1.0\r\n")
	body.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	body.WriteString("\r\n")
	body.WriteString(msg.HTML)

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	if err := smtp.SendMail(addr, auth, s.cfg.DefaultFrom, []string{msg.To}, []byte(body.String())); err != nil {
		return fmt.Errorf("sending mail: %w", err)
	}
	return nil
}

// SendAsync fires the message on a goroutine and logs failures. Order flow
// must never block or fail on email delivery.
func SendAsync(ctx context.Context, sender Sender, logg *logger.Logger, msg Message) {
	if sender == nil {
		return
	}
	go func() {
		if err := sender.Send(context.WithoutCancel(ctx), msg); err != nil {
			logg.Error(ctx, "sending email failed", err)
		}
	}()
}

var orderConfirmationTmpl = template.Must(template.New("order_confirmation").Parse(`
<h2>Thank you for your order, {{.RecipientName}}!</h2>
<p>Your order <strong>{{.OrderID}}</strong> has been received.</p>
<table>
{{range .Lines}}<tr><td>{{.Name}}</td><td>x{{.Quantity}}</td><td>{{.LineTotal}} VND</td><td>delivery {{.DeliveryDate}}, {{.DeliverySlot}}</td></tr>
{{end}}</table>
<p>Shipping fee: {{.ShippingFee}} VND</p>
<p><strong>Total: {{.Total}} VND</strong></p>
<p>We will deliver to: {{.ShippingAddress}}</p>
`))

var orderCancelledTmpl = template.Must(template.New("order_cancelled").Parse(`
<h2>Your order {{.OrderID}} was cancelled</h2>
<p>{{.Reason}}</p>
<p>If you already paid, the amount will be refunded to your payment method.</p>
`))

// OrderConfirmationData feeds the confirmation template.
type OrderConfirmationData struct {
	OrderID         string
	RecipientName   string
	ShippingAddress string
	ShippingFee     int64
	Total           int64
	Lines           []OrderConfirmationLine
}

// OrderConfirmationLine is one rendered order line.
type OrderConfirmationLine struct {
	Name         string
	Quantity     int
	LineTotal    int64
	DeliveryDate string
	DeliverySlot string
}

// RenderOrderConfirmation builds the confirmation email body.
func RenderOrderConfirmation(data OrderConfirmationData) (string, error) {
	var buf bytes.Buffer
	if err := orderConfirmationTmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("rendering confirmation: %w", err)
	}
	return buf.String(), nil
}

// OrderCancelledData feeds the cancellation template.
type OrderCancelledData struct {
	OrderID string
	Reason  string
}

// RenderOrderCancelled builds the cancellation email body.
func RenderOrderCancelled(data OrderCancelledData) (string, error) {
	var buf bytes.Buffer
	if err := orderCancelledTmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("rendering cancellation: %w", err)
	}
	return buf.String(), nil
}
