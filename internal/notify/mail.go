package notify

import (
	"bytes"
	"fmt"
	"html/template"
	"net/smtp"
)

type MailConfig struct {
	SMTPAddress string
	SMTPHost    string
	From        string
	Password    string
}

// Mailer sends templated HTML mail over SMTP.
type Mailer struct {
	cfg MailConfig
}

func NewMailer(cfg MailConfig) *Mailer {
	return &Mailer{cfg: cfg}
}

func (m *Mailer) Send(to, subject, tmplText string, data any) error {
	tmpl, err := template.New("mail").Parse(tmplText)
	if err != nil {
		return fmt.Errorf("template parse error: %w", err)
	}

	var body bytes.Buffer
	if err := tmpl.Execute(&body, data); err != nil {
		return fmt.Errorf("template execution error: %w", err)
	}

	message := fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-version: 1.0;\r\nContent-Type: text/html; charset=\"UTF-8\";\r\n\r\n%s",
		m.cfg.From, to, subject, body.String(),
	)

	auth := smtp.PlainAuth("", m.cfg.From, m.cfg.Password, m.cfg.SMTPHost)
	if err := smtp.SendMail(m.cfg.SMTPAddress, auth, m.cfg.From, []string{to}, []byte(message)); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

const orderConfirmationTmpl = `
<html>
<body style="font-family: Arial, sans-serif;">
  <h2>{{.Heading}}</h2>
  <p>Hi {{.Name}},</p>
  <p>{{.Intro}} Order <strong>#{{.OrderID}}</strong></p>
  <table cellpadding="6">
    <tr><td>Subtotal</td><td>{{printf "%.2f" .Subtotal}}</td></tr>
    <tr><td>Discount</td><td>-{{printf "%.2f" .Discount}}</td></tr>
    <tr><td><strong>Total</strong></td><td><strong>{{printf "%.2f" .Total}}</strong></td></tr>
  </table>
  <p>Payment method: {{.PaymentMethod}}</p>
  <p>Thank you for shopping with us!</p>
</body>
</html>
`

const statusUpdateTmpl = `
<html>
<body style="font-family: Arial, sans-serif;">
  <h2>Order Status Updated</h2>
  <p>Hi {{.Name}},</p>
  <p>Your order <strong>#{{.OrderID}}</strong> status changed from
     <strong>{{.OldStatus}}</strong> to <strong>{{.NewStatus}}</strong>.</p>
  {{if .TrackingNumber}}
  <p>Tracking number: {{.TrackingNumber}}{{if .TrackingURL}} - <a href="{{.TrackingURL}}">track your order</a>{{end}}</p>
  {{end}}
  <p>You can track your order anytime by logging into your account.</p>
</body>
</html>
`
