package services

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	texttemplate "text/template"
	"time"

	"github.com/charlesng35/storefront/internal/resettoken"
	"github.com/charlesng35/storefront/pkg/mail"
)

type resetEmailData struct {
	ShopName  string
	Link      string
	ExpiresIn string
}

var resetEmailHTML = htmltemplate.Must(htmltemplate.New("reset_html").Parse(`<!DOCTYPE html>
<html>
  <body style="font-family: Arial, sans-serif; color: #1f2933;">
    <h2>Reset your password</h2>
    <p>We received a request to reset the password for your {{.ShopName}} account.</p>
    <p>
      <a href="{{.Link}}" style="display:inline-block;padding:12px 20px;background:#0f766e;color:#ffffff;text-decoration:none;border-radius:4px;">Choose a new password</a>
    </p>
    <p>This link expires in {{.ExpiresIn}} and can only be used once.</p>
    <p>If the button does not work, copy this address into your browser:<br>{{.Link}}</p>
    <p>If you did not ask for a password reset you can ignore this email; your password will not change.</p>
  </body>
</html>
`))

var resetEmailText = texttemplate.Must(texttemplate.New("reset_text").Parse(`Reset your password

We received a request to reset the password for your {{.ShopName}} account.

Choose a new password by visiting the link below:
{{.Link}}

This link expires in {{.ExpiresIn}} and can only be used once.

If you did not ask for a password reset you can ignore this email; your password will not change.
`))

// humanDuration renders whole hours or minutes, e.g. "1 hour" or "30 minutes".
func humanDuration(d time.Duration) string {
	value, unit := int(d/time.Minute), "minute"
	if d >= time.Hour && d%time.Hour == 0 {
		value, unit = int(d/time.Hour), "hour"
	}
	if value != 1 {
		unit += "s"
	}
	return fmt.Sprintf("%d %s", value, unit)
}

func (s *PasswordResetService) resetMessage(to, link string) (mail.Message, error) {
	data := resetEmailData{
		ShopName:  s.shopName,
		Link:      link,
		ExpiresIn: humanDuration(resettoken.DefaultTTL),
	}

	var htmlBody, textBody bytes.Buffer
	if err := resetEmailHTML.Execute(&htmlBody, data); err != nil {
		return mail.Message{}, fmt.Errorf("render reset email html: %w", err)
	}
	if err := resetEmailText.Execute(&textBody, data); err != nil {
		return mail.Message{}, fmt.Errorf("render reset email text: %w", err)
	}

	return mail.Message{
		From:    s.from,
		To:      []string{to},
		Subject: fmt.Sprintf("Reset your %s password", s.shopName),
		HTML:    htmlBody.String(),
		Text:    textBody.String(),
	}, nil
}
