package app

import (
	"strings"

	"github.com/charlesng35/storefront/pkg/mail"
)

// APISettings converts EmailConfig to the hosted API mailer settings. The provider is
// enabled once an API key is present.
func (c EmailConfig) APISettings() mail.APISettings {
	return mail.APISettings{
		Enabled:  strings.TrimSpace(c.API.Key) != "",
		Endpoint: strings.TrimSpace(c.API.Endpoint),
		APIKey:   strings.TrimSpace(c.API.Key),
		From:     strings.TrimSpace(c.From),
		Timeout:  c.API.Timeout,
	}
}

// SMTPSettings converts EmailConfig to the mail package representation.
func (c EmailConfig) SMTPSettings() mail.SMTPSettings {
	return mail.SMTPSettings{
		Enabled:  c.SMTP.Enabled,
		Host:     c.SMTP.Host,
		Port:     c.SMTP.Port,
		Username: c.SMTP.Username,
		Password: c.SMTP.Password,
		From:     strings.TrimSpace(c.From),
		UseTLS:   c.SMTP.UseTLS,
		Timeout:  c.SMTP.Timeout,
	}
}
