package account

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/url"
)

// Mailer sends HTML e-mail.
type Mailer interface {
	SendEmail(ctx context.Context, to, subject, bodyHTML string) error
}

const activationSubject = "Activate your account"

var activationTemplate = template.Must(template.New("activation").Parse(
	`<p>Hello {{.Name}},</p>
<p>Your activation code is <strong>{{.Code}}</strong>.</p>
{{- if .Link}}
<p><a href="{{.Link}}">Activate your account</a></p>
{{- end}}
`))

func renderActivationEmail(name, code, baseURL string) (string, error) {
	var link string
	if baseURL != "" {
		u, err := url.Parse(baseURL)
		if err != nil {
			return "", fmt.Errorf("parsing activation url: %w", err)
		}
		q := u.Query()
		q.Set("code", code)
		u.RawQuery = q.Encode()
		link = u.String()
	}
	var buf bytes.Buffer
	err := activationTemplate.Execute(&buf, struct{ Name, Code, Link string }{name, code, link})
	if err != nil {
		return "", fmt.Errorf("rendering activation e-mail: %w", err)
	}
	return buf.String(), nil
}
