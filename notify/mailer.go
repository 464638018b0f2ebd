package notify

import "context"

// EmailMessage is the payload dispatched on KindEmail.
type EmailMessage struct {
	Email string `json:"email"`
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Mailer sends e-mail through a Dispatcher.
type Mailer struct {
	dispatcher *Dispatcher
}

func NewMailer(d *Dispatcher) *Mailer {
	return &Mailer{dispatcher: d}
}

// SendEmail dispatches an HTML e-mail to to.
func (m *Mailer) SendEmail(ctx context.Context, to, subject, bodyHTML string) error {
	return m.dispatcher.Dispatch(ctx, KindEmail, EmailMessage{
		Email: to,
		Title: subject,
		Body:  bodyHTML,
	})
}
