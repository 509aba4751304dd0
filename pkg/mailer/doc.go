// Package mailer delivers transactional email for the auth flows:
// verification links, password-reset links, and email MFA codes.
//
// The Mailer interface is the whole contract; the rest of the package is
// two implementations. NewPostmarkClient sends through Postmark's
// transactional API, NewDevSender writes messages to disk so development
// setups need no credentials and no network.
//
// Delivery failures come in two classes. Errors wrapping ErrTransient
// (network trouble, provider 5xx) are worth retrying or treating as
// best-effort; everything else wraps ErrSendFailed and indicates the
// message itself was rejected.
//
//	err := m.Send(ctx, mailer.Message{
//	    To:       "alice@example.com",
//	    Subject:  "Your verification code",
//	    BodyHTML: html,
//	    BodyText: text,
//	    Tag:      "email-mfa",
//	})
//	if errors.Is(err, mailer.ErrTransient) { … }
package mailer
