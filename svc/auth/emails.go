package auth

import (
	"fmt"

	"github.com/dmitrymomot/authd/pkg/mailer"
)

// Mail builders. Bodies are deliberately plain; anything fancier belongs
// in provider-side templates.

func verificationEmail(appName, to, link string) mailer.Message {
	return mailer.Message{
		To:      to,
		Subject: fmt.Sprintf("Verify your %s email address", appName),
		BodyHTML: fmt.Sprintf(
			`<p>Welcome to %s!</p><p>Confirm your email address by following <a href="%s">this link</a>. The link expires in 24 hours.</p><p>If you did not create this account, ignore this message.</p>`,
			appName, link,
		),
		BodyText: fmt.Sprintf(
			"Welcome to %s!\n\nConfirm your email address: %s\nThe link expires in 24 hours.\n\nIf you did not create this account, ignore this message.\n",
			appName, link,
		),
		Tag: "email-verification",
	}
}

func welcomeEmail(appName, to, displayName string) mailer.Message {
	greeting := "Hello"
	if displayName != "" {
		greeting = "Hello " + displayName
	}
	return mailer.Message{
		To:      to,
		Subject: fmt.Sprintf("Welcome to %s", appName),
		BodyHTML: fmt.Sprintf(
			`<p>%s,</p><p>Your email is verified and your %s account is ready to use.</p>`,
			greeting, appName,
		),
		BodyText: fmt.Sprintf(
			"%s,\n\nYour email is verified and your %s account is ready to use.\n",
			greeting, appName,
		),
		Tag: "welcome",
	}
}

func passwordResetEmail(appName, to, link string) mailer.Message {
	return mailer.Message{
		To:      to,
		Subject: fmt.Sprintf("Reset your %s password", appName),
		BodyHTML: fmt.Sprintf(
			`<p>We received a request to reset your %s password.</p><p>Choose a new password by following <a href="%s">this link</a>. The link expires in 1 hour.</p><p>If you did not request a reset, ignore this message; your password is unchanged.</p>`,
			appName, link,
		),
		BodyText: fmt.Sprintf(
			"We received a request to reset your %s password.\n\nChoose a new password: %s\nThe link expires in 1 hour.\n\nIf you did not request a reset, ignore this message; your password is unchanged.\n",
			appName, link,
		),
		Tag: "password-reset",
	}
}

func emailOTPEmail(appName, to, code string) mailer.Message {
	return mailer.Message{
		To:      to,
		Subject: fmt.Sprintf("Your %s sign-in code", appName),
		BodyHTML: fmt.Sprintf(
			`<p>Your %s sign-in code is:</p><p style="font-size:24px;letter-spacing:4px"><strong>%s</strong></p><p>It expires in 5 minutes. If you did not try to sign in, change your password.</p>`,
			appName, code,
		),
		BodyText: fmt.Sprintf(
			"Your %s sign-in code is: %s\n\nIt expires in 5 minutes. If you did not try to sign in, change your password.\n",
			appName, code,
		),
		Tag: "mfa-code",
	}
}
