package mailer

// Config holds mailer configuration. The Postmark tokens are optional so
// development environments can fall back to the disk sender; SenderEmail
// and SupportEmail establish the from and reply-to identity for every
// outbound message.
type Config struct {
	PostmarkServerToken  string `env:"POSTMARK_SERVER_TOKEN"`
	PostmarkAccountToken string `env:"POSTMARK_ACCOUNT_TOKEN"`
	SenderEmail          string `env:"SENDER_EMAIL,required"`
	SupportEmail         string `env:"SUPPORT_EMAIL,required"`
	DevDir               string `env:"MAILER_DEV_DIR" envDefault:"./tmp/emails"`
}
