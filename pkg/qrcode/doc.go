// Package qrcode renders strings as QR code PNGs. TOTP enrollment uses it
// to turn the otpauth:// provisioning URI into an image the client can
// display directly via a data URI.
package qrcode
