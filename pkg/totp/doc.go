// Package totp implements time-based one-time passwords (RFC 6238) and the
// single-use numeric backup codes that accompany an enrollment.
//
// The package is deliberately free of storage and encryption concerns: it
// generates Base32 secrets, builds otpauth:// provisioning URIs, computes and
// validates codes for an explicit point in time, and produces or matches
// backup codes. Callers pass the time in, which keeps validation
// deterministic under test and pins the accepted window to the caller's
// clock rather than the package's.
//
// Code validation accepts one period of drift on either side of the supplied
// time (Skew). Backup-code matching is constant time over the whole list.
//
// # Usage
//
//	secret, _ := totp.GenerateSecret()
//	uri, _ := totp.ProvisioningURI(totp.Params{
//	    Secret:      secret,
//	    AccountName: "alice@example.com",
//	    Issuer:      "Acme",
//	})
//	// show uri as a QR code, then confirm the device works:
//	ok, _ := totp.ValidateCode(secret, userInput, time.Now())
//
// Errors are package-level sentinels and may be wrapped with errors.Join;
// inspect them with errors.Is.
//
// See RFC 4226 (HOTP) and RFC 6238 (TOTP).
package totp
