// Package auth is the identity and session core: password authentication
// with lockout, email verification, TOTP / backup-code / email-OTP second
// factors, federated sign-in resolution, and rotating refresh-token
// sessions.
//
// The package is built from six collaborating components:
//
//   - Store: the transactional repository owning every row mutation
//     (identities, sessions, email OTP codes, MFA attempt log). Postgres
//     in production, in-memory for tests.
//   - Authenticator: password verification and the failed-attempt lockout
//     counter.
//   - MFAEngine: TOTP enrollment and validation, encrypted secret
//     material, single-use backup codes, transient email OTP codes.
//   - TokenService: the four HMAC-signed token families (access, refresh,
//     challenge, device-trust) and single-use refresh rotation.
//   - FederatedAdapter: maps a verified identity-provider assertion to a
//     local identity by provider id, email link, or auto-provision.
//   - Orchestrator: the public login state machine combining the rest.
//
// Every component takes its dependencies at construction and a
// context.Context per call; time is injected via WithClock so expiry
// behavior is deterministic under test. Domain failures are package
// sentinels (ErrInvalidCredentials, ErrInvalidMFA, ErrInvalidRefresh, …);
// anything else wraps an internal storage or delivery error.
package auth
