// Package idp verifies federated identity-provider tokens and maps them to
// a provider-neutral Assertion.
//
// The Verifier interface is the contract the auth core consumes: it takes
// the opaque token a client obtained from its identity provider and
// returns the verified claim set, or fails. NewOIDCVerifier implements it
// for any OIDC-compliant provider via issuer discovery
// (github.com/coreos/go-oidc); tests substitute a stub.
//
//	verifier, err := idp.NewOIDCVerifier(ctx, idp.Config{
//	    Issuer:   "https://accounts.google.com",
//	    ClientID: "my-client-id",
//	})
//	assertion, err := verifier.Verify(ctx, rawIDToken)
//
// Verification failures wrap ErrVerificationFailed so callers can map them
// to a single client-safe error.
package idp
