// Package validator applies declarative validation rules to request input.
//
// A Rule pairs a predicate with the field error reported when it fails;
// Apply runs a set of rules and returns the collected ValidationErrors, or
// nil when everything passed. Handlers compose the rules inline:
//
//	if err := validator.Apply(
//	    validator.ValidEmail("email", req.Email),
//	    validator.StrongPassword("password", req.Password, validator.DefaultPasswordPolicy()),
//	); err != nil { … }
//
// ValidationErrors keeps per-field messages so the transport can shape a
// structured 422 response.
package validator
