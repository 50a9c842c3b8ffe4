// Package jwt issues and verifies authorization tickets: short-lived signed
// tokens that carry an authorized magic-link session from the request that
// validated it to the request that submits feedback.
package jwt
