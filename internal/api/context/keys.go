// Package context names the request-context keys shared by middleware
// and handlers.
package context

type Key string

const (
	Claims Key = "claims"
	Tenant Key = "tenant"
	Params Key = "params"
	// Entitlement carries the subscriptions.Outcome the guard evaluated.
	Entitlement Key = "entitlement"
)
