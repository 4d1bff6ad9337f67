package handlers

import (
	"fmt"
	"html"
	"net/http"
)

// Remediation pages the subscription guard redirects browsers to.
type PagesHandler struct{}

func NewPagesHandler() *PagesHandler {
	return &PagesHandler{}
}

func (h *PagesHandler) OrganizationDeactivated(w http.ResponseWriter, r *http.Request) {
	page(w, "Organization deactivated", "This organization has been deactivated. Contact your administrator or support to restore access.")
}

func (h *PagesHandler) SubscriptionExpired(w http.ResponseWriter, r *http.Request) {
	page(w, "Subscription expired", "Your subscription or trial has ended. Choose a plan to continue using the practice.")
}

func page(w http.ResponseWriter, title, body string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	fmt.Fprintf(w, "<!doctype html><html><head><title>%s</title></head><body><h1>%s</h1><p>%s</p><p><a href=\"/billing\">Billing</a></p></body></html>",
		html.EscapeString(title), html.EscapeString(title), html.EscapeString(body))
}
