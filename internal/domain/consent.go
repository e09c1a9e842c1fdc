package domain

import (
	"errors"
	"time"
)

type ConsentScope string

// remember to add new scopes to the validConsentScopes map
const (
	ConsentScopeSite                   ConsentScope = "site"
	ConsentScopeCheckout               ConsentScope = "checkout"
	ConsentScopeServiceCheckout        ConsentScope = "service-checkout"
	ConsentScopeMerchantOnboarding     ConsentScope = "merchant-onboarding"
	ConsentScopePractitionerOnboarding ConsentScope = "practitioner-onboarding"
)

var validConsentScopes = map[ConsentScope]struct{}{
	ConsentScopeSite:                   {},
	ConsentScopeCheckout:               {},
	ConsentScopeServiceCheckout:        {},
	ConsentScopeMerchantOnboarding:     {},
	ConsentScopePractitionerOnboarding: {},
}

func ToConsentScope(s string) (ConsentScope, error) {
	scope := ConsentScope(s)
	if _, ok := validConsentScopes[scope]; ok {
		return scope, nil
	}

	return "", errors.New("invalid consent scope")
}

// ConsentDocument is a legal document the identity has not yet accepted
// in its current version.
type ConsentDocument struct {
	DocumentType  string            `json:"documentType"`
	DocumentID    string            `json:"documentId"`
	Title         string            `json:"title"`
	Content       string            `json:"content"`
	Version       int               `json:"version"`
	EffectiveDate time.Time         `json:"effectiveDate"`
	Placeholders  map[string]string `json:"placeholders,omitempty"`
}

type ConsentAcceptance struct {
	DocumentType   string `json:"documentType"`
	DocumentID     string `json:"documentId"`
	Version        int    `json:"version"`
	ConsentContext string `json:"consentContext"`
	DocumentTitle  string `json:"documentTitle"`
}

func NewConsentAcceptance(doc ConsentDocument, consentContext string) ConsentAcceptance {
	return ConsentAcceptance{
		DocumentType:   doc.DocumentType,
		DocumentID:     doc.DocumentID,
		Version:        doc.Version,
		ConsentContext: consentContext,
		DocumentTitle:  doc.Title,
	}
}

// ConsentKey identifies the outstanding-document set of one identity in one scope.
type ConsentKey struct {
	Identity string
	Scope    ConsentScope
}

func (k ConsentKey) String() string {
	return "consents:" + string(k.Scope) + ":" + k.Identity
}
