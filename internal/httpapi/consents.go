package httpapi

import (
	"context"
	"fmt"
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/nikolayk812/checkoutflow/internal/consent"
	"github.com/nikolayk812/checkoutflow/internal/domain"
	"github.com/nikolayk812/checkoutflow/internal/shipping"
)

// consentContext tags acceptances made outside a checkout session.
const consentContext = "site-modal"

type acceptRequest struct {
	// Documents are the document types the user ticked.
	Documents []string `json:"documents"`
}

// gate loads a fresh gate of scope for the caller. Anonymous callers get a transparent gate.
func (s *Server) gate(ctx context.Context, scope domain.ConsentScope) (*consent.Gate, error) {
	g, err := consent.NewGate(s.consents, s.cache, consentContext)
	if err != nil {
		return nil, fmt.Errorf("consent.NewGate: %w", err)
	}

	if err := g.Load(ctx, owner(ctx), scope, true); err != nil {
		return nil, upstream(fmt.Errorf("gate.Load: %w", err))
	}

	return g, nil
}

func (s *Server) getConsents(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	scope, err := scopeParam(ps)
	if err != nil {
		writeError(w, err)
		return
	}

	g, err := s.gate(r.Context(), scope)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, g.View())
}

// acceptConsents records the listed documents. Every outstanding document
// must be listed, otherwise nothing is written.
func (s *Server) acceptConsents(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var req acceptRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	scope, err := scopeParam(ps)
	if err != nil {
		writeError(w, err)
		return
	}

	g, err := s.gate(r.Context(), scope)
	if err != nil {
		writeError(w, err)
		return
	}

	for _, docType := range req.Documents {
		if err := g.Check(docType, true); err != nil {
			writeError(w, err)
			return
		}
	}

	if err := g.AcceptAll(r.Context()); err != nil {
		writeError(w, upstream(err))
		return
	}

	writeJSON(w, http.StatusOK, g.View())
}

// shippingTiers groups carrier options into tiers without a session.
func (s *Server) shippingTiers(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var options []domain.CarrierOption
	if err := decode(w, r, &options); err != nil {
		writeError(w, err)
		return
	}

	choices, err := shipping.Group(options)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, choices)
}
