package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"
	"github.com/nikolayk812/checkoutflow/internal/address"
	"github.com/nikolayk812/checkoutflow/internal/checkout"
	"github.com/nikolayk812/checkoutflow/internal/consent"
	"github.com/nikolayk812/checkoutflow/internal/domain"
	"github.com/nikolayk812/checkoutflow/internal/identity"
	"github.com/nikolayk812/checkoutflow/internal/payment"
	"github.com/nikolayk812/checkoutflow/internal/shipping"
)

type createSessionRequest struct {
	OrderRef         string            `json:"orderRef"`
	Items            []domain.LineItem `json:"items"`
	BaseAmount       domain.Money      `json:"baseAmount"`
	ClientSecret     string            `json:"clientSecret"`
	IntentType       domain.IntentType `json:"intentType"`
	ReturnURL        string            `json:"returnUrl"`
	ConnectedAccount string            `json:"connectedAccount"`
}

type tierRequest struct {
	Tier string `json:"tier"`
}

type expandRequest struct {
	Section string `json:"section"`
}

type checkRequest struct {
	Checked bool `json:"checked"`
}

type linkRequest struct {
	Href string `json:"href"`
}

type payRequest struct {
	PaymentMethodID string `json:"paymentMethodId"`
}

type payResponse struct {
	Result  payment.Result `json:"result"`
	Session checkout.View  `json:"session"`
}

func owner(ctx context.Context) string {
	if id, ok := identity.FromContext(ctx); ok {
		return id.Subject
	}
	return ""
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req createSessionRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	intentType, err := domain.ToIntentType(string(req.IntentType))
	if err != nil {
		writeError(w, fmt.Errorf("%w: %w", errBadRequest, err))
		return
	}

	for _, item := range req.Items {
		if _, err := domain.ToLineItemKind(string(item.Kind)); err != nil {
			writeError(w, fmt.Errorf("%w: item[%s]: %w", errBadRequest, item.ID, err))
			return
		}
	}

	returnURL := req.ReturnURL
	if returnURL == "" {
		returnURL = s.opts.ReturnURL
	}

	sess, err := s.manager.Create(r.Context(), checkout.Params{
		OrderRef:         req.OrderRef,
		Identity:         owner(r.Context()),
		Items:            req.Items,
		BaseAmount:       req.BaseAmount,
		ClientSecret:     req.ClientSecret,
		IntentType:       intentType,
		ReturnURL:        returnURL,
		ConnectedAccount: req.ConnectedAccount,
	})
	if sess == nil {
		writeError(w, err)
		return
	}
	if err != nil {
		// the session exists; its steps show what auto-fill could not do
		slog.Warn("session started with errors",
			"method", "Server.createSession",
			"session", sess.ID(),
			"error", err)
	}

	writeJSON(w, http.StatusCreated, sess.View())
}

func (s *Server) session(r *http.Request, ps httprouter.Params) (*checkout.Session, error) {
	id, err := uuid.Parse(ps.ByName("id"))
	if err != nil {
		return nil, fmt.Errorf("id[%s]: %w", ps.ByName("id"), checkout.ErrSessionNotFound)
	}

	return s.manager.Get(r.Context(), id, owner(r.Context()))
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	sess, err := s.session(r, ps)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, sess.View())
}

func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, err := uuid.Parse(ps.ByName("id"))
	if err != nil {
		writeError(w, fmt.Errorf("id[%s]: %w", ps.ByName("id"), checkout.ErrSessionNotFound))
		return
	}

	if err := s.manager.Delete(r.Context(), id, owner(r.Context())); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// mutate runs fn on the session and persists it whether or not fn succeeded,
// since a failed step is state too.
func (s *Server) mutate(w http.ResponseWriter, r *http.Request, ps httprouter.Params, fn func(context.Context, *checkout.Session) error) {
	sess, err := s.session(r, ps)
	if err != nil {
		writeError(w, err)
		return
	}

	opErr := fn(r.Context(), sess)

	if err := s.manager.Save(r.Context(), sess); err != nil {
		writeError(w, errors.Join(opErr, err))
		return
	}

	if opErr != nil {
		writeError(w, opErr)
		return
	}

	writeJSON(w, http.StatusOK, sess.View())
}

func (s *Server) setBillingAddress(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var in address.Input
	if err := decode(w, r, &in); err != nil {
		writeError(w, err)
		return
	}

	s.mutate(w, r, ps, func(ctx context.Context, sess *checkout.Session) error {
		return sess.SetBillingAddress(ctx, in)
	})
}

func (s *Server) setShippingAddress(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var in address.Input
	if err := decode(w, r, &in); err != nil {
		writeError(w, err)
		return
	}

	s.mutate(w, r, ps, func(ctx context.Context, sess *checkout.Session) error {
		return sess.SetShippingAddress(ctx, in)
	})
}

func (s *Server) selectTier(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var req tierRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	tier, err := shipping.ToTier(req.Tier)
	if err != nil {
		writeError(w, fmt.Errorf("%w: %w", errBadRequest, err))
		return
	}

	s.mutate(w, r, ps, func(ctx context.Context, sess *checkout.Session) error {
		return sess.SelectTier(ctx, ps.ByName("shipment"), tier)
	})
}

func (s *Server) selectCarrier(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var sel domain.CarrierSelection
	if err := decode(w, r, &sel); err != nil {
		writeError(w, err)
		return
	}

	s.mutate(w, r, ps, func(ctx context.Context, sess *checkout.Session) error {
		return sess.SelectCarrier(ctx, ps.ByName("shipment"), sel)
	})
}

func (s *Server) expand(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var req expandRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	section, err := checkout.ToSection(req.Section)
	if err != nil {
		writeError(w, fmt.Errorf("%w: %w", errBadRequest, err))
		return
	}

	s.mutate(w, r, ps, func(_ context.Context, sess *checkout.Session) error {
		return sess.Expand(section)
	})
}

func (s *Server) retry(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	step := checkout.StepName(ps.ByName("step"))

	s.mutate(w, r, ps, func(ctx context.Context, sess *checkout.Session) error {
		return sess.Retry(ctx, step)
	})
}

func scopeParam(ps httprouter.Params) (domain.ConsentScope, error) {
	scope, err := domain.ToConsentScope(ps.ByName("scope"))
	if err != nil {
		return "", fmt.Errorf("%w: %w", errBadRequest, err)
	}
	return scope, nil
}

func (s *Server) checkConsent(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var req checkRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	scope, err := scopeParam(ps)
	if err != nil {
		writeError(w, err)
		return
	}

	s.mutate(w, r, ps, func(_ context.Context, sess *checkout.Session) error {
		return sess.CheckConsent(scope, ps.ByName("document"), req.Checked)
	})
}

func (s *Server) nextConsent(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	scope, err := scopeParam(ps)
	if err != nil {
		writeError(w, err)
		return
	}

	s.mutate(w, r, ps, func(_ context.Context, sess *checkout.Session) error {
		gate, err := sess.Gate(scope)
		if err != nil {
			return err
		}
		return gate.Next()
	})
}

func (s *Server) previousConsent(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	scope, err := scopeParam(ps)
	if err != nil {
		writeError(w, err)
		return
	}

	s.mutate(w, r, ps, func(_ context.Context, sess *checkout.Session) error {
		gate, err := sess.Gate(scope)
		if err != nil {
			return err
		}
		gate.Previous()
		return nil
	})
}

func (s *Server) followConsentLink(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var req linkRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	scope, err := scopeParam(ps)
	if err != nil {
		writeError(w, err)
		return
	}

	s.mutate(w, r, ps, func(_ context.Context, sess *checkout.Session) error {
		gate, err := sess.Gate(scope)
		if err != nil {
			return err
		}
		if !gate.FollowLink(req.Href) {
			return fmt.Errorf("href[%s]: %w", req.Href, consent.ErrUnknownDocument)
		}
		return nil
	})
}

func (s *Server) setPaymentForm(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var form checkout.PaymentForm
	if err := decode(w, r, &form); err != nil {
		writeError(w, err)
		return
	}

	s.mutate(w, r, ps, func(_ context.Context, sess *checkout.Session) error {
		sess.SetPaymentForm(form)
		return nil
	})
}

func (s *Server) pay(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var req payRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.PaymentMethodID == "" {
		writeError(w, fmt.Errorf("%w: paymentMethodId is empty", errBadRequest))
		return
	}

	sess, err := s.session(r, ps)
	if err != nil {
		writeError(w, err)
		return
	}

	result, payErr := sess.Pay(r.Context(), req.PaymentMethodID)

	if err := s.manager.Save(r.Context(), sess); err != nil {
		writeError(w, errors.Join(payErr, err))
		return
	}

	if payErr != nil {
		// a failed consent write happens before any step runs
		writeError(w, upstream(payErr))
		return
	}

	writeJSON(w, http.StatusOK, payResponse{Result: result, Session: sess.View()})
}

// completePayment is called once the buyer is back from the 3-D Secure redirect.
func (s *Server) completePayment(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	sess, err := s.session(r, ps)
	if err != nil {
		writeError(w, err)
		return
	}

	result, completeErr := sess.CompletePayment(r.Context())

	if err := s.manager.Save(r.Context(), sess); err != nil {
		writeError(w, errors.Join(completeErr, err))
		return
	}

	if completeErr != nil {
		writeError(w, upstream(completeErr))
		return
	}

	writeJSON(w, http.StatusOK, payResponse{Result: result, Session: sess.View()})
}
