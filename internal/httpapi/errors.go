package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/nikolayk812/checkoutflow/internal/address"
	"github.com/nikolayk812/checkoutflow/internal/checkout"
	"github.com/nikolayk812/checkoutflow/internal/consent"
	"github.com/nikolayk812/checkoutflow/internal/domain"
	"github.com/nikolayk812/checkoutflow/internal/identity"
	"github.com/nikolayk812/checkoutflow/internal/payment"
	"github.com/nikolayk812/checkoutflow/internal/repository"
	"github.com/nikolayk812/checkoutflow/internal/shipping"
	"github.com/nikolayk812/checkoutflow/internal/submit"
)

var (
	errBadRequest = errors.New("bad request")
	errUpstream   = errors.New("upstream failure")
)

type errorResponse struct {
	Error    string             `json:"error"`
	Fields   map[string]string  `json:"fields,omitempty"`
	Blockers []checkout.Blocker `json:"blockers,omitempty"`
	Payment  *payment.Error     `json:"payment,omitempty"`
	Step     checkout.StepName  `json:"step,omitempty"`
}

var statusBySentinel = []struct {
	err    error
	status int
}{
	{errBadRequest, http.StatusBadRequest},
	{errUpstream, http.StatusBadGateway},
	{identity.ErrUnauthenticated, http.StatusUnauthorized},
	{checkout.ErrSessionNotFound, http.StatusNotFound},

	{checkout.ErrStepInFlight, http.StatusConflict},
	{checkout.ErrAlreadyPaid, http.StatusConflict},
	{checkout.ErrNotRetryable, http.StatusConflict},
	{submit.ErrInFlight, http.StatusConflict},
	{repository.ErrVersionConflict, http.StatusConflict},

	{checkout.ErrInvalidParams, http.StatusUnprocessableEntity},
	{address.ErrInvalid, http.StatusUnprocessableEntity},
	{checkout.ErrPayBlocked, http.StatusUnprocessableEntity},
	{checkout.ErrNotApplicable, http.StatusUnprocessableEntity},
	{checkout.ErrOutOfOrder, http.StatusUnprocessableEntity},
	{checkout.ErrUnknownScope, http.StatusUnprocessableEntity},
	{shipping.ErrRateNotFound, http.StatusUnprocessableEntity},
	{shipping.ErrTierEmpty, http.StatusUnprocessableEntity},
	{consent.ErrActiveNotChecked, http.StatusUnprocessableEntity},
	{consent.ErrNotAllChecked, http.StatusUnprocessableEntity},
	{consent.ErrUnknownDocument, http.StatusUnprocessableEntity},
	{consent.ErrLastDocument, http.StatusUnprocessableEntity},
	{domain.ErrCurrencyMismatch, http.StatusUnprocessableEntity},
	{payment.ErrInvalidClientSecret, http.StatusUnprocessableEntity},
}

// statusOf maps err to a status code. Failed remote calls of a step that match
// no sentinel are upstream failures.
func statusOf(err error) int {
	for _, s := range statusBySentinel {
		if errors.Is(err, s.err) {
			return s.status
		}
	}

	var payErr *payment.Error
	if errors.As(err, &payErr) {
		return http.StatusPaymentRequired
	}

	var stepErr *checkout.StepError
	if errors.As(err, &stepErr) {
		return http.StatusBadGateway
	}

	return http.StatusInternalServerError
}

// upstream marks an error of a remote call that matches no known condition.
func upstream(err error) error {
	if err == nil || statusOf(err) != http.StatusInternalServerError {
		return err
	}
	return fmt.Errorf("%w: %w", errUpstream, err)
}

func writeError(w http.ResponseWriter, err error) {
	status := statusOf(err)
	resp := errorResponse{Error: err.Error()}

	var validation *address.ValidationError
	if errors.As(err, &validation) {
		resp.Fields = validation.Fields
	}

	var blocked *checkout.PayBlockedError
	if errors.As(err, &blocked) {
		resp.Blockers = blocked.Blockers
	}

	var payErr *payment.Error
	if errors.As(err, &payErr) {
		resp.Payment = payErr
	}

	var stepErr *checkout.StepError
	if errors.As(err, &stepErr) {
		resp.Step = stepErr.Step
	}

	if status == http.StatusInternalServerError {
		slog.Error("request failed", "method", "writeError", "error", err)
		resp.Error = http.StatusText(status)
	}

	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Warn("response encoding failed", "method", "writeJSON", "error", err)
	}
}

func decode(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %w", errBadRequest, err)
	}

	return nil
}
