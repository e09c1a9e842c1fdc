// Package consent gates a flow on acknowledgement of outstanding legal documents.
package consent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/nikolayk812/checkoutflow/internal/domain"
	"github.com/nikolayk812/checkoutflow/internal/port"
	"github.com/nikolayk812/checkoutflow/internal/submit"
	"github.com/samber/lo"
)

var (
	ErrActiveNotChecked = errors.New("active document is not checked")
	ErrNotAllChecked    = errors.New("not all documents are checked")
	ErrUnknownDocument  = errors.New("unknown document type")
	ErrLastDocument     = errors.New("active document is the last one")
)

type Gate struct {
	api            port.ConsentAPI
	cache          port.ConsentCache
	consentContext string
	onAccepted     func([]domain.ConsentAcceptance)

	mu       sync.Mutex
	key      domain.ConsentKey
	docs     []domain.ConsentDocument
	checked  map[string]bool
	active   int
	accepted bool
	submit   submit.Tracker
}

type GateOption func(*Gate)

// WithOnAccepted registers a callback fired once the gate opens, with the
// acceptances written (none when nothing was outstanding).
func WithOnAccepted(fn func([]domain.ConsentAcceptance)) GateOption {
	return func(g *Gate) {
		g.onAccepted = fn
	}
}

// NewGate builds a gate tagging acceptances with consentContext, e.g. "checkout" or "site-modal".
func NewGate(api port.ConsentAPI, cache port.ConsentCache, consentContext string, opts ...GateOption) (*Gate, error) {
	if api == nil {
		return nil, errors.New("api is nil")
	}
	if cache == nil {
		return nil, errors.New("cache is nil")
	}
	if consentContext == "" {
		return nil, errors.New("consentContext is empty")
	}

	g := &Gate{
		api:            api,
		cache:          cache,
		consentContext: consentContext,
		checked:        make(map[string]bool),
	}
	for _, opt := range opts {
		opt(g)
	}

	return g, nil
}

// Load fetches the outstanding documents of identity in scope.
// A disabled gate, or one without an identity, is transparent.
func (g *Gate) Load(ctx context.Context, identity string, scope domain.ConsentScope, enabled bool) error {
	if _, err := domain.ToConsentScope(string(scope)); err != nil {
		return fmt.Errorf("scope[%s]: %w", scope, err)
	}

	key := domain.ConsentKey{Identity: identity, Scope: scope}

	var docs []domain.ConsentDocument
	if enabled && identity != "" {
		var err error
		if docs, err = g.outstanding(ctx, key); err != nil {
			return err
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.key = key
	g.docs = docs
	g.checked = make(map[string]bool)
	g.active = 0
	g.accepted = false

	return nil
}

func (g *Gate) outstanding(ctx context.Context, key domain.ConsentKey) ([]domain.ConsentDocument, error) {
	docs, ok, err := g.cache.Get(ctx, key)
	if err != nil {
		slog.Warn("consent cache read failed",
			"method", "Gate.Load",
			"key", key.String(),
			"error", err)
	}
	if ok {
		return docs, nil
	}

	docs, err = g.api.CheckOutstandingConsents(ctx, key.Scope)
	if err != nil {
		return nil, fmt.Errorf("api.CheckOutstandingConsents: %w", err)
	}

	if err := g.cache.Set(ctx, key, docs); err != nil {
		slog.Warn("consent cache write failed",
			"method", "Gate.Load",
			"key", key.String(),
			"error", err)
	}

	return docs, nil
}

// Transparent reports whether the gate lets the flow through.
func (g *Gate) Transparent() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.accepted || len(g.docs) == 0
}

func (g *Gate) Documents() []domain.ConsentDocument {
	g.mu.Lock()
	defer g.mu.Unlock()

	return slices.Clone(g.docs)
}

func (g *Gate) Active() (domain.ConsentDocument, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if len(g.docs) == 0 {
		return domain.ConsentDocument{}, false
	}
	return g.docs[g.active], true
}

// Check sets the "I agree" control of a document. Documents may be checked in any order.
func (g *Gate) Check(documentType string, checked bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.indexOf(documentType) < 0 {
		return fmt.Errorf("document[%s]: %w", documentType, ErrUnknownDocument)
	}

	g.checked[documentType] = checked
	return nil
}

// Next advances to the following document once the active one is checked.
func (g *Gate) Next() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if len(g.docs) == 0 {
		return ErrLastDocument
	}
	if !g.checked[g.docs[g.active].DocumentType] {
		return ErrActiveNotChecked
	}
	if g.active == len(g.docs)-1 {
		return ErrLastDocument
	}

	g.active++
	return nil
}

func (g *Gate) Previous() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.active > 0 {
		g.active--
	}
}

// FollowLink jumps to the document referenced by a /legal/{documentType} link.
// It returns false when the link does not point at a document of this gate,
// in which case the caller navigates normally.
func (g *Gate) FollowLink(href string) bool {
	docType, ok := linkedDocumentType(href)
	if !ok {
		return false
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	idx := g.indexOf(docType)
	if idx < 0 {
		return false
	}

	g.active = idx
	return true
}

func (g *Gate) CanAcceptAll() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.allChecked()
}

func (g *Gate) allChecked() bool {
	return lo.EveryBy(g.docs, func(d domain.ConsentDocument) bool {
		return g.checked[d.DocumentType]
	})
}

// AcceptAll records every outstanding document in one batched write.
// With nothing outstanding it opens immediately without a write.
// On failure the gate stays closed and may be resubmitted.
func (g *Gate) AcceptAll(ctx context.Context) error {
	g.mu.Lock()
	if g.accepted || len(g.docs) == 0 {
		g.accepted = true
		g.mu.Unlock()
		g.fireAccepted(nil)
		return nil
	}
	if !g.allChecked() {
		g.mu.Unlock()
		return ErrNotAllChecked
	}

	inputs := lo.Map(g.docs, func(d domain.ConsentDocument, _ int) domain.ConsentAcceptance {
		return domain.NewConsentAcceptance(d, g.consentContext)
	})
	key := g.key
	g.mu.Unlock()

	if err := g.submit.Begin(); err != nil {
		return err
	}

	if err := g.api.RecordConsents(ctx, inputs); err != nil {
		g.submit.Finish(err)
		g.submit.Reset()
		return fmt.Errorf("api.RecordConsents: %w", err)
	}
	g.submit.Finish(nil)

	if err := g.cache.Invalidate(ctx, key); err != nil {
		slog.Warn("consent cache invalidation failed",
			"method", "Gate.AcceptAll",
			"key", key.String(),
			"error", err)
	}

	g.mu.Lock()
	g.accepted = true
	g.mu.Unlock()

	g.fireAccepted(inputs)
	return nil
}

func (g *Gate) fireAccepted(inputs []domain.ConsentAcceptance) {
	if g.onAccepted != nil {
		g.onAccepted(inputs)
	}
}

func (g *Gate) indexOf(documentType string) int {
	return slices.IndexFunc(g.docs, func(d domain.ConsentDocument) bool {
		return d.DocumentType == documentType
	})
}

type DocumentView struct {
	DocumentType string   `json:"documentType"`
	Title        string   `json:"title"`
	Content      string   `json:"content"`
	Version      int      `json:"version"`
	Links        []string `json:"links,omitempty"`
	Checked      bool     `json:"checked"`
}

type View struct {
	Scope        domain.ConsentScope `json:"scope"`
	Documents    []DocumentView      `json:"documents"`
	Active       int                 `json:"active"`
	CanAcceptAll bool                `json:"canAcceptAll"`
	Accepted     bool                `json:"accepted"`
	Submit       submit.Status       `json:"submit"`
	LastError    string              `json:"lastError,omitempty"`
}

func (g *Gate) View() View {
	g.mu.Lock()
	defer g.mu.Unlock()

	v := View{
		Scope:        g.key.Scope,
		Active:       g.active,
		CanAcceptAll: len(g.docs) > 0 && g.allChecked(),
		Accepted:     g.accepted || len(g.docs) == 0,
		Submit:       g.submit.Status(),
		Documents:    make([]DocumentView, 0, len(g.docs)),
	}
	if err := g.submit.LastError(); err != nil {
		v.LastError = err.Error()
	}

	for _, d := range g.docs {
		content := Render(d)
		v.Documents = append(v.Documents, DocumentView{
			DocumentType: d.DocumentType,
			Title:        d.Title,
			Content:      content,
			Version:      d.Version,
			Links:        LegalLinks(content),
			Checked:      g.checked[d.DocumentType],
		})
	}

	return v
}
