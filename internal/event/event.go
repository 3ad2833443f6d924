// Package event defines the closed set of administrative alerts raised by the
// dashboard. Every variant computes its severity once, at construction.
package event

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/gyaneshwarpardhi/opsalert/internal/user"
)

// Alert is the uniform dispatcher entry point implemented by every variant.
type Alert interface {
	ID() string
	Type() string
	Category() Category
	Severity() Severity
	OccurredAt() time.Time
	InitiatedBy() *user.User
	Context() map[string]any
	Meta() Meta

	// Subject is the user the alert is about (salesperson, deleter,
	// submitter…), or nil when no user is involved.
	Subject() *user.User
	Title() string
	Description() string

	ShouldSendEmail() bool
	BroadcastOn() string
	BroadcastWith() map[string]any
	// Payload exposes the variant's own fields keyed by their JSON names.
	Payload() map[string]any
}

// Meta carries the attributes shared by all variants.
type Meta struct {
	ID          string         `json:"id,omitempty"`
	OccurredAt  time.Time      `json:"occurred_at,omitempty"`
	InitiatedBy *user.User     `json:"initiated_by,omitempty"`
	Context     map[string]any `json:"context,omitempty"`
}

// Base holds the immutable shared state. Variants embed it.
type Base struct {
	id          string
	typ         string
	category    Category
	severity    Severity
	occurredAt  time.Time
	initiatedBy *user.User
	context     map[string]any
}

func newBase(typ string, cat Category, sev Severity, meta Meta) (Base, error) {
	if !cat.Valid() {
		return Base{}, fmt.Errorf("%s: category %q: %w", typ, cat, ErrUnclassified)
	}
	if !sev.Valid() {
		return Base{}, fmt.Errorf("%s: severity %q: %w", typ, sev, ErrUnclassified)
	}
	id := meta.ID
	if id == "" {
		id = uuid.New().String()
	}
	at := meta.OccurredAt
	if at.IsZero() {
		at = time.Now().UTC()
	}
	ctx := make(map[string]any, len(meta.Context))
	for k, v := range meta.Context {
		ctx[k] = v
	}
	var by *user.User
	if meta.InitiatedBy != nil {
		u := *meta.InitiatedBy
		by = &u
	}
	return Base{
		id:          id,
		typ:         typ,
		category:    cat,
		severity:    sev,
		occurredAt:  at,
		initiatedBy: by,
		context:     ctx,
	}, nil
}

func (b *Base) ID() string              { return b.id }
func (b *Base) Type() string            { return b.typ }
func (b *Base) Category() Category      { return b.category }
func (b *Base) Severity() Severity      { return b.severity }
func (b *Base) OccurredAt() time.Time   { return b.occurredAt }
func (b *Base) InitiatedBy() *user.User { return b.initiatedBy }
func (b *Base) ShouldSendEmail() bool   { return b.severity.ShouldSendEmail() }

// Context returns a copy of the opaque key/value payload.
func (b *Base) Context() map[string]any {
	out := make(map[string]any, len(b.context))
	for k, v := range b.context {
		out[k] = v
	}
	return out
}

func (b *Base) Meta() Meta {
	return Meta{
		ID:          b.id,
		OccurredAt:  b.occurredAt,
		InitiatedBy: b.initiatedBy,
		Context:     b.Context(),
	}
}

// ClientRef identifies a client record.
type ClientRef struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	LifetimeValue float64 `json:"lifetime_value,omitempty"`
}

// SaleRef identifies a closed sale.
type SaleRef struct {
	ID     string  `json:"id"`
	Amount float64 `json:"amount,omitempty"`
}

// ExpenseRef identifies a submitted expense.
type ExpenseRef struct {
	ID          string  `json:"id"`
	Description string  `json:"description,omitempty"`
	Category    string  `json:"category,omitempty"`
	Amount      float64 `json:"amount,omitempty"`
}

// PaymentRef identifies an invoice payment.
type PaymentRef struct {
	ID            string    `json:"id"`
	InvoiceNumber string    `json:"invoice_number,omitempty"`
	Amount        float64   `json:"amount,omitempty"`
	DueDate       time.Time `json:"due_date,omitempty"`
}

// payloadOf flattens a variant's exported fields into a generic map using
// their JSON names.
func payloadOf(v any) map[string]any {
	data, err := json.Marshal(v)
	if err != nil {
		return map[string]any{}
	}
	out := make(map[string]any)
	if err := json.Unmarshal(data, &out); err != nil {
		return map[string]any{}
	}
	return out
}

func userPtr(u user.User) *user.User {
	if u.ID == "" {
		return nil
	}
	return &u
}
