package event

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// Envelope is the serialized form of an alert: its wire type, shared
// attributes and the variant's own fields.
type Envelope struct {
	Type string          `json:"type"`
	Meta Meta            `json:"meta"`
	Data json.RawMessage `json:"data"`
}

type decoder func(data []byte, meta Meta) (Alert, error)

type registration struct {
	category Category
	decode   decoder
}

var registry = map[string]registration{
	TypeSecurityFailedLogin:          {CategorySecurity, decodeAs(NewSecurityFailedLogin)},
	TypeSecurityUnauthorizedAccess:   {CategorySecurity, decodeAs(NewSecurityUnauthorizedAccess)},
	TypeSystemDatabaseFailure:        {CategorySystem, decodeAs(NewSystemDatabaseFailure)},
	TypeSystemPerformanceDegradation: {CategorySystem, decodeAs(NewSystemPerformanceDegradation)},
	TypeUserActionRoleChanged:        {CategoryUserAction, decodeAs(NewUserActionRoleChanged)},
	TypeUserActionBulkExport:         {CategoryUserAction, decodeAs(NewUserActionBulkExport)},
	TypeBusinessHighValueSale:        {CategoryBusiness, decodeAs(NewBusinessHighValueSale)},
	TypeBusinessClientDeleted:        {CategoryBusiness, decodeAs(NewBusinessClientDeleted)},
	TypeBusinessUnusualExpense:       {CategoryBusiness, decodeAs(NewBusinessUnusualExpense)},
	TypeBusinessPaymentFailed:        {CategoryBusiness, decodeAs(NewBusinessPaymentFailed)},
	TypeBusinessPaymentOverdue:       {CategoryBusiness, decodeAs(NewBusinessPaymentOverdue)},
}

// decodeAs adapts a typed constructor into a decoder. Unknown fields are
// rejected so typos in operator payloads surface as validation errors.
func decodeAs[F any, A Alert](ctor func(F, Meta) (A, error)) decoder {
	return func(data []byte, meta Meta) (Alert, error) {
		var in F
		if len(bytes.TrimSpace(data)) > 0 {
			dec := json.NewDecoder(bytes.NewReader(data))
			dec.DisallowUnknownFields()
			if err := dec.Decode(&in); err != nil {
				return nil, &ValidationError{Problems: []string{"body: " + err.Error()}}
			}
		}
		a, err := ctor(in, meta)
		if err != nil {
			return nil, err
		}
		return a, nil
	}
}

// Types returns every registered alert type, sorted.
func Types() []string {
	out := make([]string, 0, len(registry))
	for t := range registry {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Known reports whether typ is a registered alert type.
func Known(typ string) bool {
	_, ok := registry[typ]
	return ok
}

// CategoryOf returns the category of a registered type.
func CategoryOf(typ string) (Category, error) {
	r, ok := registry[typ]
	if !ok {
		return "", fmt.Errorf("%q: %w", typ, ErrUnknownType)
	}
	return r.category, nil
}

// Decode constructs the variant named by typ from its JSON fields. The
// result is validated and classified exactly as if built in code.
func Decode(typ string, data []byte, meta Meta) (Alert, error) {
	r, ok := registry[typ]
	if !ok {
		return nil, fmt.Errorf("%q: %w", typ, ErrUnknownType)
	}
	a, err := r.decode(data, meta)
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) && verr.Type == "" {
			verr.Type = typ
		}
		return nil, err
	}
	return a, nil
}

// Encode captures an alert so it can be stored and decoded later.
func Encode(a Alert) (Envelope, error) {
	data, err := json.Marshal(a)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s: %w", a.Type(), err)
	}
	return Envelope{Type: a.Type(), Meta: a.Meta(), Data: data}, nil
}

// DecodeEnvelope rebuilds the alert held by env, keeping its original id
// and timestamp.
func DecodeEnvelope(env Envelope) (Alert, error) {
	return Decode(env.Type, env.Data, env.Meta)
}
