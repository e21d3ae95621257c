package signal

import (
	"encoding/json"
	"fmt"
)

// Reason is a closed set of codes explaining why a signal fired.
type Reason string

const (
	ReasonPositiveMomentum Reason = "positive_momentum"
	ReasonNegativeMomentum Reason = "negative_momentum"
	ReasonBookImbalance    Reason = "book_imbalance"
	ReasonTrendUp          Reason = "trend_up"
	ReasonTrendDown        Reason = "trend_down"
)

const (
	metaMomentum = "momentum"
	metaReason   = "reason"
)

// Metadata carries diagnostic fields attached to a signal.
// Common fields are typed; anything else goes in Extra and is flattened on the wire.
type Metadata struct {
	Momentum *float64
	Reason   Reason
	Extra    map[string]any
}

// MomentumMetadata is the payload emitted by momentum strategies.
func MomentumMetadata(momentum float64, reason Reason) Metadata {
	return Metadata{Momentum: &momentum, Reason: reason}
}

// With returns a copy with an extra field set. Typed keys cannot be overridden through Extra.
func (m Metadata) With(key string, value any) Metadata {
	extra := make(map[string]any, len(m.Extra)+1)
	for k, v := range m.Extra {
		extra[k] = v
	}
	extra[key] = value
	m.Extra = extra
	return m
}

// MarshalJSON flattens the typed fields and Extra into one object.
func (m Metadata) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(m.Extra)+2)
	for k, v := range m.Extra {
		out[k] = v
	}
	if m.Momentum != nil {
		out[metaMomentum] = *m.Momentum
	}
	if m.Reason != "" {
		out[metaReason] = string(m.Reason)
	}
	return json.Marshal(out)
}

// UnmarshalJSON splits the flat object back into typed fields and Extra.
func (m *Metadata) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*m = Metadata{}
	for k, v := range raw {
		switch k {
		case metaMomentum:
			f, ok := v.(float64)
			if !ok {
				return fmt.Errorf("metadata momentum: unexpected %T", v)
			}
			m.Momentum = &f
		case metaReason:
			s, ok := v.(string)
			if !ok {
				return fmt.Errorf("metadata reason: unexpected %T", v)
			}
			m.Reason = Reason(s)
		default:
			if m.Extra == nil {
				m.Extra = make(map[string]any)
			}
			m.Extra[k] = v
		}
	}
	return nil
}
