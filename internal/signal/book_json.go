package signal

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrDuplicateLevel rejects a book with the same price level twice on one side.
var ErrDuplicateLevel = errors.New("duplicate price level")

// UnmarshalJSON decodes a snapshot and rejects a price key that repeats within a side, which a plain
// map decode would silently collapse to the last value.
func (s *OrderBookSnapshot) UnmarshalJSON(data []byte) error {
	var wire struct {
		Symbol    string          `json:"symbol"`
		Timestamp Micros          `json:"timestamp"`
		Bids      json.RawMessage `json:"bids"`
		Asks      json.RawMessage `json:"asks"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	bids, err := decodeLevels(wire.Bids)
	if err != nil {
		return fmt.Errorf("bids: %w", err)
	}
	asks, err := decodeLevels(wire.Asks)
	if err != nil {
		return fmt.Errorf("asks: %w", err)
	}
	*s = OrderBookSnapshot{Symbol: wire.Symbol, Timestamp: wire.Timestamp, Bids: bids, Asks: asks}
	return nil
}

func decodeLevels(raw json.RawMessage) (map[string]decimal.Decimal, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("levels must be an object, got %v", tok)
	}
	out := make(map[string]decimal.Decimal)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected level key %v", tok)
		}
		if _, dup := out[key]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateLevel, key)
		}
		var qty decimal.Decimal
		if err := dec.Decode(&qty); err != nil {
			return nil, fmt.Errorf("level %q: %w", key, err)
		}
		out[key] = qty
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return out, nil
}
