package domain

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// Value is a computation result that is either a defined decimal or
// explicitly undefined with a reason. "Insufficient data" is a routine
// business outcome here, not an error, so it travels as a value and
// serializes with an explicit marker so consumers can always distinguish
// zero from undefined.
type Value struct {
	defined bool
	value   decimal.Decimal
	reason  string
}

// Defined wraps a computed decimal
func Defined(d decimal.Decimal) Value {
	return Value{defined: true, value: d}
}

// Undefined marks a value as not computable, with the reason recorded
func Undefined(format string, args ...interface{}) Value {
	return Value{reason: fmt.Sprintf(format, args...)}
}

// IsDefined reports whether the value was computable
func (v Value) IsDefined() bool {
	return v.defined
}

// Decimal returns the underlying decimal. Only meaningful when IsDefined.
func (v Value) Decimal() decimal.Decimal {
	return v.value
}

// Reason returns why the value is undefined. Empty for defined values.
func (v Value) Reason() string {
	return v.reason
}

// Equal compares two values. Defined values compare numerically, undefined
// values compare by reason.
func (v Value) Equal(other Value) bool {
	if v.defined != other.defined {
		return false
	}
	if v.defined {
		return v.value.Equal(other.value)
	}
	return v.reason == other.reason
}

func (v Value) String() string {
	if v.defined {
		return v.value.String()
	}
	return "undefined: " + v.reason
}

// valueJSON is the stable wire representation. Field names must not change:
// downstream consumers rely on "defined" to tell zero from undefined.
type valueJSON struct {
	Defined bool   `json:"defined"`
	Value   string `json:"value,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// MarshalJSON implements json.Marshaler
func (v Value) MarshalJSON() ([]byte, error) {
	if v.defined {
		return json.Marshal(valueJSON{Defined: true, Value: v.value.String()})
	}
	return json.Marshal(valueJSON{Reason: v.reason})
}

// UnmarshalJSON implements json.Unmarshaler
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw valueJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if !raw.Defined {
		*v = Value{reason: raw.Reason}
		return nil
	}
	d, err := decimal.NewFromString(raw.Value)
	if err != nil {
		return fmt.Errorf("invalid decimal %q: %w", raw.Value, err)
	}
	*v = Value{defined: true, value: d}
	return nil
}
