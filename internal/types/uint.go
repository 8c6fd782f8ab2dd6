package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/holiman/uint256"
)

// ErrOverflow is returned when Uint arithmetic leaves the 256-bit range.
var ErrOverflow = errors.New("uint256 overflow")

// Uint is an unsigned 256-bit amount. It serializes as a decimal JSON string
// so that values above 2^53 survive JavaScript clients.
type Uint struct {
	i uint256.Int
}

// NewUint returns v as a Uint.
func NewUint(v uint64) Uint {
	var u Uint
	u.i.SetUint64(v)
	return u
}

// ParseUint parses a base-10 string.
func ParseUint(s string) (Uint, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Uint{}, errors.New("empty amount")
	}
	i, err := uint256.FromDecimal(s)
	if err != nil {
		return Uint{}, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return Uint{i: *i}, nil
}

func (u Uint) String() string {
	return u.i.Dec()
}

// Cmp returns -1, 0 or +1.
func (u Uint) Cmp(o Uint) int {
	return u.i.Cmp(&o.i)
}

// GTE reports u >= o.
func (u Uint) GTE(o Uint) bool {
	return !u.i.Lt(&o.i)
}

func (u Uint) IsZero() bool {
	return u.i.IsZero()
}

// Add returns u+o or ErrOverflow.
func (u Uint) Add(o Uint) (Uint, error) {
	var r Uint
	if _, overflow := r.i.AddOverflow(&u.i, &o.i); overflow {
		return Uint{}, ErrOverflow
	}
	return r, nil
}

// Sub returns u-o or ErrOverflow when o > u.
func (u Uint) Sub(o Uint) (Uint, error) {
	var r Uint
	if _, underflow := r.i.SubOverflow(&u.i, &o.i); underflow {
		return Uint{}, ErrOverflow
	}
	return r, nil
}

func (u Uint) MarshalJSON() ([]byte, error) {
	return json.Marshal(u.String())
}

// UnmarshalJSON accepts a quoted decimal string or a bare JSON number.
func (u *Uint) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		*u = Uint{}
		return nil
	}
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		raw = s
	}
	v, err := ParseUint(raw)
	if err != nil {
		return err
	}
	*u = v
	return nil
}
