package types

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

var (
	// ErrInvalidCoin is returned for malformed coin strings or denominations.
	ErrInvalidCoin = errors.New("invalid coin")

	coinPattern  = regexp.MustCompile(`^([0-9]+)([a-zA-Z][a-zA-Z0-9/:._-]{1,127})$`)
	denomPattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9/:._-]{1,127}$`)
)

// Coin is an amount of a single denomination.
type Coin struct {
	Denom  string `json:"denom"`
	Amount Uint   `json:"amount"`
}

// NewCoin builds a coin from a uint64 amount.
func NewCoin(amount uint64, denom string) Coin {
	return Coin{Denom: denom, Amount: NewUint(amount)}
}

func (c Coin) String() string {
	return c.Amount.String() + c.Denom
}

// Validate checks the denomination shape. Zero amounts are valid.
func (c Coin) Validate() error {
	if !denomPattern.MatchString(c.Denom) {
		return fmt.Errorf("%w: denom %q", ErrInvalidCoin, c.Denom)
	}
	return nil
}

// ParseCoin parses "2sei" style strings.
func ParseCoin(s string) (Coin, error) {
	m := coinPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return Coin{}, fmt.Errorf("%w: %q", ErrInvalidCoin, s)
	}
	amount, err := ParseUint(m[1])
	if err != nil {
		return Coin{}, err
	}
	return Coin{Denom: m[2], Amount: amount}, nil
}

// Coins is a list of coins. Order is preserved as given unless Normalize is
// called, because attached payments are inspected coin by coin.
type Coins []Coin

// NewCoins returns a normalized set.
func NewCoins(coins ...Coin) Coins {
	out, err := Coins(coins).Normalize()
	if err != nil {
		panic(err)
	}
	return out
}

// ParseCoins parses a comma separated list such as "10sei,3atom".
func ParseCoins(s string) (Coins, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Coins{}, nil
	}
	var coins Coins
	for _, part := range strings.Split(s, ",") {
		c, err := ParseCoin(part)
		if err != nil {
			return nil, err
		}
		coins = append(coins, c)
	}
	return coins, nil
}

func (cs Coins) String() string {
	if len(cs) == 0 {
		return ""
	}
	parts := make([]string, len(cs))
	for i, c := range cs {
		parts[i] = c.String()
	}
	return strings.Join(parts, ",")
}

// Validate checks every denomination.
func (cs Coins) Validate() error {
	for _, c := range cs {
		if err := c.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// AmountOf sums every coin of denom.
func (cs Coins) AmountOf(denom string) Uint {
	total := Uint{}
	for _, c := range cs {
		if c.Denom != denom {
			continue
		}
		sum, err := total.Add(c.Amount)
		if err != nil {
			return total
		}
		total = sum
	}
	return total
}

func (cs Coins) IsZero() bool {
	for _, c := range cs {
		if !c.Amount.IsZero() {
			return false
		}
	}
	return true
}

// Normalize merges duplicate denominations, drops zero amounts and sorts by
// denom.
func (cs Coins) Normalize() (Coins, error) {
	byDenom := make(map[string]Uint, len(cs))
	for _, c := range cs {
		sum, err := byDenom[c.Denom].Add(c.Amount)
		if err != nil {
			return nil, fmt.Errorf("normalize %s: %w", c.Denom, err)
		}
		byDenom[c.Denom] = sum
	}
	out := make(Coins, 0, len(byDenom))
	for denom, amount := range byDenom {
		if amount.IsZero() {
			continue
		}
		out = append(out, Coin{Denom: denom, Amount: amount})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Denom < out[j].Denom })
	return out, nil
}

// Add returns the normalized sum of cs and other.
func (cs Coins) Add(other Coins) (Coins, error) {
	merged := make(Coins, 0, len(cs)+len(other))
	merged = append(merged, cs...)
	merged = append(merged, other...)
	return merged.Normalize()
}

// SafeSub subtracts other from cs. ok is false when any denomination would go
// negative; the returned set is then nil.
func (cs Coins) SafeSub(other Coins) (Coins, bool, error) {
	have, err := cs.Normalize()
	if err != nil {
		return nil, false, err
	}
	take, err := other.Normalize()
	if err != nil {
		return nil, false, err
	}
	remaining := make(map[string]Uint, len(have))
	for _, c := range have {
		remaining[c.Denom] = c.Amount
	}
	for _, c := range take {
		left, err := remaining[c.Denom].Sub(c.Amount)
		if err != nil {
			return nil, false, nil
		}
		remaining[c.Denom] = left
	}
	out := make(Coins, 0, len(remaining))
	for denom, amount := range remaining {
		out = append(out, Coin{Denom: denom, Amount: amount})
	}
	out, err = out.Normalize()
	return out, true, err
}
