package models

import (
	"errors"
	"fmt"
)

// ErrorCode is a standardized validation/evaluation error code.
type ErrorCode string

const (
	ErrNumeric      ErrorCode = "E_NUM"        // invalid numeric field
	ErrSide         ErrorCode = "E_SIDE"       // side outside BUY|SELL
	ErrDate         ErrorCode = "E_DATE"       // unparseable window bound
	ErrSymbol       ErrorCode = "E_SYMBOL"     // symbol not traded on the venue
	ErrPriceMissing ErrorCode = "E_PRICE_MISS" // no live price after the fallback chain
	ErrRuleBuy      ErrorCode = "E_RULE_BUY"
	ErrRuleSell     ErrorCode = "E_RULE_SELL"
	ErrNetwork      ErrorCode = "E_NET"
	ErrUnknown      ErrorCode = "E_UNKNOWN"
)

// StructuralError reports bad numeric, side, date or ordering fields.
type StructuralError struct {
	Codes []ErrorCode
}

func (e *StructuralError) Error() string {
	return fmt.Sprintf("structural: %v", e.Codes)
}

func (e *StructuralError) Code() ErrorCode {
	if len(e.Codes) == 0 {
		return ErrUnknown
	}
	return e.Codes[0]
}

// SymbolError reports a ticker unknown to the venue.
type SymbolError struct {
	Symbol string
}

func (e *SymbolError) Error() string   { return fmt.Sprintf("symbol %q not traded", e.Symbol) }
func (e *SymbolError) Code() ErrorCode { return ErrSymbol }

// NetworkError reports a venue call that failed after all retries.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string   { return fmt.Sprintf("network: %s: %v", e.Op, e.Err) }
func (e *NetworkError) Unwrap() error   { return e.Err }
func (e *NetworkError) Code() ErrorCode { return ErrNetwork }

// PriceUnavailable reports that no live price could be resolved.
type PriceUnavailable struct {
	Symbol string
}

func (e *PriceUnavailable) Error() string   { return fmt.Sprintf("no live price for %s", e.Symbol) }
func (e *PriceUnavailable) Code() ErrorCode { return ErrPriceMissing }

type coded interface {
	Code() ErrorCode
}

// CodeOf maps err onto the error taxonomy.
func CodeOf(err error) ErrorCode {
	var c coded
	if errors.As(err, &c) {
		return c.Code()
	}
	return ErrUnknown
}

// Codes flattens err, including errors.Join trees, into its error codes in
// order. A nil error has no codes.
func Codes(err error) []ErrorCode {
	if err == nil {
		return nil
	}
	switch e := err.(type) {
	case interface{ Unwrap() []error }:
		var out []ErrorCode
		for _, inner := range e.Unwrap() {
			out = append(out, Codes(inner)...)
		}
		return out
	case *StructuralError:
		return append([]ErrorCode(nil), e.Codes...)
	}
	return []ErrorCode{CodeOf(err)}
}
