package model

import (
	"fmt"
	"strings"
)

// Exchange identifies an Indian stock exchange.
type Exchange string

const (
	NSE Exchange = "NSE"
	BSE Exchange = "BSE"
)

// ParseExchange normalizes an exchange name. Fails on anything but NSE/BSE.
func ParseExchange(s string) (Exchange, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "NSE":
		return NSE, nil
	case "BSE":
		return BSE, nil
	default:
		return "", fmt.Errorf("unsupported exchange: %q", s)
	}
}

// YahooSuffix returns the Yahoo Finance ticker suffix for the exchange.
func (e Exchange) YahooSuffix() string {
	if e == BSE {
		return ".BO"
	}
	return ".NS"
}

// YahooTicker returns the Yahoo Finance ticker for a symbol on this exchange,
// resolving BSE scrip codes to their trading symbols first.
func (e Exchange) YahooTicker(symbol string) string {
	if e == BSE {
		if name, ok := bseScripCodes[symbol]; ok {
			symbol = name
		}
	}
	return symbol + e.YahooSuffix()
}

// bseScripCodes maps BSE numeric scrip codes to trading symbols.
// BSE quotes symbols by code; downstream APIs want the name.
var bseScripCodes = map[string]string{
	"500325": "RELIANCE",
	"532540": "TCS",
	"500180": "HDFCBANK",
	"500209": "INFY",
	"532174": "ICICIBANK",
	"500696": "HINDUNILVR",
	"500112": "SBIN",
	"532454": "BHARTIARTL",
	"500875": "ITC",
	"500247": "KOTAKBANK",
}

// ResolveBSEScripCode returns the trading symbol for a BSE scrip code,
// or the input unchanged when it is not a known code.
func ResolveBSEScripCode(code string) string {
	if name, ok := bseScripCodes[code]; ok {
		return name
	}
	return code
}
