package enums

import (
	"fmt"
	"strings"
)

// CryptoCurrency identifies the settlement currency offered at checkout.
type CryptoCurrency string

const (
	CryptoCurrencyBTC CryptoCurrency = "BTC"
	CryptoCurrencyLTC CryptoCurrency = "LTC"
	CryptoCurrencyETH CryptoCurrency = "ETH"
	CryptoCurrencyXMR CryptoCurrency = "XMR"
)

var validCryptoCurrencies = []CryptoCurrency{
	CryptoCurrencyBTC,
	CryptoCurrencyLTC,
	CryptoCurrencyETH,
	CryptoCurrencyXMR,
}

// String implements fmt.Stringer.
func (c CryptoCurrency) String() string {
	return string(c)
}

// IsValid reports whether the value is a supported CryptoCurrency.
func (c CryptoCurrency) IsValid() bool {
	for _, candidate := range validCryptoCurrencies {
		if candidate == c {
			return true
		}
	}
	return false
}

// ParseCryptoCurrency converts raw input into a CryptoCurrency.
func ParseCryptoCurrency(value string) (CryptoCurrency, error) {
	upper := CryptoCurrency(strings.ToUpper(strings.TrimSpace(value)))
	for _, candidate := range validCryptoCurrencies {
		if candidate == upper {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("unsupported crypto currency %q", value)
}
