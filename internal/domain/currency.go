package domain

type Currency string

const (
	CurrencyGHS Currency = "GHS"
	CurrencyNGN Currency = "NGN"
	CurrencyKES Currency = "KES"
	CurrencyUGX Currency = "UGX"
	CurrencyUSD Currency = "USD"
)

func (c Currency) IsValid() bool {
	switch c {
	case CurrencyGHS, CurrencyNGN, CurrencyKES, CurrencyUGX, CurrencyUSD:
		return true
	default:
		return false
	}
}
