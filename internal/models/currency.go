package models

// zeroDecimalCurrencies have no minor unit (ISO 4217 exponent 0).
var zeroDecimalCurrencies = map[string]bool{
	"BIF": true, "CLP": true, "DJF": true, "GNF": true, "JPY": true,
	"KMF": true, "KRW": true, "MGA": true, "PYG": true, "RWF": true,
	"UGX": true, "VND": true, "VUV": true, "XAF": true, "XOF": true,
	"XPF": true,
}

var threeDecimalCurrencies = map[string]bool{
	"BHD": true, "IQD": true, "JOD": true, "KWD": true, "LYD": true,
	"OMR": true, "TND": true,
}

// MinorUnitExponent returns the ISO 4217 exponent for a currency code:
// the number of digits after the decimal point in its minor unit.
func MinorUnitExponent(currency string) int32 {
	if zeroDecimalCurrencies[currency] {
		return 0
	}
	if threeDecimalCurrencies[currency] {
		return 3
	}
	return 2
}
