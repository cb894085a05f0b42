package convert

import (
	"math"
)

func TwoDecimals(number float64) float64 {
	return RoundFloat64(number, 2)
}

func RoundFloat64(number float64, decimals int) float64 {
	return math.Round(number*math.Pow10(decimals)) / math.Pow10(decimals)
}

// MWh2Kwh converts a price per MWh to hundredths of the currency per kWh.
func MWh2Kwh(price float64) float64 {
	return price / 10
}

// Kwh2Hundredths converts a price per kWh to hundredths of the currency.
func Kwh2Hundredths(price float64) float64 {
	return price * 100
}
