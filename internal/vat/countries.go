package vat

import "github.com/shopspring/decimal"

func country(code, name, standard, reduced string) Country {
	return Country{
		Code:     code,
		Name:     name,
		Standard: decimal.RequireFromString(standard),
		Reduced:  decimal.RequireFromString(reduced),
	}
}

// Rates as published for 2026. Countries without a reduced tier repeat the standard rate.
var defaultCountries = []Country{
	country("AT", "Austria", "0.20", "0.10"),
	country("BE", "Belgium", "0.21", "0.06"),
	country("BG", "Bulgaria", "0.20", "0.09"),
	country("HR", "Croatia", "0.25", "0.05"),
	country("CY", "Cyprus", "0.19", "0.05"),
	country("CZ", "Czech Republic", "0.21", "0.12"),
	country("DK", "Denmark", "0.25", "0.25"),
	country("EE", "Estonia", "0.24", "0.09"),
	country("FI", "Finland", "0.255", "0.10"),
	country("FR", "France", "0.20", "0.055"),
	country("DE", "Germany", "0.19", "0.07"),
	country("GR", "Greece", "0.24", "0.06"),
	country("HU", "Hungary", "0.27", "0.05"),
	country("IE", "Ireland", "0.23", "0.048"),
	country("IT", "Italy", "0.22", "0.10"),
	country("LV", "Latvia", "0.21", "0.05"),
	country("LT", "Lithuania", "0.21", "0.05"),
	country("LU", "Luxembourg", "0.17", "0.03"),
	country("MT", "Malta", "0.18", "0.05"),
	country("NL", "Netherlands", "0.21", "0.09"),
	country("PL", "Poland", "0.23", "0.05"),
	country("PT", "Portugal", "0.23", "0.06"),
	country("RO", "Romania", "0.21", "0.11"),
	country("SK", "Slovakia", "0.23", "0.05"),
	country("SI", "Slovenia", "0.22", "0.05"),
	country("ES", "Spain", "0.21", "0.10"),
	country("SE", "Sweden", "0.25", "0.06"),
	// outside the EU
	country("CH", "Switzerland", "0.077", "0.025"),
	country("GB", "United Kingdom", "0.20", "0.05"),
	country("NO", "Norway", "0.25", "0.12"),
}
