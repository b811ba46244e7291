package country

import "strings"

// names maps ISO 3166-1 alpha-2 and alpha-3 codes to display names.
// Only the markets the product reports on are listed; anything else
// falls back to the raw code.
var names = map[string]string{
	"US": "United States", "USA": "United States",
	"GB": "United Kingdom", "GBR": "United Kingdom", "UK": "United Kingdom",
	"CA": "Canada", "CAN": "Canada",
	"AU": "Australia", "AUS": "Australia",
	"DE": "Germany", "DEU": "Germany",
	"FR": "France", "FRA": "France",
	"JP": "Japan", "JPN": "Japan",
	"IN": "India", "IND": "India",
	"BR": "Brazil", "BRA": "Brazil",
	"MX": "Mexico", "MEX": "Mexico",
	"IT": "Italy", "ITA": "Italy",
	"ES": "Spain", "ESP": "Spain",
	"NL": "Netherlands", "NLD": "Netherlands",
	"BE": "Belgium", "BEL": "Belgium",
	"CH": "Switzerland", "CHE": "Switzerland",
	"AT": "Austria", "AUT": "Austria",
	"SE": "Sweden", "SWE": "Sweden",
	"NO": "Norway", "NOR": "Norway",
	"DK": "Denmark", "DNK": "Denmark",
	"FI": "Finland", "FIN": "Finland",
	"IE": "Ireland", "IRL": "Ireland",
	"PT": "Portugal", "PRT": "Portugal",
	"GR": "Greece", "GRC": "Greece",
	"PL": "Poland", "POL": "Poland",
	"CZ": "Czech Republic", "CZE": "Czech Republic",
	"HU": "Hungary", "HUN": "Hungary",
	"RO": "Romania", "ROU": "Romania",
	"BG": "Bulgaria", "BGR": "Bulgaria",
	"HR": "Croatia", "HRV": "Croatia",
	"SI": "Slovenia", "SVN": "Slovenia",
	"SK": "Slovakia", "SVK": "Slovakia",
	"LT": "Lithuania", "LTU": "Lithuania",
	"LV": "Latvia", "LVA": "Latvia",
	"EE": "Estonia", "EST": "Estonia",
	"LU": "Luxembourg", "LUX": "Luxembourg",
	"MT": "Malta", "MLT": "Malta",
	"CY": "Cyprus", "CYP": "Cyprus",
	"IS": "Iceland", "ISL": "Iceland",
	"LI": "Liechtenstein", "LIE": "Liechtenstein",
	"MC": "Monaco", "MCO": "Monaco",
	"SM": "San Marino", "SMR": "San Marino",
	"VA": "Vatican City", "VAT": "Vatican City",
	"AD": "Andorra", "AND": "Andorra",
}

// Unknown is the segment value used when no source yields a country.
const Unknown = "Unknown"

// Name resolves a country code to its display name. The lookup is
// case-insensitive; unmapped codes pass through as given.
func Name(code string) string {
	code = strings.TrimSpace(code)
	if code == "" {
		return Unknown
	}
	if name, ok := names[strings.ToUpper(code)]; ok {
		return name
	}
	return code
}
