package flights

import "strings"

// airlinePrefixes maps the conventional two-letter callsign prefix to a
// carrier name. Intentionally static: the client only needs a friendly
// label, not an authoritative registry.
var airlinePrefixes = map[string]string{
	"AA": "American Airlines",
	"AC": "Air Canada",
	"AF": "Air France",
	"AI": "Air India",
	"AM": "Aeroméxico",
	"AR": "Aerolíneas Argentinas",
	"AS": "Alaska Airlines",
	"AV": "Avianca",
	"AY": "Finnair",
	"AZ": "ITA Airways",
	"BA": "British Airways",
	"B6": "JetBlue Airways",
	"BR": "EVA Air",
	"CA": "Air China",
	"CI": "China Airlines",
	"CX": "Cathay Pacific",
	"CZ": "China Southern Airlines",
	"DE": "Condor",
	"DL": "Delta Air Lines",
	"DY": "Norwegian Air Shuttle",
	"EI": "Aer Lingus",
	"EK": "Emirates",
	"ET": "Ethiopian Airlines",
	"EW": "Eurowings",
	"EY": "Etihad Airways",
	"FI": "Icelandair",
	"FR": "Ryanair",
	"GA": "Garuda Indonesia",
	"HA": "Hawaiian Airlines",
	"IB": "Iberia",
	"JL": "Japan Airlines",
	"KE": "Korean Air",
	"KL": "KLM Royal Dutch Airlines",
	"KM": "Air Malta",
	"LA": "LATAM Airlines",
	"LH": "Lufthansa",
	"LO": "LOT Polish Airlines",
	"LX": "Swiss International Air Lines",
	"LY": "El Al",
	"MH": "Malaysia Airlines",
	"MS": "EgyptAir",
	"NH": "All Nippon Airways",
	"NZ": "Air New Zealand",
	"OK": "Czech Airlines",
	"OS": "Austrian Airlines",
	"OU": "Croatia Airlines",
	"PC": "Pegasus Airlines",
	"QF": "Qantas",
	"QR": "Qatar Airways",
	"RO": "TAROM",
	"SA": "South African Airways",
	"SK": "Scandinavian Airlines",
	"SN": "Brussels Airlines",
	"SQ": "Singapore Airlines",
	"SU": "Aeroflot",
	"SV": "Saudia",
	"TG": "Thai Airways",
	"TK": "Turkish Airlines",
	"TP": "TAP Air Portugal",
	"U2": "easyJet",
	"UA": "United Airlines",
	"UX": "Air Europa",
	"VA": "Virgin Australia",
	"VN": "Vietnam Airlines",
	"VS": "Virgin Atlantic",
	"VY": "Vueling",
	"W6": "Wizz Air",
	"WF": "Widerøe",
	"WN": "Southwest Airlines",
	"WS": "WestJet",
}

// AirlineForCallsign resolves the carrier name from the first two
// characters of a trimmed callsign, or "Unknown".
func AirlineForCallsign(callsign string) string {
	callsign = strings.TrimSpace(callsign)
	if len(callsign) < 2 {
		return "Unknown"
	}
	if name, ok := airlinePrefixes[strings.ToUpper(callsign[:2])]; ok {
		return name
	}
	return "Unknown"
}
