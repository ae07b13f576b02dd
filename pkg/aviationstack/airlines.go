package aviationstack

// icaoToIATA maps ICAO airline designators, as they appear in radio
// callsigns, to the IATA codes AviationStack indexes flights under.
var icaoToIATA = map[string]string{
	"AAL": "AA", // American Airlines
	"ACA": "AC", // Air Canada
	"AEE": "A3", // Aegean Airlines
	"AFL": "SU", // Aeroflot
	"AFR": "AF", // Air France
	"AMX": "AM", // Aeromexico
	"ANA": "NH", // All Nippon Airways
	"ANZ": "NZ", // Air New Zealand
	"AUA": "OS", // Austrian Airlines
	"AVA": "AV", // Avianca
	"BAW": "BA", // British Airways
	"BEL": "SN", // Brussels Airlines
	"CCA": "CA", // Air China
	"CES": "MU", // China Eastern
	"CFG": "DE", // Condor
	"CPA": "CX", // Cathay Pacific
	"CSA": "OK", // Czech Airlines
	"CSN": "CZ", // China Southern
	"CTN": "OU", // Croatia Airlines
	"DAL": "DL", // Delta Air Lines
	"DLH": "LH", // Lufthansa
	"EIN": "EI", // Aer Lingus
	"ELY": "LY", // El Al
	"ETD": "EY", // Etihad Airways
	"ETH": "ET", // Ethiopian Airlines
	"EWG": "EW", // Eurowings
	"EZY": "U2", // easyJet
	"FIN": "AY", // Finnair
	"GIA": "GA", // Garuda Indonesia
	"IBE": "IB", // Iberia
	"ICE": "FI", // Icelandair
	"JAL": "JL", // Japan Airlines
	"KAL": "KE", // Korean Air
	"KLM": "KL", // KLM
	"LAN": "LA", // LATAM
	"LOT": "LO", // LOT Polish Airlines
	"MAS": "MH", // Malaysia Airlines
	"MSR": "MS", // EgyptAir
	"NAX": "DY", // Norwegian
	"PGT": "PC", // Pegasus Airlines
	"QFA": "QF", // Qantas
	"QTR": "QR", // Qatar Airways
	"ROT": "RO", // TAROM
	"RYR": "FR", // Ryanair
	"SAS": "SK", // Scandinavian Airlines
	"SIA": "SQ", // Singapore Airlines
	"SVA": "SV", // Saudia
	"SWA": "WN", // Southwest Airlines
	"SWR": "LX", // Swiss
	"TAP": "TP", // TAP Air Portugal
	"THA": "TG", // Thai Airways
	"THY": "TK", // Turkish Airlines
	"TRA": "HV", // Transavia
	"TVS": "QS", // Smartwings
	"UAE": "EK", // Emirates
	"UAL": "UA", // United Airlines
	"VIR": "VS", // Virgin Atlantic
	"VLG": "VY", // Vueling
	"WZZ": "W6", // Wizz Air
}
