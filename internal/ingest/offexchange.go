package ingest

import "strings"

// offExchangeMarkers are substrings of venue names that identify trades
// reported through FINRA TRF/ADF or OTC facilities rather than lit exchanges.
var offExchangeMarkers = []string{
	"FINRA",
	"TRF",
	"ADF",
	"OTC",
	"TRADE REPORTING FACILITY",
	"ALTERNATIVE DISPLAY FACILITY",
}

// InferOffExchange resolves a venue code to its name via venueNames and
// pattern-matches for off-exchange markers. When the lookup yields nothing,
// only the literal tape code "D" (the FINRA TRF code) is treated as
// off-exchange; an empty code is never off-exchange.
func InferOffExchange(code string, venueNames map[string]string) bool {
	if code == "" {
		return false
	}
	name := strings.ToUpper(venueNames[code])
	if name == "" {
		return code == "D"
	}
	for _, marker := range offExchangeMarkers {
		if strings.Contains(name, marker) {
			return true
		}
	}
	return false
}
