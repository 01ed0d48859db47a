package ingest

// VenueNames returns the venue code→name map used for off-exchange
// inference. The reference-data service this would normally be fetched from
// is not wired up yet; this static snapshot of the SIP participant table
// stands in for it.
func VenueNames() map[string]string {
	return map[string]string{
		"A": "NYSE American",
		"B": "Nasdaq BX",
		"C": "NYSE National",
		"D": "FINRA / Nasdaq TRF",
		"E": "FINRA ADF",
		"J": "Cboe EDGA",
		"K": "Cboe EDGX",
		"N": "NYSE",
		"P": "NYSE Arca",
		"Q": "NASDAQ",
		"V": "IEX",
		"X": "Nasdaq PSX",
		"Y": "Cboe BYX",
		"Z": "Cboe BZX",
	}
}
