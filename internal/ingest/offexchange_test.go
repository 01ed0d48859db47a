package ingest

import "testing"

func TestInferOffExchange(t *testing.T) {
	venues := map[string]string{
		"D": "FINRA / Nasdaq TRF",
		"Q": "NASDAQ",
	}
	empty := map[string]string{}

	cases := []struct {
		name   string
		code   string
		venues map[string]string
		want   bool
	}{
		{"trf code resolves off-exchange", "D", venues, true},
		{"lit exchange", "Q", venues, false},
		{"empty code", "", venues, false},
		{"tape D fallback with empty map", "D", empty, true},
		{"unknown code with empty map", "N", empty, false},
		{"unknown code with populated map", "Z", venues, false},
		{"adf name", "E", map[string]string{"E": "FINRA ADF"}, true},
		{"otc name", "U", map[string]string{"U": "OTC Markets"}, true},
		{"case-insensitive name match", "X", map[string]string{"X": "alternative display facility"}, true},
	}

	for _, tc := range cases {
		if got := InferOffExchange(tc.code, tc.venues); got != tc.want {
			t.Errorf("%s: InferOffExchange(%q) = %v, want %v", tc.name, tc.code, got, tc.want)
		}
	}
}
