package model

// LeakRecord kinds as reported by the leak-test service.
const (
	KindIP         = "ip"
	KindDNS        = "dns"
	KindConclusion = "conclusion"
)

// LeakRecord is one row of the DNS-leak verdict. CountryDisplay is derived
// at ingestion (country name plus flag glyph) and is never taken verbatim
// from the wire.
type LeakRecord struct {
	IP             string `json:"ip"`
	Country        string `json:"country"`
	CountryDisplay string `json:"country_display"`
	ASN            string `json:"asn"`
	Kind           string `json:"kind"`
}

// Hop is one row of the traceroute table. TTL is set only on the first row
// for a probed TTL; continuation rows for additional addresses at the same
// TTL leave it blank so repeated addresses render as a group. Empty Host and
// Address mean the TTL was probed but nothing answered.
type Hop struct {
	TTL     string `json:"ttl,omitempty"`
	Host    string `json:"host,omitempty"`
	Address string `json:"address,omitempty"`
	Samples string `json:"samples"`
}

type TraceResult struct {
	Summary string `json:"summary"`
	Hops    []Hop  `json:"hops"`
}

// Report bundles both diagnostics for the JSON and pretty output paths.
type Report struct {
	Leak    []LeakRecord `json:"leak"`
	Trace   TraceResult  `json:"trace"`
	Verdict Verdict      `json:"verdict"`
}

// Verdict is the local classification of the leak-test rows.
type Verdict struct {
	Classification string   `json:"classification"`
	Summary        string   `json:"summary"`
	Servers        int      `json:"servers"`
	Countries      []string `json:"countries,omitempty"`
}
