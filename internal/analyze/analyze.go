package analyze

import (
	"fmt"
	"sort"

	"github.com/orhun/dnsleaktest-tui/internal/model"
)

const (
	ClassificationLeak         = "LEAK"
	ClassificationNoLeak       = "NO_LEAK"
	ClassificationInconclusive = "INCONCLUSIVE"
)

// Classify derives a local verdict from the leak-test rows: which resolvers
// were observed, how many countries they span, and whether any of them sits
// outside the client's own country. The service's conclusion row is kept as
// the summary when present.
func Classify(records []model.LeakRecord) model.Verdict {
	var clientCountry, conclusion string
	servers := 0
	countrySet := map[string]struct{}{}
	foreign := false

	for _, r := range records {
		switch r.Kind {
		case model.KindIP:
			clientCountry = r.Country
		case model.KindDNS:
			servers++
			if r.Country != "" {
				countrySet[r.Country] = struct{}{}
			}
		case model.KindConclusion:
			conclusion = r.IP
		}
	}

	countries := make([]string, 0, len(countrySet))
	for c := range countrySet {
		countries = append(countries, c)
		if clientCountry != "" && c != clientCountry {
			foreign = true
		}
	}
	sort.Strings(countries)

	verdict := model.Verdict{
		Summary:   conclusion,
		Servers:   servers,
		Countries: countries,
	}

	switch {
	case servers == 0:
		verdict.Classification = ClassificationInconclusive
		if verdict.Summary == "" {
			verdict.Summary = "no resolvers observed"
		}
	case foreign:
		verdict.Classification = ClassificationLeak
		if verdict.Summary == "" {
			verdict.Summary = fmt.Sprintf("%d resolver(s) outside %s", servers, clientCountry)
		}
	default:
		verdict.Classification = ClassificationNoLeak
		if verdict.Summary == "" {
			verdict.Summary = fmt.Sprintf("%d resolver(s), all local", servers)
		}
	}
	return verdict
}
