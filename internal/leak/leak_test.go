package leak

import (
	"context"
	"net/http"
	"sync/atomic"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/orhun/dnsleaktest-tui/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const verdictJSON = `[
	{"type":"ip","ip":"203.0.113.5","country":"DE","country_name":"Germany","asn":"AS3320"},
	{"type":"dns","ip":"8.8.8.8","country":"US","country_name":"United States","asn":"AS15169"},
	{"type":"conclusion","ip":"No DNS leak detected","country":"","country_name":"","asn":""}
]`

func newMockedProber(t *testing.T) *Prober {
	t.Helper()
	client := &http.Client{}
	httpmock.ActivateNonDefault(client)
	t.Cleanup(httpmock.DeactivateAndReset)
	return New(Options{Client: client})
}

func TestProbeRunsThreePhasesInOrder(t *testing.T) {
	p := newMockedProber(t)

	var fanOutCalls atomic.Int32
	httpmock.RegisterResponder("GET", "https://bash.ws/id",
		httpmock.NewStringResponder(200, "12345\n"))
	httpmock.RegisterResponder("GET", `=~^https://\d+\.12345\.bash\.ws`,
		func(req *http.Request) (*http.Response, error) {
			fanOutCalls.Add(1)
			return httpmock.NewStringResponse(200, "ok"), nil
		})
	httpmock.RegisterResponder("GET", "https://bash.ws/dnsleak/test/12345",
		httpmock.NewStringResponder(200, verdictJSON))

	records, err := p.Probe(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 10, fanOutCalls.Load())

	require.Len(t, records, 3)
	assert.Equal(t, model.KindIP, records[0].Kind)
	assert.Equal(t, model.KindDNS, records[1].Kind)
	assert.Equal(t, model.KindConclusion, records[2].Kind)

	assert.Equal(t, "8.8.8.8", records[1].IP)
	assert.Equal(t, "AS15169", records[1].ASN)
	assert.Equal(t, "United States \U0001F1FA\U0001F1F8", records[1].CountryDisplay)

	// Conclusion rows carry no country and get only the placeholder.
	assert.Equal(t, "No DNS leak detected", records[2].IP)
	assert.Equal(t, " ?", records[2].CountryDisplay)
}

func TestProbeSessionFailureIsFatal(t *testing.T) {
	p := newMockedProber(t)
	httpmock.RegisterResponder("GET", "https://bash.ws/id",
		httpmock.NewStringResponder(503, "unavailable"))

	_, err := p.Probe(context.Background())
	require.ErrorIs(t, err, ErrSessionUnavailable)

	// No later phase runs when the session cannot be acquired.
	info := httpmock.GetCallCountInfo()
	assert.Len(t, info, 1)
}

func TestProbeEmptySessionIDIsFatal(t *testing.T) {
	p := newMockedProber(t)
	httpmock.RegisterResponder("GET", "https://bash.ws/id",
		httpmock.NewStringResponder(200, "  \n"))

	_, err := p.Probe(context.Background())
	require.ErrorIs(t, err, ErrSessionUnavailable)
}

func TestProbeMalformedVerdictIsFatal(t *testing.T) {
	p := newMockedProber(t)
	httpmock.RegisterResponder("GET", "https://bash.ws/id",
		httpmock.NewStringResponder(200, "12345"))
	httpmock.RegisterResponder("GET", `=~^https://\d+\.12345\.bash\.ws`,
		httpmock.NewStringResponder(200, "ok"))
	httpmock.RegisterResponder("GET", "https://bash.ws/dnsleak/test/12345",
		httpmock.NewStringResponder(200, "<html>not json</html>"))

	_, err := p.Probe(context.Background())
	require.ErrorIs(t, err, ErrVerdictUnavailable)
}

func TestProbeSwallowsFanOutFailures(t *testing.T) {
	p := newMockedProber(t)
	httpmock.RegisterResponder("GET", "https://bash.ws/id",
		httpmock.NewStringResponder(200, "12345"))
	httpmock.RegisterResponder("GET", `=~^https://\d+\.12345\.bash\.ws`,
		httpmock.NewErrorResponder(assert.AnError))
	httpmock.RegisterResponder("GET", "https://bash.ws/dnsleak/test/12345",
		httpmock.NewStringResponder(200, verdictJSON))

	records, err := p.Probe(context.Background())
	require.NoError(t, err)
	assert.Len(t, records, 3)
}

func TestCountryDisplay(t *testing.T) {
	cases := []struct {
		name, code, want string
	}{
		{"United States", "US", "United States \U0001F1FA\U0001F1F8"},
		{"Germany", "DE", "Germany \U0001F1E9\U0001F1EA"},
		{"", "", " ?"},
		{"Atlantis", "ZZZ", "Atlantis ?"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, countryDisplay(c.name, c.code))
	}
}
