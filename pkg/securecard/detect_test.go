package securecard_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/barnettlynn/securecard/pkg/securecard"
	"github.com/barnettlynn/securecard/pkg/securecard/cardsim"
)

func TestDetectProfile(t *testing.T) {
	card, err := cardsim.New(profile(t, "transport"), []byte(sampleRecords["transport"]))
	require.NoError(t, err)

	p, ok := securecard.DetectProfile(card, securecard.Profiles())
	require.True(t, ok)
	require.Equal(t, "transport", p.Name)

	// The session selects again after probing.
	cfg := p
	cfg.Key = testKey
	_, err = newSession(t, card, cfg).Run()
	require.NoError(t, err)
}

func TestProbeProfiles(t *testing.T) {
	card, err := cardsim.New(profile(t, "voting"), []byte(sampleRecords["voting"]))
	require.NoError(t, err)

	results := securecard.ProbeProfiles(card, securecard.Profiles())
	require.Len(t, results, 4)
	for _, r := range results {
		if r.Profile == "voting" {
			require.True(t, r.Found)
			continue
		}
		require.False(t, r.Found, r.Profile)
		require.Equal(t, uint16(securecard.SWFileNotFound), r.SW, r.Profile)
	}

	var out bytes.Buffer
	securecard.PrintProbe(&out, results)
	require.Contains(t, out.String(), "voting       selected")
	require.Contains(t, out.String(), "rejected (SW=6A82 applet not found)")
}

func TestDetectProfileUnknownCard(t *testing.T) {
	cfg := profile(t, "banking")
	cfg.AID = []byte{0xD2, 0x76, 0x00, 0x00, 0x85, 0x01, 0x01}
	card, err := cardsim.New(cfg, []byte(`{"SIN":"1"}`))
	require.NoError(t, err)

	_, ok := securecard.DetectProfile(card, securecard.Profiles())
	require.False(t, ok)
}

func TestPrintRecord(t *testing.T) {
	cfg := profile(t, "electricity")
	card, err := cardsim.New(cfg, []byte(sampleRecords["electricity"]))
	require.NoError(t, err)
	rec, err := newSession(t, card, cfg).Run()
	require.NoError(t, err)

	var out bytes.Buffer
	securecard.PrintRecord(&out, "electricity", rec)
	require.Equal(t, "  electricity record (2 fields):\n"+
		"    Meter ID:  M-1001\n"+
		"    SIN:       29801011234567\n", out.String())
}
