package securecard

import "github.com/pkg/errors"

// DetectResult holds the outcome of selecting one profile's applet.
type DetectResult struct {
	Profile string // Profile name
	Found   bool   // True if SELECT succeeded
	SW      uint16 // Status word from a rejected SELECT
	Err     error  // Underlying error
}

// ProbeProfiles sends SELECT for every profile's AID and reports what the
// card answered. Transport failures are recorded per profile like rejections.
//
// Note: probing changes which applet the card has selected. A Session
// always selects again before authenticating.
func ProbeProfiles(card Card, profiles []Config) []DetectResult {
	results := make([]DetectResult, 0, len(profiles))
	for _, p := range profiles {
		_, err := transmitOK(card, "select", "", p.Commands.Select.Build(p.AID))
		r := DetectResult{Profile: p.Name, Found: err == nil, Err: err}
		var se *SessionError
		if errors.As(err, &se) {
			r.SW = se.SW
		}
		results = append(results, r)
	}
	return results
}

// DetectProfile returns the first profile whose applet the card selects.
func DetectProfile(card Card, profiles []Config) (Config, bool) {
	for i, r := range ProbeProfiles(card, profiles) {
		if r.Found {
			return profiles[i], true
		}
	}
	return Config{}, false
}
