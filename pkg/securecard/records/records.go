// Package records turns the generic card record into the typed record each
// deployment consumes.
package records

import (
	"fmt"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"

	"github.com/barnettlynn/securecard/pkg/securecard"
)

// ErrMissingField is returned when a required record field is absent or empty.
var ErrMissingField = errors.New("required record field missing")

// Electricity is the record held by an electricity meter card.
type Electricity struct {
	SIN     string         `mapstructure:"SIN"`
	MeterID string         `mapstructure:"Meter ID"`
	Extra   map[string]any `mapstructure:",remain"`
}

// Banking is the record held by a bank card.
type Banking struct {
	SIN   string         `mapstructure:"SIN"`
	Extra map[string]any `mapstructure:",remain"`
}

// Transport is the record held by a transit card.
type Transport struct {
	SIN   string         `mapstructure:"SIN"`
	Extra map[string]any `mapstructure:",remain"`
}

// Voter is the record held by a voter card. VoterID is the only key used for
// registry lookups.
type Voter struct {
	VoterID string         `mapstructure:"VoterID"`
	Extra   map[string]any `mapstructure:",remain"`
}

func decode(rec securecard.Record, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return errors.Wrap(dec.Decode(map[string]any(rec)), "decode record")
}

func requireField(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return errors.Wrapf(ErrMissingField, "%q", name)
	}
	return nil
}

// DecodeElectricity decodes an electricity record. SIN and "Meter ID" are required.
func DecodeElectricity(rec securecard.Record) (Electricity, error) {
	var out Electricity
	if err := decode(rec, &out); err != nil {
		return Electricity{}, err
	}
	if err := requireField("SIN", out.SIN); err != nil {
		return Electricity{}, err
	}
	if err := requireField("Meter ID", out.MeterID); err != nil {
		return Electricity{}, err
	}
	return out, nil
}

// DecodeBanking decodes a bank record. SIN is required.
func DecodeBanking(rec securecard.Record) (Banking, error) {
	var out Banking
	if err := decode(rec, &out); err != nil {
		return Banking{}, err
	}
	if err := requireField("SIN", out.SIN); err != nil {
		return Banking{}, err
	}
	return out, nil
}

// DecodeTransport decodes a transit record. SIN is required.
func DecodeTransport(rec securecard.Record) (Transport, error) {
	var out Transport
	if err := decode(rec, &out); err != nil {
		return Transport{}, err
	}
	if err := requireField("SIN", out.SIN); err != nil {
		return Transport{}, err
	}
	return out, nil
}

// DecodeVoter decodes a voter record. VoterID is required.
func DecodeVoter(rec securecard.Record) (Voter, error) {
	var out Voter
	if err := decode(rec, &out); err != nil {
		return Voter{}, err
	}
	if err := requireField("VoterID", out.VoterID); err != nil {
		return Voter{}, err
	}
	return out, nil
}

// Field is one labelled value of a Summary.
type Field struct {
	Name  string
	Value string
}

// Summary is the deployment-neutral view of a typed record.
type Summary struct {
	Profile string
	Subject string // Identifier used for lookups (SIN or VoterID)
	Fields  []Field
}

func (s Summary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s subject %s", s.Profile, s.Subject)
	for _, f := range s.Fields {
		fmt.Fprintf(&b, ", %s=%s", f.Name, f.Value)
	}
	return b.String()
}

// Decode decodes rec with the adapter of the named profile.
func Decode(profile string, rec securecard.Record) (Summary, error) {
	switch profile {
	case "electricity":
		r, err := DecodeElectricity(rec)
		if err != nil {
			return Summary{}, err
		}
		return Summary{Profile: profile, Subject: r.SIN, Fields: []Field{{"Meter ID", r.MeterID}}}, nil
	case "banking":
		r, err := DecodeBanking(rec)
		if err != nil {
			return Summary{}, err
		}
		return Summary{Profile: profile, Subject: r.SIN}, nil
	case "transport":
		r, err := DecodeTransport(rec)
		if err != nil {
			return Summary{}, err
		}
		return Summary{Profile: profile, Subject: r.SIN}, nil
	case "voting":
		r, err := DecodeVoter(rec)
		if err != nil {
			return Summary{}, err
		}
		return Summary{Profile: profile, Subject: r.VoterID}, nil
	default:
		return Summary{}, errors.Errorf("no record adapter for profile %q", profile)
	}
}
