package report

import (
	"encoding/json"
	"fmt"
)

// TriState is a boolean flag that can also carry "no data from this
// provider". JSON null maps to Unknown, so a provider that did not answer is
// distinguishable from one that answered false.
type TriState int8

const (
	Unknown TriState = iota
	False
	True
)

func (t TriState) String() string {
	switch t {
	case True:
		return "true"
	case False:
		return "false"
	default:
		return "unknown"
	}
}

func (t TriState) MarshalJSON() ([]byte, error) {
	switch t {
	case True:
		return []byte("true"), nil
	case False:
		return []byte("false"), nil
	default:
		return []byte("null"), nil
	}
}

func (t *TriState) UnmarshalJSON(data []byte) error {
	switch string(data) {
	case "null":
		*t = Unknown
	case "true":
		*t = True
	case "false":
		*t = False
	default:
		return fmt.Errorf("invalid tri-state value %q", data)
	}
	return nil
}

// Head carries identity and runtime metadata emitted by the detection tool.
type Head struct {
	IP      string `json:"IP"`
	Command string `json:"Command"`
	GitHub  string `json:"GitHub"`
	Time    string `json:"Time"`
	Version string `json:"Version"`
}

type City struct {
	Name         string `json:"Name"`
	PostalCode   string `json:"PostalCode"`
	SubCode      string `json:"SubCode"`
	Subdivisions string `json:"Subdivisions"`
}

type Region struct {
	Code string `json:"Code"`
	Name string `json:"Name"`
}

// Info carries geolocation and network attribution for the detected IP.
type Info struct {
	ASN              string `json:"ASN"`
	Organization     string `json:"Organization"`
	Latitude         string `json:"Latitude"`
	Longitude        string `json:"Longitude"`
	DMS              string `json:"DMS"`
	Map              string `json:"Map"`
	TimeZone         string `json:"TimeZone"`
	City             City   `json:"City"`
	Region           Region `json:"Region"`
	Continent        Region `json:"Continent"`
	RegisteredRegion Region `json:"RegisteredRegion"`
	Type             string `json:"Type"`
}

// Classification holds per-provider usage and company labels. The provider
// set is open: whichever providers contributed appear as keys.
type Classification struct {
	Usage   map[string]string `json:"Usage"`
	Company map[string]string `json:"Company"`
}

// Score maps provider name to its risk score. Scores are strings as emitted
// by the tool; the sentinel "null" string means the provider had no score.
type Score map[string]string

// Factor holds per-provider risk flags across six dimensions plus a
// per-provider country code attribution.
type Factor struct {
	CountryCode map[string]*string  `json:"CountryCode"`
	Proxy       map[string]TriState `json:"Proxy"`
	Tor         map[string]TriState `json:"Tor"`
	VPN         map[string]TriState `json:"VPN"`
	Server      map[string]TriState `json:"Server"`
	Abuser      map[string]TriState `json:"Abuser"`
	Robot       map[string]TriState `json:"Robot"`
}

// MediaStatus is one platform's unlock result inside the Media section.
type MediaStatus struct {
	Status string `json:"Status"`
	Region string `json:"Region"`
	Type   string `json:"Type"`
}

// Media maps platform name to its unlock status.
type Media map[string]MediaStatus

type DNSBlacklist struct {
	Total       int `json:"Total"`
	Clean       int `json:"Clean"`
	Marked      int `json:"Marked"`
	Blacklisted int `json:"Blacklisted"`
}

// Mail carries reachability flags for the thirteen probed mail providers
// plus the DNS blacklist tally.
type Mail struct {
	Port25       TriState     `json:"Port25"`
	Gmail        TriState     `json:"Gmail"`
	Outlook      TriState     `json:"Outlook"`
	Yahoo        TriState     `json:"Yahoo"`
	Apple        TriState     `json:"Apple"`
	QQ           TriState     `json:"QQ"`
	MailRU       TriState     `json:"MailRU"`
	AOL          TriState     `json:"AOL"`
	GMX          TriState     `json:"GMX"`
	MailCOM      TriState     `json:"MailCOM"`
	NetEase163   TriState     `json:"163"`
	Sohu         TriState     `json:"Sohu"`
	Sina         TriState     `json:"Sina"`
	DNSBlacklist DNSBlacklist `json:"DNSBlacklist"`
}

// Report is one complete detection result for a single IP. Each section is a
// single-element list on the wire; the wrapping is meaningless but stable
// upstream output format, preserved for wire compatibility.
type Report struct {
	Head   []Head           `json:"Head"`
	Info   []Info           `json:"Info"`
	Type   []Classification `json:"Type"`
	Score  []Score          `json:"Score"`
	Factor []Factor         `json:"Factor"`
	Media  []Media          `json:"Media"`
	Mail   []Mail           `json:"Mail"`
}

// Submission is the validated form of one submitted payload: a single report
// or a dual-stack pair. Raw is the sanitized JSON exactly as it validated,
// envelope included, and is what gets persisted.
type Submission struct {
	Reports   []Report
	DualStack bool
	Raw       json.RawMessage
}
