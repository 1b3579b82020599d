// Package unlock parses the free-text output of the cross-border platform
// access probing tool into typed per-platform statuses.
package unlock

import (
	"regexp"
	"strings"

	"github.com/gptkong/ip-quality-dashboard/internal/sanitize"
)

// Status is the normalized unlock verdict for one platform.
type Status string

const (
	StatusYes     Status = "YES"
	StatusNo      Status = "NO"
	StatusBanned  Status = "Banned"
	StatusUnknown Status = "Unknown"
)

// PlatformStatus is one parsed platform line.
type PlatformStatus struct {
	Name   string `json:"name"`
	Status Status `json:"status"`
	Region string `json:"region,omitempty"`
	Type   string `json:"type,omitempty"` // access method, e.g. Native, Via DNS
	Note   string `json:"note,omitempty"`
}

// Result is everything extractable from one report: header metadata plus the
// per-family platform lists. Platforms holds the IPv4 results; IPv6Platforms
// is nil unless an IPv6 block marker was seen.
type Result struct {
	IPv4ASN       string
	IPv4Location  string
	IPv6ASN       string
	IPv6Location  string
	Platforms     []PlatformStatus
	IPv6Platforms []PlatformStatus
	TestTime      string
	Duration      string
}

var (
	// Family markers are standalone lines, optionally with a trailing colon
	// (ASCII or fullwidth).
	familyRe = regexp.MustCompile(`(?i)^IPV([46])\s*[:：]?\s*$`)

	// A platform line is a name (may contain single spaces), a run of two or
	// more spaces, then the status token. The two-space separator is what
	// distinguishes the name from the status.
	platformRe = regexp.MustCompile(`(?i)^(\S+(?:\s+\S+)*?)\s{2,}(YES|NO|BANNED)(.*)$`)

	regionRe = regexp.MustCompile(`(?i)\(Region:\s*([^)]+)\)`)
	parenRe  = regexp.MustCompile(`\(([^)]+)\)`)
	typeRe   = regexp.MustCompile(`\[([^\]]+)\]`)
)

// platformBlockMarker opens the platform listing block; a dashed separator
// line closes it.
const platformBlockMarker = "跨国平台"

type family int

const (
	familyIPv4 family = iota
	familyIPv6
)

// scanner holds the two pieces of scan state: whether we are inside the
// platform listing block, and which IP family's block we are in.
type scanner struct {
	inBlock bool
	fam     family
	out     Result
}

// Parse extracts platform unlock statuses and IP metadata from raw tool
// output. It is total: unparseable lines are skipped, and the worst case is a
// Result with an empty platform list.
func Parse(content string) Result {
	s := &scanner{}
	for _, line := range strings.Split(sanitize.Text(content), "\n") {
		s.line(strings.TrimSpace(line))
	}
	return s.out
}

func (s *scanner) line(trimmed string) {
	switch {
	case strings.HasPrefix(trimmed, "IPV4 ASN"):
		s.out.IPv4ASN = afterColon(trimmed)
	case strings.HasPrefix(trimmed, "IPV4 Location"):
		s.out.IPv4Location = afterColon(trimmed)
	case strings.HasPrefix(trimmed, "IPV6 ASN"):
		s.out.IPv6ASN = afterColon(trimmed)
	case strings.HasPrefix(trimmed, "IPV6 Location"):
		s.out.IPv6Location = afterColon(trimmed)
	}

	if m := familyRe.FindStringSubmatch(trimmed); m != nil {
		if m[1] == "6" {
			s.fam = familyIPv6
			if s.out.IPv6Platforms == nil {
				s.out.IPv6Platforms = []PlatformStatus{}
			}
		} else {
			s.fam = familyIPv4
		}
		return
	}

	if strings.Contains(trimmed, platformBlockMarker) {
		s.inBlock = true
		return
	}
	if s.inBlock && strings.HasPrefix(trimmed, "---") {
		s.inBlock = false
		return
	}

	if s.inBlock && trimmed != "" && !strings.HasPrefix(trimmed, "=") {
		if p, ok := parsePlatformLine(trimmed); ok {
			if s.fam == familyIPv6 {
				s.out.IPv6Platforms = append(s.out.IPv6Platforms, p)
			} else {
				s.out.Platforms = append(s.out.Platforms, p)
			}
		}
	}

	switch {
	case strings.HasPrefix(trimmed, "时间"):
		s.out.TestTime = afterColon(trimmed)
	case strings.HasPrefix(trimmed, "花费"):
		s.out.Duration = afterColon(trimmed)
	}
}

// afterColon returns everything after the first colon, trimmed. The value may
// itself contain colons (IPv6 addresses, timestamps), so only the first one
// splits.
func afterColon(line string) string {
	_, rest, ok := strings.Cut(line, ":")
	if !ok {
		return ""
	}
	return strings.TrimSpace(rest)
}

func parsePlatformLine(line string) (PlatformStatus, bool) {
	m := platformRe.FindStringSubmatch(line)
	if m == nil {
		return PlatformStatus{}, false
	}
	name, statusRaw, rest := m[1], m[2], m[3]

	status := Status(strings.ToUpper(statusRaw))
	if status == "BANNED" {
		status = StatusBanned
	}

	p := PlatformStatus{Name: strings.TrimSpace(name), Status: status}

	if rm := regionRe.FindStringSubmatch(rest); rm != nil {
		p.Region = strings.TrimSpace(rm[1])
	}
	if tm := typeRe.FindStringSubmatch(rest); tm != nil {
		p.Type = strings.TrimSpace(tm[1])
	}

	// Any parenthesized group other than the region becomes a note.
	var notes []string
	for _, nm := range parenRe.FindAllStringSubmatch(rest, -1) {
		if strings.HasPrefix(strings.ToLower(nm[1]), "region:") {
			continue
		}
		notes = append(notes, nm[1])
	}
	if len(notes) > 0 {
		p.Note = strings.Join(notes, ", ")
	}

	return p, true
}
