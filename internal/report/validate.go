package report

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gptkong/ip-quality-dashboard/internal/sanitize"
)

// maxErrors bounds the error list returned to the caller. The messages are a
// diagnostic API response, not a stack trace, so a handful of precise
// violations beats an exhaustive dump.
const maxErrors = 10

// Validate checks a submitted detection payload against the report shape and
// returns the validated submission, or a human-readable list of violations.
// The payload is sanitized of ANSI escape sequences before validation, so a
// color-wrapped country code is never rejected for its wrapping. A top-level
// array is always read as a list of 1-2 reports (dual-stack envelope), never
// as a single report.
func Validate(raw json.RawMessage) (*Submission, []string) {
	if len(raw) == 0 {
		return nil, []string{"data: required field is missing"}
	}

	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, []string{"data: invalid JSON"}
	}
	decoded = sanitize.Value(decoded)

	v := &checker{seen: make(map[string]bool)}
	dual := false

	switch val := decoded.(type) {
	case []any:
		if len(val) == 0 {
			v.add("data", "must contain at least one report")
		} else if len(val) > 2 {
			v.add("data", fmt.Sprintf("expected at most 2 reports (IPv4/IPv6), received %d", len(val)))
		} else {
			dual = len(val) == 2
			for i, item := range val {
				v.checkReport(fmt.Sprintf("Report %d", i+1), item)
			}
		}
	case map[string]any:
		v.checkReport("", decoded)
	default:
		v.add("data", fmt.Sprintf("unrecognized report shape: expected an object or an array of reports, received %s", typeName(decoded)))
	}

	if len(v.errs) > 0 {
		if len(v.errs) > maxErrors {
			v.errs = v.errs[:maxErrors]
		}
		return nil, v.errs
	}

	// The sanitized value re-marshals to the exact envelope that validated;
	// that envelope is what gets stored.
	rawOut, err := json.Marshal(decoded)
	if err != nil {
		return nil, []string{"data: failed to serialize report"}
	}

	sub := &Submission{DualStack: dual, Raw: rawOut}
	if _, isList := decoded.([]any); isList {
		if err := json.Unmarshal(rawOut, &sub.Reports); err != nil {
			return nil, []string{"data: failed to decode validated report"}
		}
	} else {
		var r Report
		if err := json.Unmarshal(rawOut, &r); err != nil {
			return nil, []string{"data: failed to decode validated report"}
		}
		sub.Reports = []Report{r}
	}
	return sub, nil
}

type checker struct {
	errs []string
	seen map[string]bool
}

func (c *checker) add(path, msg string) {
	line := msg
	if path != "" {
		line = path + ": " + msg
	}
	if c.seen[line] {
		return
	}
	c.seen[line] = true
	c.errs = append(c.errs, line)
}

func join(parts ...string) string {
	out := parts[:0:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, " → ")
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case float64:
		return "number"
	case bool:
		return "boolean"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return "unknown"
	}
}

func (c *checker) checkReport(prefix string, v any) {
	obj, ok := v.(map[string]any)
	if !ok {
		c.add(join(prefix), fmt.Sprintf("expected an object, received %s", typeName(v)))
		return
	}

	c.section(prefix, obj, "Head", c.checkHead)
	c.section(prefix, obj, "Info", c.checkInfo)
	c.section(prefix, obj, "Type", c.checkClassification)
	c.section(prefix, obj, "Score", c.checkScore)
	c.section(prefix, obj, "Factor", c.checkFactor)
	c.section(prefix, obj, "Media", c.checkMedia)
	c.section(prefix, obj, "Mail", c.checkMail)
}

// section enforces the non-empty-list envelope every report section carries
// and runs the per-item check on each element.
func (c *checker) section(prefix string, obj map[string]any, name string, item func(path string, v any)) {
	path := join(prefix, name)
	raw, present := obj[name]
	if !present {
		c.add(path, "required section is missing")
		return
	}
	arr, ok := raw.([]any)
	if !ok {
		c.add(path, fmt.Sprintf("expected an array, received %s", typeName(raw)))
		return
	}
	if len(arr) == 0 {
		c.add(path, "must contain at least one element")
		return
	}
	for _, el := range arr {
		item(path, el)
	}
}

func (c *checker) object(path string, v any) (map[string]any, bool) {
	obj, ok := v.(map[string]any)
	if !ok {
		c.add(path, fmt.Sprintf("expected an object, received %s", typeName(v)))
		return nil, false
	}
	return obj, true
}

func (c *checker) str(path string, obj map[string]any, key string) {
	v, present := obj[key]
	if !present {
		c.add(join(path, key), "required field is missing")
		return
	}
	if _, ok := v.(string); !ok {
		c.add(join(path, key), fmt.Sprintf("expected string, received %s", typeName(v)))
	}
}

func (c *checker) num(path string, obj map[string]any, key string) {
	v, present := obj[key]
	if !present {
		c.add(join(path, key), "required field is missing")
		return
	}
	if _, ok := v.(float64); !ok {
		c.add(join(path, key), fmt.Sprintf("expected number, received %s", typeName(v)))
	}
}

// flag accepts true, false, or explicit null ("no data from this provider").
// Absence is still an error: a flag field must be present to mean anything.
func (c *checker) flag(path string, obj map[string]any, key string) {
	v, present := obj[key]
	if !present {
		c.add(join(path, key), "required field is missing")
		return
	}
	if v == nil {
		return
	}
	if _, ok := v.(bool); !ok {
		c.add(join(path, key), fmt.Sprintf("expected boolean or null, received %s", typeName(v)))
	}
}

// providerMap validates an open provider-keyed map whose per-provider value
// type is fixed by the value callback.
func (c *checker) providerMap(path string, obj map[string]any, key string, value func(path string, v any)) {
	v, present := obj[key]
	if !present {
		c.add(join(path, key), "required field is missing")
		return
	}
	m, ok := v.(map[string]any)
	if !ok {
		c.add(join(path, key), fmt.Sprintf("expected an object, received %s", typeName(v)))
		return
	}
	for provider, pv := range m {
		value(join(path, key, provider), pv)
	}
}

func (c *checker) stringValue(path string, v any) {
	if _, ok := v.(string); !ok {
		c.add(path, fmt.Sprintf("expected string, received %s", typeName(v)))
	}
}

func (c *checker) nullableStringValue(path string, v any) {
	if v == nil {
		return
	}
	c.stringValue(path, v)
}

func (c *checker) flagValue(path string, v any) {
	if v == nil {
		return
	}
	if _, ok := v.(bool); !ok {
		c.add(path, fmt.Sprintf("expected boolean or null, received %s", typeName(v)))
	}
}

func (c *checker) checkHead(path string, v any) {
	obj, ok := c.object(path, v)
	if !ok {
		return
	}
	for _, key := range []string{"IP", "Command", "GitHub", "Time", "Version"} {
		c.str(path, obj, key)
	}
}

func (c *checker) checkRegion(path string, obj map[string]any, key string) {
	v, present := obj[key]
	if !present {
		c.add(join(path, key), "required field is missing")
		return
	}
	sub, ok := c.object(join(path, key), v)
	if !ok {
		return
	}
	c.str(join(path, key), sub, "Code")
	c.str(join(path, key), sub, "Name")
}

func (c *checker) checkInfo(path string, v any) {
	obj, ok := c.object(path, v)
	if !ok {
		return
	}
	for _, key := range []string{"ASN", "Organization", "Latitude", "Longitude", "DMS", "Map", "TimeZone", "Type"} {
		c.str(path, obj, key)
	}

	city, present := obj["City"]
	if !present {
		c.add(join(path, "City"), "required field is missing")
	} else if sub, ok := c.object(join(path, "City"), city); ok {
		for _, key := range []string{"Name", "PostalCode", "SubCode", "Subdivisions"} {
			c.str(join(path, "City"), sub, key)
		}
	}

	c.checkRegion(path, obj, "Region")
	c.checkRegion(path, obj, "Continent")
	c.checkRegion(path, obj, "RegisteredRegion")
}

func (c *checker) checkClassification(path string, v any) {
	obj, ok := c.object(path, v)
	if !ok {
		return
	}
	c.providerMap(path, obj, "Usage", c.stringValue)
	c.providerMap(path, obj, "Company", c.stringValue)
}

func (c *checker) checkScore(path string, v any) {
	obj, ok := c.object(path, v)
	if !ok {
		return
	}
	for provider, pv := range obj {
		c.stringValue(join(path, provider), pv)
	}
}

func (c *checker) checkFactor(path string, v any) {
	obj, ok := c.object(path, v)
	if !ok {
		return
	}
	c.providerMap(path, obj, "CountryCode", c.nullableStringValue)
	for _, key := range []string{"Proxy", "Tor", "VPN", "Server", "Abuser", "Robot"} {
		c.providerMap(path, obj, key, c.flagValue)
	}
}

func (c *checker) checkMedia(path string, v any) {
	obj, ok := c.object(path, v)
	if !ok {
		return
	}
	for platform, pv := range obj {
		sub, ok := c.object(join(path, platform), pv)
		if !ok {
			continue
		}
		c.str(join(path, platform), sub, "Status")
		c.str(join(path, platform), sub, "Region")
		c.str(join(path, platform), sub, "Type")
	}
}

func (c *checker) checkMail(path string, v any) {
	obj, ok := c.object(path, v)
	if !ok {
		return
	}
	for _, key := range []string{"Port25", "Gmail", "Outlook", "Yahoo", "Apple", "QQ", "MailRU", "AOL", "GMX", "MailCOM", "163", "Sohu", "Sina"} {
		c.flag(path, obj, key)
	}

	bl, present := obj["DNSBlacklist"]
	if !present {
		c.add(join(path, "DNSBlacklist"), "required field is missing")
		return
	}
	sub, ok := c.object(join(path, "DNSBlacklist"), bl)
	if !ok {
		return
	}
	for _, key := range []string{"Total", "Clean", "Marked", "Blacklisted"} {
		c.num(join(path, "DNSBlacklist"), sub, key)
	}
}
