// Package registry holds the immutable catalog of named line formats and
// their field extractors. Entries are appended at init time; there is no
// dynamic reflection or runtime registration.
package registry

import (
	"regexp"

	"github.com/loganix/logwarden/internal/model"
)

// Entry is one named line pattern plus its optional timestamp layout and
// severity lookup.
type Entry struct {
	Name string

	// Pattern is matched with FindStringSubmatch. Anchored patterns use
	// ^...$; Firewall intentionally does not (fields are positional within
	// a larger wrapper line).
	Pattern *regexp.Regexp

	// TimeLayout, if non-empty, is a time.Parse layout for the "timestamp"
	// named capture group.
	TimeLayout string

	// SeverityFromCapture, if non-empty, names a capture group whose value
	// (looked up in SeverityMap) assigns the record's severity directly,
	// bypassing the extractor's keyword cascade.
	SeverityFromCapture string
	SeverityMap         map[string]model.Severity
}

// Names returns the capture group names defined by the pattern, in order.
func (e Entry) Names() []string {
	return e.Pattern.SubexpNames()
}

// Match runs the pattern against line and returns the named captures, or
// (nil, false) if it does not match.
func (e Entry) Match(line string) (map[string]string, bool) {
	m := e.Pattern.FindStringSubmatch(line)
	if m == nil {
		return nil, false
	}
	names := e.Pattern.SubexpNames()
	out := make(map[string]string, len(names))
	for i, name := range names {
		if i == 0 || name == "" {
			continue
		}
		if m[i] != "" {
			out[name] = m[i]
		}
	}
	return out, true
}

// Registry is the ordered, immutable format catalog. Order matters: the
// first matching entry wins, so more specific formats must be declared
// before more general ones that could also match (cisco_syslog before
// syslog).
var Registry = []Entry{
	cisco,
	syslogEntry,
	apacheAccess,
	nginxAccess,
	firewall,
	windowsEvent,
	docker,
}

// JSONFormatTag is the tag assigned to lines recognized as a JSON object.
const JSONFormatTag = "json"

// UnknownFormatTag is the tag assigned when nothing in the registry matches.
const UnknownFormatTag = "unknown"

var cisco = Entry{
	Name: "cisco_syslog",
	// e.g. "Jul 10 2024 12:00:01: %ASA-3-710003: TCP access denied by ACL"
	Pattern: regexp.MustCompile(
		`^(?P<timestamp>[A-Z][a-z]{2} +\d{1,2} \d{4} \d{2}:\d{2}:\d{2}): %(?P<facility>[A-Z]+)-(?P<level>\d)-(?P<mnemonic>\d+): (?P<message>.*)$`,
	),
	TimeLayout: "Jan 2 2006 15:04:05",
}

var syslogEntry = Entry{
	Name: "syslog",
	// e.g. "Jul 10 12:00:01 host sshd[1234]: Failed password for root..."
	Pattern: regexp.MustCompile(
		`^(?:<(?P<pri>\d+)>)?(?P<timestamp>[A-Z][a-z]{2} +\d{1,2} \d{2}:\d{2}:\d{2}) (?P<host>\S+) (?P<tag>[^:\[]+)(?:\[(?P<pid>\d+)\])?: (?P<message>.*)$`,
	),
	TimeLayout: "Jan 2 15:04:05",
}

var apacheAccess = Entry{
	Name: "apache_access",
	// e.g. 192.168.1.10 - - [10/Jul/2024:12:00:01 +0000] "GET /a HTTP/1.1" 200 512
	Pattern: regexp.MustCompile(
		`^(?P<src_ip>\d{1,3}(?:\.\d{1,3}){3}) (?P<ident>\S+) (?P<user>\S+) \[(?P<timestamp>[^\]]+)\] "(?P<method>[A-Z]+) (?P<path>\S+) (?P<proto>[^"]+)" (?P<status>\d{3}) (?P<size>\S+)$`,
	),
	TimeLayout: "02/Jan/2006:15:04:05 -0700",
}

var nginxAccess = Entry{
	Name: "nginx_access",
	// same base shape as apache_access with an appended referrer/UA pair.
	Pattern: regexp.MustCompile(
		`^(?P<src_ip>\d{1,3}(?:\.\d{1,3}){3}) - (?P<user>\S+) \[(?P<timestamp>[^\]]+)\] "(?P<method>[A-Z]+) (?P<path>\S+) (?P<proto>[^"]+)" (?P<status>\d{3}) (?P<size>\S+) "(?P<referrer>[^"]*)" "(?P<useragent>[^"]*)"$`,
	),
	TimeLayout: "02/Jan/2006:15:04:05 -0700",
}

var firewall = Entry{
	Name: "firewall",
	// Substring match: firewall fields are positional inside a larger
	// wrapper line (e.g. a syslog-wrapped netfilter log).
	Pattern: regexp.MustCompile(
		`(?P<action>DENY|ACCEPT|DROP|BLOCK) .*?SRC=(?P<src_ip>\S+) DST=(?P<dst_ip>\S+).*?PROTO=(?P<proto>\S+)(?:.*?SPT=(?P<src_port>\d+))?(?:.*?DPT=(?P<dst_port>\d+))?`,
	),
}

var windowsEvent = Entry{
	Name: "windows_event",
	// e.g. "2024-07-10 12:00:01 Information EventID=4624 Source=Security Message=..."
	Pattern: regexp.MustCompile(
		`^(?P<timestamp>\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}) (?P<level>Information|Warning|Error|Critical) EventID=(?P<event_id>\d+) Source=(?P<source>\S+) Message=(?P<message>.*)$`,
	),
	TimeLayout: "2006-01-02 15:04:05",
	SeverityMap: map[string]model.Severity{
		"Critical":    model.SeverityCritical,
		"Error":       model.SeverityError,
		"Warning":     model.SeverityWarn,
		"Information": model.SeverityInfo,
	},
	SeverityFromCapture: "level",
}

var docker = Entry{
	Name: "docker",
	// Container stdout with a docker-style RFC3339Nano prefix.
	Pattern: regexp.MustCompile(
		`^(?P<timestamp>\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(?:\.\d+)?Z) (?P<message>.*)$`,
	),
	TimeLayout: "2006-01-02T15:04:05.999999999Z",
}
