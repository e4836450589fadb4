package extract

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/loganix/logwarden/internal/model"
)

var ipv4Pattern = regexp.MustCompile(`\b\d{1,3}(?:\.\d{1,3}){3}\b`)

var macPattern = regexp.MustCompile(`\b(?:[0-9A-Fa-f]{2}[:-]){5}[0-9A-Fa-f]{2}\b`)

// portPattern captures any of the three labeled forms (port=, SPT=, DPT=)
// or the bare ":NNNN" suffix form, in the order they appear in the message.
var portPattern = regexp.MustCompile(`(?i)\bport[= ]+(?P<port>\d{1,5})\b|\bSPT=(?P<spt>\d{1,5})\b|\bDPT=(?P<dpt>\d{1,5})\b|:(?P<suffix>\d{1,5})\b`)

var labeledProtoPattern = regexp.MustCompile(`(?i)\b(?:proto|protocol)[= ]+([A-Za-z0-9]+)\b`)

var bareProtocolWords = []string{"TCP", "UDP", "ICMP", "HTTP", "HTTPS", "FTP", "SSH", "SMTP", "DNS", "DHCP", "SNMP"}

var bareProtocolPattern = regexp.MustCompile(`(?i)\b(` + strings.Join(bareProtocolWords, "|") + `)\b`)

// numericProtocolTable maps an IP protocol number to its conventional name.
var numericProtocolTable = map[string]string{
	"1":   "ICMP",
	"6":   "TCP",
	"17":  "UDP",
	"47":  "GRE",
	"50":  "ESP",
	"51":  "AH",
	"58":  "ICMPv6",
	"89":  "OSPF",
	"132": "SCTP",
}

// validOctet reports whether s parses as a decimal integer in [0, 255].
func validOctet(s string) bool {
	n, err := strconv.Atoi(s)
	return err == nil && n >= 0 && n <= 255
}

// validIPv4 reports whether s is a dotted-quad with every octet in range.
// This is stricter than the regex used to *find* candidate IP strings: a
// string can match the dotted-quad shape (e.g. "999.999.999.999") without
// being a valid address. Such strings are found but never populated into
// src_ip/dst_ip/ip_addresses.
func validIPv4(s string) bool {
	parts := strings.Split(s, ".")
	if len(parts) != 4 {
		return false
	}
	for _, p := range parts {
		if !validOctet(p) {
			return false
		}
	}
	return true
}

// Network implements the always-on network augmentation: it is
// called on the raw message and the result is unioned into whatever network
// info structured captures already produced (never overwriting).
func Network(message string) model.NetworkInfo {
	var info model.NetworkInfo

	candidates := ipv4Pattern.FindAllString(message, -1)
	var valid []string
	for _, c := range candidates {
		if validIPv4(c) {
			valid = append(valid, c)
		}
	}
	info.IPAddresses = dedupeStrings(valid)
	switch len(info.IPAddresses) {
	case 0:
	case 1:
		// exactly one -> emitted only in ip_addresses[], no src/dst split
	default:
		info.SrcIP = info.IPAddresses[0]
		info.DstIP = info.IPAddresses[1]
	}

	info.MACAddrs = dedupeStrings(macPattern.FindAllString(message, -1))

	var ports []int
	for _, m := range portPattern.FindAllStringSubmatch(message, -1) {
		var raw, kind string
		switch {
		case m[1] != "":
			raw, kind = m[1], "port"
		case m[2] != "":
			raw, kind = m[2], "spt"
		case m[3] != "":
			raw, kind = m[3], "dpt"
		case m[4] != "":
			raw, kind = m[4], "suffix"
		default:
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 65535 {
			continue
		}
		ports = appendUniqueInt(ports, n)
		switch kind {
		case "spt":
			if info.SrcPort == 0 {
				info.SrcPort = n
			}
		case "dpt":
			if info.DstPort == 0 {
				info.DstPort = n
			}
		}
	}
	info.Ports = ports

	var protocols []string
	for _, m := range labeledProtoPattern.FindAllStringSubmatch(message, -1) {
		proto := strings.ToUpper(m[1])
		if name, ok := numericProtocolTable[m[1]]; ok {
			proto = name
		}
		protocols = appendUniqueString(protocols, proto)
	}
	for _, m := range bareProtocolPattern.FindAllStringSubmatch(message, -1) {
		protocols = appendUniqueString(protocols, strings.ToUpper(m[1]))
	}
	info.Protocols = protocols

	return info
}

// UnionNetwork merges src (derived from the raw message) into dst (derived
// from structured captures), augmenting without ever overwriting a field
// dst already populated.
func UnionNetwork(dst *model.NetworkInfo, src model.NetworkInfo) {
	if dst.SrcIP == "" {
		dst.SrcIP = src.SrcIP
	}
	if dst.DstIP == "" {
		dst.DstIP = src.DstIP
	}
	if dst.SrcPort == 0 {
		dst.SrcPort = src.SrcPort
	}
	if dst.DstPort == 0 {
		dst.DstPort = src.DstPort
	}
	dst.Protocols = unionStrings(dst.Protocols, src.Protocols)
	dst.IPAddresses = unionStrings(dst.IPAddresses, src.IPAddresses)
	dst.MACAddrs = unionStrings(dst.MACAddrs, src.MACAddrs)
	dst.Ports = unionInts(dst.Ports, src.Ports)
}

func dedupeStrings(in []string) []string {
	return unionStrings(nil, in)
}

func unionStrings(base, extra []string) []string {
	if len(extra) == 0 {
		return base
	}
	seen := make(map[string]bool, len(base)+len(extra))
	out := make([]string, 0, len(base)+len(extra))
	for _, s := range base {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	for _, s := range extra {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return base
	}
	return out
}

func unionInts(base, extra []int) []int {
	if len(extra) == 0 {
		return base
	}
	seen := make(map[int]bool, len(base)+len(extra))
	out := make([]int, 0, len(base)+len(extra))
	for _, n := range base {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	for _, n := range extra {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	if len(out) == 0 {
		return base
	}
	return out
}

func appendUniqueString(list []string, v string) []string {
	for _, s := range list {
		if s == v {
			return list
		}
	}
	return append(list, v)
}

func appendUniqueInt(list []int, v int) []int {
	for _, n := range list {
		if n == v {
			return list
		}
	}
	return append(list, v)
}
