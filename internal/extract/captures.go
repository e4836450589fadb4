package extract

import (
	"strconv"
	"strings"

	"github.com/loganix/logwarden/internal/model"
)

// NetworkFromCaptures builds a NetworkInfo from a format's named captures
// (src_ip, dst_ip, src_port, dst_port, proto/protocol), applying the same
// octet/port validation and numeric-protocol mapping as the free-text
// scanner in network.go. This is the "structured captures" half of the
// union with the free-text scan.
func NetworkFromCaptures(captures map[string]string) model.NetworkInfo {
	var info model.NetworkInfo

	if ip, ok := captures["src_ip"]; ok && validIPv4(ip) {
		info.SrcIP = ip
		info.IPAddresses = appendUniqueString(info.IPAddresses, ip)
	}
	if ip, ok := captures["dst_ip"]; ok && validIPv4(ip) {
		info.DstIP = ip
		info.IPAddresses = appendUniqueString(info.IPAddresses, ip)
	}
	if p, ok := captures["src_port"]; ok {
		if n, err := strconv.Atoi(p); err == nil && n >= 1 && n <= 65535 {
			info.SrcPort = n
			info.Ports = appendUniqueInt(info.Ports, n)
		}
	}
	if p, ok := captures["dst_port"]; ok {
		if n, err := strconv.Atoi(p); err == nil && n >= 1 && n <= 65535 {
			info.DstPort = n
			info.Ports = appendUniqueInt(info.Ports, n)
		}
	}

	proto := captures["proto"]
	if proto == "" {
		proto = captures["protocol"]
	}
	if proto != "" {
		if name, ok := numericProtocolTable[proto]; ok {
			proto = name
		}
		info.Protocols = appendUniqueString(info.Protocols, strings.ToUpper(proto))
	}

	return info
}
