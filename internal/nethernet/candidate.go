package nethernet

import (
	"fmt"
	"strconv"
	"strings"
)

// IceCandidateInfo is the parsed form of a C++ WebRTC style candidate
// string, the format upstream Bedrock clients and go-nethernet both use.
type IceCandidateInfo struct {
	Foundation     string
	Protocol       string
	Priority       uint32
	Address        string
	Port           uint16
	CandidateType  string
	RelatedAddress string
	RelatedPort    uint16
	HasRelated     bool
	Ufrag          string
}

// FormatIceCandidate renders candidate info in the C++ WebRTC text format:
//
//	candidate:<foundation> 1 <proto> <priority> <addr> <port> typ <type>
//	  [raddr <raddr> rport <rport>] generation 0 ufrag <ufrag> network-id <id> network-cost 0
func FormatIceCandidate(networkID uint32, c IceCandidateInfo) string {
	var b strings.Builder
	fmt.Fprintf(&b, "candidate:%s 1 %s %d %s %d typ %s",
		c.Foundation, c.Protocol, c.Priority, c.Address, c.Port, c.CandidateType)
	if c.HasRelated {
		fmt.Fprintf(&b, " raddr %s rport %d", c.RelatedAddress, c.RelatedPort)
	}
	fmt.Fprintf(&b, " generation 0 ufrag %s network-id %d network-cost 0", c.Ufrag, networkID)
	return b.String()
}

// ParseIceCandidate reverses FormatIceCandidate.
func ParseIceCandidate(s string) (IceCandidateInfo, error) {
	s = strings.TrimPrefix(s, "candidate:")
	parts := strings.Fields(s)
	if len(parts) < 8 {
		return IceCandidateInfo{}, ErrInvalidSignalFormat
	}

	priority, err := strconv.ParseUint(parts[3], 10, 32)
	if err != nil {
		return IceCandidateInfo{}, ErrInvalidSignalFormat
	}
	port, err := strconv.ParseUint(parts[5], 10, 16)
	if err != nil {
		return IceCandidateInfo{}, ErrInvalidSignalFormat
	}

	info := IceCandidateInfo{
		Foundation:    parts[0],
		Protocol:      parts[2],
		Priority:      uint32(priority),
		Address:       parts[4],
		Port:          uint16(port),
		CandidateType: parts[7],
	}

	for i := 8; i < len(parts); i++ {
		switch parts[i] {
		case "raddr":
			if i+1 < len(parts) {
				info.RelatedAddress = parts[i+1]
				info.HasRelated = true
				i++
			}
		case "rport":
			if i+1 < len(parts) {
				if p, err := strconv.ParseUint(parts[i+1], 10, 16); err == nil {
					info.RelatedPort = uint16(p)
				}
				i++
			}
		case "ufrag":
			if i+1 < len(parts) {
				info.Ufrag = parts[i+1]
				i++
			}
		}
	}

	return info, nil
}
