// Package nethernet implements the WebRTC-based alternate transport:
// signal exchange, LAN discovery, Xbox Live signaling, and data-channel
// reassembly.
package nethernet

import (
	"errors"
	"strconv"
	"strings"
)

// Signal type strings, matching the upstream Bedrock implementation
// exactly (these appear verbatim on the wire).
const (
	SignalTypeOffer     = "CONNECTREQUEST"
	SignalTypeAnswer    = "CONNECTRESPONSE"
	SignalTypeCandidate = "CANDIDATEADD"
	SignalTypeError     = "CONNECTERROR"
)

// SignalErrorCode enumerates the error codes carried in a CONNECTERROR
// signal's data field.
type SignalErrorCode int32

const (
	SignalErrorNone SignalErrorCode = iota
	SignalErrorDestinationNotLoggedIn
	SignalErrorNegotiationTimeout
	SignalErrorWrongTransportVersion
	SignalErrorFailedToCreatePeerConnection
	SignalErrorICE
	SignalErrorConnectRequest
	SignalErrorConnectResponse
	SignalErrorCandidateAdd
	SignalErrorInactivityTimeout
	SignalErrorFailedToCreateOffer
	SignalErrorFailedToCreateAnswer
	SignalErrorFailedToSetLocalDescription
	SignalErrorFailedToSetRemoteDescription
	SignalErrorNegotiationTimeoutWaitingForResponse
	SignalErrorNegotiationTimeoutWaitingForAccept
	SignalErrorIncomingConnectionIgnored
	SignalErrorSignalingParsingFailure
	SignalErrorSignalingUnknownError
	SignalErrorSignalingUnicastMessageDeliveryFailed
	SignalErrorSignalingBroadcastDeliveryFailed
	SignalErrorSignalingMessageDeliveryFailed
	SignalErrorSignalingTurnAuthFailed
	SignalErrorSignalingFallbackToBestEffortDelivery
	SignalErrorNoSignalingChannel
	SignalErrorNotLoggedIn
	SignalErrorSignalingFailedToSend
)

// ConnectionType identifies which transport/signaling method a NetherNet
// peer is reachable through; these values appear in discovery packets and
// session properties.
type ConnectionType byte

const (
	ConnectionTypeRakNetV1 ConnectionType = 0
	ConnectionTypeRakNetV2 ConnectionType = 1
	ConnectionTypeWebRTC   ConnectionType = 3
	ConnectionTypeLAN      ConnectionType = 4
)

var ErrInvalidSignalFormat = errors.New("nethernet: invalid signal format")

// Signal is one message exchanged to negotiate a WebRTC connection. The
// wire format is a single line: "TYPE CONNECTION_ID DATA".
type Signal struct {
	Type         string
	ConnectionID uint64
	Data         string
	// NetworkID addresses which remote network this signal is for or
	// from; it is not part of the wire string, only the envelope the
	// signaling channel carries it in.
	NetworkID string
}

// String formats the signal in its wire form.
func (s Signal) String() string {
	return s.Type + " " + strconv.FormatUint(s.ConnectionID, 10) + " " + s.Data
}

// ParseSignal parses the "TYPE CONNECTION_ID DATA" wire format, setting
// networkID on the result since the wire string carries no such field.
func ParseSignal(raw string, networkID string) (Signal, error) {
	parts := strings.SplitN(raw, " ", 3)
	if len(parts) != 3 {
		return Signal{}, ErrInvalidSignalFormat
	}
	id, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return Signal{}, ErrInvalidSignalFormat
	}
	return Signal{Type: parts[0], ConnectionID: id, Data: parts[2], NetworkID: networkID}, nil
}

// NewErrorSignal builds a CONNECTERROR signal carrying code.
func NewErrorSignal(connectionID uint64, networkID string, code SignalErrorCode) Signal {
	return Signal{
		Type:         SignalTypeError,
		ConnectionID: connectionID,
		Data:         strconv.Itoa(int(code)),
		NetworkID:    networkID,
	}
}

// Credentials is the TURN authentication payload a signaling channel can
// supply, matching the upstream Bedrock JSON shape.
type Credentials struct {
	ExpirationSeconds uint32
	IceServers        []IceServer
}

// IceServer is a single ICE server entry within Credentials.
type IceServer struct {
	Username string
	Password string
	URLs     []string
}
