package transport

import (
	"github.com/pion/webrtc/v4"
)

// channelLabel names the data channel for both sides.
const channelLabel = "file-transfer"

// configuration builds the PeerConnection configuration. STUN only: there is
// no TURN fallback, so peers behind symmetric NATs on both ends will not
// connect.
func configuration(iceServers []string) webrtc.Configuration {
	config := webrtc.Configuration{
		ICETransportPolicy: webrtc.ICETransportPolicyAll,
	}
	if len(iceServers) > 0 {
		config.ICEServers = []webrtc.ICEServer{{URLs: iceServers}}
	}
	return config
}

// dataChannelInit describes a pre-negotiated, ordered, reliable channel.
// Negotiated mode (ID 0) lets both sides create the channel independently
// without relying on OnDataChannel. Ordering is required by the file
// protocol: chunks must arrive between their start and end.
func dataChannelInit() *webrtc.DataChannelInit {
	ordered := true
	negotiated := true
	id := uint16(0)

	return &webrtc.DataChannelInit{
		Ordered:    &ordered,
		Negotiated: &negotiated,
		ID:         &id,
	}
}

func newPeerConnection(iceServers []string) (*webrtc.PeerConnection, *webrtc.DataChannel, error) {
	pc, err := webrtc.NewPeerConnection(configuration(iceServers))
	if err != nil {
		return nil, nil, err
	}
	dc, err := pc.CreateDataChannel(channelLabel, dataChannelInit())
	if err != nil {
		pc.Close()
		return nil, nil, err
	}
	return pc, dc, nil
}
