package transferwebrtc

import (
	"github.com/pion/ice/v4"
	"github.com/pion/webrtc/v4"
)

// DefaultPeerConnectionConfig returns a WebRTC configuration with the given ICE
// servers. All TURN URLs share one set of long-term credentials.
func DefaultPeerConnectionConfig(stunServers, turnServers []string, turnUsername, turnCredential string) webrtc.Configuration {
	var iceServers []webrtc.ICEServer

	if len(stunServers) > 0 {
		iceServers = append(iceServers, webrtc.ICEServer{
			URLs: stunServers,
		})
	}

	if len(turnServers) > 0 {
		iceServers = append(iceServers, webrtc.ICEServer{
			URLs:           turnServers,
			Username:       turnUsername,
			Credential:     turnCredential,
			CredentialType: webrtc.ICECredentialTypePassword,
		})
	}

	return webrtc.Configuration{
		ICEServers: iceServers,
	}
}

// DefaultSettingEngine returns the SettingEngine shared by both peers. Loopback
// candidates are included so two peers on one host can connect, and mDNS host
// candidates are disabled because CLI peers resolve each other by IP.
func DefaultSettingEngine() webrtc.SettingEngine {
	se := webrtc.SettingEngine{}
	se.SetIncludeLoopbackCandidate(true)
	se.SetICEMulticastDNSMode(ice.MulticastDNSModeDisabled)
	return se
}

// NewAPI builds a webrtc API with DefaultSettingEngine.
func NewAPI() *webrtc.API {
	return webrtc.NewAPI(webrtc.WithSettingEngine(DefaultSettingEngine()))
}
