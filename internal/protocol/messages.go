// ABOUTME: Gateway link protocol message type definitions
// ABOUTME: Defines structs for the join handshake exchanged over the websocket
package protocol

// Message is the top-level wrapper for all link messages
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// JoinRequest is sent by a node to associate with the gateway
type JoinRequest struct {
	NodeID    string      `json:"node_id"`
	Name      string      `json:"name"`
	Network   string      `json:"network"`
	Secret    string      `json:"secret"`
	BootCount int         `json:"boot_count"`
	Device    *DeviceInfo `json:"device_info,omitempty"`
}

// DeviceInfo contains node identification
type DeviceInfo struct {
	ProductName     string `json:"product_name"`
	Manufacturer    string `json:"manufacturer"`
	SoftwareVersion string `json:"software_version"`
}

// JoinAccept is the gateway's response to a successful join
type JoinAccept struct {
	Address     string `json:"address"`
	GatewayName string `json:"gateway_name,omitempty"`
}

// JoinReject is the gateway's response to a failed join
type JoinReject struct {
	Reason string `json:"reason"`
}
