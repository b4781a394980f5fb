package description

import "fmt"

// Device represents a controllable WeMo device, built from its description
// document. All URL fields are absolute. A Device is a value: once parsed it
// is never mutated, so it is safe to share across goroutines.
type Device struct {
	// UDN is the unique device name (e.g., "uuid:Socket-1_0-221448K0101769").
	// It is stable across discovery rounds and is the dedupe key.
	UDN string

	// FriendlyName is the user-assigned device name (e.g., "Desk Lamp")
	FriendlyName string

	// SerialNumber is the device serial number
	SerialNumber string

	// DeviceType is the UPnP device type URN (e.g., "urn:Belkin:device:controllee:1")
	DeviceType string

	// ModelName is the device model (e.g., "Socket", "Insight", "Lightswitch")
	ModelName string

	// Location is the URL the description document was fetched from
	Location string

	// BaseURL is the device HTTP origin (e.g., "http://192.168.1.42:49153")
	BaseURL string

	// ServiceType is the URN of the service the control and event URLs belong to
	ServiceType string

	// ControlURL is the absolute URL for SOAP control actions
	ControlURL string

	// EventURL is the absolute URL for SUBSCRIBE/UNSUBSCRIBE requests
	EventURL string
}

// String returns a human-readable string representation of the device
func (d *Device) String() string {
	return fmt.Sprintf("WeMo Device %q (%s) at %s", d.FriendlyName, d.UDN, d.BaseURL)
}
