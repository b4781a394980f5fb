package config

import "time"

// Registry represents the entire user configuration file.
// This stores user-defined metadata for devices and application preferences.
type Registry struct {
	Version     int                `yaml:"version"`
	Devices     map[string]*Device `yaml:"devices,omitempty"` // Keyed by device UDN
	Preferences *Preferences       `yaml:"preferences,omitempty"`
}

// Device represents user-defined metadata for a single WeMo device.
// This is keyed by the device's UDN in the Registry.
type Device struct {
	Nickname     string    `yaml:"nickname,omitempty"`      // User-friendly name
	FriendlyName string    `yaml:"friendly_name,omitempty"` // Name reported by the device itself
	LastIP       string    `yaml:"last_ip,omitempty"`       // Last known IP address
	LastPort     int       `yaml:"last_port,omitempty"`     // Last known HTTP port
	LastSeen     time.Time `yaml:"last_seen,omitempty"`     // Last discovery time
	Serial       string    `yaml:"serial,omitempty"`        // Serial number from the description document
	Model        string    `yaml:"model,omitempty"`         // Model name (Socket, Insight, ...)
}

// Preferences represents application-wide user preferences.
type Preferences struct {
	ScanTimeout   int  `yaml:"scan_timeout"`   // Discovery timeout in seconds
	MDNS          bool `yaml:"mdns"`           // Also browse mDNS during scans
	EventDuration int  `yaml:"event_duration"` // Requested subscription lease in seconds
	CallbackPort  int  `yaml:"callback_port"`  // Notification listener port (0 = ephemeral)
}

// DefaultPreferences returns the preferences applied when the config file
// has none.
func DefaultPreferences() *Preferences {
	return &Preferences{
		ScanTimeout:   5,
		MDNS:          false,
		EventDuration: 300,
		CallbackPort:  0,
	}
}

// NewRegistry creates a new Registry with default values.
func NewRegistry() *Registry {
	return &Registry{
		Version:     1,
		Devices:     make(map[string]*Device),
		Preferences: DefaultPreferences(),
	}
}

// GetDevice retrieves device metadata by UDN.
// Returns nil if the device doesn't exist in the registry.
func (r *Registry) GetDevice(udn string) *Device {
	return r.Devices[udn]
}

// EnsureDevice ensures a device entry exists in the registry.
// If the device doesn't exist, creates a new entry with default values.
// Returns the device entry (existing or newly created).
func (r *Registry) EnsureDevice(udn string) *Device {
	if r.Devices == nil {
		r.Devices = make(map[string]*Device)
	}

	if device, exists := r.Devices[udn]; exists {
		return device
	}

	device := &Device{}
	r.Devices[udn] = device
	return device
}

// UpdateDeviceLastSeen records the last discovery time and address for a
// device, along with the metadata the device reported.
func (r *Registry) UpdateDeviceLastSeen(udn, ip string, port int, friendlyName, serial, model string) {
	device := r.EnsureDevice(udn)
	device.LastSeen = time.Now()
	device.LastIP = ip
	device.LastPort = port
	if friendlyName != "" {
		device.FriendlyName = friendlyName
	}
	if serial != "" {
		device.Serial = serial
	}
	if model != "" {
		device.Model = model
	}
}

// SetDeviceNickname sets a user-friendly nickname for a device.
func (r *Registry) SetDeviceNickname(udn, nickname string) {
	device := r.EnsureDevice(udn)
	device.Nickname = nickname
}

// DisplayName returns the nickname if set, otherwise the device-reported
// friendly name, otherwise the UDN.
func (r *Registry) DisplayName(udn string) string {
	device := r.GetDevice(udn)
	if device == nil {
		return udn
	}
	if device.Nickname != "" {
		return device.Nickname
	}
	if device.FriendlyName != "" {
		return device.FriendlyName
	}
	return udn
}
