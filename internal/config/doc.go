// Package config provides user configuration management for the Wemokit project.
//
// This package manages a YAML-based configuration file that stores user-defined
// metadata for WeMo devices, including nicknames and last-seen addresses, along
// with application preferences such as scan timeout and subscription lease
// duration. The configuration follows OS-specific conventions for storage
// location.
//
// # Configuration File Location
//
// The configuration file is stored in platform-appropriate locations:
//   - Linux: $XDG_CONFIG_HOME/wemokit/config.yaml or $HOME/.config/wemokit/config.yaml
//   - macOS: $HOME/.config/wemokit/config.yaml
//   - Windows: %LOCALAPPDATA%\wemokit\config.yaml
//
// # Usage Example
//
//	// Load the global registry
//	registry, err := config.LoadRegistry()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Record a discovered device and give it a nickname
//	registry.UpdateDeviceLastSeen("uuid:Socket-1_0-221342", "192.168.1.42", 49153,
//	    "Wemo Mini", "221342K01", "Socket")
//	registry.SetDeviceNickname("uuid:Socket-1_0-221342", "Desk Lamp")
//
//	// Save changes atomically
//	if err := registry.Save(); err != nil {
//	    log.Fatal(err)
//	}
//
// # Thread Safety
//
// The global registry uses sync.Once for safe initialization across goroutines.
// File operations are protected by a mutex to ensure atomic writes.
package config
