// Package tui implements the interactive terminal control panel.
//
// The panel scans the local network on startup, lists every discovered
// device with its current on/off state, and lets the user flip switches
// with the keyboard. Device states refresh periodically, so changes made
// from other controllers (or the physical button) show up without a
// rescan.
//
// All network calls run as asynchronous commands so the interface stays
// responsive while a device is slow to answer.
package tui
