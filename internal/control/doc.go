// Package control sends SOAP control commands to WeMo devices.
//
// WeMo devices expose a UPnP control endpoint that accepts SOAP-wrapped
// actions over HTTP POST. This package builds the request envelope, issues
// the call, and decodes either the result fields or the device fault.
//
// # Sending Commands
//
//	client := control.NewClient()
//	result, err := client.Send(ctx, device,
//	    control.NewCommand("SetBinaryState", "BinaryState", "1"))
//
// Calls are stateless and never retried by Send; callers own retry policy.
//
// # Errors
//
// Two failure shapes are distinguished:
//   - *control.TransportError: the request never got a usable answer
//     (connection refused, timeout, unreadable body)
//   - *control.Fault: the device answered with a fault envelope; carries
//     the device's numeric code and description (e.g., 401 Invalid Action)
//
// # Switch
//
// Switch wraps the binary-state actions every WeMo switch family member
// supports (GetBinaryState/SetBinaryState) with typed accessors and
// optional exponential-backoff retry:
//
//	sw := control.NewSwitch(device)
//	if err := sw.OnWithRetry(ctx); err != nil { ... }
//
// Faults are never retried; only transport failures are.
package control
