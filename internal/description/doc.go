// Package description parses WeMo device description documents.
//
// Every WeMo device serves an XML description document (typically at
// /setup.xml) describing the device and its services. This package turns
// those documents into Device values carrying the absolute control and
// event-subscription URLs the rest of the toolkit operates on.
//
// # Parsing
//
//	device, err := description.Parse(data, "http://192.168.1.42:49153/setup.xml")
//	if err != nil {
//	    var malformed *description.MalformedDescriptionError
//	    if errors.As(err, &malformed) {
//	        // document was unusable; skip this device
//	    }
//	}
//
// Parsing is schema-tolerant: unknown elements are ignored, so newer
// firmware that adds fields still parses. Relative URLs are resolved
// against the document's URLBase element when present, otherwise against
// the location the document was fetched from.
//
// # Required Fields
//
// A document must carry a UDN and at least one service exposing both a
// control URL and an event subscription URL; anything else fails with
// MalformedDescriptionError. The Belkin basicevent service is preferred
// when multiple services qualify.
package description
