package eventing

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// Event is one state-change notification pushed by a device. It is handed
// to the subscription's handler and not retained by the listener.
type Event struct {
	// SID is the subscription id the notification arrived on
	SID string

	// Properties maps state variable names to their new values
	// (e.g., {"BinaryState": "1"})
	Properties map[string]string
}

// Handler receives events for one subscription. Implementations must be
// safe for concurrent invocation; notifications for different
// subscriptions are delivered concurrently.
type Handler interface {
	HandleEvent(Event)
}

// HandlerFunc adapts a plain function to the Handler interface
type HandlerFunc func(Event)

// HandleEvent implements Handler
func (f HandlerFunc) HandleEvent(e Event) {
	f(e)
}

// LostHandler is optionally implemented by handlers that want to know when
// their subscription could not be kept alive and has been dropped.
type LostHandler interface {
	SubscriptionLost(sid string, err error)
}

// MalformedEventError indicates a NOTIFY body that could not be parsed as
// a UPnP property set.
type MalformedEventError struct {
	Reason string
	Err    error
}

// Error implements the error interface
func (e *MalformedEventError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed event: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("malformed event: %s", e.Reason)
}

// Unwrap returns the underlying error for error chain inspection
func (e *MalformedEventError) Unwrap() error {
	return e.Err
}

// ParseEventBody parses the XML property set carried by a NOTIFY request:
//
//	<e:propertyset xmlns:e="urn:schemas-upnp-org:event-1-0">
//	  <e:property><BinaryState>1</BinaryState></e:property>
//	</e:propertyset>
//
// Each property's first child element becomes one map entry. Unknown
// variables are kept as-is; values are raw strings.
func ParseEventBody(body []byte) (map[string]string, error) {
	decoder := xml.NewDecoder(bytes.NewReader(body))

	props := make(map[string]string)
	depth := 0
	sawRoot := false
	inProperty := false
	var field string
	var value strings.Builder

	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &MalformedEventError{Reason: "invalid XML", Err: err}
		}

		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			switch {
			case depth == 1:
				if t.Name.Local != "propertyset" {
					return nil, &MalformedEventError{Reason: fmt.Sprintf("unexpected root element %q", t.Name.Local)}
				}
				sawRoot = true
			case depth == 2 && t.Name.Local == "property":
				inProperty = true
			case depth == 3 && inProperty && field == "":
				field = t.Name.Local
				value.Reset()
			}
		case xml.CharData:
			if field != "" {
				value.Write(t)
			}
		case xml.EndElement:
			if field != "" && t.Name.Local == field && depth == 3 {
				props[field] = value.String()
				field = ""
			}
			if depth == 2 {
				inProperty = false
			}
			depth--
		}
	}

	if !sawRoot {
		return nil, &MalformedEventError{Reason: "empty body"}
	}
	return props, nil
}
