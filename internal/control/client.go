package control

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/wemokit/wemokit/internal/description"
	"github.com/wemokit/wemokit/internal/logging"
)

const (
	// DefaultTimeout is the default HTTP request timeout for control calls
	DefaultTimeout = 10 * time.Second

	// maxResponseSize caps how much of a control response is read
	maxResponseSize = 256 * 1024
)

// Arg is a single named string argument of a control command. Argument
// order is preserved on the wire; some firmware is picky about it.
type Arg struct {
	Name  string
	Value string
}

// Command is one control action plus its arguments. The zero Service means
// the command targets the device's primary service.
type Command struct {
	// Action is the UPnP action name (e.g., "SetBinaryState")
	Action string

	// Service optionally overrides the service type URN the command is
	// scoped to; empty uses the device's ServiceType
	Service string

	// Args are the action arguments, in wire order
	Args []Arg
}

// NewCommand builds a Command from alternating name/value pairs:
//
//	control.NewCommand("SetBinaryState", "BinaryState", "1")
func NewCommand(action string, pairs ...string) Command {
	cmd := Command{Action: action}
	for i := 0; i+1 < len(pairs); i += 2 {
		cmd.Args = append(cmd.Args, Arg{Name: pairs[i], Value: pairs[i+1]})
	}
	return cmd
}

// Client sends control commands to devices. Calls are stateless and
// independent; a single Client is safe for concurrent use.
type Client struct {
	// HTTPClient is the underlying HTTP client
	HTTPClient *http.Client
}

// NewClient creates a control client with default timeouts
func NewClient() *Client {
	return &Client{
		HTTPClient: &http.Client{Timeout: DefaultTimeout},
	}
}

// Send posts a command to the device's control URL and returns the result
// fields from the device's response envelope.
//
// Errors: *Fault when the device answers with a fault envelope,
// *TransportError on connection/timeout failure. No retry is performed;
// callers decide (see Switch for a retrying wrapper).
func (c *Client) Send(ctx context.Context, device *description.Device, cmd Command) (map[string]string, error) {
	service := cmd.Service
	if service == "" {
		service = device.ServiceType
	}

	body := buildEnvelope(service, cmd)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, device.ControlURL, bytes.NewReader(body))
	if err != nil {
		return nil, &TransportError{Op: "build control request", Err: err}
	}
	req.Header.Set("Content-Type", `text/xml; charset="utf-8"`)
	req.Header.Set("SOAPACTION", fmt.Sprintf("%q", service+"#"+cmd.Action))

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		logging.LogControl(device.UDN, cmd.Action, err)
		return nil, &TransportError{Op: "post control request", Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, &TransportError{Op: "read control response", Err: err}
	}

	result, err := decodeEnvelope(respBody, cmd.Action)
	if err != nil {
		logging.LogControl(device.UDN, cmd.Action, err)
		return nil, err
	}

	// An HTTP error status without a parseable fault still counts as a
	// failed call; devices signal faults with 500
	if resp.StatusCode != http.StatusOK {
		return nil, &TransportError{Op: fmt.Sprintf("control request returned status %d", resp.StatusCode)}
	}

	logging.LogControl(device.UDN, cmd.Action, nil)
	return result, nil
}

// buildEnvelope wraps the command in the SOAP envelope WeMo devices expect
func buildEnvelope(service string, cmd Command) []byte {
	var buf bytes.Buffer
	buf.WriteString(`<?xml version="1.0" encoding="utf-8"?>`)
	buf.WriteString(`<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/"`)
	buf.WriteString(` s:encodingStyle="http://schemas.xmlsoap.org/soap/encoding/">`)
	buf.WriteString(`<s:Body>`)
	fmt.Fprintf(&buf, `<u:%s xmlns:u="%s">`, cmd.Action, service)
	for _, arg := range cmd.Args {
		fmt.Fprintf(&buf, "<%s>", arg.Name)
		_ = xml.EscapeText(&buf, []byte(arg.Value))
		fmt.Fprintf(&buf, "</%s>", arg.Name)
	}
	fmt.Fprintf(&buf, `</u:%s>`, cmd.Action)
	buf.WriteString(`</s:Body></s:Envelope>`)
	return buf.Bytes()
}

// faultDetail mirrors the UPnPError block inside a SOAP fault
type faultEnvelope struct {
	XMLName xml.Name `xml:"Envelope"`
	Body    struct {
		Fault *struct {
			FaultString string `xml:"faultstring"`
			Detail      struct {
				UPnPError struct {
					ErrorCode        string `xml:"errorCode"`
					ErrorDescription string `xml:"errorDescription"`
				} `xml:"UPnPError"`
			} `xml:"detail"`
		} `xml:"Fault"`
	} `xml:"Body"`
}

// decodeEnvelope extracts either the result fields of an action response or
// the device fault from a SOAP response body
func decodeEnvelope(body []byte, action string) (map[string]string, error) {
	// Fault check first: a fault envelope decodes cleanly either way
	var fault faultEnvelope
	if err := xml.Unmarshal(body, &fault); err != nil {
		return nil, &TransportError{Op: "decode control response", Err: err}
	}
	if fault.Body.Fault != nil {
		upnp := fault.Body.Fault.Detail.UPnPError
		code, _ := strconv.Atoi(strings.TrimSpace(upnp.ErrorCode))
		desc := upnp.ErrorDescription
		if desc == "" {
			desc = fault.Body.Fault.FaultString
		}
		return nil, &Fault{Action: action, Code: code, Description: desc}
	}

	// Walk the tokens looking for <ActionResponse> and collect its
	// immediate children as name/value pairs
	result := make(map[string]string)
	decoder := xml.NewDecoder(bytes.NewReader(body))
	inResponse := false
	var field string
	var value strings.Builder

	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &TransportError{Op: "decode control response", Err: err}
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == action+"Response" {
				inResponse = true
			} else if inResponse && field == "" {
				field = t.Name.Local
				value.Reset()
			}
		case xml.CharData:
			if field != "" {
				value.Write(t)
			}
		case xml.EndElement:
			if t.Name.Local == action+"Response" {
				inResponse = false
			} else if field != "" && t.Name.Local == field {
				result[field] = value.String()
				field = ""
			}
		}
	}

	return result, nil
}
