package description

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// BasicEventService is the Belkin service that carries binary state
	// control and eventing on every WeMo device family member
	BasicEventService = "urn:Belkin:service:basicevent:1"

	// DefaultFetchTimeout bounds the description document GET
	DefaultFetchTimeout = 5 * time.Second

	// maxDescriptionSize caps how much of a description document is read.
	// Real documents are a few KB; anything larger is rejected.
	maxDescriptionSize = 256 * 1024
)

// MalformedDescriptionError indicates a description document that could not
// be turned into a Device: not well-formed XML, or missing required fields
// (UDN, control URL, event URL).
type MalformedDescriptionError struct {
	Location string
	Reason   string
	Err      error
}

// Error implements the error interface
func (e *MalformedDescriptionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed device description (%s): %s: %v", e.Location, e.Reason, e.Err)
	}
	return fmt.Sprintf("malformed device description (%s): %s", e.Location, e.Reason)
}

// Unwrap returns the underlying error for error chain inspection
func (e *MalformedDescriptionError) Unwrap() error {
	return e.Err
}

// descriptionDoc mirrors the subset of the WeMo setup.xml document we need.
// Unknown elements are ignored by encoding/xml, which gives us forward
// compatibility with firmware that adds fields.
type descriptionDoc struct {
	XMLName xml.Name `xml:"root"`
	URLBase string   `xml:"URLBase"`
	Device  struct {
		DeviceType   string `xml:"deviceType"`
		FriendlyName string `xml:"friendlyName"`
		ModelName    string `xml:"modelName"`
		SerialNumber string `xml:"serialNumber"`
		UDN          string `xml:"UDN"`
		Services     []struct {
			ServiceType string `xml:"serviceType"`
			ControlURL  string `xml:"controlURL"`
			EventSubURL string `xml:"eventSubURL"`
		} `xml:"serviceList>service"`
	} `xml:"device"`
}

// Parse builds a Device from the bytes of a description document.
// location is the URL the document was fetched from; relative control and
// event URLs in the document are resolved against it (or against the
// document's URLBase element when present).
func Parse(data []byte, location string) (*Device, error) {
	var doc descriptionDoc
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, &MalformedDescriptionError{Location: location, Reason: "invalid XML", Err: err}
	}

	if strings.TrimSpace(doc.Device.UDN) == "" {
		return nil, &MalformedDescriptionError{Location: location, Reason: "missing UDN"}
	}

	base, err := url.Parse(location)
	if err != nil || !base.IsAbs() {
		return nil, &MalformedDescriptionError{Location: location, Reason: "document location is not an absolute URL", Err: err}
	}
	// Some firmware publishes a URLBase; it takes precedence over the
	// document location when resolving relative URLs
	if doc.URLBase != "" {
		if u, err := url.Parse(doc.URLBase); err == nil && u.IsAbs() {
			base = u
		}
	}

	// Prefer the basicevent service; fall back to the first service that
	// exposes both a control and an event URL
	svcType, controlURL, eventURL := "", "", ""
	for _, svc := range doc.Device.Services {
		if svc.ControlURL == "" || svc.EventSubURL == "" {
			continue
		}
		if svc.ServiceType == BasicEventService {
			svcType, controlURL, eventURL = svc.ServiceType, svc.ControlURL, svc.EventSubURL
			break
		}
		if svcType == "" {
			svcType, controlURL, eventURL = svc.ServiceType, svc.ControlURL, svc.EventSubURL
		}
	}

	if controlURL == "" {
		return nil, &MalformedDescriptionError{Location: location, Reason: "no service with control URL"}
	}
	if eventURL == "" {
		return nil, &MalformedDescriptionError{Location: location, Reason: "no service with event subscription URL"}
	}

	control, err := resolveURL(base, controlURL)
	if err != nil {
		return nil, &MalformedDescriptionError{Location: location, Reason: "invalid control URL", Err: err}
	}
	event, err := resolveURL(base, eventURL)
	if err != nil {
		return nil, &MalformedDescriptionError{Location: location, Reason: "invalid event URL", Err: err}
	}

	return &Device{
		UDN:          strings.TrimSpace(doc.Device.UDN),
		FriendlyName: doc.Device.FriendlyName,
		SerialNumber: doc.Device.SerialNumber,
		DeviceType:   doc.Device.DeviceType,
		ModelName:    doc.Device.ModelName,
		Location:     location,
		BaseURL:      base.Scheme + "://" + base.Host,
		ServiceType:  svcType,
		ControlURL:   control,
		EventURL:     event,
	}, nil
}

// resolveURL resolves ref against base, requiring an absolute http(s) result
func resolveURL(base *url.URL, ref string) (string, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	resolved := base.ResolveReference(u)
	if !resolved.IsAbs() || resolved.Host == "" {
		return "", fmt.Errorf("resolved URL %q is not absolute", resolved)
	}
	return resolved.String(), nil
}

// Fetch retrieves a description document over plain HTTP GET and parses it.
// The context bounds the whole fetch; pass a context with deadline for
// discovery-style usage.
func Fetch(ctx context.Context, client *http.Client, location string) (*Device, error) {
	if client == nil {
		client = &http.Client{Timeout: DefaultFetchTimeout}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create description request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("description fetch failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("description fetch returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDescriptionSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read description body: %w", err)
	}

	return Parse(data, location)
}
