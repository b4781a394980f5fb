package discovery

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/koron/go-ssdp"
	"go.uber.org/zap"

	"github.com/wemokit/wemokit/internal/description"
	"github.com/wemokit/wemokit/internal/logging"
)

const (
	// SearchTarget is the SSDP search target every WeMo family device
	// answers to
	SearchTarget = "urn:Belkin:service:basicevent:1"

	// DefaultScanTimeout is the default timeout for device discovery
	DefaultScanTimeout = 5 * time.Second

	// fetchTimeout bounds each description document fetch during a scan
	fetchTimeout = 5 * time.Second
)

// Scanner discovers WeMo devices on the local network. Each Scan opens its
// own sockets, so concurrent scans do not interfere.
type Scanner struct {
	// Timeout is the maximum time to wait for search replies
	Timeout time.Duration

	// MDNS additionally browses for devices over mDNS. Newer firmware
	// advertises itself there; SSDP remains the primary mechanism.
	MDNS bool

	// HTTPClient fetches description documents; nil uses a default
	HTTPClient *http.Client
}

// NewScanner creates a scanner with default settings
func NewScanner() *Scanner {
	return &Scanner{
		Timeout: DefaultScanTimeout,
	}
}

// Scan sends a multicast search request and collects replying devices for
// up to the scanner's timeout. Devices whose description cannot be fetched
// or parsed are logged and skipped; a multicast socket failure surfaces as
// an error. No replies is an empty result, not an error.
func (s *Scanner) Scan(ctx context.Context) ([]*description.Device, error) {
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = DefaultScanTimeout
	}

	var (
		wg            sync.WaitGroup
		mdnsLocations []string
	)
	if s.MDNS {
		mdnsCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		wg.Add(1)
		go func() {
			defer wg.Done()
			mdnsLocations = browseMDNS(mdnsCtx)
		}()
	}

	waitSec := int(timeout.Seconds())
	if waitSec < 1 {
		waitSec = 1
	}
	services, err := ssdp.Search(SearchTarget, waitSec, "")
	wg.Wait()
	if err != nil {
		return nil, err
	}

	locations := make([]string, 0, len(services)+len(mdnsLocations))
	seen := make(map[string]bool)
	for _, svc := range services {
		if svc.Location == "" || seen[svc.Location] {
			continue
		}
		seen[svc.Location] = true
		locations = append(locations, svc.Location)
	}
	for _, loc := range mdnsLocations {
		if !seen[loc] {
			seen[loc] = true
			locations = append(locations, loc)
		}
	}

	return s.fetchAll(ctx, locations), nil
}

// fetchAll retrieves and parses the description document behind each
// location, deduplicating by UDN (last reply wins for metadata)
func (s *Scanner) fetchAll(ctx context.Context, locations []string) []*description.Device {
	client := s.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: fetchTimeout}
	}

	byUDN := make(map[string]*description.Device)
	order := make([]string, 0, len(locations))

	for _, location := range locations {
		device, err := description.Fetch(ctx, client, location)
		if err != nil {
			// One unreachable or broken device must not sink the scan
			logging.Warn("Skipping device with unusable description",
				zap.String("location", location),
				zap.Error(err),
			)
			continue
		}

		if _, already := byUDN[device.UDN]; !already {
			order = append(order, device.UDN)
		}
		byUDN[device.UDN] = device
		logging.LogDiscovery("ssdp", location, device.UDN)
	}

	devices := make([]*description.Device, 0, len(order))
	for _, udn := range order {
		devices = append(devices, byUDN[udn])
	}
	return devices
}

// ScanForDevices is a convenience function to scan with a custom timeout
func ScanForDevices(ctx context.Context, timeout time.Duration) ([]*description.Device, error) {
	scanner := NewScanner()
	scanner.Timeout = timeout
	return scanner.Scan(ctx)
}
