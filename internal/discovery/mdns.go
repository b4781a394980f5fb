package discovery

import (
	"context"
	"fmt"

	"github.com/grandcat/zeroconf"
	"go.uber.org/zap"

	"github.com/wemokit/wemokit/internal/logging"
)

const (
	// mdnsServiceType is the service newer WeMo firmware advertises
	mdnsServiceType = "_wemo._tcp"

	// mdnsDomain is the mDNS domain (typically "local.")
	mdnsDomain = "local."
)

// browseMDNS collects description-document locations from mDNS
// advertisements until the context expires. Failures are logged and yield
// an empty result; mDNS is supplemental, SSDP is authoritative.
func browseMDNS(ctx context.Context) []string {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		logging.Warn("mDNS resolver unavailable", zap.Error(err))
		return nil
	}

	entries := make(chan *zeroconf.ServiceEntry)
	var locations []string

	done := make(chan struct{})
	go func() {
		defer close(done)
		for entry := range entries {
			loc, ok := entryLocation(entry)
			if !ok {
				continue
			}
			locations = append(locations, loc)
			logging.LogDiscovery("mdns", loc, entry.Instance)
		}
	}()

	if err := resolver.Browse(ctx, mdnsServiceType, mdnsDomain, entries); err != nil {
		logging.Warn("mDNS browse failed", zap.Error(err))
		return nil
	}

	<-ctx.Done()
	<-done
	return locations
}

// entryLocation builds the setup.xml URL for an advertisement. IPv4 is
// preferred; entries without a usable address are skipped.
func entryLocation(entry *zeroconf.ServiceEntry) (string, bool) {
	var ip string
	for _, addr := range entry.AddrIPv4 {
		ip = addr.String()
		break
	}
	if ip == "" && len(entry.AddrIPv6) > 0 {
		ip = fmt.Sprintf("[%s]", entry.AddrIPv6[0].String())
	}
	if ip == "" || entry.Port == 0 {
		return "", false
	}
	return fmt.Sprintf("http://%s:%d/setup.xml", ip, entry.Port), true
}
