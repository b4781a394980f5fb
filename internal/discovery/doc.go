// Package discovery locates WeMo devices on the local network.
//
// Discovery is SSDP-based: a scan multicasts one M-SEARCH request for the
// Belkin basicevent service and collects unicast replies for the scan
// timeout. Each distinct reply's description document is fetched over
// plain HTTP and parsed into a Device; devices that reply but serve a
// broken or unreachable description are logged and skipped. Replies are
// deduplicated by UDN, with the last reply winning, since devices answer
// a search several times.
//
// # Usage
//
//	scanner := discovery.NewScanner()
//	devices, err := scanner.Scan(ctx)
//	if err != nil {
//	    log.Fatal(err) // multicast socket failure
//	}
//	for _, d := range devices {
//	    fmt.Println(d.FriendlyName, d.BaseURL)
//	}
//
// An empty result means nothing answered in time - that is not an error.
//
// # mDNS
//
// Setting Scanner.MDNS additionally browses for _wemo._tcp advertisements
// (newer firmware) and merges the results into the same UDN-keyed set.
//
// # Network Requirements
//
// - Multicast must be allowed on the interface (UDP port 1900)
// - Devices must be on the same local network segment
//
// # Thread Safety
//
// Scans open independent sockets; multiple scans can run concurrently
// without interference.
package discovery
