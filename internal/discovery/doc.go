// Package discovery advertises rawws servers over mDNS and finds them again.
//
// A server started with advertising enabled registers the "_rawws._tcp"
// service with TXT records describing how to connect:
//
//	path=/        request path for the upgrade
//	tls=1         present when the server expects wss://
//	version=...   build version of the server
//
// # Usage Example
//
//	adv, err := discovery.Advertise("", cfg.Port, cfg.TLS.Enabled(), version.Version)
//	if err != nil {
//	    return err
//	}
//	defer adv.Shutdown()
//
//	// Elsewhere on the LAN
//	scanner := discovery.NewScanner()
//	services, err := scanner.Scan(ctx)
//	for _, s := range services {
//	    fmt.Println(s.Instance, s.URL())
//	}
//
// # Network Requirements
//
// - Requires multicast support on the network interface
// - Servers must be on the same local network segment
// - Firewall must allow mDNS (UDP port 5353)
package discovery
