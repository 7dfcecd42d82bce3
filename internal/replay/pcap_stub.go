//go:build !pcap
// +build !pcap

package replay

import "fmt"

// OpenPcap is a stub implementation when PCAP support is disabled.
// Build with -tags=pcap to enable packet capture replay.
func OpenPcap(path string, port int, opts Options) (*Conn, error) {
	return nil, fmt.Errorf("PCAP support not enabled: rebuild with -tags=pcap to replay packet captures")
}
