package transport

import (
	"fmt"
	"net"
	"time"
)

// DialTimeout bounds how long a TCP connection attempt may take. The sensor
// answers immediately on its LAN; a hung dial means a wrong address.
const DialTimeout = 5 * time.Second

// DialTCP connects to a network-attached sensor at address ("host:port").
// The returned net.Conn blocks on Read with no deadline; Close from another
// goroutine unblocks a pending Read, which is how acquisition shutdown
// interrupts the stream.
func DialTCP(address string) (Conn, error) {
	conn, err := net.DialTimeout("tcp", address, DialTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to sensor at %s: %w", address, err)
	}
	return conn, nil
}
