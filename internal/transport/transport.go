// Package transport provides the byte-stream connections the acquisition
// pipeline reads from: TCP sockets for network-attached sensors and serial
// ports for the USB bridge. Exactly one Conn feeds one acquisition session.
package transport

import (
	"errors"
	"fmt"
	"io"
	"net"
	"strings"

	"go.bug.st/serial"
)

// Conn is the capability the pipeline needs from a transport: blocking
// reads of the measurement stream, command writes during session setup, and
// a Close that is safe to call concurrently with an in-flight Read and
// unblocks it. Both provided implementations (net.Conn, go.bug.st/serial)
// satisfy the unblock requirement.
type Conn interface {
	io.Reader
	io.Writer
	io.Closer
}

// Dial opens the sensor device. A device string containing ":" is treated
// as a TCP address ("192.168.0.1:2112"); anything else is a serial port
// path ("/dev/ttyACM0") opened with the given options.
func Dial(device string, opts PortOptions) (Conn, error) {
	if device == "" {
		return nil, fmt.Errorf("no device given: want host:port or a serial port path")
	}
	if strings.Contains(device, ":") {
		return DialTCP(device)
	}
	return OpenSerial(device, opts)
}

// IsClosed reports whether err means the connection is gone rather than a
// transient read fault. It recognizes the closed-connection errors of all
// three Conn implementations: net.Conn, serial ports, and TestConn.
func IsClosed(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, net.ErrClosed) || errors.Is(err, ErrConnClosed) {
		return true
	}
	var portErr *serial.PortError
	if errors.As(err, &portErr) {
		return portErr.Code() == serial.PortClosed
	}
	return false
}
