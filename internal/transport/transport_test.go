package transport

import (
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"go.bug.st/serial"
)

func TestDialEmptyDevice(t *testing.T) {
	if _, err := Dial("", PortOptions{}); err == nil {
		t.Fatal("expected error for empty device")
	}
}

func TestDialTCPRefused(t *testing.T) {
	// Grab a port that nothing listens on by opening and closing a listener.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to open listener: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	if _, err := Dial(addr, PortOptions{}); err == nil {
		t.Fatal("expected connection error for closed port")
	}
}

func TestDialTCPConnects(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to open listener: %v", err)
	}
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		accepted <- conn
	}()

	conn, err := Dial(ln.Addr().String(), PortOptions{})
	if err != nil {
		t.Fatalf("failed to dial listener: %v", err)
	}
	defer conn.Close()

	var server net.Conn
	select {
	case server = <-accepted:
	case <-time.After(2 * time.Second):
		t.Fatal("listener never accepted the connection")
	}
	defer server.Close()

	// Round-trip some bytes to prove the conn is live both ways.
	if _, err := conn.Write([]byte("ping")); err != nil {
		t.Fatalf("client write failed: %v", err)
	}
	buf := make([]byte, 4)
	if _, err := io.ReadFull(server, buf); err != nil {
		t.Fatalf("server read failed: %v", err)
	}
	if string(buf) != "ping" {
		t.Fatalf("server read %q, want %q", buf, "ping")
	}

	if _, err := server.Write([]byte("pong")); err != nil {
		t.Fatalf("server write failed: %v", err)
	}
	if _, err := io.ReadFull(conn, buf); err != nil {
		t.Fatalf("client read failed: %v", err)
	}
	if string(buf) != "pong" {
		t.Fatalf("client read %q, want %q", buf, "pong")
	}
}

// A blocked Read must return once Close is called from another goroutine.
// The acquisition loop relies on this to stop promptly while waiting on a
// quiet sensor.
func TestTCPCloseUnblocksRead(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to open listener: %v", err)
	}
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		// Hold the connection open without sending anything.
		defer conn.Close()
		time.Sleep(5 * time.Second)
	}()

	conn, err := DialTCP(ln.Addr().String())
	if err != nil {
		t.Fatalf("failed to dial listener: %v", err)
	}

	readDone := make(chan error, 1)
	go func() {
		buf := make([]byte, 64)
		_, err := conn.Read(buf)
		readDone <- err
	}()

	// Give the reader a moment to block, then close underneath it.
	time.Sleep(50 * time.Millisecond)
	conn.Close()

	select {
	case err := <-readDone:
		if err == nil {
			t.Fatal("expected read error after close, got nil")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("read did not unblock after close")
	}
}

func TestPortOptionsNormalize(t *testing.T) {
	tests := []struct {
		name    string
		opts    PortOptions
		want    PortOptions
		wantErr bool
	}{
		{
			name: "zero values get defaults",
			opts: PortOptions{},
			want: PortOptions{BaudRate: 115200, DataBits: 8, StopBits: 1, Parity: "N"},
		},
		{
			name: "explicit values kept, parity canonicalized",
			opts: PortOptions{BaudRate: 9600, DataBits: 7, StopBits: 2, Parity: "even"},
			want: PortOptions{BaudRate: 9600, DataBits: 7, StopBits: 2, Parity: "E"},
		},
		{
			name: "negative baud gets default",
			opts: PortOptions{BaudRate: -1},
			want: PortOptions{BaudRate: 115200, DataBits: 8, StopBits: 1, Parity: "N"},
		},
		{
			name:    "bad data bits rejected",
			opts:    PortOptions{DataBits: 9},
			wantErr: true,
		},
		{
			name:    "bad stop bits rejected",
			opts:    PortOptions{StopBits: 3},
			wantErr: true,
		},
		{
			name:    "unknown parity rejected",
			opts:    PortOptions{Parity: "sometimes"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.opts.Normalize()
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("Normalize() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestPortOptionsSerialMode(t *testing.T) {
	tests := []struct {
		name string
		opts PortOptions
		want serial.Mode
	}{
		{
			name: "defaults",
			opts: PortOptions{BaudRate: 115200, DataBits: 8, StopBits: 1, Parity: "none"},
			want: serial.Mode{BaudRate: 115200, DataBits: 8, StopBits: serial.OneStopBit, Parity: serial.NoParity},
		},
		{
			name: "even parity two stop bits",
			opts: PortOptions{BaudRate: 9600, DataBits: 7, StopBits: 2, Parity: "even"},
			want: serial.Mode{BaudRate: 9600, DataBits: 7, StopBits: serial.TwoStopBits, Parity: serial.EvenParity},
		},
		{
			name: "odd parity",
			opts: PortOptions{BaudRate: 19200, DataBits: 8, StopBits: 1, Parity: "odd"},
			want: serial.Mode{BaudRate: 19200, DataBits: 8, StopBits: serial.OneStopBit, Parity: serial.OddParity},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.opts.SerialMode()
			if err != nil {
				t.Fatalf("SerialMode() error: %v", err)
			}
			if *got != tt.want {
				t.Fatalf("SerialMode() = %+v, want %+v", *got, tt.want)
			}
		})
	}
}

func TestPortOptionsSerialModeRejectsBadOptions(t *testing.T) {
	if _, err := (PortOptions{DataBits: 9}).SerialMode(); err == nil {
		t.Error("expected error for bad data bits")
	}
	if _, err := (PortOptions{Parity: "sometimes"}).SerialMode(); err == nil {
		t.Error("expected error for unknown parity")
	}
}

func TestTestConnScriptedReads(t *testing.T) {
	c := NewTestConn()
	c.QueueRead([]byte("hello "))
	c.QueueRead([]byte("world"))

	buf := make([]byte, 64)
	n, err := c.Read(buf)
	if err != nil {
		t.Fatalf("first read failed: %v", err)
	}
	if string(buf[:n]) != "hello " {
		t.Fatalf("first read = %q, want %q", buf[:n], "hello ")
	}

	n, err = c.Read(buf)
	if err != nil {
		t.Fatalf("second read failed: %v", err)
	}
	if string(buf[:n]) != "world" {
		t.Fatalf("second read = %q, want %q", buf[:n], "world")
	}
}

func TestTestConnSmallBufferSplitsChunk(t *testing.T) {
	c := NewTestConn()
	c.QueueRead([]byte("abcdef"))

	buf := make([]byte, 4)
	n, err := c.Read(buf)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if string(buf[:n]) != "abcd" {
		t.Fatalf("read = %q, want %q", buf[:n], "abcd")
	}

	n, err = c.Read(buf)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if string(buf[:n]) != "ef" {
		t.Fatalf("read = %q, want %q", buf[:n], "ef")
	}
}

func TestTestConnOneShotReadError(t *testing.T) {
	c := NewTestConn()
	boom := errors.New("transient fault")
	c.ReadErr = boom
	c.QueueRead([]byte("data"))

	buf := make([]byte, 16)
	if _, err := c.Read(buf); !errors.Is(err, boom) {
		t.Fatalf("expected scripted error, got %v", err)
	}

	// The error fires once; the next read sees the queued data.
	n, err := c.Read(buf)
	if err != nil {
		t.Fatalf("read after scripted error failed: %v", err)
	}
	if string(buf[:n]) != "data" {
		t.Fatalf("read = %q, want %q", buf[:n], "data")
	}
}

func TestTestConnCloseUnblocksBlockedRead(t *testing.T) {
	c := NewTestConn()
	c.BlockReads = true

	readDone := make(chan error, 1)
	go func() {
		buf := make([]byte, 16)
		_, err := c.Read(buf)
		readDone <- err
	}()

	time.Sleep(20 * time.Millisecond)
	c.Close()

	select {
	case err := <-readDone:
		if !errors.Is(err, ErrConnClosed) {
			t.Fatalf("expected ErrConnClosed, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("blocked read did not return after close")
	}
}

func TestTestConnScriptErrAfterDrain(t *testing.T) {
	c := NewTestConn()
	c.ScriptErr = io.EOF
	c.QueueRead([]byte("last"))

	buf := make([]byte, 16)
	n, err := c.Read(buf)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if string(buf[:n]) != "last" {
		t.Fatalf("read = %q, want %q", buf[:n], "last")
	}

	// Every read after the script drains reports the stream ending.
	for i := 0; i < 2; i++ {
		if _, err := c.Read(buf); !errors.Is(err, io.EOF) {
			t.Fatalf("read %d after drain: err = %v, want io.EOF", i, err)
		}
	}
}

func TestTestConnWriteCapture(t *testing.T) {
	c := NewTestConn()
	if _, err := c.Write([]byte("\x02sEN LMDscandata 1\x03")); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if got := string(c.Written()); got != "\x02sEN LMDscandata 1\x03" {
		t.Fatalf("Written() = %q", got)
	}
	if c.WriteCalls != 1 {
		t.Fatalf("WriteCalls = %d, want 1", c.WriteCalls)
	}
}
