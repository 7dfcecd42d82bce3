//go:build pcap
// +build pcap

package replay

import (
	"fmt"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"

	"github.com/banshee-data/timscan/internal/monitoring"
)

// defaultSensorPort is the sensor's measurement stream port.
const defaultSensorPort = 2112

// OpenPcap loads a packet capture and replays the sensor's TCP payload
// stream from it, paced by the capture timestamps scaled by Options.Rate.
// Only packets sent from the given port are replayed, so commands the
// capturing client sent are not mistaken for sensor data. A port of zero
// selects the standard sensor port. Only available when built with the
// pcap tag.
func OpenPcap(path string, port int, opts Options) (*Conn, error) {
	if port <= 0 {
		port = defaultSensorPort
	}

	handle, err := pcap.OpenOffline(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open PCAP file %s: %w", path, err)
	}
	defer handle.Close()

	filter := fmt.Sprintf("tcp and src port %d", port)
	if err := handle.SetBPFFilter(filter); err != nil {
		return nil, fmt.Errorf("failed to set BPF filter '%s': %w", filter, err)
	}

	packetSource := gopacket.NewPacketSource(handle, handle.LinkType())
	var chunks []chunk
	for packet := range packetSource.Packets() {
		tcpLayer := packet.Layer(layers.LayerTypeTCP)
		if tcpLayer == nil {
			continue
		}
		tcp, ok := tcpLayer.(*layers.TCP)
		if !ok || len(tcp.Payload) == 0 {
			continue
		}
		data := make([]byte, len(tcp.Payload))
		copy(data, tcp.Payload)
		chunks = append(chunks, chunk{data: data, at: packet.Metadata().Timestamp})
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("no sensor payload in %s (filter '%s')", path, filter)
	}

	monitoring.Logf("replay: %s: loaded %d payload segments from port %d", path, len(chunks), port)
	return newConn(&memSource{chunks: chunks}, opts), nil
}
