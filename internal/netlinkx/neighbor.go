package netlinkx

import (
	"fmt"
	"net"
	"strconv"
)

// NeighborInfo is one resolved entry from the kernel's neighbor table.
type NeighborInfo struct {
	IP    net.IP
	MAC   net.HardwareAddr
	Iface string
}

// NeighborList returns resolved neighbor-table entries for ifaceName by
// reading /proc/net/arp, the same proc-scraping approach this package
// used for /proc/net/route. Entries with flag 0x0 (incomplete, no
// resolved hardware address yet) are skipped.
//
// component C3 (internal/peers) uses this to discover candidate peers
// reachable over the mesh interface without requiring every peer to be
// manually registered first.
func NeighborList(ifaceName string) ([]NeighborInfo, error) {
	data, err := readFile("/proc/net/arp")
	if err != nil {
		return nil, fmt.Errorf("neighbor list: %w", err)
	}

	var neighbors []NeighborInfo
	lines := splitLines(data)
	for i, line := range lines {
		if i == 0 || line == "" {
			continue // header: "IP address  HW type  Flags  HW address  Mask  Device"
		}
		fields := splitFields(line)
		if len(fields) < 6 {
			continue
		}
		ip := net.ParseIP(fields[0])
		if ip == nil {
			continue
		}
		flags, err := strconv.ParseUint(fields[2], 0, 32)
		if err != nil || flags == 0 {
			continue // incomplete entry, no usable hardware address
		}
		mac, err := net.ParseMAC(fields[3])
		if err != nil {
			continue
		}
		device := fields[5]
		if ifaceName != "" && device != ifaceName {
			continue
		}
		neighbors = append(neighbors, NeighborInfo{IP: ip, MAC: mac, Iface: device})
	}
	return neighbors, nil
}
