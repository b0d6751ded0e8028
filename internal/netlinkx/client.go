// Package netlinkx parses Linux /proc/net tables. The production
// daemon this package is adapted from also drove rtnetlink directly
// for link/address/route mutation (bonds, VLANs, static routes); a
// location-sync node never changes interface state, so that machinery
// has no caller here and was dropped rather than kept unwired. What
// survives is the dependency-free proc-file parsing it used for
// RouteList, now shared by NeighborList's /proc/net/arp reader.
package netlinkx

import "os"

func readFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i, c := range s {
		if c == '\n' {
			lines = append(lines, s[start:i])
			start = i + 1
		}
	}
	if start < len(s) {
		lines = append(lines, s[start:])
	}
	return lines
}

func splitFields(s string) []string {
	var fields []string
	inField := false
	start := 0
	for i, c := range s {
		if c == ' ' || c == '\t' {
			if inField {
				fields = append(fields, s[start:i])
				inField = false
			}
		} else {
			if !inField {
				start = i
				inField = true
			}
		}
	}
	if inField {
		fields = append(fields, s[start:])
	}
	return fields
}
