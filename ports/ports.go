// Package ports holds pure port bookkeeping shared by the inventory and the
// proxy rule manager: conflict grouping and deterministic free-port scanning.
package ports

import "sort"

// Default bounds for free-port scanning.
const (
	DefaultStart = 8000
	MaxPort      = 65535
)

// FindConflicts groups entities by the port portOf assigns them and returns
// only the groups with two or more members. Entities for which portOf returns
// 0 have no port and never participate in a conflict.
func FindConflicts[T any](entities []T, portOf func(T) int, nameOf func(T) string) map[int][]string {
	usage := make(map[int][]string)
	for _, e := range entities {
		port := portOf(e)
		if port == 0 {
			continue
		}
		usage[port] = append(usage[port], nameOf(e))
	}

	conflicts := make(map[int][]string)
	for port, names := range usage {
		if len(names) > 1 {
			sort.Strings(names)
			conflicts[port] = names
		}
	}
	return conflicts
}

// SuggestNextPort linearly scans from start and returns the first port not in
// used, or 0 if the scan exhausts the range. The result is deterministic for a
// fixed used set and start.
func SuggestNextPort(used map[int]bool, start int) int {
	if start <= 0 {
		start = DefaultStart
	}
	for port := start; port <= MaxPort; port++ {
		if !used[port] {
			return port
		}
	}
	return 0
}

// UsedSet builds the membership set SuggestNextPort consumes, skipping zero
// entries.
func UsedSet(ports []int) map[int]bool {
	used := make(map[int]bool, len(ports))
	for _, p := range ports {
		if p != 0 {
			used[p] = true
		}
	}
	return used
}
