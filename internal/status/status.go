// Package status parses fail2ban-client output. The format is an
// externally-owned free-text protocol, so all pattern matching lives here
// behind two pure functions; callers only ever see structured records.
//
// Parsing is best-effort: missing or malformed lines leave fields at their
// zero values and unrecognized lines are ignored. Counters and the banned
// IP list are passed through exactly as printed, never cross-validated
// against each other — the daemon owns the ground truth.
package status

import (
	"regexp"
	"strconv"
	"strings"
)

// Jail is the parsed status of one jail.
type Jail struct {
	Name            string   `json:"name"`
	CurrentlyFailed int      `json:"currently_failed"`
	TotalFailed     int      `json:"total_failed"`
	CurrentlyBanned int      `json:"currently_banned"`
	TotalBanned     int      `json:"total_banned"`
	BannedIPs       []string `json:"banned_ips"`

	// Filter mirrors the failure counters for generated datasets; live
	// parses leave it nil.
	Filter *FilterCounters `json:"filter,omitempty"`

	// Error marks a jail whose status query failed during an overall
	// status sweep. The other fields are zero when set.
	Error string `json:"error,omitempty"`
}

// FilterCounters duplicates the failure counters of a jail.
type FilterCounters struct {
	CurrentlyFailed int `json:"currently_failed"`
	TotalFailed     int `json:"total_failed"`
}

var digits = regexp.MustCompile(`\d+`)

// afterLastColon returns the text following the final colon of line.
func afterLastColon(line string) string {
	idx := strings.LastIndex(line, ":")
	if idx < 0 {
		return ""
	}
	return strings.TrimSpace(line[idx+1:])
}

// parseCount extracts the first run of decimal digits after the final colon.
// Returns 0 if none is present.
func parseCount(line string) int {
	m := digits.FindString(afterLastColon(line))
	if m == "" {
		return 0
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return 0
	}
	return n
}

// ParseStatusText converts `fail2ban-client status <jail>` output into a
// Jail record. It never fails; the caller must only invoke it for a
// successful command.
func ParseStatusText(name, raw string) Jail {
	j := Jail{Name: name, BannedIPs: []string{}}
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.Contains(line, "Currently failed:"):
			j.CurrentlyFailed = parseCount(line)
		case strings.Contains(line, "Total failed:"):
			j.TotalFailed = parseCount(line)
		case strings.Contains(line, "Currently banned:"):
			j.CurrentlyBanned = parseCount(line)
		case strings.Contains(line, "Total banned:"):
			j.TotalBanned = parseCount(line)
		case strings.Contains(line, "Banned IP list:"):
			for _, ip := range strings.Fields(afterLastColon(line)) {
				if ip = strings.TrimSpace(ip); ip != "" {
					j.BannedIPs = append(j.BannedIPs, ip)
				}
			}
		}
	}
	return j
}

// ParseJailList extracts jail names from `fail2ban-client status` output.
// Returns nil when no jail list line is present.
func ParseJailList(raw string) []string {
	for _, line := range strings.Split(raw, "\n") {
		if !strings.Contains(line, "Jail list:") {
			continue
		}
		var jails []string
		for _, name := range strings.Split(afterLastColon(line), ",") {
			if name = strings.TrimSpace(name); name != "" {
				jails = append(jails, name)
			}
		}
		return jails
	}
	return nil
}
