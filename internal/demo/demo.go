// Package demo generates a self-consistent placeholder dataset for running
// the dashboard without a reachable fail2ban backend. Every call produces a
// fresh dataset; nothing here is persisted or tied to the action log.
package demo

import (
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/pueblokc/fail2ban/internal/status"
)

// Jails is the fixed catalog of representative jail names.
var Jails = []string{"sshd", "nginx-http-auth", "postfix", "dovecot", "apache-auth", "recidive"}

// highTraffic gets larger timeline counts than the rest.
const highTraffic = "sshd"

var countries = []string{"CN", "RU", "US", "BR", "IN", "KR", "DE", "FR", "VN", "ID"}

// TimelineBucket is one (hour, jail) cell of the 24h ban timeline. Cells
// with a zero count are omitted from the dataset entirely.
type TimelineBucket struct {
	Hour  string `json:"hour"` // "15:00"
	Jail  string `json:"jail"`
	Count int    `json:"count"`
}

// TopIP is one entry of the top-offender ranking.
type TopIP struct {
	IP       string   `json:"ip"`
	BanCount int      `json:"ban_count"`
	Country  string   `json:"country"`
	LastSeen string   `json:"last_seen"` // RFC 3339
	Jails    []string `json:"jails"`
}

// Dataset is a full synthetic status payload.
type Dataset struct {
	Jails          map[string]status.Jail `json:"jails"`
	Timeline       []TimelineBucket       `json:"timeline"`
	TopIPs         []TopIP                `json:"top_ips"`
	TotalBannedNow int                    `json:"total_banned_now"`
	TotalJails     int                    `json:"total_jails"`
}

// Generator produces datasets from a pseudo-random source.
type Generator struct {
	rng *rand.Rand
	now func() time.Time
}

// NewGenerator seeds from the current time.
func NewGenerator() *Generator {
	return &Generator{
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
		now: time.Now,
	}
}

// NewSeededGenerator fixes the random source and clock. Test constructor.
func NewSeededGenerator(seed int64, now func() time.Time) *Generator {
	return &Generator{rng: rand.New(rand.NewSource(seed)), now: now}
}

// randIP draws from the IPv4 space with the first octet restricted to
// 1–223, which keeps reserved and multicast ranges out without being
// RFC-exact about it.
func (g *Generator) randIP() string {
	return fmt.Sprintf("%d.%d.%d.%d",
		1+g.rng.Intn(223), g.rng.Intn(256), g.rng.Intn(256), 1+g.rng.Intn(254))
}

// between returns a random int in [lo, hi].
func (g *Generator) between(lo, hi int) int {
	return lo + g.rng.Intn(hi-lo+1)
}

// Dataset generates a fresh dataset.
func (g *Generator) Dataset() *Dataset {
	now := g.now().UTC()

	jails := make(map[string]status.Jail, len(Jails))
	totalBanned := 0
	for _, name := range Jails {
		banned := make([]string, 0, 8)
		for i := g.rng.Intn(9); i > 0; i-- {
			banned = append(banned, g.randIP())
		}
		jails[name] = status.Jail{
			Name:            name,
			CurrentlyBanned: len(banned),
			TotalBanned:     len(banned) + g.between(5, 50),
			TotalFailed:     g.between(100, 5000),
			BannedIPs:       banned,
			// Redundant with the top-level counters; the dashboard
			// consumes both shapes, so both are populated.
			Filter: &status.FilterCounters{
				CurrentlyFailed: g.between(0, 10),
				TotalFailed:     g.between(100, 5000),
			},
		}
		totalBanned += len(banned)
	}

	var timeline []TimelineBucket
	for h := 0; h < 24; h++ {
		ts := now.Add(-time.Duration(23-h) * time.Hour)
		for _, name := range Jails {
			count := g.between(0, 5)
			if name == highTraffic {
				count = g.between(0, 15)
			}
			if count > 0 {
				timeline = append(timeline, TimelineBucket{
					Hour:  ts.Format("15:00"),
					Jail:  name,
					Count: count,
				})
			}
		}
	}

	topIPs := make([]TopIP, 0, 10)
	for i := 0; i < 10; i++ {
		topIPs = append(topIPs, TopIP{
			IP:       g.randIP(),
			BanCount: g.between(3, 25),
			Country:  countries[g.rng.Intn(len(countries))],
			LastSeen: now.Add(-time.Duration(g.between(1, 1440)) * time.Minute).Format(time.RFC3339),
			Jails:    g.sampleJails(g.between(1, 3)),
		})
	}
	sort.SliceStable(topIPs, func(i, j int) bool {
		return topIPs[i].BanCount > topIPs[j].BanCount
	})

	return &Dataset{
		Jails:          jails,
		Timeline:       timeline,
		TopIPs:         topIPs,
		TotalBannedNow: totalBanned,
		TotalJails:     len(Jails),
	}
}

// sampleJails picks n distinct jail names.
func (g *Generator) sampleJails(n int) []string {
	idx := g.rng.Perm(len(Jails))[:n]
	sort.Ints(idx)
	out := make([]string, n)
	for i, j := range idx {
		out[i] = Jails[j]
	}
	return out
}
