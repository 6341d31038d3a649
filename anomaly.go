package vigil

import (
	"fmt"
	"sort"
	"time"

	"github.com/matterhq/vigil/store"
)

// Default anomaly-scan tunables.
const (
	DefaultSuspiciousIPThreshold = 3
	DefaultScanWindowDays        = 7
)

// Detector flags users with logins from suspiciously many distinct source
// IPs within a time window. It is a batch aggregation, safe to run on demand
// from an administrative query; it computes reports and never pushes
// notifications itself.
type Detector struct {
	sessions  store.SessionStore
	threshold int
	geoip     *GeoIPReader
}

// NewDetector creates a Detector over the given store. threshold is the
// distinct-IP count a user must exceed to be flagged (strict greater-than);
// geoip may be nil.
func NewDetector(sessions store.SessionStore, threshold int, geoip *GeoIPReader) *Detector {
	if threshold <= 0 {
		threshold = DefaultSuspiciousIPThreshold
	}
	return &Detector{
		sessions:  sessions,
		threshold: threshold,
		geoip:     geoip,
	}
}

// Scan aggregates sessions created within the last windowDays days, grouping
// by (user, ip) and then by user, and reports every user whose distinct-IP
// count exceeds the threshold. Either the full report set is returned or an
// error; never partial results.
func (d *Detector) Scan(windowDays int) ([]SuspiciousLoginReport, error) {
	if windowDays <= 0 {
		windowDays = DefaultScanWindowDays
	}
	since := time.Now().AddDate(0, 0, -windowDays)

	sessions, err := d.sessions.FindRecent(since)
	if err != nil {
		return nil, fmt.Errorf("vigil: anomaly scan failed: %w", err)
	}

	// First level: session count per (user, ip).
	perUser := make(map[string]map[string]int)
	for _, s := range sessions {
		if perUser[s.UserID] == nil {
			perUser[s.UserID] = make(map[string]int)
		}
		perUser[s.UserID][s.IP]++
	}

	// Second level: distinct IPs per user, keeping only users over threshold.
	var reports []SuspiciousLoginReport
	for userID, ips := range perUser {
		if len(ips) <= d.threshold {
			continue
		}

		report := SuspiciousLoginReport{
			UserID:    userID,
			UniqueIPs: len(ips),
			IPDetails: make([]IPDetail, 0, len(ips)),
		}
		for ip, count := range ips {
			detail := IPDetail{IP: ip, SessionCount: count}
			if d.geoip != nil {
				loc := d.geoip.LookupWithFallback(ip)
				detail.City = loc.City
				detail.Country = loc.Country
			}
			report.IPDetails = append(report.IPDetails, detail)
		}

		sort.Slice(report.IPDetails, func(i, j int) bool {
			a, b := report.IPDetails[i], report.IPDetails[j]
			if a.SessionCount != b.SessionCount {
				return a.SessionCount > b.SessionCount
			}
			return a.IP < b.IP
		})

		reports = append(reports, report)
	}

	sort.Slice(reports, func(i, j int) bool {
		if reports[i].UniqueIPs != reports[j].UniqueIPs {
			return reports[i].UniqueIPs > reports[j].UniqueIPs
		}
		return reports[i].UserID < reports[j].UserID
	})

	return reports, nil
}
