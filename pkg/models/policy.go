package models

import "fmt"

// PolicyMode selects which access policy governs a record
type PolicyMode string

const (
	PolicyNoLimit       PolicyMode = "none"
	PolicyOneTimeView   PolicyMode = "one_time_view"
	PolicyViewQuota     PolicyMode = "view_quota"
	PolicyDownloadQuota PolicyMode = "download_quota"
)

// AccessPolicy is the single live policy of a record. Limit is meaningful
// only for the quota modes.
type AccessPolicy struct {
	Mode  PolicyMode `json:"mode"`
	Limit int        `json:"limit,omitempty"`
}

func NoLimit() AccessPolicy     { return AccessPolicy{Mode: PolicyNoLimit} }
func OneTimeView() AccessPolicy { return AccessPolicy{Mode: PolicyOneTimeView} }

func ViewQuota(n int) AccessPolicy {
	return AccessPolicy{Mode: PolicyViewQuota, Limit: n}
}

func DownloadQuota(n int) AccessPolicy {
	return AccessPolicy{Mode: PolicyDownloadQuota, Limit: n}
}

// SelectPolicy picks the policy for a new record. One-time view wins; a quota
// only applies to the kind it was defined for and must be positive.
func SelectPolicy(kind Kind, oneTimeView bool, maxViews, maxDownloads int) AccessPolicy {
	switch {
	case oneTimeView:
		return OneTimeView()
	case kind == KindText && maxViews > 0:
		return ViewQuota(maxViews)
	case kind == KindFile && maxDownloads > 0:
		return DownloadQuota(maxDownloads)
	}
	return NoLimit()
}

func (p AccessPolicy) IsOneTimeView() bool {
	return p.Mode == PolicyOneTimeView
}

// MaxViews returns the text view quota, if one is set
func (p AccessPolicy) MaxViews() (int, bool) {
	if p.Mode == PolicyViewQuota {
		return p.Limit, true
	}
	return 0, false
}

// MaxDownloads returns the file download quota, if one is set
func (p AccessPolicy) MaxDownloads() (int, bool) {
	if p.Mode == PolicyDownloadQuota {
		return p.Limit, true
	}
	return 0, false
}

// Validate checks the policy is internally consistent
func (p AccessPolicy) Validate() error {
	switch p.Mode {
	case PolicyNoLimit, PolicyOneTimeView:
		return nil
	case PolicyViewQuota, PolicyDownloadQuota:
		if p.Limit < 1 {
			return fmt.Errorf("policy %s requires a positive limit, got %d", p.Mode, p.Limit)
		}
		return nil
	case "":
		return fmt.Errorf("policy mode is empty")
	}
	return fmt.Errorf("unknown policy mode %q", p.Mode)
}

func (p AccessPolicy) String() string {
	if p.Mode == PolicyViewQuota || p.Mode == PolicyDownloadQuota {
		return fmt.Sprintf("%s(%d)", p.Mode, p.Limit)
	}
	return string(p.Mode)
}
