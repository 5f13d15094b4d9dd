package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSelectPolicy(t *testing.T) {
	tests := []struct {
		name         string
		kind         Kind
		oneTime      bool
		maxViews     int
		maxDownloads int
		want         AccessPolicy
	}{
		{"plain text", KindText, false, 0, 0, NoLimit()},
		{"one-time wins over quota", KindText, true, 5, 0, OneTimeView()},
		{"text view quota", KindText, false, 2, 0, ViewQuota(2)},
		{"download quota ignored for text", KindText, false, 0, 3, NoLimit()},
		{"file download quota", KindFile, false, 0, 3, DownloadQuota(3)},
		{"view quota ignored for file", KindFile, false, 4, 0, NoLimit()},
		{"negative quota ignored", KindFile, false, 0, -1, NoLimit()},
		{"one-time file", KindFile, true, 0, 9, OneTimeView()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SelectPolicy(tt.kind, tt.oneTime, tt.maxViews, tt.maxDownloads)
			assert.Equal(t, tt.want, got)
			assert.NoError(t, got.Validate())
		})
	}
}

func TestAccessPolicyAccessors(t *testing.T) {
	n, ok := ViewQuota(4).MaxViews()
	assert.True(t, ok)
	assert.Equal(t, 4, n)

	_, ok = ViewQuota(4).MaxDownloads()
	assert.False(t, ok)

	n, ok = DownloadQuota(1).MaxDownloads()
	assert.True(t, ok)
	assert.Equal(t, 1, n)

	assert.True(t, OneTimeView().IsOneTimeView())
	assert.False(t, NoLimit().IsOneTimeView())
	assert.Equal(t, "view_quota(4)", ViewQuota(4).String())
}

func TestAccessPolicyValidate(t *testing.T) {
	assert.Error(t, AccessPolicy{}.Validate())
	assert.Error(t, AccessPolicy{Mode: PolicyViewQuota}.Validate())
	assert.Error(t, AccessPolicy{Mode: "forever"}.Validate())
	assert.NoError(t, DownloadQuota(1).Validate())
}

func TestContentRecordActivity(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	rec := &ContentRecord{
		ID:         "abc",
		Kind:       KindText,
		TextData:   "hello",
		ExpiryTime: now.Add(time.Minute),
		Policy:     ViewQuota(2),
	}

	assert.True(t, rec.IsActive(now))
	assert.True(t, rec.IsExpired(rec.ExpiryTime), "expiry instant itself counts as expired")

	rec.ViewCount = 2
	assert.True(t, rec.IsExhausted())
	assert.False(t, rec.IsActive(now))

	file := &ContentRecord{Kind: KindFile, ExpiryTime: now.Add(time.Minute), Policy: OneTimeView()}
	assert.True(t, file.IsActive(now))
	file.IsConsumed = true
	assert.False(t, file.IsActive(now))
}

func TestSummaryHidesSecrets(t *testing.T) {
	rec := &ContentRecord{ID: "x", Kind: KindText, TextData: "secret", PasswordHash: "$2a$..."}
	s := rec.Summary()
	assert.True(t, s.PasswordProtected)
	assert.Equal(t, "x", s.ID)

	clone := rec.Clone()
	clone.ViewCount = 10
	assert.Equal(t, 0, rec.ViewCount)
}
