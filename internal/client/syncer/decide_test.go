package syncer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestDecideUpload(t *testing.T) {
	tests := []struct {
		name        string
		outcome     OutcomeKind
		manual      bool
		dirty       bool
		hasRemoteID bool
		active      int
		want        UploadDecision
	}{
		{
			name: "clean no-op", outcome: OutcomeSkippedNoChange, hasRemoteID: true, active: 1,
			want: UploadDecision{Reason: "nothing to upload"},
		},
		{
			name: "dirty after merge", outcome: OutcomeOK, dirty: true, hasRemoteID: true, active: 1,
			want: UploadDecision{Upload: true, Reason: "local changes"},
		},
		{
			name: "manual always uploads", outcome: OutcomeSkippedNoChange, manual: true, hasRemoteID: true,
			want: UploadDecision{Upload: true, Reason: "manual sync"},
		},
		{
			name: "no file yet", outcome: OutcomeNoFileFound, active: 2,
			want: UploadDecision{Upload: true, Reason: "remote file missing"},
		},
		{
			name: "stale id replaced with empty set", outcome: OutcomeFileNotFoundNoReplacement, hasRemoteID: true,
			want: UploadDecision{Upload: true, Reason: "remote file missing"},
		},
		{
			name: "automatic after failed download", outcome: OutcomeError, dirty: true, hasRemoteID: true, active: 3,
			want: UploadDecision{Reason: "download failed"},
		},
		{
			name: "manual override after failed download", outcome: OutcomeError, manual: true, hasRemoteID: true, active: 3,
			want: UploadDecision{Upload: true, Override: true, Reason: "manual sync after failed download"},
		},
		{
			name: "empty set over uncertain remote", outcome: OutcomeError, dirty: true, hasRemoteID: true,
			want: UploadDecision{SuppressedEmpty: true, Reason: "empty local set, remote state uncertain"},
		},
		{
			name: "empty set manual override", outcome: OutcomeError, manual: true, hasRemoteID: true,
			want: UploadDecision{Upload: true, Override: true, Reason: "manual sync after failed download"},
		},
		{
			name: "empty set creating first file", outcome: OutcomeSkippedNoChange,
			want: UploadDecision{Upload: true, Reason: "no remote file yet"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := decideUpload(tt.outcome, tt.manual, tt.dirty, tt.hasRemoteID, tt.active)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecideUpload_EmptyGuardProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		dirty := rapid.Bool().Draw(t, "dirty")
		d := decideUpload(OutcomeError, false, dirty, true, 0)
		if d.Upload {
			t.Fatalf("automatic trigger uploaded an empty set over an uncertain remote: %+v", d)
		}
	})
}

func TestDecideUpload_MissingRemoteAlwaysUploads(t *testing.T) {
	kinds := []OutcomeKind{OutcomeNoFileFound, OutcomeFileNotFoundOnRemote, OutcomeFileNotFoundNoReplacement}
	rapid.Check(t, func(t *rapid.T) {
		k := rapid.SampledFrom(kinds).Draw(t, "outcome")
		d := decideUpload(k,
			rapid.Bool().Draw(t, "manual"),
			rapid.Bool().Draw(t, "dirty"),
			rapid.Bool().Draw(t, "hasRemoteID"),
			rapid.IntRange(0, 5).Draw(t, "active"))
		if !d.Upload {
			t.Fatalf("%s did not upload: %+v", k, d)
		}
	})
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "ok", DownloadOutcome{Kind: OutcomeOK}.String())
	assert.Equal(t, "fileNotFoundOnRemoteAndNoReplacement", DownloadOutcome{Kind: OutcomeFileNotFoundNoReplacement}.String())
	assert.Equal(t, "error_parsing", outcomeError(ErrKindParsing, "x", nil).String())
	assert.True(t, DownloadOutcome{Kind: OutcomeSkippedNoChange}.Healthy())
	assert.False(t, DownloadOutcome{Kind: OutcomeNoFileFound}.Healthy())
	assert.True(t, DownloadOutcome{Kind: OutcomeFileNotFoundOnRemote}.NoRemoteFile())
}

func TestTrigger(t *testing.T) {
	assert.True(t, TriggerManual.Manual())
	assert.True(t, TriggerDiscovery.Interactive())
	assert.False(t, TriggerDiscovery.Manual())
	assert.False(t, TriggerPeriodic.Interactive())
	assert.Equal(t, "localChange", TriggerLocalChange.String())
}
