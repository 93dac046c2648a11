package syncer

// UploadDecision is the result of decideUpload.
type UploadDecision struct {
	Upload bool
	// Override marks a manual upload despite a failed download.
	Override bool
	// SuppressedEmpty is set when the empty-upload guard vetoed an upload.
	SuppressedEmpty bool
	Reason          string
}

// decideUpload decides whether the cycle uploads. activeCount is the
// number of non-deleted local notes.
//
// An empty local set never overwrites an existing remote file unless the
// download was healthy or the user asked for it.
func decideUpload(outcome OutcomeKind, manual, dirty, hasRemoteID bool, activeCount int) UploadDecision {
	var d UploadDecision

	switch {
	case outcome.Healthy():
		switch {
		case manual:
			d = UploadDecision{Upload: true, Reason: "manual sync"}
		case dirty:
			d = UploadDecision{Upload: true, Reason: "local changes"}
		case !hasRemoteID:
			d = UploadDecision{Upload: true, Reason: "no remote file yet"}
		default:
			d = UploadDecision{Reason: "nothing to upload"}
		}
	case outcome.NoRemoteFile():
		d = UploadDecision{Upload: true, Reason: "remote file missing"}
	case manual:
		d = UploadDecision{Upload: true, Override: true, Reason: "manual sync after failed download"}
	default:
		d = UploadDecision{Reason: "download failed"}
	}

	if activeCount == 0 && !manual {
		creating := !hasRemoteID || outcome.NoRemoteFile()
		if !creating && !outcome.Healthy() {
			d = UploadDecision{SuppressedEmpty: true, Reason: "empty local set, remote state uncertain"}
		}
	}
	return d
}
