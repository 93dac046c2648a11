package syncer

// OutcomeKind is the closed set of download phase results.
type OutcomeKind int

const (
	// OutcomeOK: content fetched and merged.
	OutcomeOK OutcomeKind = iota
	// OutcomeSkippedNoChange: remote modification time unchanged, nothing
	// fetched.
	OutcomeSkippedNoChange
	// OutcomeNoFileFound: no id was known and discovery found nothing.
	OutcomeNoFileFound
	// OutcomeFileNotFoundOnRemote: the file vanished between metadata and
	// content fetch.
	OutcomeFileNotFoundOnRemote
	// OutcomeFileNotFoundNoReplacement: the stored id is stale and
	// rediscovery found nothing.
	OutcomeFileNotFoundNoReplacement
	// OutcomeError: any other failure, see ErrKind.
	OutcomeError
)

// ErrKind says which step of the download phase failed.
type ErrKind string

const (
	ErrKindNone                  ErrKind = ""
	ErrKindDownloading           ErrKind = "downloading"
	ErrKindParsing               ErrKind = "parsing"
	ErrKindPostDiscoveryMetadata ErrKind = "postDiscoveryMetadata"
)

// DownloadOutcome is the result of one download attempt. It lives only for
// the duration of a cycle.
type DownloadOutcome struct {
	Kind OutcomeKind
	// FileID is the remote id the attempt worked on, if any.
	FileID  string
	ErrKind ErrKind
	Err     error
	// Changed is set when the merge wrote at least one local record.
	Changed bool
}

// Healthy is true for OK and SkippedNoChange.
func (o DownloadOutcome) Healthy() bool { return o.Kind.Healthy() }

// NoRemoteFile is true for the variants meaning the local store is the
// only copy.
func (o DownloadOutcome) NoRemoteFile() bool { return o.Kind.NoRemoteFile() }

func (o DownloadOutcome) String() string {
	if o.Kind == OutcomeError {
		return "error_" + string(o.ErrKind)
	}
	return o.Kind.String()
}

func (k OutcomeKind) Healthy() bool {
	return k == OutcomeOK || k == OutcomeSkippedNoChange
}

func (k OutcomeKind) NoRemoteFile() bool {
	switch k {
	case OutcomeNoFileFound, OutcomeFileNotFoundOnRemote, OutcomeFileNotFoundNoReplacement:
		return true
	default:
		return false
	}
}

// staleID is true when the id that was processed is known to be gone.
func (k OutcomeKind) staleID() bool {
	return k == OutcomeFileNotFoundOnRemote || k == OutcomeFileNotFoundNoReplacement
}

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeOK:
		return "ok"
	case OutcomeSkippedNoChange:
		return "skippedNoChange"
	case OutcomeNoFileFound:
		return "noFileFound"
	case OutcomeFileNotFoundOnRemote:
		return "fileNotFoundOnRemote"
	case OutcomeFileNotFoundNoReplacement:
		return "fileNotFoundOnRemoteAndNoReplacement"
	case OutcomeError:
		return "error"
	default:
		return "unknown"
	}
}

func outcomeError(kind ErrKind, fileID string, err error) DownloadOutcome {
	return DownloadOutcome{Kind: OutcomeError, ErrKind: kind, FileID: fileID, Err: err}
}
