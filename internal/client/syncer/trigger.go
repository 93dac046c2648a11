package syncer

// Trigger names what started a sync cycle.
type Trigger int

const (
	TriggerPeriodic Trigger = iota
	TriggerManual
	TriggerSession
	TriggerLocalChange
	TriggerDiscovery
)

func (t Trigger) String() string {
	switch t {
	case TriggerPeriodic:
		return "periodic"
	case TriggerManual:
		return "manual"
	case TriggerSession:
		return "session"
	case TriggerLocalChange:
		return "localChange"
	case TriggerDiscovery:
		return "discovery"
	default:
		return "unknown"
	}
}

// Manual reports whether the user explicitly asked for this sync.
func (t Trigger) Manual() bool { return t == TriggerManual }

// Interactive reports whether credential acquisition may ask the user.
func (t Trigger) Interactive() bool { return t == TriggerManual || t == TriggerDiscovery }

// queues reports whether the trigger waits for a running cycle instead of
// being dropped.
func (t Trigger) queues() bool { return t == TriggerManual || t == TriggerDiscovery }

// recordsSession reports whether a healthy cycle of this kind resets the
// session debounce window.
func (t Trigger) recordsSession() bool {
	return t == TriggerSession || t == TriggerPeriodic || t == TriggerManual
}
