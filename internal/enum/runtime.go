package enum

// RuntimeEventKind is a container lifecycle event surfaced by the
// container runtime's event stream (spec.md §4.3).
type RuntimeEventKind string

const (
	RuntimeEventStart RuntimeEventKind = "start"
	RuntimeEventStop  RuntimeEventKind = "stop"
	RuntimeEventDie   RuntimeEventKind = "die"
	RuntimeEventKill  RuntimeEventKind = "kill"
)

// IsTerminal reports whether the event removes the container from the
// live set (as opposed to starting it).
func (k RuntimeEventKind) IsTerminal() bool {
	return k == RuntimeEventStop || k == RuntimeEventDie || k == RuntimeEventKill
}
