package event

import "fmt"

// Phase describes where an in-flight [Event] is in its traversal.
type Phase int

const (
	PhaseNone      Phase = iota // PhaseNone is reported when no dispatch is running.
	PhaseCapturing              // PhaseCapturing visits ancestors from the root toward the target.
	PhaseAtTarget               // PhaseAtTarget visits the dispatch target itself.
	PhaseBubbling               // PhaseBubbling visits ancestors from the target toward the root.
)

var phaseNames = [...]string{
	PhaseNone:      "NONE",
	PhaseCapturing: "CAPTURING",
	PhaseAtTarget:  "AT_TARGET",
	PhaseBubbling:  "BUBBLING",
}

// Phases returns every [Phase] in traversal order, starting with [PhaseNone].
func Phases() []Phase {
	return []Phase{PhaseNone, PhaseCapturing, PhaseAtTarget, PhaseBubbling}
}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return fmt.Sprintf("Phase(%d)", int(p))
	}
	return phaseNames[p]
}

// ParsePhase translates a phase name as returned by [Phase.String] back to a [Phase].
func ParsePhase(name string) (Phase, error) {
	for i, n := range phaseNames {
		if n == name {
			return Phase(i), nil
		}
	}
	return PhaseNone, fmt.Errorf("unknown phase '%s'", name)
}
