package pipeline

// Stage is the last state a unit reached. A unit only moves forward; a
// failure leaves it at the stage that last succeeded.
type Stage uint8

const (
	StageParsed Stage = iota
	StageLowered
	StageTyped
	StageAnnotated
	StageOptimized
	StageEmitted
)

var stageNames = [...]string{
	StageParsed:    "parsed",
	StageLowered:   "lowered",
	StageTyped:     "typed",
	StageAnnotated: "annotated",
	StageOptimized: "optimized",
	StageEmitted:   "emitted",
}

func (s Stage) String() string {
	if int(s) < len(stageNames) {
		return stageNames[s]
	}
	return "invalid"
}

// pass names the work that moves a unit out of s, used to locate failures.
func (s Stage) pass() string {
	switch s {
	case StageParsed:
		return "lower"
	case StageLowered:
		return "infer types"
	case StageTyped:
		return "infer ownership"
	case StageAnnotated:
		return "optimize"
	case StageOptimized:
		return "codegen"
	}
	return "publish"
}

// MarshalText encodes the stage by name.
func (s Stage) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// ParseStage is the inverse of Stage.String.
func ParseStage(name string) (Stage, bool) {
	for i, n := range stageNames {
		if n == name {
			return Stage(i), true
		}
	}
	return 0, false
}
