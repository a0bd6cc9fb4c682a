package models

import "fmt"

// Level identifies one of the five automation-degree workflows a study
// participant progresses through.
type Level string

const (
	LevelManual         Level = "manual"
	LevelAssistive      Level = "assistive"
	LevelCooperative    Level = "cooperative"
	LevelSupervisory    Level = "supervisory"
	LevelFullyAutomated Level = "fully_automated"
)

// Levels returns every level in study order.
func Levels() []Level {
	return []Level{
		LevelManual,
		LevelAssistive,
		LevelCooperative,
		LevelSupervisory,
		LevelFullyAutomated,
	}
}

// ParseLevel validates a level name coming from a request path.
func ParseLevel(name string) (Level, error) {
	switch Level(name) {
	case LevelManual, LevelAssistive, LevelCooperative, LevelSupervisory, LevelFullyAutomated:
		return Level(name), nil
	}
	return "", fmt.Errorf("unknown level: %s", name)
}

// Automated reports whether the level runs an analyzer phase before
// collecting human input.
func (l Level) Automated() bool {
	return l != LevelManual
}
