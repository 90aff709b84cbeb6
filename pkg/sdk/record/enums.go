package record

import "fmt"

// ErrorType classifies where an error originated.
type ErrorType string

const (
	ErrorTypeClient     ErrorType = "client"
	ErrorTypeServer     ErrorType = "server"
	ErrorTypeNetwork    ErrorType = "network"
	ErrorTypeDatabase   ErrorType = "database"
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeAuth       ErrorType = "auth"
	ErrorTypeBusiness   ErrorType = "business"
	ErrorTypeUnknown    ErrorType = "unknown"
)

// Valid reports whether t is null or one of the known error types.
func (t ErrorType) Valid() bool {
	switch t {
	case "", ErrorTypeClient, ErrorTypeServer, ErrorTypeNetwork, ErrorTypeDatabase,
		ErrorTypeValidation, ErrorTypeAuth, ErrorTypeBusiness, ErrorTypeUnknown:
		return true
	}
	return false
}

// Severity is the impact assigned to an error.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Valid reports whether s is null or one of the known severities.
func (s Severity) Valid() bool {
	switch s {
	case "", SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// Status is the triage state of an error. Only the server and dashboard move
// a record between states; the SDK always sends "new" or nothing.
type Status string

const (
	StatusNew           Status = "new"
	StatusInvestigating Status = "investigating"
	StatusResolved      Status = "resolved"
	StatusIgnored       Status = "ignored"
	StatusRecurring     Status = "recurring"
)

// Valid reports whether s is null or one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case "", StatusNew, StatusInvestigating, StatusResolved, StatusIgnored, StatusRecurring:
		return true
	}
	return false
}

// Level is a log line level.
type Level string

const (
	LevelTrace Level = "trace"
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelLog   Level = "log"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Levels lists every level from least to most severe.
var Levels = []Level{LevelTrace, LevelDebug, LevelInfo, LevelLog, LevelWarn, LevelError}

// Rank orders levels: trace < debug < info < log < warn < error.
// Unknown levels rank -1.
func (l Level) Rank() int {
	for i, v := range Levels {
		if v == l {
			return i
		}
	}
	return -1
}

// Valid reports whether l is one of the known levels. Unlike the error
// enums a log level is never null.
func (l Level) Valid() bool {
	return l.Rank() >= 0
}

// AtLeast reports whether l is as severe as min.
func (l Level) AtLeast(min Level) bool {
	return l.Rank() >= min.Rank()
}

// ParseLevel converts s to a Level, rejecting unknown values.
func ParseLevel(s string) (Level, error) {
	l := Level(s)
	if !l.Valid() {
		return "", fmt.Errorf("%w: level %q", ErrInvalidEnum, s)
	}
	return l, nil
}
