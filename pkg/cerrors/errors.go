package cerrors

import (
	"encoding/json"
	"fmt"
)

// Error is the user-friendly error carried through injectors, scenarios and
// campaign records. Target names the perturbed resource (a path, hostname or
// scenario), Phase the campaign phase that produced it.
type Error struct {
	ErrorCode ErrorType `json:"errorCode,omitempty"`
	Phase     string    `json:"phase,omitempty"`
	Target    string    `json:"target,omitempty"`
	Reason    string    `json:"reason,omitempty"`
}

func (e Error) Error() string {
	out, err := json.Marshal(e)
	if err != nil {
		return fmt.Sprintf("[%s]: %s", e.ErrorCode, e.Reason)
	}
	return string(out)
}

func (e Error) UserFriendly() bool {
	return true
}

func (e Error) ErrorType() ErrorType {
	return e.ErrorCode
}

type Generic struct {
	Phase  string
	Reason string
}

func (e Generic) Error() string {
	if e.Phase == "" {
		return e.Reason
	}
	return fmt.Sprintf("[%s]: %s", e.Phase, e.Reason)
}

func (e Generic) UserFriendly() bool {
	return true
}

func (e Generic) ErrorType() ErrorType {
	return ErrorTypeGeneric
}

// ResultCRUD covers failures while persisting or loading run artifacts.
// Persistence failures are logged by the runner, never fatal to the run.
type ResultCRUD struct {
	Phase     string
	Target    string
	Operation string
	Reason    string
}

func (e ResultCRUD) Error() string {
	if e.Phase == "" {
		return fmt.Sprintf("failed to %s run result: '%s', %s", e.Operation, e.Target, e.Reason)
	}
	return fmt.Sprintf("[%s]: failed to %s run result: '%s', %s", e.Phase, e.Operation, e.Target, e.Reason)
}

func (e ResultCRUD) UserFriendly() bool {
	return true
}

func (e ResultCRUD) ErrorType() ErrorType {
	return ErrorTypeResultCRUD
}
