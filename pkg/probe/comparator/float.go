package comparator

import (
	"fmt"

	"github.com/stressforge/harness-go/pkg/cerrors"
	"github.com/stressforge/harness-go/pkg/log"
)

// CompareFloat compares floating numbers for specific operation
// it check for the >=, >, <=, <, ==, != operators
func (model Model) CompareFloat(errorCode cerrors.ErrorType) error {

	log.Debugf("[Probe]: {Actual value: %v}, {Expected value: %v}, {Operator: %v}", model.a, model.b, model.operator)

	switch model.operator {
	case ">=":
		if !(model.a >= model.b) {
			return cerrors.Error{ErrorCode: errorCode, Target: model.probeName, Reason: fmt.Sprintf("Probe responded with an invalid output. Actual value: %v is not greater than or equal to the Expected value: %v", model.a, model.b)}
		}
	case "<=":
		if !(model.a <= model.b) {
			return cerrors.Error{ErrorCode: errorCode, Target: model.probeName, Reason: fmt.Sprintf("Probe responded with an invalid output. Actual value: %v is not lesser than or equal to the Expected value: %v", model.a, model.b)}
		}
	case ">":
		if !(model.a > model.b) {
			return cerrors.Error{ErrorCode: errorCode, Target: model.probeName, Reason: fmt.Sprintf("Probe responded with an invalid output. Actual value: %v is not greater than the Expected value: %v", model.a, model.b)}
		}
	case "<":
		if !(model.a < model.b) {
			return cerrors.Error{ErrorCode: errorCode, Target: model.probeName, Reason: fmt.Sprintf("Probe responded with an invalid output. Actual value: %v is not lesser than the Expected value: %v", model.a, model.b)}
		}
	case "==":
		if !(model.a == model.b) {
			return cerrors.Error{ErrorCode: errorCode, Target: model.probeName, Reason: fmt.Sprintf("Probe responded with an invalid output. Actual value: %v is not equal to the Expected value: %v", model.a, model.b)}
		}
	case "!=":
		if !(model.a != model.b) {
			return cerrors.Error{ErrorCode: errorCode, Target: model.probeName, Reason: fmt.Sprintf("Probe responded with an invalid output. Actual value: %v should not matched with the Expected value: %v", model.a, model.b)}
		}
	default:
		return cerrors.Error{ErrorCode: cerrors.ErrorTypeContract, Target: model.probeName, Reason: fmt.Sprintf("criteria '%s' not supported in the probe", model.operator)}
	}
	return nil
}
