package translator

import (
	"fmt"

	"github.com/luan-xiaokun/reglang2msl/pkg/reglang"
)

// InterpretationError reports semantic misuse inside a knowledge base:
// undefined references, out-of-bounds indices, forbidden constructs and
// non-convertible strings. The message carries line:column when the
// offending token is at hand.
type InterpretationError struct {
	Msg string
}

func (e *InterpretationError) Error() string {
	return e.Msg
}

func interpretationErrorf(format string, args ...any) error {
	return &InterpretationError{Msg: fmt.Sprintf(format, args...)}
}

func interpretationErrorAt(tok reglang.Token, format string, args ...any) error {
	prefix := fmt.Sprintf("%d:%d: ", tok.Line, tok.Column)
	return &InterpretationError{Msg: prefix + fmt.Sprintf(format, args...)}
}

// MaxRuleStatementError reports a rule block whose check statements exceed
// the error-code step.
type MaxRuleStatementError struct {
	Count int
}

func (e *MaxRuleStatementError) Error() string {
	return fmt.Sprintf("too many checking statements (%d)", e.Count)
}
