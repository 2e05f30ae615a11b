// Package translator compiles RegLang parse trees into MSL programs: it
// constant-folds knowledge bases, rewrites rule blocks into an automaton
// transition body and composes the final program text.
package translator

import (
	"github.com/luan-xiaokun/reglang2msl/pkg/reglang"
)

// CodeGenerator is the compilation facade: one instance translates many
// parsed programs serially.
type CodeGenerator struct {
	interpreter    *Interpreter
	emitter        *Emitter
	ruleTranslator *RuleTranslator
}

// NewCodeGenerator creates a code generator.
func NewCodeGenerator(opts ...Option) *CodeGenerator {
	return &CodeGenerator{
		interpreter:    NewInterpreter(opts...),
		emitter:        NewEmitter(),
		ruleTranslator: NewRuleTranslator(),
	}
}

// Generate compiles a parsed RegLang program into the complete MSL source:
// import header, constant definitions, automaton definition.
func (g *CodeGenerator) Generate(start *reglang.Tree) (string, error) {
	knowledge, err := g.interpreter.Interpret(start)
	if err != nil {
		return "", err
	}
	constDefs := g.emitter.Translate(knowledge)

	imports, automaton, err := g.ruleTranslator.Translate(start)
	if err != nil {
		return "", err
	}

	return imports + constDefs + automaton, nil
}

// Knowledge interprets only the knowledge bases of a parsed program,
// for callers that need the value map alongside the generated code.
func (g *CodeGenerator) Knowledge(start *reglang.Tree) (*Knowledge, error) {
	return g.interpreter.Interpret(start)
}
