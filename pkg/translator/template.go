package translator

import (
	"fmt"
	"strings"

	"github.com/luan-xiaokun/reglang2msl/pkg/msl"
	"github.com/luan-xiaokun/reglang2msl/pkg/reglang"
)

// automatonTemplate is the MSL automaton scaffold. The first slot takes the
// read-input transitions, the second the serialized and indented rules
// segment.
const automatonTemplate = `automaton Rule (
    tx_input: in Tx,
    contract_input: in Contract,
    output: out int
) {
    states {
        bool pass = true;
        bool checking = false;
        Tx tx = null;
        Contract contract = null;
    }
    transitions {
%s
        checking -> {
            output.value = 0;
%s            pass = (output.value == 0);
            checking = false;
            sync output;
        }
    }
}
`

// RuleTranslator turns the rule blocks of a program into the import header
// and the automaton definition of the emitted MSL program.
type RuleTranslator struct {
	builder    *TransitionBuilder
	serializer *msl.Serializer
}

// NewRuleTranslator creates a rule translator.
func NewRuleTranslator() *RuleTranslator {
	return &RuleTranslator{
		builder:    NewTransitionBuilder(),
		serializer: msl.NewSerializer(),
	}
}

// Builder exposes the underlying transition builder.
func (rt *RuleTranslator) Builder() *TransitionBuilder {
	return rt.builder
}

// Translate compiles the rule blocks and returns the dependency import
// header and the automaton definition.
func (rt *RuleTranslator) Translate(start *reglang.Tree) (string, string, error) {
	body, err := rt.builder.Build(start)
	if err != nil {
		return "", "", err
	}
	segment := rt.serializer.Serialize(body)

	// reglang.contains may have been registered by a membership that a
	// quantifier later rewrote into count_member; only keep the import when
	// a call survived serialization.
	if !strings.Contains(segment, "reglang.contains(") {
		rt.builder.Info().setUsed("reglang.contains", false)
	}

	imports := rt.importDependencies(rt.builder.Info())
	readInput := rt.constructReadInput(rt.builder.Info())
	automaton := fmt.Sprintf(automatonTemplate, readInput, msl.Indent(segment, strings.Repeat(" ", 12)))
	rt.builder.Info().Reset()

	return imports, automaton, nil
}

// importDependencies emits one import line per used predefined function,
// followed by the record type imports every program needs.
func (rt *RuleTranslator) importDependencies(info *TemplateInfo) string {
	var b strings.Builder
	for _, name := range predefinedFuncs {
		if info.Used(name) {
			b.WriteString("import " + name + "\n")
		}
	}
	b.WriteString("import reglang.Contract as Contract\nimport reglang.Tx as Tx\n\n")
	return b.String()
}

// constructReadInput emits the transitions that request and read the tx and
// contract inputs before checking starts. A program that touches neither
// input only needs to flip the checking flag.
func (rt *RuleTranslator) constructReadInput(info *TemplateInfo) string {
	if !info.HasTxVar && !info.HasContractVar {
		return "        !checking -> checking = true;"
	}

	var b strings.Builder
	conditions := []string{"!checking"}
	var ports []string
	var assignments []string

	if info.HasTxVar {
		b.WriteString("!checking && !tx_input.reqRead -> tx_input.reqRead = true;\n")
		conditions = append(conditions, "(tx_input.reqRead && tx_input.reqWrite)")
		ports = append(ports, "tx_input")
		assignments = append(assignments, "tx = tx_input.value;")
	}
	if info.HasContractVar {
		b.WriteString("!checking && !contract_input.reqRead -> contract_input.reqRead = true;\n")
		conditions = append(conditions, "(contract_input.reqRead && contract_input.reqWrite)")
		ports = append(ports, "contract_input")
		assignments = append(assignments, "contract = contract_input.value;")
	}

	guard := strings.Join(conditions, " && ")
	syncPort := "sync " + strings.Join(ports, ", ") + ";"
	readValue := msl.Indent(strings.Join(assignments, "\n"), "    ")
	b.WriteString(guard + " -> {\n    " + syncPort + "\n" + readValue + "\n    checking = true;\n}")

	return msl.Indent(b.String(), strings.Repeat(" ", 8))
}
