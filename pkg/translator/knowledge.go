package translator

import (
	"log/slog"
	"math/big"
	"strings"

	"github.com/luan-xiaokun/reglang2msl/pkg/reglang"
)

// KnowledgeBase is one named collection of interpreted knowledge items,
// iterated in declaration order.
type KnowledgeBase struct {
	Name  string
	order []string
	items map[string]KValue
}

func newKnowledgeBase(name string) *KnowledgeBase {
	return &KnowledgeBase{Name: name, items: make(map[string]KValue)}
}

func (kb *KnowledgeBase) set(name string, value KValue) {
	if _, ok := kb.items[name]; !ok {
		kb.order = append(kb.order, name)
	}
	kb.items[name] = value
}

// Lookup returns the value bound to an item name.
func (kb *KnowledgeBase) Lookup(name string) (KValue, bool) {
	v, ok := kb.items[name]
	return v, ok
}

// Items returns the item names in declaration order.
func (kb *KnowledgeBase) Items() []string {
	return kb.order
}

// Knowledge is the interpreted knowledge map of a whole program: every
// knowledge base in declaration order. Iteration order is deterministic so
// the emitted constant definitions are too.
type Knowledge struct {
	order []string
	bases map[string]*KnowledgeBase
}

// NewKnowledge creates an empty knowledge map.
func NewKnowledge() *Knowledge {
	return &Knowledge{bases: make(map[string]*KnowledgeBase)}
}

func (k *Knowledge) add(kb *KnowledgeBase) {
	if _, ok := k.bases[kb.Name]; !ok {
		k.order = append(k.order, kb.Name)
	}
	k.bases[kb.Name] = kb
}

// Base returns a knowledge base by name.
func (k *Knowledge) Base(name string) (*KnowledgeBase, bool) {
	kb, ok := k.bases[name]
	return kb, ok
}

// Bases returns the knowledge bases in declaration order.
func (k *Knowledge) Bases() []*KnowledgeBase {
	bases := make([]*KnowledgeBase, 0, len(k.order))
	for _, name := range k.order {
		bases = append(bases, k.bases[name])
	}
	return bases
}

// Flatten maps every item to its compiled constant name `<kb>_<item>`.
func (k *Knowledge) Flatten() map[string]KValue {
	flat := make(map[string]KValue)
	for _, kb := range k.Bases() {
		for _, item := range kb.Items() {
			flat[kb.Name+"_"+item] = kb.items[item]
		}
	}
	return flat
}

// powerWarnLimit is 10^4300; results beyond it trip the advisory warning
// inherited from the legacy runtime's integer-to-string guard.
var powerWarnLimit = new(big.Int).Exp(big.NewInt(10), big.NewInt(4300), nil)

// Interpreter constant-folds knowledge base blocks into a Knowledge map.
//
// Only constant arithmetic expressions are allowed in knowledge
// definitions: numbers, strings, arrays, knowledge references, array items
// and the arithmetic connectives over them. Everything else raises an
// InterpretationError. A single interpreter may be reused; each Interpret
// call starts from a clean slate.
type Interpreter struct {
	logger    *slog.Logger
	knowledge *Knowledge
}

// NewInterpreter creates a knowledge base interpreter.
func NewInterpreter(opts ...Option) *Interpreter {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Interpreter{logger: o.logger}
}

// Interpret walks all knowledge base blocks of a parsed program in
// declaration order, so later items can reference earlier ones and later
// bases earlier bases.
func (i *Interpreter) Interpret(start *reglang.Tree) (*Knowledge, error) {
	i.knowledge = NewKnowledge()
	defer func() { i.knowledge = nil }()

	for _, child := range start.Children {
		block, ok := child.(*reglang.Tree)
		if !ok || block.Data != "knowledgebase_block" {
			continue
		}
		kb, err := i.interpretBlock(block)
		if err != nil {
			return nil, err
		}
		i.knowledge.add(kb)
	}
	return i.knowledge, nil
}

func (i *Interpreter) interpretBlock(block *reglang.Tree) (*KnowledgeBase, error) {
	name, ok := block.Token(0)
	if !ok {
		return nil, interpretationErrorf("malformed knowledgebase block")
	}
	kb := newKnowledgeBase(name.Value)

	for _, child := range block.Children[1:] {
		stmt, ok := child.(*reglang.Tree)
		if !ok {
			return nil, interpretationErrorf("malformed knowledge statement in '%s'", kb.Name)
		}
		switch stmt.Data {
		case "knowledge_init":
			if err := i.interpretInit(kb, stmt); err != nil {
				return nil, err
			}
		case "knowledge_alt":
			if err := i.interpretAlt(kb, stmt); err != nil {
				return nil, err
			}
		default:
			return nil, interpretationErrorf("unexpected statement '%s' in knowledgebase '%s'", stmt.Data, kb.Name)
		}
	}
	return kb, nil
}

func (i *Interpreter) interpretInit(kb *KnowledgeBase, stmt *reglang.Tree) error {
	name, _ := stmt.Token(0)
	def, ok := stmt.Tree(1)
	if !ok {
		return interpretationErrorAt(name, "malformed knowledge definition")
	}
	value, err := i.eval(def)
	if err != nil {
		return err
	}
	kb.set(name.Value, value)
	return nil
}

func (i *Interpreter) interpretAlt(kb *KnowledgeBase, stmt *reglang.Tree) error {
	name, _ := stmt.Token(0)
	fn, _ := stmt.Token(1)
	alt, ok := stmt.Tree(2)
	if !ok {
		return interpretationErrorAt(fn, "malformed knowledge alteration")
	}
	value, err := i.eval(alt)
	if err != nil {
		return err
	}

	existing, ok := kb.Lookup(name.Value)
	if !ok {
		return interpretationErrorAt(fn, "knowledge '%s' is not defined", name.Value)
	}
	if !isArray(existing) {
		return interpretationErrorf("adding and removing elements only support array objects")
	}
	kb.set(name.Value, alterArray(existing, value, fn.Value))
	return nil
}

// alterArray applies add/del of the value list to the receiving array. When
// the element kinds disagree both sides are stringified element-wise first,
// so the receiver may change from an int array to a string array.
func alterArray(existing, value KValue, fn string) KValue {
	intRecv, recvIsInt := existing.(*IntArrayValue)
	strRecv, _ := existing.(*StringArrayValue)

	var intVals []*big.Int
	var strVals []string
	valueIsInt := false
	switch v := value.(type) {
	case *IntValue:
		intVals = []*big.Int{v.V}
		valueIsInt = true
	case *StringValue:
		strVals = []string{v.V}
	case *IntArrayValue:
		intVals = v.Elems
		valueIsInt = true
	case *StringArrayValue:
		strVals = v.Elems
	}

	// An emptied receiver adopts the value list's kind.
	recvEmpty := arrayLen(existing) == 0
	if recvEmpty {
		recvIsInt = valueIsInt
		if recvIsInt {
			intRecv = &IntArrayValue{}
		} else {
			strRecv = &StringArrayValue{}
		}
	}

	if recvIsInt && valueIsInt {
		out := &IntArrayValue{Elems: append([]*big.Int(nil), intRecv.Elems...)}
		for _, v := range intVals {
			switch {
			case fn == "add" && !out.contains(v):
				out.Elems = append(out.Elems, v)
			case fn == "del" && out.contains(v):
				out.Elems = removeInt(out.Elems, v)
			}
		}
		return out
	}

	// Mixed kinds: stringify both sides before applying the alteration.
	var recv *StringArrayValue
	if recvIsInt {
		recv = intRecv.stringify()
	} else {
		recv = &StringArrayValue{Elems: append([]string(nil), strRecv.Elems...)}
	}
	if valueIsInt {
		strVals = make([]string, len(intVals))
		for i, v := range intVals {
			strVals[i] = v.String()
		}
	}
	for _, v := range strVals {
		switch {
		case fn == "add" && !recv.contains(v):
			recv.Elems = append(recv.Elems, v)
		case fn == "del" && recv.contains(v):
			recv.Elems = removeString(recv.Elems, v)
		}
	}
	return recv
}

func removeInt(elems []*big.Int, v *big.Int) []*big.Int {
	out := elems[:0]
	for _, e := range elems {
		if e.Cmp(v) != 0 {
			out = append(out, e)
		}
	}
	return out
}

func removeString(elems []string, v string) []string {
	out := elems[:0]
	for _, e := range elems {
		if e != v {
			out = append(out, e)
		}
	}
	return out
}

// eval constant-folds an expression in knowledge context.
func (i *Interpreter) eval(t *reglang.Tree) (KValue, error) {
	switch t.Data {
	case "term":
		return i.evalAdditive(t)
	case "factor":
		return i.evalMultiplicative(t)
	case "power":
		return i.evalPower(t)
	case "length":
		return i.evalLength(t)
	case "array":
		return i.evalArray(t)
	case "number":
		tok, _ := t.Token(0)
		n, ok := reglang.String2Int(tok.Value)
		if !ok {
			return nil, interpretationErrorAt(tok, "'%s' cannot be converted to number", tok.Value)
		}
		return &IntValue{V: n}, nil
	case "string":
		tok, _ := t.Token(0)
		return &StringValue{V: stripQuotes(reglang.Lower(tok.Value))}, nil
	case "knowledge_ref":
		return i.evalKnowledgeRef(t)
	case "array_item":
		return i.evalArrayItem(t)
	case "count":
		return nil, forbiddenExpr("count")
	case "var_ref":
		return nil, forbiddenExpr("variable reference")
	case "tx_basic":
		return nil, forbiddenExpr("tx basic")
	case "tx_state":
		return nil, forbiddenExpr("tx state")
	case "tx_args":
		return nil, forbiddenExpr("tx args")
	case "contract_basic":
		return nil, forbiddenExpr("contract basic")
	case "contract_state":
		return nil, forbiddenExpr("contract state")
	case "or_expr", "and_expr", "not_expr", "compare_expr", "membership",
		"at_least", "at_most", "any_item", "all_items", "const_true", "const_false":
		return nil, forbiddenExpr("logic")
	}
	return nil, interpretationErrorf("unexpected expression '%s' in knowledge definition", t.Data)
}

func forbiddenExpr(name string) error {
	return interpretationErrorf("%s expressions are not expected in knowledge definition", name)
}

// toInt converts an operand to an integer: integers pass through, strings
// must hold a decimal or 0x-hex literal.
func toInt(v KValue) (*big.Int, bool) {
	switch val := v.(type) {
	case *IntValue:
		return val.V, true
	case *StringValue:
		return reglang.String2Int(val.V)
	}
	return nil, false
}

func (i *Interpreter) evalOperands(t *reglang.Tree, leftIdx, rightIdx int) (*big.Int, *big.Int, error) {
	leftTree, ok := t.Tree(leftIdx)
	if !ok {
		return nil, nil, interpretationErrorf("malformed %s expression", t.Data)
	}
	rightTree, ok := t.Tree(rightIdx)
	if !ok {
		return nil, nil, interpretationErrorf("malformed %s expression", t.Data)
	}
	left, err := i.eval(leftTree)
	if err != nil {
		return nil, nil, err
	}
	right, err := i.eval(rightTree)
	if err != nil {
		return nil, nil, err
	}
	leftVal, ok := toInt(left)
	if !ok {
		return nil, nil, interpretationErrorf("'%s' cannot be converted to number", left.Format())
	}
	rightVal, ok := toInt(right)
	if !ok {
		return nil, nil, interpretationErrorf("'%s' cannot be converted to number", right.Format())
	}
	return leftVal, rightVal, nil
}

func (i *Interpreter) evalAdditive(t *reglang.Tree) (KValue, error) {
	op, _ := t.Token(1)
	left, right, err := i.evalOperands(t, 0, 2)
	if err != nil {
		return nil, err
	}
	result := new(big.Int)
	if op.Value == "+" {
		result.Add(left, right)
	} else {
		result.Sub(left, right)
	}
	return &IntValue{V: result}, nil
}

func (i *Interpreter) evalMultiplicative(t *reglang.Tree) (KValue, error) {
	op, _ := t.Token(1)
	left, right, err := i.evalOperands(t, 0, 2)
	if err != nil {
		return nil, err
	}
	result := new(big.Int)
	switch op.Value {
	case "*":
		result.Mul(left, right)
	case "/":
		if right.Sign() == 0 {
			return nil, interpretationErrorAt(op, "division by zero")
		}
		result.Quo(left, right)
	case "%":
		if right.Sign() == 0 {
			return nil, interpretationErrorAt(op, "division by zero")
		}
		result.Rem(left, right)
	}
	return &IntValue{V: result}, nil
}

func (i *Interpreter) evalPower(t *reglang.Tree) (KValue, error) {
	left, right, err := i.evalOperands(t, 0, 1)
	if err != nil {
		return nil, err
	}
	result := new(big.Int).Exp(left, right, nil)
	if result.Cmp(powerWarnLimit) > 0 {
		i.logger.Warn("power expression result exceeds the integer string conversion limit (4300 digits)")
	}
	return &IntValue{V: result}, nil
}

func (i *Interpreter) evalLength(t *reglang.Tree) (KValue, error) {
	arg, ok := t.Tree(0)
	if !ok {
		return nil, interpretationErrorf("malformed length expression")
	}
	value, err := i.eval(arg)
	if err != nil {
		return nil, err
	}
	if !isArray(value) {
		return nil, interpretationErrorf("length only applies to array, but got '%s'", kindName(value.Kind()))
	}
	return NewInt(int64(arrayLen(value))), nil
}

func (i *Interpreter) evalArray(t *reglang.Tree) (KValue, error) {
	tokens, ok := t.Tokens()
	if !ok || len(tokens) == 0 {
		return nil, interpretationErrorf("malformed array expression")
	}
	switch tokens[0].Type {
	case reglang.TokenNumber:
		elems := make([]*big.Int, len(tokens))
		for idx, tok := range tokens {
			n, convOK := reglang.String2Int(tok.Value)
			if !convOK || tok.Type != reglang.TokenNumber {
				return nil, interpretationErrorAt(tok, "unexpected token in number array: '%s'", tok.Value)
			}
			elems[idx] = n
		}
		return &IntArrayValue{Elems: elems}, nil
	case reglang.TokenString:
		elems := make([]string, len(tokens))
		for idx, tok := range tokens {
			if tok.Type != reglang.TokenString {
				return nil, interpretationErrorAt(tok, "unexpected token in string array: '%s'", tok.Value)
			}
			elems[idx] = stripQuotes(reglang.Lower(tok.Value))
		}
		return &StringArrayValue{Elems: elems}, nil
	}
	return nil, interpretationErrorAt(tokens[0], "unexpected token type in array: '%s'", tokens[0].Type)
}

func (i *Interpreter) evalKnowledgeRef(t *reglang.Tree) (KValue, error) {
	kbName, _ := t.Token(0)
	kName, _ := t.Token(1)

	kb, ok := i.knowledge.Base(kbName.Value)
	if !ok {
		return nil, interpretationErrorAt(kbName, "knowledge base '%s' is not defined", kbName.Value)
	}
	value, ok := kb.Lookup(kName.Value)
	if !ok {
		return nil, interpretationErrorAt(kName, "knowledge '%s' is not defined in '%s'", kName.Value, kbName.Value)
	}
	return cloneValue(value), nil
}

// cloneValue copies array values so a later alteration on the referencing
// item cannot mutate the referenced one.
func cloneValue(v KValue) KValue {
	switch val := v.(type) {
	case *IntArrayValue:
		return &IntArrayValue{Elems: append([]*big.Int(nil), val.Elems...)}
	case *StringArrayValue:
		return &StringArrayValue{Elems: append([]string(nil), val.Elems...)}
	}
	return v
}

func (i *Interpreter) evalArrayItem(t *reglang.Tree) (KValue, error) {
	arrayTree, ok := t.Tree(0)
	if !ok {
		return nil, interpretationErrorf("malformed array item expression")
	}
	indexTree, ok := t.Tree(1)
	if !ok {
		return nil, interpretationErrorf("malformed array item expression")
	}
	array, err := i.eval(arrayTree)
	if err != nil {
		return nil, err
	}
	index, err := i.eval(indexTree)
	if err != nil {
		return nil, err
	}
	idx, ok := toInt(index)
	if !ok {
		return nil, interpretationErrorf("array indices must be numbers or strings convertible to numbers")
	}
	if !idx.IsInt64() {
		return nil, interpretationErrorf("index out of bounds")
	}
	n := idx.Int64()
	if n < 0 || n >= int64(arrayLen(array)) {
		return nil, interpretationErrorf("index out of bounds")
	}
	switch arr := array.(type) {
	case *IntArrayValue:
		return &IntValue{V: arr.Elems[n]}, nil
	case *StringArrayValue:
		return &StringValue{V: arr.Elems[n]}, nil
	}
	return nil, interpretationErrorf("indexing only applies to array, but got '%s'", kindName(array.Kind()))
}

func kindName(k ValueKind) string {
	switch k {
	case KindInt:
		return "int"
	case KindString:
		return "string"
	case KindIntArray:
		return "int array"
	case KindStringArray:
		return "string array"
	}
	return "unknown"
}

func stripQuotes(s string) string {
	return strings.TrimSuffix(strings.TrimPrefix(s, `"`), `"`)
}

// Emitter renders an interpreted Knowledge map as MSL constant definitions.
type Emitter struct{}

// NewEmitter creates a knowledge emitter.
func NewEmitter() *Emitter {
	return &Emitter{}
}

// Translate emits one `const <value> as <kb>_<item>;` line per knowledge
// item, in declaration order, followed by a separating blank line.
func (e *Emitter) Translate(k *Knowledge) string {
	var b strings.Builder
	for _, kb := range k.Bases() {
		for _, item := range kb.Items() {
			value, _ := kb.Lookup(item)
			b.WriteString("const " + value.Format() + " as " + kb.Name + "_" + item + ";\n")
		}
	}
	if b.Len() > 0 {
		b.WriteString("\n")
	}
	return b.String()
}
