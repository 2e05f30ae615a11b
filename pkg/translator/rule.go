package translator

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/luan-xiaokun/reglang2msl/pkg/msl"
	"github.com/luan-xiaokun/reglang2msl/pkg/reglang"
)

const (
	errorCodeBase = 1000
	errorCodeStep = 1000
)

// predefinedFuncs lists the importable helper functions in their fixed
// emission order.
var predefinedFuncs = []string{
	"reglang.contains",
	"reglang.count",
	"reglang.count_eq",
	"reglang.count_neq",
	"reglang.count_le",
	"reglang.count_ge",
	"reglang.count_lt",
	"reglang.count_gt",
	"reglang.count_member",
}

// TemplateInfo records which predefined functions and which of the tx and
// contract inputs a compiled program references. It drives the emitted
// import list and the read-input preamble.
type TemplateInfo struct {
	HasTxVar       bool
	HasContractVar bool
	used           map[string]bool
}

// NewTemplateInfo creates an empty usage record.
func NewTemplateInfo() *TemplateInfo {
	return &TemplateInfo{used: make(map[string]bool)}
}

func (ti *TemplateInfo) markUsed(name string) {
	ti.used[name] = true
}

// Used reports whether the named predefined function was referenced.
func (ti *TemplateInfo) Used(name string) bool {
	return ti.used[name]
}

func (ti *TemplateInfo) setUsed(name string, used bool) {
	ti.used[name] = used
}

// Reset clears all usage marks.
func (ti *TemplateInfo) Reset() {
	ti.HasTxVar = false
	ti.HasContractVar = false
	ti.used = make(map[string]bool)
}

// TransitionBuilder translates RegLang rule blocks into an MSL transition
// body. Scratch state lives in the TemplateInfo and is reset on every
// Build, so one builder compiles many inputs serially.
type TransitionBuilder struct {
	info *TemplateInfo
}

// NewTransitionBuilder creates a rule transformer.
func NewTransitionBuilder() *TransitionBuilder {
	return &TransitionBuilder{info: NewTemplateInfo()}
}

// Info exposes the usage record collected by the latest Build.
func (b *TransitionBuilder) Info() *TemplateInfo {
	return b.info
}

// Build translates every rule block of a parsed program into one statement
// of the transition body and assigns error codes: rule blocks with checks
// take contiguous ranges of a thousand starting at 1001 (an empty rule's
// skip statement takes no range), checks within a rule
// are numbered so the outermost check carries the smallest code.
func (b *TransitionBuilder) Build(start *reglang.Tree) (*msl.TransitionBody, error) {
	b.info.Reset()

	var stmts []msl.Node
	for _, child := range start.Children {
		block, ok := child.(*reglang.Tree)
		if !ok || block.Data != "rule_block" {
			continue
		}
		stmt, err := b.transformRuleBlock(block)
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, stmt)
	}

	prefix := errorCodeBase
	for _, stmt := range stmts {
		assign, ok := stmt.(*msl.AssignStmt)
		if !ok {
			continue
		}
		outer, ok := assign.RHS.(*msl.ConditionalExpr)
		if !ok {
			return nil, fmt.Errorf("rule statement is not a conditional assignment")
		}
		depth := 0
		for cond, ok := outer.Then.(*msl.ConditionalExpr); ok; cond, ok = cond.Else.(*msl.ConditionalExpr) {
			depth++
		}
		if depth >= errorCodeStep {
			return nil, &MaxRuleStatementError{Count: depth}
		}
		code := prefix + 1
		for cond, ok := outer.Then.(*msl.ConditionalExpr); ok; cond, ok = cond.Else.(*msl.ConditionalExpr) {
			cond.Then = &msl.Number{Value: strconv.Itoa(code)}
			code++
		}
		prefix += errorCodeStep
	}

	return &msl.TransitionBody{Stmts: stmts}, nil
}

func outputValue() msl.Node {
	return &msl.GetAttr{Obj: &msl.VarRef{Name: "output"}, Name: "value"}
}

// transformRuleBlock rewrites one rule into
//
//	output.value = scope ? (check1 ? E1 : ... (checkN ? EN : output.value)) : output.value;
//
// with a placeholder error code of 1; Build substitutes the real codes. An
// empty rule becomes a skip statement.
func (b *TransitionBuilder) transformRuleBlock(block *reglang.Tree) (msl.Node, error) {
	scope, ok := block.Tree(1)
	if !ok || scope.Data != "reg_scope" {
		return nil, fmt.Errorf("malformed rule block: missing scope")
	}
	scopeCond, ok := scope.Tree(0)
	if !ok {
		return nil, fmt.Errorf("malformed rule scope")
	}
	guard, err := b.transformCond(scopeCond)
	if err != nil {
		return nil, err
	}

	var checks []msl.Node
	for _, child := range block.Children[2:] {
		stmt, ok := child.(*reglang.Tree)
		if !ok {
			return nil, fmt.Errorf("malformed check statement")
		}
		cond, ok := stmt.Tree(0)
		if !ok {
			return nil, fmt.Errorf("malformed check statement")
		}
		check, err := b.transformCond(cond)
		if err != nil {
			return nil, err
		}
		switch stmt.Data {
		case "require_stmt":
			// require(c) is prohibit(not c): the rule fires when the
			// required predicate fails to hold.
			checks = append(checks, &msl.NotExpr{Operand: check})
		case "prohibit_stmt":
			checks = append(checks, check)
		default:
			return nil, fmt.Errorf("unexpected statement '%s' in rule block", stmt.Data)
		}
	}

	if len(checks) == 0 {
		return &msl.SkipStmt{}, nil
	}

	inner := msl.Node(&msl.ConditionalExpr{
		Cond: checks[len(checks)-1],
		Then: &msl.Number{Value: "1"},
		Else: outputValue(),
	})
	for i := len(checks) - 2; i >= 0; i-- {
		inner = &msl.ConditionalExpr{
			Cond: checks[i],
			Then: &msl.Number{Value: "1"},
			Else: inner,
		}
	}
	outer := &msl.ConditionalExpr{Cond: guard, Then: inner, Else: outputValue()}
	return &msl.AssignStmt{LHS: outputValue(), Op: "=", RHS: outer}, nil
}

// transformCond rewrites a RegLang expression into its MSL form.
func (b *TransitionBuilder) transformCond(t *reglang.Tree) (msl.Node, error) {
	switch t.Data {
	case "or_expr", "and_expr":
		left, right, err := b.transformPair(t, 0, 1)
		if err != nil {
			return nil, err
		}
		if t.Data == "or_expr" {
			return &msl.OrExpr{Left: left, Right: right}, nil
		}
		return &msl.AndExpr{Left: left, Right: right}, nil
	case "not_expr":
		operand, err := b.transformChild(t, 0)
		if err != nil {
			return nil, err
		}
		return &msl.NotExpr{Operand: operand}, nil
	case "compare_expr":
		return b.transformCompare(t)
	case "membership":
		return b.transformMembership(t)
	case "at_least", "at_most":
		return b.transformBoundedQuantifier(t)
	case "any_item":
		return b.transformAnyItem(t)
	case "all_items":
		return b.transformAllItems(t)
	case "term", "factor":
		return b.transformArith(t)
	case "power":
		left, right, err := b.transformPair(t, 0, 1)
		if err != nil {
			return nil, err
		}
		return &msl.PowerExpr{Base: convertStringToNumber(left), Exponent: convertStringToNumber(right)}, nil
	case "length":
		arg, err := b.transformChild(t, 0)
		if err != nil {
			return nil, err
		}
		return &msl.FuncCall{Name: "length", Args: []msl.Node{arg}}, nil
	case "count":
		return b.transformCount(t)
	case "knowledge_ref":
		kbName, _ := t.Token(0)
		kName, _ := t.Token(1)
		return &msl.VarRef{Name: kbName.Value + "_" + kName.Value}, nil
	case "array_item":
		obj, index, err := b.transformPair(t, 0, 1)
		if err != nil {
			return nil, err
		}
		return &msl.GetItem{Obj: obj, Index: convertStringToNumber(index)}, nil
	case "var_ref":
		name, _ := t.Token(0)
		return &msl.VarRef{Name: name.Value}, nil
	case "tx_basic":
		b.info.HasTxVar = true
		basic, _ := t.Token(0)
		return &msl.GetAttr{Obj: &msl.VarRef{Name: "tx"}, Name: basic.Value}, nil
	case "tx_state":
		return b.transformTxState(t)
	case "tx_args":
		return b.transformTxArgs(t)
	case "contract_basic":
		return b.transformContractBasic(t)
	case "contract_state":
		return b.transformContractState(t)
	case "array":
		return b.transformArray(t)
	case "number":
		tok, _ := t.Token(0)
		return &msl.Number{Value: tok.Value}, nil
	case "string":
		tok, _ := t.Token(0)
		return &msl.String{Value: reglang.Lower(tok.Value)}, nil
	case "const_true":
		return &msl.ConstTrue{}, nil
	case "const_false":
		return &msl.ConstFalse{}, nil
	}
	return nil, fmt.Errorf("unexpected parse rule '%s'", t.Data)
}

func (b *TransitionBuilder) transformChild(t *reglang.Tree, i int) (msl.Node, error) {
	child, ok := t.Tree(i)
	if !ok {
		return nil, fmt.Errorf("malformed %s expression", t.Data)
	}
	return b.transformCond(child)
}

func (b *TransitionBuilder) transformPair(t *reglang.Tree, leftIdx, rightIdx int) (msl.Node, msl.Node, error) {
	left, err := b.transformChild(t, leftIdx)
	if err != nil {
		return nil, nil, err
	}
	right, err := b.transformChild(t, rightIdx)
	if err != nil {
		return nil, nil, err
	}
	return left, right, nil
}

// convertStringToNumber rewrites a string literal operand into a number
// literal by stripping its quotes. Non-string nodes pass through.
func convertStringToNumber(n msl.Node) msl.Node {
	if s, ok := n.(*msl.String); ok {
		return &msl.Number{Value: strings.Trim(s.Value, `"`)}
	}
	return n
}

// isArithmeticOperand reports whether a node can force a string literal on
// the other side of an operator into a number.
func isArithmeticOperand(n msl.Node) bool {
	switch n.(type) {
	case *msl.Number, *msl.String, *msl.PowerExpr, *msl.MulExpr, *msl.AddExpr:
		return true
	}
	return false
}

// transformCompare lowers a comparison, deciding between string and numeric
// semantics. Two string literals stay strings when at least one cannot be
// converted to a number; otherwise a string literal becomes a number only
// when the other operand is a literal or an arithmetic expression.
func (b *TransitionBuilder) transformCompare(t *reglang.Tree) (msl.Node, error) {
	op, ok := t.Token(1)
	if !ok {
		return nil, fmt.Errorf("malformed compare expression")
	}
	left, right, err := b.transformPair(t, 0, 2)
	if err != nil {
		return nil, err
	}

	isEquality := op.Value == "==" || op.Value == "!="
	leftStr, leftIsStr := left.(*msl.String)
	rightStr, rightIsStr := right.(*msl.String)
	if leftIsStr && rightIsStr {
		_, leftNum := reglang.String2Int(strings.Trim(leftStr.Value, `"`))
		_, rightNum := reglang.String2Int(strings.Trim(rightStr.Value, `"`))
		if !leftNum || !rightNum {
			return makeComparison(isEquality, left, op.Value, right), nil
		}
	}

	if isArithmeticOperand(right) && leftIsStr {
		left = convertStringToNumber(left)
	}
	if isArithmeticOperand(left) && rightIsStr {
		right = convertStringToNumber(right)
	}
	return makeComparison(isEquality, left, op.Value, right), nil
}

func makeComparison(isEquality bool, left msl.Node, op string, right msl.Node) msl.Node {
	if isEquality {
		return &msl.EqualityExpr{Left: left, Op: op, Right: right}
	}
	return &msl.CompareExpr{Left: left, Op: op, Right: right}
}

func (b *TransitionBuilder) transformMembership(t *reglang.Tree) (msl.Node, error) {
	element, ref, err := b.transformPair(t, 0, 1)
	if err != nil {
		return nil, err
	}
	b.info.markUsed("reglang.contains")
	return &msl.FuncCall{Name: "reglang.contains", Args: []msl.Node{ref, element}}, nil
}

var countSuffix = map[string]string{
	"==": "eq",
	"!=": "neq",
	"<=": "le",
	">=": "ge",
	"<":  "lt",
	">":  "gt",
}

// builtinBooleanFunc lowers a quantifier condition to a counting helper
// call. A comparison whose left operand is an array becomes
// reglang.count_<op>(array, value); a membership condition
// reglang.contains(ref, x) becomes reglang.count_member(ref, x).
func (b *TransitionBuilder) builtinBooleanFunc(cond msl.Node) (*msl.FuncCall, error) {
	switch c := cond.(type) {
	case *msl.EqualityExpr:
		name := "reglang.count_" + countSuffix[c.Op]
		b.info.markUsed(name)
		return &msl.FuncCall{Name: name, Args: []msl.Node{c.Left, c.Right}}, nil
	case *msl.CompareExpr:
		name := "reglang.count_" + countSuffix[c.Op]
		b.info.markUsed(name)
		return &msl.FuncCall{Name: name, Args: []msl.Node{c.Left, c.Right}}, nil
	case *msl.FuncCall:
		if len(c.Args) != 2 {
			return nil, fmt.Errorf("expecting two arguments in quantified membership")
		}
		b.info.markUsed("reglang.count_member")
		return &msl.FuncCall{Name: "reglang.count_member", Args: c.Args}, nil
	}
	return nil, fmt.Errorf("unexpected condition %T in quantifier", cond)
}

// quantifierFunc lowers a quantifier condition tree to a counting helper
// call. The membership-style `count(x, ref)` form maps straight to
// count_member; everything else is transformed first and dispatched on its
// MSL shape.
func (b *TransitionBuilder) quantifierFunc(t *reglang.Tree, i int) (*msl.FuncCall, error) {
	cond, ok := t.Tree(i)
	if !ok {
		return nil, fmt.Errorf("malformed %s expression", t.Data)
	}
	if cond.Data == "count" && len(cond.Children) == 2 {
		if ref, ok := cond.Tree(1); ok && ref.Data == "knowledge_ref" {
			element, err := b.transformChild(cond, 0)
			if err != nil {
				return nil, err
			}
			refNode, err := b.transformChild(cond, 1)
			if err != nil {
				return nil, err
			}
			b.info.markUsed("reglang.count_member")
			return &msl.FuncCall{Name: "reglang.count_member", Args: []msl.Node{refNode, element}}, nil
		}
	}
	node, err := b.transformCond(cond)
	if err != nil {
		return nil, err
	}
	return b.builtinBooleanFunc(node)
}

func (b *TransitionBuilder) transformBoundedQuantifier(t *reglang.Tree) (msl.Node, error) {
	bound, err := b.transformChild(t, 0)
	if err != nil {
		return nil, err
	}
	fc, err := b.quantifierFunc(t, 1)
	if err != nil {
		return nil, err
	}
	op := ">="
	if t.Data == "at_most" {
		op = "<="
	}
	return &msl.CompareExpr{Left: fc, Op: op, Right: convertStringToNumber(bound)}, nil
}

func (b *TransitionBuilder) transformAnyItem(t *reglang.Tree) (msl.Node, error) {
	fc, err := b.quantifierFunc(t, 0)
	if err != nil {
		return nil, err
	}
	return &msl.CompareExpr{Left: fc, Op: ">=", Right: &msl.Number{Value: "1"}}, nil
}

// transformAllItems compares the counting helper against the length of the
// counted array: all elements satisfy the condition exactly when the count
// equals the array length.
func (b *TransitionBuilder) transformAllItems(t *reglang.Tree) (msl.Node, error) {
	fc, err := b.quantifierFunc(t, 0)
	if err != nil {
		return nil, err
	}
	length := &msl.FuncCall{Name: "length", Args: []msl.Node{fc.Args[0]}}
	return &msl.CompareExpr{Left: fc, Op: "==", Right: length}, nil
}

func (b *TransitionBuilder) transformArith(t *reglang.Tree) (msl.Node, error) {
	op, ok := t.Token(1)
	if !ok {
		return nil, fmt.Errorf("malformed %s expression", t.Data)
	}
	left, right, err := b.transformPair(t, 0, 2)
	if err != nil {
		return nil, err
	}
	left = convertStringToNumber(left)
	right = convertStringToNumber(right)
	if t.Data == "term" {
		return &msl.AddExpr{Left: left, Op: op.Value, Right: right}, nil
	}
	return &msl.MulExpr{Left: left, Op: op.Value, Right: right}, nil
}

func (b *TransitionBuilder) transformCount(t *reglang.Tree) (msl.Node, error) {
	conds := make([]msl.Node, 0, len(t.Children))
	for i := range t.Children {
		cond, err := b.transformChild(t, i)
		if err != nil {
			return nil, err
		}
		conds = append(conds, cond)
	}
	b.info.markUsed("reglang.count")
	array := &msl.Array{Elems: conds}
	return &msl.FuncCall{Name: "reglang.count", Args: []msl.Node{array}}, nil
}

// varRefToString rewrites a var_ref child used as a map key into a string
// literal.
func varRefToString(t *reglang.Tree) (msl.Node, bool) {
	if t.Data != "var_ref" {
		return nil, false
	}
	name, ok := t.Token(0)
	if !ok {
		return nil, false
	}
	return &msl.String{Value: `"` + name.Value + `"`}, true
}

func (b *TransitionBuilder) transformTxState(t *reglang.Tree) (msl.Node, error) {
	b.info.HasTxVar = true
	state, ok := t.Token(0)
	if !ok {
		return nil, fmt.Errorf("malformed tx state expression")
	}
	addr, err := b.transformChild(t, 1)
	if err != nil {
		return nil, err
	}
	varTree, ok := t.Tree(2)
	if !ok {
		return nil, fmt.Errorf("malformed tx state expression")
	}
	key, ok := varRefToString(varTree)
	if !ok {
		return nil, fmt.Errorf("malformed tx state variable")
	}
	stateAttr := &msl.GetAttr{Obj: &msl.VarRef{Name: "tx"}, Name: state.Value}
	return &msl.GetItem{Obj: &msl.GetItem{Obj: stateAttr, Index: addr}, Index: key}, nil
}

func (b *TransitionBuilder) transformTxArgs(t *reglang.Tree) (msl.Node, error) {
	b.info.HasTxVar = true
	varTree, ok := t.Tree(0)
	if !ok {
		return nil, fmt.Errorf("malformed tx args expression")
	}
	key, ok := varRefToString(varTree)
	if !ok {
		return nil, fmt.Errorf("malformed tx args variable")
	}
	argsAttr := &msl.GetAttr{Obj: &msl.VarRef{Name: "tx"}, Name: "args"}
	return &msl.GetItem{Obj: argsAttr, Index: key}, nil
}

func (b *TransitionBuilder) transformContractBasic(t *reglang.Tree) (msl.Node, error) {
	b.info.HasContractVar = true
	addr, err := b.transformChild(t, 0)
	if err != nil {
		return nil, err
	}
	basic, ok := t.Token(1)
	if !ok {
		return nil, fmt.Errorf("malformed contract attribute")
	}
	item := &msl.GetItem{Obj: &msl.VarRef{Name: "contract"}, Index: addr}
	return &msl.GetAttr{Obj: item, Name: basic.Value}, nil
}

func (b *TransitionBuilder) transformContractState(t *reglang.Tree) (msl.Node, error) {
	b.info.HasContractVar = true
	addr, err := b.transformChild(t, 0)
	if err != nil {
		return nil, err
	}
	varTree, ok := t.Tree(1)
	if !ok {
		return nil, fmt.Errorf("malformed contract state expression")
	}
	key, ok := varRefToString(varTree)
	if !ok {
		return nil, fmt.Errorf("malformed contract state variable")
	}
	item := &msl.GetItem{Obj: &msl.VarRef{Name: "contract"}, Index: addr}
	stateAttr := &msl.GetAttr{Obj: item, Name: "state"}
	return &msl.GetItem{Obj: stateAttr, Index: key}, nil
}

func (b *TransitionBuilder) transformArray(t *reglang.Tree) (msl.Node, error) {
	tokens, ok := t.Tokens()
	if !ok || len(tokens) == 0 {
		return nil, fmt.Errorf("malformed array expression")
	}
	elems := make([]msl.Node, len(tokens))
	for i, tok := range tokens {
		switch tok.Type {
		case reglang.TokenNumber:
			elems[i] = &msl.Number{Value: tok.Value}
		case reglang.TokenString:
			elems[i] = &msl.String{Value: reglang.Lower(tok.Value)}
		default:
			return nil, fmt.Errorf("unexpected token type in array: '%s'", tok.Type)
		}
	}
	return &msl.Array{Elems: elems}, nil
}
