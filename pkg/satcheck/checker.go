package satcheck

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/luan-xiaokun/reglang2msl/pkg/msl"
	"github.com/luan-xiaokun/reglang2msl/pkg/reglang"
	"github.com/luan-xiaokun/reglang2msl/pkg/translator"
	"github.com/luan-xiaokun/reglang2msl/pkg/typeinfer"
)

// Checker lowers a compiled transition body into solver assertions. For
// every rule it asserts the conjunction of the rule's guard and the
// negation of each check predicate: the whole system is satisfiable exactly
// when some input satisfies every rule's guard while none of its checks
// raises an error code.
//
// Knowledge references become literal terms. Every other variable,
// attribute path and string-indexed access becomes a declared constant
// interned by its serialized path, so identical paths share one symbol.
type Checker struct {
	solver     Solver
	knowledge  map[string]translator.KValue
	inference  *typeinfer.Inference
	serializer *msl.Serializer

	// per-run scratch state
	types   map[msl.Node]typeinfer.Type
	symbols map[string]Term
}

// NewChecker creates a checker owning the given solver.
func NewChecker(solver Solver, knowledge *translator.Knowledge) *Checker {
	return &Checker{
		solver:     solver,
		knowledge:  knowledge.Flatten(),
		inference:  typeinfer.New(knowledge),
		serializer: msl.NewSerializer(),
	}
}

// Check asserts the formulas for every rule of the body and reports the
// solver's verdict. Assertions from a previous run are cleared first.
func (c *Checker) Check(body *msl.TransitionBody) (Result, error) {
	types, err := c.inference.Infer(body)
	if err != nil {
		return ResultUnknown, err
	}
	c.types = types
	c.symbols = make(map[string]Term)
	c.solver.ResetAssertions()

	for _, stmt := range body.Stmts {
		assign, ok := stmt.(*msl.AssignStmt)
		if !ok {
			continue
		}
		if err := c.assertRule(assign); err != nil {
			return ResultUnknown, err
		}
	}
	return c.solver.CheckSat()
}

func (c *Checker) assertRule(assign *msl.AssignStmt) error {
	outer, ok := assign.RHS.(*msl.ConditionalExpr)
	if !ok {
		return fmt.Errorf("expected conditional on the right of a rule assignment, got %T", assign.RHS)
	}

	conditions := []msl.Node{}
	candidate := outer.Then
	for {
		nested, ok := candidate.(*msl.ConditionalExpr)
		if !ok {
			break
		}
		conditions = append(conditions, nested.Cond)
		candidate = nested.Else
	}
	if _, ok := candidate.(*msl.GetAttr); !ok {
		return fmt.Errorf("expected the conditional chain to end at output.value, got %T", candidate)
	}

	guardTerm, err := c.lower(outer.Cond)
	if err != nil {
		return err
	}
	terms := []Term{guardTerm}
	for _, cond := range conditions {
		term, err := c.lower(negated(cond))
		if err != nil {
			return err
		}
		terms = append(terms, term)
	}

	formula := terms[0]
	if len(terms) > 1 {
		formula = c.solver.MkTerm(KindAnd, terms...)
	}
	c.solver.Assert(formula)
	return nil
}

// negated flips a check predicate, unwrapping an existing negation.
func negated(n msl.Node) msl.Node {
	if not, ok := n.(*msl.NotExpr); ok {
		return not.Operand
	}
	return &msl.NotExpr{Operand: n}
}

var compareKind = map[string]Kind{
	"<=": KindLeq,
	"<":  KindLt,
	">=": KindGeq,
	">":  KindGt,
	"==": KindEqual,
	"!=": KindDistinct,
}

var mulKind = map[string]Kind{
	"*": KindMult,
	"/": KindIntsDivision,
	"%": KindIntsModulus,
}

func (c *Checker) lower(n msl.Node) (Term, error) {
	switch node := n.(type) {
	case *msl.NotExpr:
		operand, err := c.lower(node.Operand)
		if err != nil {
			return nil, err
		}
		return c.solver.MkTerm(KindNot, operand), nil
	case *msl.AndExpr:
		return c.lowerBinary(KindAnd, node.Left, node.Right)
	case *msl.OrExpr:
		return c.lowerBinary(KindOr, node.Left, node.Right)
	case *msl.CompareExpr:
		kind, ok := compareKind[node.Op]
		if !ok {
			return nil, fmt.Errorf("unknown comparison operator %q", node.Op)
		}
		return c.lowerBinary(kind, node.Left, node.Right)
	case *msl.EqualityExpr:
		kind, ok := compareKind[node.Op]
		if !ok {
			return nil, fmt.Errorf("unknown equality operator %q", node.Op)
		}
		return c.lowerBinary(kind, node.Left, node.Right)
	case *msl.AddExpr:
		kind := KindAdd
		if node.Op == "-" {
			kind = KindSub
		}
		return c.lowerBinary(kind, node.Left, node.Right)
	case *msl.MulExpr:
		kind, ok := mulKind[node.Op]
		if !ok {
			return nil, fmt.Errorf("unknown multiplicative operator %q", node.Op)
		}
		return c.lowerBinary(kind, node.Left, node.Right)
	case *msl.PowerExpr:
		return c.lowerBinary(KindPow, node.Base, node.Exponent)
	case *msl.ConstTrue:
		return c.solver.MkTrue(), nil
	case *msl.ConstFalse:
		return c.solver.MkFalse(), nil
	case *msl.Number:
		v, ok := reglang.String2Int(node.Value)
		if !ok {
			return nil, fmt.Errorf("number literal %q is not convertible", node.Value)
		}
		return c.solver.MkInteger(v), nil
	case *msl.String:
		return c.solver.MkString(strings.Trim(node.Value, `"`)), nil
	case *msl.VarRef:
		if value, ok := c.knowledge[node.Name]; ok {
			return c.literalTerm(value), nil
		}
		return c.pathSymbol(node), nil
	case *msl.GetAttr:
		return c.pathSymbol(node), nil
	case *msl.GetItem:
		return c.lowerGetItem(node)
	case *msl.Array:
		return c.lowerArray(node)
	case *msl.FuncCall:
		return c.lowerFuncCall(node)
	}
	return nil, fmt.Errorf("cannot lower node %T", n)
}

func (c *Checker) lowerBinary(kind Kind, left, right msl.Node) (Term, error) {
	leftTerm, err := c.lower(left)
	if err != nil {
		return nil, err
	}
	rightTerm, err := c.lower(right)
	if err != nil {
		return nil, err
	}
	return c.solver.MkTerm(kind, leftTerm, rightTerm), nil
}

// literalTerm lowers a knowledge value; arrays become sequence terms.
func (c *Checker) literalTerm(v translator.KValue) Term {
	switch value := v.(type) {
	case *translator.IntValue:
		return c.solver.MkInteger(value.V)
	case *translator.StringValue:
		return c.solver.MkString(value.V)
	case *translator.IntArrayValue:
		units := make([]Term, len(value.Elems))
		for i, e := range value.Elems {
			units[i] = c.solver.MkTerm(KindSeqUnit, c.solver.MkInteger(e))
		}
		return c.solver.MkTerm(KindSeqConcat, units...)
	case *translator.StringArrayValue:
		units := make([]Term, len(value.Elems))
		for i, e := range value.Elems {
			units[i] = c.solver.MkTerm(KindSeqUnit, c.solver.MkString(e))
		}
		return c.solver.MkTerm(KindSeqConcat, units...)
	}
	return nil
}

func (c *Checker) typeToSort(t typeinfer.Type) Sort {
	switch t {
	case typeinfer.Int:
		return c.solver.IntSort()
	case typeinfer.String:
		return c.solver.StringSort()
	case typeinfer.Bool:
		return c.solver.BoolSort()
	case typeinfer.IntArray:
		return c.solver.SeqSort(c.solver.IntSort())
	case typeinfer.StringArray:
		return c.solver.SeqSort(c.solver.StringSort())
	case typeinfer.BoolArray:
		return c.solver.SeqSort(c.solver.BoolSort())
	case typeinfer.AnyArray:
		return c.solver.SeqSort(c.solver.IntSort())
	}
	// An untyped symbol defaults to integer.
	return c.solver.IntSort()
}

// intern declares a constant once per name and reuses it afterwards.
func (c *Checker) intern(name string, sort Sort) Term {
	if term, ok := c.symbols[name]; ok {
		return term
	}
	term := c.solver.MkConst(name, sort)
	c.symbols[name] = term
	return term
}

// pathSymbol declares a constant for a variable or attribute path, keyed by
// its serialized form.
func (c *Checker) pathSymbol(n msl.Node) Term {
	name := c.serializer.Serialize(n)
	return c.intern(name, c.typeToSort(c.types[n]))
}

func (c *Checker) lowerGetItem(node *msl.GetItem) (Term, error) {
	// String-indexed accesses are map lookups: one symbol per full path.
	if _, ok := node.Index.(*msl.String); ok {
		return c.pathSymbol(node), nil
	}
	seq, err := c.sequenceTerm(node.Obj, c.types[node])
	if err != nil {
		return nil, err
	}
	index, err := c.lower(node.Index)
	if err != nil {
		return nil, err
	}
	return c.solver.MkTerm(KindSeqNth, seq, index), nil
}

// sequenceTerm lowers an expression in sequence position: knowledge
// references and literal arrays lower to their terms, everything else
// becomes a sequence symbol named by the serialized path. elemType is the
// expected element type when the path itself is untyped.
func (c *Checker) sequenceTerm(n msl.Node, elemType typeinfer.Type) (Term, error) {
	switch node := n.(type) {
	case *msl.VarRef:
		if value, ok := c.knowledge[node.Name]; ok {
			return c.literalTerm(value), nil
		}
	case *msl.Array:
		return c.lowerArray(node)
	}

	var sort Sort
	if t, ok := c.types[n]; ok && isArrayType(t) {
		sort = c.typeToSort(t)
	} else {
		sort = c.solver.SeqSort(c.typeToSort(elemType))
	}
	name := c.serializer.Serialize(n)
	return c.intern(name, sort), nil
}

func isArrayType(t typeinfer.Type) bool {
	return t == typeinfer.IntArray || t == typeinfer.StringArray ||
		t == typeinfer.BoolArray || t == typeinfer.AnyArray
}

func (c *Checker) lowerArray(node *msl.Array) (Term, error) {
	units := make([]Term, len(node.Elems))
	for i, elem := range node.Elems {
		term, err := c.lower(elem)
		if err != nil {
			return nil, err
		}
		units[i] = c.solver.MkTerm(KindSeqUnit, term)
	}
	return c.solver.MkTerm(KindSeqConcat, units...), nil
}

func (c *Checker) lowerFuncCall(node *msl.FuncCall) (Term, error) {
	switch node.Name {
	case "length":
		if len(node.Args) != 1 {
			return nil, fmt.Errorf("length takes one argument, got %d", len(node.Args))
		}
		seq, err := c.sequenceTerm(node.Args[0], c.types[node.Args[0]].Elem())
		if err != nil {
			return nil, err
		}
		return c.solver.MkTerm(KindSeqLength, seq), nil

	case "reglang.contains":
		if len(node.Args) != 2 {
			return nil, fmt.Errorf("reglang.contains takes two arguments, got %d", len(node.Args))
		}
		seq, err := c.sequenceTerm(node.Args[0], c.types[node.Args[1]])
		if err != nil {
			return nil, err
		}
		elem, err := c.lower(node.Args[1])
		if err != nil {
			return nil, err
		}
		singleton := c.solver.MkTerm(KindSeqUnit, elem)
		return c.solver.MkTerm(KindSeqContains, seq, singleton), nil

	case "reglang.count":
		if len(node.Args) != 1 {
			return nil, fmt.Errorf("reglang.count takes one argument, got %d", len(node.Args))
		}
		array, ok := node.Args[0].(*msl.Array)
		if !ok {
			return nil, fmt.Errorf("reglang.count expects an array argument, got %T", node.Args[0])
		}
		one := c.solver.MkInteger(big.NewInt(1))
		zero := c.solver.MkInteger(big.NewInt(0))
		terms := make([]Term, len(array.Elems))
		for i, elem := range array.Elems {
			cond, err := c.lower(elem)
			if err != nil {
				return nil, err
			}
			terms[i] = c.solver.MkTerm(KindIte, cond, one, zero)
		}
		if len(terms) == 1 {
			return terms[0], nil
		}
		return c.solver.MkTerm(KindAdd, terms...), nil

	case "reglang.count_eq", "reglang.count_neq", "reglang.count_le",
		"reglang.count_ge", "reglang.count_lt", "reglang.count_gt",
		"reglang.count_member":
		// Counting helpers are modeled as uninterpreted integer functions
		// of their serialized argument list.
		name := c.serializer.Serialize(node)
		return c.intern(name, c.solver.IntSort()), nil
	}
	return nil, fmt.Errorf("cannot lower function %q", node.Name)
}
