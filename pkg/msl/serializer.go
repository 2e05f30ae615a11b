package msl

import (
	"fmt"
	"strings"
)

// Operator precedence, tightest first. Nodes outside this table (literals,
// references, calls) never need parenthesizing.
var precedence = map[string]int{
	"power_expr":       1,
	"mul_expr":         2,
	"add_expr":         3,
	"equality_expr":    4,
	"compare_expr":     5,
	"not_expr":         6,
	"and_expr":         7,
	"or_expr":          8,
	"conditional_expr": 9,
}

func kindOf(n Node) string {
	switch n.(type) {
	case *ConditionalExpr:
		return "conditional_expr"
	case *OrExpr:
		return "or_expr"
	case *AndExpr:
		return "and_expr"
	case *NotExpr:
		return "not_expr"
	case *EqualityExpr:
		return "equality_expr"
	case *CompareExpr:
		return "compare_expr"
	case *AddExpr:
		return "add_expr"
	case *MulExpr:
		return "mul_expr"
	case *PowerExpr:
		return "power_expr"
	default:
		return ""
	}
}

// Serializer renders MSL ASTs as source text, adding parentheses only where
// precedence or right-associativity requires them.
type Serializer struct{}

// NewSerializer creates a serializer.
func NewSerializer() *Serializer {
	return &Serializer{}
}

// Serialize renders a node.
func (s *Serializer) Serialize(n Node) string {
	switch node := n.(type) {
	case *TransitionBody:
		if len(node.Stmts) == 0 {
			return ""
		}
		parts := make([]string, len(node.Stmts))
		for i, stmt := range node.Stmts {
			parts[i] = s.Serialize(stmt)
		}
		return strings.Join(parts, "\n") + "\n"
	case *AssignStmt:
		return fmt.Sprintf("%s %s %s;", s.Serialize(node.LHS), node.Op, s.Serialize(node.RHS))
	case *SkipStmt:
		return ";"
	case *ConditionalExpr:
		return s.conditional(node)
	case *OrExpr:
		return s.binary("or_expr", "||", node.Left, node.Right)
	case *AndExpr:
		return s.binary("and_expr", "&&", node.Left, node.Right)
	case *NotExpr:
		operand := s.Serialize(node.Operand)
		switch node.Operand.(type) {
		case *EqualityExpr, *CompareExpr, *AndExpr, *OrExpr:
			operand = "(" + operand + ")"
		}
		return "!" + operand
	case *EqualityExpr:
		return s.binary("equality_expr", node.Op, node.Left, node.Right)
	case *CompareExpr:
		return s.binary("compare_expr", node.Op, node.Left, node.Right)
	case *AddExpr:
		return s.binary("add_expr", node.Op, node.Left, node.Right)
	case *MulExpr:
		return s.binary("mul_expr", node.Op, node.Left, node.Right)
	case *PowerExpr:
		return s.binary("power_expr", "**", node.Base, node.Exponent)
	case *FuncCall:
		args := make([]string, len(node.Args))
		for i, arg := range node.Args {
			args[i] = s.Serialize(arg)
		}
		return node.Name + "(" + strings.Join(args, ", ") + ")"
	case *VarRef:
		return node.Name
	case *GetAttr:
		return s.Serialize(node.Obj) + "." + node.Name
	case *GetItem:
		return s.Serialize(node.Obj) + "[" + s.Serialize(node.Index) + "]"
	case *Array:
		elems := make([]string, len(node.Elems))
		for i, elem := range node.Elems {
			elems[i] = s.Serialize(elem)
		}
		return "[" + strings.Join(elems, ", ") + "]"
	case *Number:
		return node.Value
	case *String:
		return node.Value
	case *ConstTrue:
		return "true"
	case *ConstFalse:
		return "false"
	}
	panic(fmt.Sprintf("msl: unknown node %T", n))
}

func (s *Serializer) binary(this, operator string, left, right Node) string {
	leftStr := s.Serialize(left)
	rightStr := s.Serialize(right)
	leftKind := kindOf(left)
	rightKind := kindOf(right)
	// A power child on the left of a power needs parentheses: ** is right
	// associative.
	if higherPrecedence(this, leftKind) || (this == "power_expr" && leftKind == "power_expr") {
		leftStr = "(" + leftStr + ")"
	}
	if higherPrecedence(this, rightKind) {
		rightStr = "(" + rightStr + ")"
	}
	return leftStr + " " + operator + " " + rightStr
}

func higherPrecedence(this, that string) bool {
	other, ok := precedence[that]
	if !ok {
		return false
	}
	return precedence[this] < other
}

func (s *Serializer) conditional(node *ConditionalExpr) string {
	condStr := s.Serialize(node.Cond)
	thenStr := s.Serialize(node.Then)
	elseStr := s.Serialize(node.Else)

	if _, ok := precedence[kindOf(node.Cond)]; ok {
		condStr = "(" + condStr + ")"
	}
	thenStr = wrapBranch(node.Then, thenStr)
	elseStr = wrapBranch(node.Else, elseStr)

	lineBreak := " "
	if len(condStr) >= 30 {
		lineBreak = "\n"
	}
	return condStr + " ?" + lineBreak + thenStr + " : " + elseStr
}

// wrapBranch parenthesizes operator branches of a conditional, moving long
// ones onto their own indented block.
func wrapBranch(n Node, rendered string) string {
	if _, ok := precedence[kindOf(n)]; !ok {
		return rendered
	}
	if len(rendered) < 50 {
		return "(" + rendered + ")"
	}
	return "(\n" + Indent(rendered, "    ") + "\n)"
}

// Indent prefixes every non-empty line of s.
func Indent(s, prefix string) string {
	if s == "" {
		return s
	}
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		if line != "" {
			lines[i] = prefix + line
		}
	}
	return strings.Join(lines, "\n")
}
