// Package typeinfer assigns a type to every MSL AST node that matters for
// satisfiability checking.
//
// The pass is a mixed bottom-up and top-down propagation. Some node kinds
// force their children's types (logical connectives force bool, arithmetic
// forces int); others, like equality, first visit their children and unify
// what came back. Leaves with no intrinsic type, such as plain variable
// references, receive their type from the surrounding context.
package typeinfer

import (
	"fmt"
	"strings"

	"github.com/luan-xiaokun/reglang2msl/pkg/msl"
	"github.com/luan-xiaokun/reglang2msl/pkg/translator"
)

// Type is a type label assigned to an AST node.
type Type string

// The closed label set.
const (
	Int         Type = "int"
	String      Type = "string"
	Bool        Type = "bool"
	IntArray    Type = "int[]"
	StringArray Type = "string[]"
	BoolArray   Type = "bool[]"
	AnyArray    Type = "any[]"
	Unknown     Type = "unknown"
)

// Elem strips one level of array from a type label.
func (t Type) Elem() Type {
	return Type(strings.TrimSuffix(string(t), "[]"))
}

func (t Type) isKnowledgeArray() bool {
	return t == IntArray || t == StringArray
}

// Inference infers node types for a transition body. Knowledge reference
// variables carry the type of their bound value.
type Inference struct {
	knowledgeType map[string]Type
	types         map[msl.Node]Type
}

// New creates an inference pass over the given knowledge map.
func New(knowledge *translator.Knowledge) *Inference {
	knowledgeType := make(map[string]Type)
	for name, value := range knowledge.Flatten() {
		knowledgeType[name] = valueType(value)
	}
	return &Inference{knowledgeType: knowledgeType}
}

func valueType(v translator.KValue) Type {
	switch v.Kind() {
	case translator.KindInt:
		return Int
	case translator.KindString:
		return String
	case translator.KindIntArray:
		return IntArray
	case translator.KindStringArray:
		return StringArray
	}
	return Unknown
}

// Infer types a transition body and returns the node type map. Each call
// starts from a clean map, so one Inference may serve many bodies built
// over the same knowledge.
func (inf *Inference) Infer(body *msl.TransitionBody) (map[msl.Node]Type, error) {
	inf.types = make(map[msl.Node]Type)

	for _, stmt := range body.Stmts {
		assign, ok := stmt.(*msl.AssignStmt)
		if !ok {
			continue
		}
		// Each assignment looks like: output.value = cond ? then : output.value
		lhs, ok := assign.LHS.(*msl.GetAttr)
		if !ok {
			return nil, fmt.Errorf("expected attribute access on the left of a rule assignment, got %T", assign.LHS)
		}
		cond, ok := assign.RHS.(*msl.ConditionalExpr)
		if !ok {
			return nil, fmt.Errorf("expected conditional on the right of a rule assignment, got %T", assign.RHS)
		}
		inf.types[lhs] = Int
		inf.types[cond] = Int
		inf.types[cond.Cond] = Bool
		inf.types[cond.Then] = Int
		inf.types[cond.Else] = Int

		conditions := []msl.Node{cond.Cond}
		candidate := cond.Then
		for {
			nested, ok := candidate.(*msl.ConditionalExpr)
			if !ok {
				break
			}
			conditions = append(conditions, nested.Cond)
			candidate = nested.Else
		}
		if _, ok := candidate.(*msl.GetAttr); !ok {
			return nil, fmt.Errorf("expected the conditional chain to end at output.value, got %T", candidate)
		}

		for _, c := range conditions {
			inf.types[c] = Bool
			if _, err := inf.visit(c); err != nil {
				return nil, err
			}
		}
	}
	return inf.types, nil
}

func (inf *Inference) lookup(n msl.Node, fallback Type) Type {
	if t, ok := inf.types[n]; ok {
		return t
	}
	return fallback
}

func (inf *Inference) force(n msl.Node, t Type) error {
	inf.types[n] = t
	_, err := inf.visit(n)
	return err
}

func (inf *Inference) visit(n msl.Node) (Type, error) {
	switch node := n.(type) {
	case *msl.NotExpr:
		if err := inf.force(node.Operand, Bool); err != nil {
			return "", err
		}
		return Bool, nil
	case *msl.AndExpr:
		if err := inf.force(node.Left, Bool); err != nil {
			return "", err
		}
		if err := inf.force(node.Right, Bool); err != nil {
			return "", err
		}
		return Bool, nil
	case *msl.OrExpr:
		if err := inf.force(node.Left, Bool); err != nil {
			return "", err
		}
		if err := inf.force(node.Right, Bool); err != nil {
			return "", err
		}
		return Bool, nil
	case *msl.CompareExpr:
		if err := inf.force(node.Left, Int); err != nil {
			return "", err
		}
		if err := inf.force(node.Right, Int); err != nil {
			return "", err
		}
		return Bool, nil
	case *msl.EqualityExpr:
		return inf.visitEquality(node)
	case *msl.AddExpr:
		if err := inf.force(node.Left, Int); err != nil {
			return "", err
		}
		if err := inf.force(node.Right, Int); err != nil {
			return "", err
		}
		return Int, nil
	case *msl.MulExpr:
		if err := inf.force(node.Left, Int); err != nil {
			return "", err
		}
		if err := inf.force(node.Right, Int); err != nil {
			return "", err
		}
		return Int, nil
	case *msl.PowerExpr:
		if err := inf.force(node.Base, Int); err != nil {
			return "", err
		}
		if err := inf.force(node.Exponent, Int); err != nil {
			return "", err
		}
		return Int, nil
	case *msl.FuncCall:
		return inf.visitFuncCall(node)
	case *msl.VarRef:
		fallback := Unknown
		if t, ok := inf.knowledgeType[node.Name]; ok {
			fallback = t
		}
		return inf.lookup(node, fallback), nil
	case *msl.GetItem:
		// The object side is never visited: attribute paths get their type
		// from context, not from their structure.
		if _, isString := node.Index.(*msl.String); !isString {
			if err := inf.force(node.Index, Int); err != nil {
				return "", err
			}
		}
		return inf.lookup(node, Unknown), nil
	case *msl.GetAttr:
		return inf.visitGetAttr(node)
	case *msl.Array:
		return inf.visitArray(node)
	case *msl.ConstTrue, *msl.ConstFalse:
		return Bool, nil
	case *msl.Number:
		return Int, nil
	case *msl.String:
		return String, nil
	}
	return "", fmt.Errorf("cannot infer a type for node %T", n)
}

// visitEquality unifies the operand types: an int operand wins, then a
// string operand; two unknowns default to int.
func (inf *Inference) visitEquality(node *msl.EqualityExpr) (Type, error) {
	leftType, err := inf.visit(node.Left)
	if err != nil {
		return "", err
	}
	rightType, err := inf.visit(node.Right)
	if err != nil {
		return "", err
	}
	switch {
	case leftType == Int || rightType == Int:
		inf.types[node.Left] = Int
		inf.types[node.Right] = Int
	case leftType == String || rightType == String:
		inf.types[node.Left] = String
		inf.types[node.Right] = String
	case leftType == Unknown && rightType == Unknown:
		inf.types[node.Left] = Int
		inf.types[node.Right] = Int
	default:
		return "", fmt.Errorf("conflicting equality operand types %s and %s", leftType, rightType)
	}
	return Bool, nil
}

func (inf *Inference) visitFuncCall(node *msl.FuncCall) (Type, error) {
	switch node.Name {
	case "length":
		if len(node.Args) != 1 {
			return "", fmt.Errorf("length takes one argument, got %d", len(node.Args))
		}
		arrayType, err := inf.visit(node.Args[0])
		if err != nil {
			return "", err
		}
		if !arrayType.isKnowledgeArray() {
			arrayType = AnyArray
		}
		inf.types[node.Args[0]] = arrayType
		return inf.lookup(node, Int), nil

	case "reglang.count":
		if len(node.Args) != 1 {
			return "", fmt.Errorf("reglang.count takes one argument, got %d", len(node.Args))
		}
		array, ok := node.Args[0].(*msl.Array)
		if !ok {
			return "", fmt.Errorf("reglang.count expects an array argument, got %T", node.Args[0])
		}
		for _, elem := range array.Elems {
			if err := inf.force(elem, Bool); err != nil {
				return "", err
			}
		}
		return inf.lookup(node, Int), nil

	case "reglang.count_member":
		if len(node.Args) != 2 {
			return "", fmt.Errorf("reglang.count_member takes two arguments, got %d", len(node.Args))
		}
		if _, ok := node.Args[0].(*msl.VarRef); !ok {
			return "", fmt.Errorf("reglang.count_member expects a knowledge reference, got %T", node.Args[0])
		}
		knowledgeType, err := inf.visit(node.Args[0])
		if err != nil {
			return "", err
		}
		if !knowledgeType.isKnowledgeArray() {
			return "", fmt.Errorf("reglang.count_member expects an array knowledge reference, got %s", knowledgeType)
		}
		inf.types[node.Args[1]] = knowledgeType
		arrayType, err := inf.visit(node.Args[1])
		if err != nil {
			return "", err
		}
		if _, isItem := node.Args[1].(*msl.GetItem); arrayType != knowledgeType && !isItem {
			return "", fmt.Errorf("conflicting member types %s and %s", arrayType, knowledgeType)
		}
		return inf.lookup(node, Int), nil

	case "reglang.contains":
		if len(node.Args) != 2 {
			return "", fmt.Errorf("reglang.contains takes two arguments, got %d", len(node.Args))
		}
		if _, ok := node.Args[0].(*msl.VarRef); !ok {
			return "", fmt.Errorf("reglang.contains expects a knowledge reference, got %T", node.Args[0])
		}
		knowledgeType, err := inf.visit(node.Args[0])
		if err != nil {
			return "", err
		}
		if !knowledgeType.isKnowledgeArray() {
			return "", fmt.Errorf("reglang.contains expects an array knowledge reference, got %s", knowledgeType)
		}
		if err := inf.force(node.Args[1], knowledgeType.Elem()); err != nil {
			return "", err
		}
		return inf.lookup(node, Bool), nil

	case "reglang.count_eq", "reglang.count_neq", "reglang.count_le",
		"reglang.count_ge", "reglang.count_lt", "reglang.count_gt":
		if len(node.Args) != 2 {
			return "", fmt.Errorf("%s takes two arguments, got %d", node.Name, len(node.Args))
		}
		// The first argument is the counted array, the second the compared
		// value; whichever side has a concrete type fixes the other.
		arrayType, err := inf.visit(node.Args[0])
		if err != nil {
			return "", err
		}
		elementType, err := inf.visit(node.Args[1])
		if err != nil {
			return "", err
		}
		switch {
		case elementType == Int || elementType == String:
			inf.types[node.Args[0]] = elementType + "[]"
			inf.types[node.Args[1]] = elementType
		case arrayType.isKnowledgeArray():
			inf.types[node.Args[0]] = arrayType
			inf.types[node.Args[1]] = arrayType.Elem()
		default:
			return "", fmt.Errorf("%s needs at least one argument with a concrete type", node.Name)
		}
		return inf.lookup(node, Int), nil
	}
	return "", fmt.Errorf("cannot infer a type for function %q", node.Name)
}

func (inf *Inference) visitGetAttr(node *msl.GetAttr) (Type, error) {
	if obj, ok := node.Obj.(*msl.VarRef); ok {
		if node.Name == "value" && obj.Name == "output" {
			return Int, nil
		}
		if obj.Name == "tx" {
			switch node.Name {
			case "from", "to", "function":
				return String, nil
			}
		}
	}
	if item, ok := node.Obj.(*msl.GetItem); ok {
		if obj, ok := item.Obj.(*msl.VarRef); ok && obj.Name == "contract" {
			switch node.Name {
			case "name", "owner":
				return String, nil
			}
		}
	}
	return inf.lookup(node, Unknown), nil
}

func (inf *Inference) visitArray(node *msl.Array) (Type, error) {
	if len(node.Elems) == 0 {
		return "", fmt.Errorf("expecting at least one element in array")
	}
	switch node.Elems[0].(type) {
	case *msl.Number:
		for _, elem := range node.Elems {
			if _, ok := elem.(*msl.Number); !ok {
				return "", fmt.Errorf("mixed element kinds in number array")
			}
		}
		return IntArray, nil
	case *msl.String:
		for _, elem := range node.Elems {
			if _, ok := elem.(*msl.String); !ok {
				return "", fmt.Errorf("mixed element kinds in string array")
			}
		}
		return StringArray, nil
	}
	for _, elem := range node.Elems {
		if err := inf.force(elem, Bool); err != nil {
			return "", err
		}
	}
	return BoolArray, nil
}
