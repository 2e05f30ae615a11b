// Package testutil provides shared test doubles, most importantly an
// in-memory SMT solver that records the terms the satisfiability checker
// builds so tests can assert on their shape.
package testutil

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/luan-xiaokun/reglang2msl/pkg/satcheck"
)

// FakeSort is a comparable sort for the fake solver.
type FakeSort struct {
	Name string
	Elem *FakeSort
}

func (s *FakeSort) String() string {
	if s.Elem != nil {
		return fmt.Sprintf("%s<%s>", s.Name, s.Elem.String())
	}
	return s.Name
}

// FakeTerm renders itself as an s-expression so assertions can match on the
// lowered structure.
type FakeTerm struct {
	Repr string
	S    *FakeSort
}

func (t *FakeTerm) Sort() satcheck.Sort { return t.S }

func (t *FakeTerm) String() string { return t.Repr }

// FakeSolver is an in-memory satcheck.Solver. It performs no reasoning:
// CheckSat returns the configured result, and every declared constant and
// asserted formula is recorded verbatim.
type FakeSolver struct {
	// Result is what CheckSat reports; defaults to satcheck.ResultSat.
	Result satcheck.Result
	// Asserted collects the s-expression forms of all asserted formulas.
	Asserted []string
	// Declared collects constant declarations as "name:sort".
	Declared []string
	// Resets counts ResetAssertions calls.
	Resets int

	boolSort   *FakeSort
	intSort    *FakeSort
	stringSort *FakeSort
}

// NewFakeSolver creates a fake solver that reports sat.
func NewFakeSolver() *FakeSolver {
	return &FakeSolver{
		Result:     satcheck.ResultSat,
		boolSort:   &FakeSort{Name: "Bool"},
		intSort:    &FakeSort{Name: "Int"},
		stringSort: &FakeSort{Name: "String"},
	}
}

func (s *FakeSolver) BoolSort() satcheck.Sort   { return s.boolSort }
func (s *FakeSolver) IntSort() satcheck.Sort    { return s.intSort }
func (s *FakeSolver) StringSort() satcheck.Sort { return s.stringSort }

func (s *FakeSolver) SeqSort(elem satcheck.Sort) satcheck.Sort {
	return &FakeSort{Name: "Seq", Elem: elem.(*FakeSort)}
}

func (s *FakeSolver) MkInteger(v *big.Int) satcheck.Term {
	return &FakeTerm{Repr: v.String(), S: s.intSort}
}

func (s *FakeSolver) MkString(v string) satcheck.Term {
	return &FakeTerm{Repr: fmt.Sprintf("%q", v), S: s.stringSort}
}

func (s *FakeSolver) MkTrue() satcheck.Term {
	return &FakeTerm{Repr: "true", S: s.boolSort}
}

func (s *FakeSolver) MkFalse() satcheck.Term {
	return &FakeTerm{Repr: "false", S: s.boolSort}
}

func (s *FakeSolver) MkConst(name string, sort satcheck.Sort) satcheck.Term {
	fakeSort := sort.(*FakeSort)
	s.Declared = append(s.Declared, name+":"+fakeSort.String())
	return &FakeTerm{Repr: name, S: fakeSort}
}

func (s *FakeSolver) MkTerm(kind satcheck.Kind, args ...satcheck.Term) satcheck.Term {
	parts := make([]string, len(args))
	for i, arg := range args {
		parts[i] = arg.(*FakeTerm).Repr
	}
	repr := "(" + kind.String() + " " + strings.Join(parts, " ") + ")"
	return &FakeTerm{Repr: repr, S: s.resultSort(kind, args)}
}

func (s *FakeSolver) resultSort(kind satcheck.Kind, args []satcheck.Term) *FakeSort {
	switch kind {
	case satcheck.KindNot, satcheck.KindAnd, satcheck.KindOr,
		satcheck.KindEqual, satcheck.KindDistinct,
		satcheck.KindLeq, satcheck.KindLt, satcheck.KindGeq, satcheck.KindGt,
		satcheck.KindSeqContains:
		return s.boolSort
	case satcheck.KindAdd, satcheck.KindSub, satcheck.KindMult,
		satcheck.KindIntsDivision, satcheck.KindIntsModulus, satcheck.KindPow,
		satcheck.KindSeqLength:
		return s.intSort
	case satcheck.KindSeqUnit:
		return &FakeSort{Name: "Seq", Elem: args[0].(*FakeTerm).S}
	case satcheck.KindSeqConcat:
		return args[0].(*FakeTerm).S
	case satcheck.KindSeqNth:
		if elem := args[0].(*FakeTerm).S.Elem; elem != nil {
			return elem
		}
		return s.intSort
	case satcheck.KindIte:
		return args[1].(*FakeTerm).S
	}
	return s.intSort
}

func (s *FakeSolver) Assert(t satcheck.Term) {
	s.Asserted = append(s.Asserted, t.(*FakeTerm).Repr)
}

func (s *FakeSolver) CheckSat() (satcheck.Result, error) {
	return s.Result, nil
}

func (s *FakeSolver) ResetAssertions() {
	s.Asserted = nil
	s.Declared = nil
	s.Resets++
}
