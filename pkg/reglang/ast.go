package reglang

import (
	"fmt"
	"strings"
)

// Child is either a *Tree or a Token. The parser produces a generic parse
// tree whose rule names mirror the grammar in resources/reglang.lark, so the
// downstream passes can dispatch on Tree.Data the same way the grammar reads.
type Child interface {
	isChild()
}

// Token is a terminal produced by the lexer, carrying its source position.
type Token struct {
	Type   string
	Value  string
	Line   int
	Column int
}

func (Token) isChild() {}

func (t Token) String() string {
	return fmt.Sprintf("%s(%q) at %d:%d", t.Type, t.Value, t.Line, t.Column)
}

// Tree is an interior parse-tree node named after a grammar rule.
type Tree struct {
	Data     string
	Children []Child
}

func (*Tree) isChild() {}

// NewTree builds a tree node.
func NewTree(data string, children ...Child) *Tree {
	return &Tree{Data: data, Children: children}
}

// Tokens returns the children as tokens; ok is false when any child is a tree.
func (t *Tree) Tokens() ([]Token, bool) {
	tokens := make([]Token, 0, len(t.Children))
	for _, c := range t.Children {
		tok, ok := c.(Token)
		if !ok {
			return nil, false
		}
		tokens = append(tokens, tok)
	}
	return tokens, true
}

// Trees returns the children as subtrees; ok is false when any child is a token.
func (t *Tree) Trees() ([]*Tree, bool) {
	trees := make([]*Tree, 0, len(t.Children))
	for _, c := range t.Children {
		sub, ok := c.(*Tree)
		if !ok {
			return nil, false
		}
		trees = append(trees, sub)
	}
	return trees, true
}

// Tree returns child i as a subtree.
func (t *Tree) Tree(i int) (*Tree, bool) {
	if i < 0 || i >= len(t.Children) {
		return nil, false
	}
	sub, ok := t.Children[i].(*Tree)
	return sub, ok
}

// Token returns child i as a token.
func (t *Tree) Token(i int) (Token, bool) {
	if i < 0 || i >= len(t.Children) {
		return Token{}, false
	}
	tok, ok := t.Children[i].(Token)
	return tok, ok
}

func (t *Tree) String() string {
	var b strings.Builder
	t.write(&b)
	return b.String()
}

func (t *Tree) write(b *strings.Builder) {
	b.WriteString(t.Data)
	b.WriteByte('(')
	for i, c := range t.Children {
		if i > 0 {
			b.WriteString(", ")
		}
		switch child := c.(type) {
		case *Tree:
			child.write(b)
		case Token:
			fmt.Fprintf(b, "%s:%q", child.Type, child.Value)
		}
	}
	b.WriteByte(')')
}
