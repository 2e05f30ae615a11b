package reglang

import (
	"fmt"
)

// Parser consumes tokens from the lexer and builds the RegLang parse tree.
// The tree shapes follow the grammar in resources/reglang.lark: every Tree
// is named after the rule that produced it, so the interpreter and the rule
// transformer can dispatch on Tree.Data.
type Parser struct {
	lexer *Lexer
	token Token // current token
	peek  Token // next token
}

// NewParser creates a parser. It fails when the packaged grammar resource
// is missing, which would mean a broken build.
func NewParser() (*Parser, error) {
	if len(Grammar()) == 0 {
		return nil, fmt.Errorf("reglang grammar resource is empty")
	}
	return &Parser{}, nil
}

// Parse parses a whole RegLang source text into a `start` tree.
func (p *Parser) Parse(source string) (*Tree, error) {
	p.lexer = NewLexer(source)
	if err := p.next(); err != nil {
		return nil, err
	}
	if err := p.next(); err != nil {
		return nil, err
	}

	start := NewTree("start")
	for p.token.Type != TokenEOF {
		var block *Tree
		var err error
		switch p.token.Type {
		case "knowledgebase":
			block, err = p.parseKnowledgeBaseBlock()
		case "rule":
			block, err = p.parseRuleBlock()
		default:
			return nil, p.errorf("expected 'knowledgebase' or 'rule', got %q", p.token.Value)
		}
		if err != nil {
			return nil, err
		}
		start.Children = append(start.Children, block)
	}
	return start, nil
}

func (p *Parser) next() error {
	tok, err := p.lexer.NextToken()
	if err != nil {
		return err
	}
	p.token = p.peek
	p.peek = tok
	return nil
}

func (p *Parser) errorf(format string, args ...any) error {
	prefix := fmt.Sprintf("%d:%d: ", p.token.Line, p.token.Column)
	return fmt.Errorf(prefix+format, args...)
}

// expect consumes the current token when it has the wanted type.
func (p *Parser) expect(typ string) (Token, error) {
	if p.token.Type != typ {
		return Token{}, p.errorf("expected %s, got %q", typ, p.token.Value)
	}
	tok := p.token
	if err := p.next(); err != nil {
		return Token{}, err
	}
	return tok, nil
}

// knowledgebase_block: "knowledgebase" NAME knowledge_stmt* "end"
func (p *Parser) parseKnowledgeBaseBlock() (*Tree, error) {
	if _, err := p.expect("knowledgebase"); err != nil {
		return nil, err
	}
	name, err := p.expect(TokenName)
	if err != nil {
		return nil, err
	}
	block := NewTree("knowledgebase_block", name)
	for p.token.Type != "end" {
		var stmt *Tree
		switch p.token.Type {
		case "knowledge":
			stmt, err = p.parseKnowledgeInit()
		case TokenName:
			stmt, err = p.parseKnowledgeAlt()
		default:
			return nil, p.errorf("expected knowledge statement or 'end', got %q", p.token.Value)
		}
		if err != nil {
			return nil, err
		}
		block.Children = append(block.Children, stmt)
	}
	if _, err := p.expect("end"); err != nil {
		return nil, err
	}
	return block, nil
}

// knowledge_init: "knowledge" NAME "=" expr ";"
func (p *Parser) parseKnowledgeInit() (*Tree, error) {
	if _, err := p.expect("knowledge"); err != nil {
		return nil, err
	}
	name, err := p.expect(TokenName)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect("="); err != nil {
		return nil, err
	}
	def, err := p.parseCondition()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(";"); err != nil {
		return nil, err
	}
	return NewTree("knowledge_init", name, def), nil
}

// knowledge_alt: NAME "." ("add"|"del") "(" expr ")" ";"
func (p *Parser) parseKnowledgeAlt() (*Tree, error) {
	name, err := p.expect(TokenName)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect("."); err != nil {
		return nil, err
	}
	fn, err := p.expect(TokenName)
	if err != nil {
		return nil, err
	}
	if fn.Value != "add" && fn.Value != "del" {
		return nil, fmt.Errorf("%d:%d: expected 'add' or 'del', got %q", fn.Line, fn.Column, fn.Value)
	}
	if _, err := p.expect("("); err != nil {
		return nil, err
	}
	value, err := p.parseCondition()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(")"); err != nil {
		return nil, err
	}
	if _, err := p.expect(";"); err != nil {
		return nil, err
	}
	return NewTree("knowledge_alt", name, fn, value), nil
}

// rule_block: "rule" NAME reg_scope? check_stmt* "end"
func (p *Parser) parseRuleBlock() (*Tree, error) {
	if _, err := p.expect("rule"); err != nil {
		return nil, err
	}
	name, err := p.expect(TokenName)
	if err != nil {
		return nil, err
	}
	block := NewTree("rule_block", name)

	scope := NewTree("reg_scope", NewTree("const_true"))
	if p.token.Type == "scope" {
		if err := p.next(); err != nil {
			return nil, err
		}
		cond, err := p.parseCondition()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(";"); err != nil {
			return nil, err
		}
		scope = NewTree("reg_scope", cond)
	}
	block.Children = append(block.Children, scope)

	for p.token.Type != "end" {
		var data string
		switch p.token.Type {
		case "require":
			data = "require_stmt"
		case "prohibit":
			data = "prohibit_stmt"
		default:
			return nil, p.errorf("expected 'require', 'prohibit' or 'end', got %q", p.token.Value)
		}
		if err := p.next(); err != nil {
			return nil, err
		}
		cond, err := p.parseCondition()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(";"); err != nil {
			return nil, err
		}
		block.Children = append(block.Children, NewTree(data, cond))
	}
	if _, err := p.expect("end"); err != nil {
		return nil, err
	}
	return block, nil
}

// parseCondition parses the lowest-precedence level: or_expr.
func (p *Parser) parseCondition() (*Tree, error) {
	left, err := p.parseConjunction()
	if err != nil {
		return nil, err
	}
	for p.token.Type == "or" {
		if err := p.next(); err != nil {
			return nil, err
		}
		right, err := p.parseConjunction()
		if err != nil {
			return nil, err
		}
		left = NewTree("or_expr", left, right)
	}
	return left, nil
}

func (p *Parser) parseConjunction() (*Tree, error) {
	left, err := p.parseNegation()
	if err != nil {
		return nil, err
	}
	for p.token.Type == "and" {
		if err := p.next(); err != nil {
			return nil, err
		}
		right, err := p.parseNegation()
		if err != nil {
			return nil, err
		}
		left = NewTree("and_expr", left, right)
	}
	return left, nil
}

func (p *Parser) parseNegation() (*Tree, error) {
	if p.token.Type == "not" {
		if err := p.next(); err != nil {
			return nil, err
		}
		operand, err := p.parseNegation()
		if err != nil {
			return nil, err
		}
		return NewTree("not_expr", operand), nil
	}
	return p.parseComparison()
}

// parseComparison handles quantifiers, comparisons and membership.
func (p *Parser) parseComparison() (*Tree, error) {
	switch p.token.Type {
	case "at":
		return p.parseBoundedQuantifier()
	case "any", "all":
		return p.parseUnboundedQuantifier()
	}

	left, err := p.parseSum()
	if err != nil {
		return nil, err
	}
	switch p.token.Type {
	case "<", "<=", ">", ">=", "==", "!=":
		op := p.token
		if err := p.next(); err != nil {
			return nil, err
		}
		right, err := p.parseSum()
		if err != nil {
			return nil, err
		}
		return NewTree("compare_expr", left, op, right), nil
	case "in":
		if err := p.next(); err != nil {
			return nil, err
		}
		ref, err := p.parseKnowledgeRef()
		if err != nil {
			return nil, err
		}
		return NewTree("membership", left, ref), nil
	}
	return left, nil
}

// at_least: "at" "least" sum "(" cond ")" ; at_most mirrors it.
func (p *Parser) parseBoundedQuantifier() (*Tree, error) {
	if _, err := p.expect("at"); err != nil {
		return nil, err
	}
	data := ""
	switch p.token.Type {
	case "least":
		data = "at_least"
	case "most":
		data = "at_most"
	default:
		return nil, p.errorf("expected 'least' or 'most' after 'at', got %q", p.token.Value)
	}
	if err := p.next(); err != nil {
		return nil, err
	}
	bound, err := p.parseSum()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect("("); err != nil {
		return nil, err
	}
	cond, err := p.parseCondition()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(")"); err != nil {
		return nil, err
	}
	return NewTree(data, bound, cond), nil
}

// any_item: "any" "(" cond ")" ; all_items: "all" "(" cond ")"
func (p *Parser) parseUnboundedQuantifier() (*Tree, error) {
	data := "any_item"
	if p.token.Type == "all" {
		data = "all_items"
	}
	if err := p.next(); err != nil {
		return nil, err
	}
	if _, err := p.expect("("); err != nil {
		return nil, err
	}
	cond, err := p.parseCondition()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(")"); err != nil {
		return nil, err
	}
	return NewTree(data, cond), nil
}

func (p *Parser) parseSum() (*Tree, error) {
	left, err := p.parseProduct()
	if err != nil {
		return nil, err
	}
	for p.token.Type == "+" || p.token.Type == "-" {
		op := p.token
		if err := p.next(); err != nil {
			return nil, err
		}
		right, err := p.parseProduct()
		if err != nil {
			return nil, err
		}
		left = NewTree("term", left, op, right)
	}
	return left, nil
}

func (p *Parser) parseProduct() (*Tree, error) {
	left, err := p.parsePower()
	if err != nil {
		return nil, err
	}
	for p.token.Type == "*" || p.token.Type == "/" || p.token.Type == "%" {
		op := p.token
		if err := p.next(); err != nil {
			return nil, err
		}
		right, err := p.parsePower()
		if err != nil {
			return nil, err
		}
		left = NewTree("factor", left, op, right)
	}
	return left, nil
}

// power is right associative: a ^ b ^ c parses as a ^ (b ^ c).
func (p *Parser) parsePower() (*Tree, error) {
	base, err := p.parsePostfix()
	if err != nil {
		return nil, err
	}
	if p.token.Type != "^" {
		return base, nil
	}
	if err := p.next(); err != nil {
		return nil, err
	}
	exponent, err := p.parsePower()
	if err != nil {
		return nil, err
	}
	return NewTree("power", base, exponent), nil
}

func (p *Parser) parsePostfix() (*Tree, error) {
	expr, err := p.parseAtom()
	if err != nil {
		return nil, err
	}
	for p.token.Type == "[" {
		if err := p.next(); err != nil {
			return nil, err
		}
		index, err := p.parseSum()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect("]"); err != nil {
			return nil, err
		}
		expr = NewTree("array_item", expr, index)
	}
	return expr, nil
}

func (p *Parser) parseAtom() (*Tree, error) {
	switch p.token.Type {
	case TokenNumber:
		tok := p.token
		if err := p.next(); err != nil {
			return nil, err
		}
		return NewTree("number", tok), nil
	case TokenString:
		tok := p.token
		if err := p.next(); err != nil {
			return nil, err
		}
		return NewTree("string", tok), nil
	case "true":
		if err := p.next(); err != nil {
			return nil, err
		}
		return NewTree("const_true"), nil
	case "false":
		if err := p.next(); err != nil {
			return nil, err
		}
		return NewTree("const_false"), nil
	case "[":
		return p.parseArray()
	case "length":
		return p.parseLength()
	case "count":
		return p.parseCount()
	case "knowledgebase":
		return p.parseKnowledgeRef()
	case "tx":
		return p.parseTxAttr()
	case "contract":
		return p.parseContractAttr()
	case TokenName:
		tok := p.token
		if err := p.next(); err != nil {
			return nil, err
		}
		return NewTree("var_ref", tok), nil
	case "(":
		if err := p.next(); err != nil {
			return nil, err
		}
		expr, err := p.parseCondition()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(")"); err != nil {
			return nil, err
		}
		return expr, nil
	}
	return nil, p.errorf("unexpected token %q in expression", p.token.Value)
}

// array: "[" (NUMBER|STRING) ("," (NUMBER|STRING))* "]"
// Arrays are literal only, and never empty.
func (p *Parser) parseArray() (*Tree, error) {
	if _, err := p.expect("["); err != nil {
		return nil, err
	}
	array := NewTree("array")
	for {
		switch p.token.Type {
		case TokenNumber, TokenString:
			array.Children = append(array.Children, p.token)
			if err := p.next(); err != nil {
				return nil, err
			}
		default:
			return nil, p.errorf("expected number or string in array, got %q", p.token.Value)
		}
		if p.token.Type != "," {
			break
		}
		if err := p.next(); err != nil {
			return nil, err
		}
	}
	if _, err := p.expect("]"); err != nil {
		return nil, err
	}
	return array, nil
}

func (p *Parser) parseLength() (*Tree, error) {
	if _, err := p.expect("length"); err != nil {
		return nil, err
	}
	if _, err := p.expect("("); err != nil {
		return nil, err
	}
	expr, err := p.parseCondition()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(")"); err != nil {
		return nil, err
	}
	return NewTree("length", expr), nil
}

func (p *Parser) parseCount() (*Tree, error) {
	if _, err := p.expect("count"); err != nil {
		return nil, err
	}
	if _, err := p.expect("("); err != nil {
		return nil, err
	}
	count := NewTree("count")
	for {
		cond, err := p.parseCondition()
		if err != nil {
			return nil, err
		}
		count.Children = append(count.Children, cond)
		if p.token.Type != "," {
			break
		}
		if err := p.next(); err != nil {
			return nil, err
		}
	}
	if _, err := p.expect(")"); err != nil {
		return nil, err
	}
	return count, nil
}

// knowledge_ref: "knowledgebase" "(" NAME ")" "." NAME
func (p *Parser) parseKnowledgeRef() (*Tree, error) {
	if _, err := p.expect("knowledgebase"); err != nil {
		return nil, err
	}
	if _, err := p.expect("("); err != nil {
		return nil, err
	}
	kbName, err := p.expect(TokenName)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(")"); err != nil {
		return nil, err
	}
	if _, err := p.expect("."); err != nil {
		return nil, err
	}
	kName, err := p.expect(TokenName)
	if err != nil {
		return nil, err
	}
	return NewTree("knowledge_ref", kbName, kName), nil
}

// tx attributes:
//
//	tx.from | tx.to | tx.function                  -> tx_basic
//	tx.args.NAME                                   -> tx_args
//	tx.readset(addr).NAME | tx.writeset(addr).NAME -> tx_state
func (p *Parser) parseTxAttr() (*Tree, error) {
	if _, err := p.expect("tx"); err != nil {
		return nil, err
	}
	if _, err := p.expect("."); err != nil {
		return nil, err
	}
	attr, err := p.expect(TokenName)
	if err != nil {
		return nil, err
	}
	switch attr.Value {
	case "readset", "writeset":
		if _, err := p.expect("("); err != nil {
			return nil, err
		}
		addr, err := p.parseSum()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(")"); err != nil {
			return nil, err
		}
		if _, err := p.expect("."); err != nil {
			return nil, err
		}
		name, err := p.expect(TokenName)
		if err != nil {
			return nil, err
		}
		return NewTree("tx_state", attr, addr, NewTree("var_ref", name)), nil
	case "args":
		if _, err := p.expect("."); err != nil {
			return nil, err
		}
		name, err := p.expect(TokenName)
		if err != nil {
			return nil, err
		}
		return NewTree("tx_args", NewTree("var_ref", name)), nil
	case "from", "to", "function":
		return NewTree("tx_basic", attr), nil
	}
	return nil, fmt.Errorf("%d:%d: unknown transaction attribute %q", attr.Line, attr.Column, attr.Value)
}

// contract attributes:
//
//	contract(addr).name | contract(addr).owner -> contract_basic
//	contract(addr).state.NAME                  -> contract_state
func (p *Parser) parseContractAttr() (*Tree, error) {
	if _, err := p.expect("contract"); err != nil {
		return nil, err
	}
	if _, err := p.expect("("); err != nil {
		return nil, err
	}
	addr, err := p.parseSum()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(")"); err != nil {
		return nil, err
	}
	if _, err := p.expect("."); err != nil {
		return nil, err
	}
	attr, err := p.expect(TokenName)
	if err != nil {
		return nil, err
	}
	switch attr.Value {
	case "state":
		if _, err := p.expect("."); err != nil {
			return nil, err
		}
		name, err := p.expect(TokenName)
		if err != nil {
			return nil, err
		}
		return NewTree("contract_state", addr, NewTree("var_ref", name)), nil
	case "name", "owner":
		return NewTree("contract_basic", addr, attr), nil
	}
	return nil, fmt.Errorf("%d:%d: unknown contract attribute %q", attr.Line, attr.Column, attr.Value)
}
