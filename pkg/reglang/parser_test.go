package reglang

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseSource(t *testing.T, source string) *Tree {
	t.Helper()
	parser, err := NewParser()
	require.NoError(t, err)
	tree, err := parser.Parse(source)
	require.NoError(t, err)
	return tree
}

func TestGrammarResourcePackaged(t *testing.T) {
	assert.NotEmpty(t, Grammar())
	assert.Contains(t, string(Grammar()), "knowledgebase_block")
}

func TestParseKnowledgeBaseBlock(t *testing.T) {
	tree := parseSource(t, `
		knowledgebase kb
		knowledge foo = [1, 2, 3];
		foo.add(4);
		foo.del(2);
		end
	`)
	require.Equal(t, "start", tree.Data)
	require.Len(t, tree.Children, 1)

	block, ok := tree.Tree(0)
	require.True(t, ok)
	assert.Equal(t, "knowledgebase_block", block.Data)

	name, ok := block.Token(0)
	require.True(t, ok)
	assert.Equal(t, "kb", name.Value)

	initStmt, ok := block.Tree(1)
	require.True(t, ok)
	assert.Equal(t, "knowledge_init", initStmt.Data)
	def, ok := initStmt.Tree(1)
	require.True(t, ok)
	assert.Equal(t, "array", def.Data)
	assert.Len(t, def.Children, 3)

	addStmt, ok := block.Tree(2)
	require.True(t, ok)
	assert.Equal(t, "knowledge_alt", addStmt.Data)
	fn, ok := addStmt.Token(1)
	require.True(t, ok)
	assert.Equal(t, "add", fn.Value)

	delStmt, ok := block.Tree(3)
	require.True(t, ok)
	fn, ok = delStmt.Token(1)
	require.True(t, ok)
	assert.Equal(t, "del", fn.Value)
}

func TestParseRuleBlockWithScope(t *testing.T) {
	tree := parseSource(t, `
		rule transfer_check
		scope tx.function == "transfer";
		require tx.from != "0x0";
		prohibit contract(tx.to).owner == "0x0";
		end
	`)
	block, ok := tree.Tree(0)
	require.True(t, ok)
	require.Equal(t, "rule_block", block.Data)
	require.Len(t, block.Children, 4)

	scope, ok := block.Tree(1)
	require.True(t, ok)
	assert.Equal(t, "reg_scope", scope.Data)
	cond, ok := scope.Tree(0)
	require.True(t, ok)
	assert.Equal(t, "compare_expr", cond.Data)

	requireStmt, ok := block.Tree(2)
	require.True(t, ok)
	assert.Equal(t, "require_stmt", requireStmt.Data)
	prohibitStmt, ok := block.Tree(3)
	require.True(t, ok)
	assert.Equal(t, "prohibit_stmt", prohibitStmt.Data)
}

func TestParseRuleBlockWithoutScope(t *testing.T) {
	tree := parseSource(t, `
		rule r
		prohibit tx.from == "0xabc";
		end
	`)
	block, ok := tree.Tree(0)
	require.True(t, ok)
	scope, ok := block.Tree(1)
	require.True(t, ok)
	require.Equal(t, "reg_scope", scope.Data)
	cond, ok := scope.Tree(0)
	require.True(t, ok)
	assert.Equal(t, "const_true", cond.Data)
}

func TestParsePrecedence(t *testing.T) {
	tree := parseSource(t, `
		knowledgebase kb
		knowledge foo = 1 + 2 * 3 ^ 4;
		end
	`)
	block, _ := tree.Tree(0)
	initStmt, _ := block.Tree(1)
	def, _ := initStmt.Tree(1)

	// 1 + (2 * (3 ^ 4))
	require.Equal(t, "term", def.Data)
	factor, ok := def.Tree(2)
	require.True(t, ok)
	require.Equal(t, "factor", factor.Data)
	power, ok := factor.Tree(2)
	require.True(t, ok)
	assert.Equal(t, "power", power.Data)
}

func TestParsePowerRightAssociative(t *testing.T) {
	tree := parseSource(t, `
		knowledgebase kb
		knowledge foo = 2 ^ 3 ^ 4;
		end
	`)
	block, _ := tree.Tree(0)
	initStmt, _ := block.Tree(1)
	def, _ := initStmt.Tree(1)

	require.Equal(t, "power", def.Data)
	base, ok := def.Tree(0)
	require.True(t, ok)
	assert.Equal(t, "number", base.Data)
	exponent, ok := def.Tree(1)
	require.True(t, ok)
	assert.Equal(t, "power", exponent.Data)
}

func TestParseLogicalPrecedence(t *testing.T) {
	tree := parseSource(t, `
		rule r
		scope true;
		require not a == 1 and b == 2 or c == 3;
		end
	`)
	block, _ := tree.Tree(0)
	stmt, _ := block.Tree(2)
	cond, ok := stmt.Tree(0)
	require.True(t, ok)

	// ((not (a == 1)) and (b == 2)) or (c == 3)
	require.Equal(t, "or_expr", cond.Data)
	left, ok := cond.Tree(0)
	require.True(t, ok)
	require.Equal(t, "and_expr", left.Data)
	notExpr, ok := left.Tree(0)
	require.True(t, ok)
	assert.Equal(t, "not_expr", notExpr.Data)
}

func TestParseQuantifiers(t *testing.T) {
	tests := []struct {
		source string
		data   string
	}{
		{`rule r scope true; require at least 2 (knowledgebase(kb).foo == 1); end`, "at_least"},
		{`rule r scope true; require at most 3 (knowledgebase(kb).foo == 1); end`, "at_most"},
		{`rule r scope true; require any (knowledgebase(kb).foo == 1); end`, "any_item"},
		{`rule r scope true; require all (knowledgebase(kb).foo == 1); end`, "all_items"},
	}
	for _, tt := range tests {
		tree := parseSource(t, tt.source)
		block, _ := tree.Tree(0)
		stmt, _ := block.Tree(2)
		cond, ok := stmt.Tree(0)
		require.True(t, ok)
		assert.Equal(t, tt.data, cond.Data, "source %q", tt.source)
	}
}

func TestParseMembership(t *testing.T) {
	tree := parseSource(t, `
		rule r
		scope true;
		prohibit tx.from in knowledgebase(kb).blacklist;
		end
	`)
	block, _ := tree.Tree(0)
	stmt, _ := block.Tree(2)
	cond, ok := stmt.Tree(0)
	require.True(t, ok)
	require.Equal(t, "membership", cond.Data)

	element, ok := cond.Tree(0)
	require.True(t, ok)
	assert.Equal(t, "tx_basic", element.Data)
	ref, ok := cond.Tree(1)
	require.True(t, ok)
	assert.Equal(t, "knowledge_ref", ref.Data)
}

func TestParseTransactionAttributes(t *testing.T) {
	tests := []struct {
		source string
		data   string
	}{
		{`rule r scope true; require tx.from == "0x1"; end`, "tx_basic"},
		{`rule r scope true; require tx.args.amount == 1; end`, "tx_args"},
		{`rule r scope true; require tx.readset(tx.to).balance == 1; end`, "tx_state"},
		{`rule r scope true; require tx.writeset(tx.to).balance == 1; end`, "tx_state"},
	}
	for _, tt := range tests {
		tree := parseSource(t, tt.source)
		block, _ := tree.Tree(0)
		stmt, _ := block.Tree(2)
		cond, _ := stmt.Tree(0)
		left, ok := cond.Tree(0)
		require.True(t, ok)
		assert.Equal(t, tt.data, left.Data, "source %q", tt.source)
	}
}

func TestParseContractAttributes(t *testing.T) {
	tree := parseSource(t, `
		rule r
		scope true;
		require contract(tx.to).name == "token";
		prohibit contract(tx.to).state.frozen == 1;
		end
	`)
	block, _ := tree.Tree(0)

	requireStmt, _ := block.Tree(2)
	cond, _ := requireStmt.Tree(0)
	left, ok := cond.Tree(0)
	require.True(t, ok)
	assert.Equal(t, "contract_basic", left.Data)

	prohibitStmt, _ := block.Tree(3)
	cond, _ = prohibitStmt.Tree(0)
	left, ok = cond.Tree(0)
	require.True(t, ok)
	assert.Equal(t, "contract_state", left.Data)
}

func TestParseErrors(t *testing.T) {
	tests := []string{
		"knowledgebase",
		"knowledgebase kb knowledge foo = ; end",
		"knowledgebase kb knowledge foo = [] ; end",
		"knowledgebase kb foo.push(1); end",
		"rule r scope true require x == 1; end",
		"rule r scope true; require tx.unknown == 1; end",
		"rule r scope true; require contract(tx.to).balance == 1; end",
		"garbage",
	}
	parser, err := NewParser()
	require.NoError(t, err)
	for _, source := range tests {
		_, err := parser.Parse(source)
		assert.Error(t, err, "source %q", source)
	}
}

func TestParseErrorCarriesPosition(t *testing.T) {
	parser, err := NewParser()
	require.NoError(t, err)
	_, err = parser.Parse("knowledgebase kb\nknowledge foo = ;\nend")
	require.Error(t, err)
	assert.Regexp(t, `^2:\d+:`, err.Error())
}

func TestTreeString(t *testing.T) {
	tree := parseSource(t, `knowledgebase kb knowledge foo = 1; end`)
	s := tree.String()
	assert.Contains(t, s, "knowledgebase_block")
	assert.Contains(t, s, "knowledge_init")
}
