package translator

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luan-xiaokun/reglang2msl/pkg/reglang"
)

func parseSource(t *testing.T, source string) *reglang.Tree {
	t.Helper()
	parser, err := reglang.NewParser()
	require.NoError(t, err)
	tree, err := parser.Parse(source)
	require.NoError(t, err)
	return tree
}

func interpretSource(t *testing.T, source string) (*Knowledge, error) {
	t.Helper()
	return NewInterpreter().Interpret(parseSource(t, source))
}

func mustInterpret(t *testing.T, source string) *Knowledge {
	t.Helper()
	knowledge, err := interpretSource(t, source)
	require.NoError(t, err)
	return knowledge
}

func itemValue(t *testing.T, k *Knowledge, kb, item string) KValue {
	t.Helper()
	base, ok := k.Base(kb)
	require.True(t, ok, "knowledge base %q", kb)
	value, ok := base.Lookup(item)
	require.True(t, ok, "item %q", item)
	return value
}

func TestInterpretArrayAddDel(t *testing.T) {
	knowledge := mustInterpret(t, `
		knowledgebase kb
		knowledge foo = [1, 2, 3];
		foo.add(4);
		foo.del(2);
		end
	`)
	value := itemValue(t, knowledge, "kb", "foo")
	assert.Equal(t, "[1, 3, 4]", value.Format())
}

func TestInterpretAddIsIdempotent(t *testing.T) {
	base := mustInterpret(t, `
		knowledgebase kb
		knowledge foo = [1];
		end
	`)
	redeclared := mustInterpret(t, `
		knowledgebase kb
		knowledge foo = [1];
		foo.add(1);
		end
	`)
	assert.Equal(t,
		itemValue(t, base, "kb", "foo").Format(),
		itemValue(t, redeclared, "kb", "foo").Format())
}

func TestInterpretMixedKindCoercion(t *testing.T) {
	knowledge := mustInterpret(t, `
		knowledgebase kb
		knowledge a = [1];
		a.add("2");
		knowledge b = ["2"];
		b.add(1);
		end
	`)
	a := itemValue(t, knowledge, "kb", "a")
	assert.Equal(t, KindStringArray, a.Kind())
	assert.Equal(t, `["1", "2"]`, a.Format())

	b := itemValue(t, knowledge, "kb", "b")
	assert.Equal(t, `["2", "1"]`, b.Format())
}

func TestInterpretMixedKindDel(t *testing.T) {
	knowledge := mustInterpret(t, `
		knowledgebase kb
		knowledge a = [1, 2];
		a.del("2");
		end
	`)
	a := itemValue(t, knowledge, "kb", "a")
	assert.Equal(t, `["1"]`, a.Format())
}

func TestInterpretAddArrayValue(t *testing.T) {
	knowledge := mustInterpret(t, `
		knowledgebase kb
		knowledge a = [1, 2];
		a.add([2, 3, 4]);
		end
	`)
	assert.Equal(t, "[1, 2, 3, 4]", itemValue(t, knowledge, "kb", "a").Format())
}

func TestInterpretArithmetic(t *testing.T) {
	knowledge := mustInterpret(t, `
		knowledgebase kb
		knowledge a = 1 + 2 * 3;
		knowledge b = 7 / 2;
		knowledge c = 7 % 3;
		knowledge d = 2 ^ 10;
		knowledge e = "0x10" + "2";
		knowledge f = 1 - 5;
		end
	`)
	assert.Equal(t, "7", itemValue(t, knowledge, "kb", "a").Format())
	assert.Equal(t, "3", itemValue(t, knowledge, "kb", "b").Format())
	assert.Equal(t, "1", itemValue(t, knowledge, "kb", "c").Format())
	assert.Equal(t, "1024", itemValue(t, knowledge, "kb", "d").Format())
	assert.Equal(t, "18", itemValue(t, knowledge, "kb", "e").Format())
	assert.Equal(t, "-4", itemValue(t, knowledge, "kb", "f").Format())
}

func TestInterpretStringNormalization(t *testing.T) {
	knowledge := mustInterpret(t, `
		knowledgebase kb
		knowledge addr = "0xABC";
		end
	`)
	value := itemValue(t, knowledge, "kb", "addr")
	require.Equal(t, KindString, value.Kind())
	assert.Equal(t, `"0xabc"`, value.Format())
}

func TestInterpretInvalidArithmetic(t *testing.T) {
	tests := []string{
		`knowledgebase invalid_arith knowledge foo = "bar" + 1; end`,
		`knowledgebase invalid_arith knowledge foo = "0x1" + "baz"; end`,
		`knowledgebase invalid_arith knowledge foo = "bar" * "1"; end`,
		`knowledgebase invalid_arith knowledge foo = 10 * "baz"; end`,
		`knowledgebase invalid_arith knowledge foo = 2 ^ "3.0"; end`,
		`knowledgebase invalid_arith knowledge foo = "2.0" ^ 3; end`,
	}
	for _, source := range tests {
		_, err := interpretSource(t, source)
		var interpErr *InterpretationError
		require.ErrorAs(t, err, &interpErr, "source %q", source)
	}
}

func TestInterpretDivisionByZero(t *testing.T) {
	_, err := interpretSource(t, `knowledgebase kb knowledge foo = 1 / 0; end`)
	var interpErr *InterpretationError
	require.ErrorAs(t, err, &interpErr)
}

func TestInterpretForbiddenConstructs(t *testing.T) {
	tests := []string{
		`knowledgebase test knowledge foo = bar; end`,
		`knowledgebase test knowledge foo = tx.from; end`,
		`knowledgebase test knowledge foo = tx.readset(bar).baz; end`,
		`knowledgebase test knowledge foo = tx.args.bar; end`,
		`knowledgebase test knowledge foo = contract(bar).name; end`,
		`knowledgebase test knowledge foo = contract(bar).state.baz; end`,
		`knowledgebase test knowledge foo = count(true, false); end`,
		`knowledgebase test knowledge foo = 1 == 1; end`,
	}
	for _, source := range tests {
		_, err := interpretSource(t, source)
		var interpErr *InterpretationError
		require.ErrorAs(t, err, &interpErr, "source %q", source)
		assert.Contains(t, err.Error(), "not expected in knowledge definition", "source %q", source)
	}
}

func TestInterpretUndefinedKnowledge(t *testing.T) {
	_, err := interpretSource(t, `
		knowledgebase erroneous_knowledge
		knowledge foo = 2;
		bar.add(1);
		end
	`)
	var interpErr *InterpretationError
	require.ErrorAs(t, err, &interpErr)
	assert.Contains(t, err.Error(), "'bar' is not defined")
}

func TestInterpretAlterNonArray(t *testing.T) {
	_, err := interpretSource(t, `
		knowledgebase erroneous_knowledge
		knowledge foo = 2;
		foo.add(1);
		end
	`)
	var interpErr *InterpretationError
	require.ErrorAs(t, err, &interpErr)
	assert.Contains(t, err.Error(), "only support array objects")
}

func TestInterpretKnowledgeReferences(t *testing.T) {
	knowledge := mustInterpret(t, `
		knowledgebase array_item_access
		knowledge foo = [1, 2, 3];
		foo.add(4);
		end
		knowledgebase array_item_access_2
		knowledge bar = knowledgebase(array_item_access).foo[3];
		end
	`)
	assert.Equal(t, "4", itemValue(t, knowledge, "array_item_access_2", "bar").Format())
}

func TestInterpretReferenceDoesNotAliasArrays(t *testing.T) {
	knowledge := mustInterpret(t, `
		knowledgebase first
		knowledge foo = [1, 2];
		end
		knowledgebase second
		knowledge bar = knowledgebase(first).foo;
		bar.add(3);
		end
	`)
	assert.Equal(t, "[1, 2]", itemValue(t, knowledge, "first", "foo").Format())
	assert.Equal(t, "[1, 2, 3]", itemValue(t, knowledge, "second", "bar").Format())
}

func TestInterpretInvalidArrayIndex(t *testing.T) {
	tests := []string{
		`
		knowledgebase array_item_access
		knowledge foo = [1, 2, 3];
		end
		knowledgebase array_item_access_2
		knowledge bar = knowledgebase(array_item_access).foo[3];
		end
		`,
		`
		knowledgebase array_item_access
		knowledge foo = [1, 2, 3];
		end
		knowledgebase array_item_access_2
		knowledge bar = knowledgebase(array_item_access).foo["baz"];
		end
		`,
	}
	for _, source := range tests {
		_, err := interpretSource(t, source)
		var interpErr *InterpretationError
		require.ErrorAs(t, err, &interpErr, "source %q", source)
	}
}

func TestInterpretUndefinedReferences(t *testing.T) {
	tests := []struct {
		source  string
		message string
	}{
		{
			source: `
				knowledgebase foo
				knowledge bar = 1;
				end
				knowledgebase baz
				knowledge bar = knowledgebase(foo).buz;
				end
			`,
			message: "'buz' is not defined in 'foo'",
		},
		{
			source: `
				knowledgebase foo
				knowledge bar = 1;
				end
				knowledgebase baz
				knowledge bar = knowledgebase(buz).bar;
				end
			`,
			message: "knowledge base 'buz' is not defined",
		},
	}
	for _, tt := range tests {
		_, err := interpretSource(t, tt.source)
		var interpErr *InterpretationError
		require.ErrorAs(t, err, &interpErr)
		assert.Contains(t, err.Error(), tt.message)
	}
}

func TestInterpretLength(t *testing.T) {
	knowledge := mustInterpret(t, `
		knowledgebase foo
		knowledge bar = length([1, 2, 3]);
		end
	`)
	assert.Equal(t, "3", itemValue(t, knowledge, "foo", "bar").Format())

	// length of a non-array knowledge reference fails.
	_, err := interpretSource(t, `
		knowledgebase foo
		knowledge bar = length([1, 2, 3]);
		end
		knowledgebase baz
		knowledge buz = length(knowledgebase(foo).bar);
		end
	`)
	var interpErr *InterpretationError
	require.ErrorAs(t, err, &interpErr)
	assert.Contains(t, err.Error(), "length only applies to array")
}

func TestInterpretPowerWarning(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	interpreter := NewInterpreter(WithLogger(logger))

	_, err := interpreter.Interpret(parseSource(t, `knowledgebase test knowledge foo = 2 ^ 3; end`))
	require.NoError(t, err)
	assert.Empty(t, buf.String())

	_, err = interpreter.Interpret(parseSource(t, `knowledgebase test knowledge large = "10" ^ 4301; end`))
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "integer string conversion limit")
}

func TestInterpreterIsReusable(t *testing.T) {
	interpreter := NewInterpreter()

	first, err := interpreter.Interpret(parseSource(t, `knowledgebase a knowledge x = 1; end`))
	require.NoError(t, err)
	second, err := interpreter.Interpret(parseSource(t, `knowledgebase b knowledge y = 2; end`))
	require.NoError(t, err)

	_, ok := first.Base("a")
	assert.True(t, ok)
	_, ok = second.Base("a")
	assert.False(t, ok, "state from the first run must not leak")
}

func TestEmitterOutput(t *testing.T) {
	knowledge := mustInterpret(t, `
		knowledgebase kb
		knowledge foo = [1, 2, 3];
		foo.add(4);
		foo.del(2);
		knowledge threshold = 100;
		knowledge owner = "0xABC";
		end
	`)
	emitted := NewEmitter().Translate(knowledge)
	assert.Equal(t,
		"const [1, 3, 4] as kb_foo;\n"+
			"const 100 as kb_threshold;\n"+
			"const \"0xabc\" as kb_owner;\n\n",
		emitted)
}

func TestEmitterEmptyKnowledge(t *testing.T) {
	knowledge := mustInterpret(t, `rule r prohibit tx.from == "0x0"; end`)
	assert.Equal(t, "", NewEmitter().Translate(knowledge))
}

func TestFlatten(t *testing.T) {
	knowledge := mustInterpret(t, `
		knowledgebase kb
		knowledge foo = 1;
		end
		knowledgebase other
		knowledge bar = "x";
		end
	`)
	flat := knowledge.Flatten()
	require.Len(t, flat, 2)
	assert.Equal(t, KindInt, flat["kb_foo"].Kind())
	assert.Equal(t, KindString, flat["other_bar"].Kind())
}
