// Package reglang provides the RegLang front end: a lexer and parser that
// turn regulatory rule source text into a generic parse tree, plus the
// packaged grammar resource and the language's shared literal conventions
// (case-folded strings, decimal or 0x-hex number conversion).
//
// The parse tree is deliberately untyped: every Tree node is named after
// the grammar rule that produced it, so the knowledge base interpreter and
// the rule transformer dispatch on Tree.Data the same way the grammar
// reads.
package reglang
