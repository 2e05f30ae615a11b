package reglang

import (
	_ "embed"
)

// The RegLang grammar travels with the binary so downstream tooling that
// drives an external LALR generator can read the exact same definition the
// built-in parser implements.
//
//go:embed resources/reglang.lark
var grammarSource []byte

// Grammar returns the packaged reglang.lark grammar resource.
func Grammar() []byte {
	return grammarSource
}
