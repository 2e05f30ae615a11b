package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleSource = `
knowledgebase kb
knowledge blacklist = ["0xBAD"];
end

rule r
scope tx.function == "transfer";
prohibit tx.from in knowledgebase(kb).blacklist;
end
`

func TestTranslateRoundTrip(t *testing.T) {
	dir := t.TempDir()
	inputPath := filepath.Join(dir, "rules.rl")
	outputPath := filepath.Join(dir, "rules.msl")
	require.NoError(t, os.WriteFile(inputPath, []byte(sampleSource), 0o644))

	require.NoError(t, translate(inputPath, outputPath, cliConfig{}))

	output, err := os.ReadFile(outputPath)
	require.NoError(t, err)
	assert.Contains(t, string(output), "import reglang.contains")
	assert.Contains(t, string(output), `const ["0xbad"] as kb_blacklist;`)
	assert.Contains(t, string(output), "automaton Rule (")
}

func TestTranslateMissingInput(t *testing.T) {
	dir := t.TempDir()
	err := translate(filepath.Join(dir, "missing.rl"), filepath.Join(dir, "out.msl"), cliConfig{})
	require.Error(t, err)
}

func TestTranslateReportsSemanticErrors(t *testing.T) {
	dir := t.TempDir()
	inputPath := filepath.Join(dir, "bad.rl")
	require.NoError(t, os.WriteFile(inputPath,
		[]byte(`knowledgebase k knowledge foo = "bar" + 1; end`), 0o644))

	err := translate(inputPath, filepath.Join(dir, "out.msl"), cliConfig{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot be converted to number")
}

func TestRootCommandArgValidation(t *testing.T) {
	cmd := newRootCommand()
	cmd.SetArgs([]string{"only_one_arg"})
	err := cmd.Execute()
	require.Error(t, err)
}

func TestRootCommandConfigFile(t *testing.T) {
	dir := t.TempDir()
	inputPath := filepath.Join(dir, "rules.rl")
	outputPath := filepath.Join(dir, "rules.msl")
	configPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(inputPath, []byte(sampleSource), 0o644))
	require.NoError(t, os.WriteFile(configPath, []byte("verbose: true\nlog_json: true\n"), 0o644))

	cmd := newRootCommand()
	cmd.SetArgs([]string{"--config", configPath, inputPath, outputPath})
	require.NoError(t, cmd.Execute())

	_, err := os.Stat(outputPath)
	assert.NoError(t, err)
}
