// Command reglang2msl-plugin runs a benthos stream processor that compiles
// RegLang payloads flowing through a pipeline into MSL programs, so rule
// repositories can be translated on ingest.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/redpanda-data/benthos/v4/public/service"

	"github.com/luan-xiaokun/reglang2msl/pkg/reglang"
	"github.com/luan-xiaokun/reglang2msl/pkg/translator"
)

// ReglangProcessor compiles RegLang message payloads into MSL.
type ReglangProcessor struct {
	failOnError bool
	parser      *reglang.Parser
	generator   *translator.CodeGenerator
	logger      *service.Logger

	mCompiledTotal   *service.MetricCounter
	mErrorsTotal     *service.MetricCounter
	mCompileDuration *service.MetricTimer
}

func init() {
	err := service.RegisterProcessor(
		"reglang",
		reglangProcessorConfig(),
		func(conf *service.ParsedConfig, mgr *service.Resources) (service.Processor, error) {
			return newReglangProcessorFromConfig(conf, mgr)
		},
	)
	if err != nil {
		panic(err)
	}
}

// reglangProcessorConfig returns the config spec for a reglang processor.
func reglangProcessorConfig() *service.ConfigSpec {
	return service.NewConfigSpec().
		Summary("Compiles RegLang regulatory rule sources into MSL automaton programs.").
		Description("Each message payload is parsed as a RegLang program and replaced by the compiled MSL source. Knowledge bases are constant-folded and rule blocks become automaton transitions with deterministic error codes.").
		Field(service.NewBoolField("fail_on_error").
			Description("Whether a message that fails to compile is flagged as errored (true) or passed through unchanged (false).").
			Default(true)).
		Version("0.1.0")
}

func newReglangProcessorFromConfig(conf *service.ParsedConfig, mgr *service.Resources) (*ReglangProcessor, error) {
	failOnError, err := conf.FieldBool("fail_on_error")
	if err != nil {
		return nil, err
	}

	parser, err := reglang.NewParser()
	if err != nil {
		return nil, err
	}

	logger := mgr.Logger()
	metrics := mgr.Metrics()
	logger.Infof("RegLang processor configured. Fail on error: %t", failOnError)

	translatorSlog := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})).
		With("component", "reglang_translator")

	return &ReglangProcessor{
		failOnError:      failOnError,
		parser:           parser,
		generator:        translator.NewCodeGenerator(translator.WithLogger(translatorSlog)),
		logger:           logger,
		mCompiledTotal:   metrics.NewCounter("reglang_compiled_total"),
		mErrorsTotal:     metrics.NewCounter("reglang_errors_total"),
		mCompileDuration: metrics.NewTimer("reglang_compile_duration_seconds"),
	}, nil
}

// Process compiles one message payload.
func (p *ReglangProcessor) Process(ctx context.Context, msg *service.Message) (service.MessageBatch, error) {
	source, err := msg.AsBytes()
	if err != nil {
		p.mErrorsTotal.Incr(1)
		msg.SetError(fmt.Errorf("failed to get message payload: %w", err))
		return service.MessageBatch{msg}, nil
	}

	started := time.Now()
	mslCode, err := p.compile(string(source))
	p.mCompileDuration.Timing(time.Since(started).Nanoseconds())

	if err != nil {
		p.mErrorsTotal.Incr(1)
		if p.failOnError {
			p.logger.Errorf("RegLang compilation failed: %v", err)
			msg.SetError(err)
			return service.MessageBatch{msg}, nil
		}
		p.logger.Warnf("RegLang compilation failed, passing message through: %v", err)
		return service.MessageBatch{msg}, nil
	}

	p.mCompiledTotal.Incr(1)
	msg.SetBytes([]byte(mslCode))
	return service.MessageBatch{msg}, nil
}

func (p *ReglangProcessor) compile(source string) (string, error) {
	ast, err := p.parser.Parse(source)
	if err != nil {
		return "", fmt.Errorf("parsing reglang source: %w", err)
	}
	mslCode, err := p.generator.Generate(ast)
	if err != nil {
		return "", fmt.Errorf("translating reglang source: %w", err)
	}
	return mslCode, nil
}

// Close satisfies service.Processor; the processor holds no resources.
func (p *ReglangProcessor) Close(ctx context.Context) error {
	return nil
}

func main() {
	service.RunCLI(context.Background())
}
