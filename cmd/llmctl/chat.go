package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/lumachat/llmcore/pkg/llm"
	"github.com/lumachat/llmcore/pkg/manager"
)

func chatCommand(ctx context.Context, argv []string, cfgPath string, streams ioStreams) error {
	set := flag.NewFlagSet("chat", flag.ContinueOnError)
	set.SetOutput(streams.err)
	var (
		providerFlag  = set.String("provider", "", "Provider name from the config file (defaults to the first entry).")
		modelFlag     = set.String("model", "", "Model identifier to request.")
		systemFlag    = set.String("system", "", "System prompt override for this turn.")
		streamFlag    = set.Bool("stream", false, "Print stream events as they arrive instead of the final result.")
		toolsFlag     = set.Bool("tools", false, "Expose configured MCP tools to the model.")
		reasoningFlag = set.Bool("reasoning", false, "Request the provider's reasoning channel.")
		convFlag      = set.String("conversation", "", "Conversation ID for busy-rejection bookkeeping.")
		configFlag    = set.String("config", cfgPath, "Path to the gateway config file.")
	)
	set.Usage = func() {
		fmt.Fprintln(streams.err, "Usage: llmctl chat [flags] \"prompt\"")
		fmt.Fprintln(streams.err, "\nFlags:")
		set.PrintDefaults()
		fmt.Fprintln(streams.err, "\nExamples:")
		fmt.Fprintln(streams.err, "  llmctl chat -model gpt-4o \"summarize this repo\"")
		fmt.Fprintln(streams.err, "  llmctl chat -provider claude -model claude-sonnet-4 -stream \"plan a release\"")
		fmt.Fprintln(streams.err, "  llmctl chat -tools -model gpt-4o \"what files changed today?\"")
	}
	if err := set.Parse(argv); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}
	prompt := strings.TrimSpace(strings.Join(set.Args(), " "))
	if prompt == "" {
		return errors.New("chat requires a prompt")
	}
	if strings.TrimSpace(*modelFlag) == "" {
		return errors.New("chat requires -model")
	}
	a, err := buildApp(ctx, *configFlag)
	if err != nil {
		return err
	}
	defer a.close(context.Background())

	providerName := strings.TrimSpace(*providerFlag)
	if providerName == "" {
		providerName = a.cfg.Providers[0].Name
	}
	req := &llm.ChatRequest{
		ConversationID: strings.TrimSpace(*convFlag),
		Provider:       providerName,
		Model:          *modelFlag,
		Messages:       []llm.Message{{Role: llm.RoleUser, Content: prompt}},
		Options: llm.Options{
			Stream:          *streamFlag,
			EnableTools:     *toolsFlag,
			EnableReasoning: *reasoningFlag,
			SystemPrompt:    *systemFlag,
		},
	}
	if *streamFlag {
		return streamChat(ctx, a.manager, req, streams.out)
	}
	result, err := a.manager.Run(ctx, req)
	if err != nil {
		return fmt.Errorf("chat: %w", err)
	}
	writeMarkdownResult(streams.out, result, providerName, *modelFlag)
	return nil
}

func streamChat(ctx context.Context, mgr *manager.Manager, req *llm.ChatRequest, out io.Writer) error {
	handle, err := mgr.RunStream(ctx, req)
	if err != nil {
		return fmt.Errorf("chat stream: %w", err)
	}
	if out == nil {
		for range handle.Events() {
		}
		return handle.Err()
	}
	fmt.Fprintln(out, "# llmctl chat (stream)")
	fmt.Fprintf(out, "- Provider: `%s`\n", req.Provider)
	fmt.Fprintf(out, "- Model: `%s`\n", req.Model)
	fmt.Fprintln(out, "\n```json")
	encoder := json.NewEncoder(out)
	encoder.SetEscapeHTML(false)
	for ev := range handle.Events() {
		if err := encoder.Encode(ev); err != nil {
			return fmt.Errorf("stream encode: %w", err)
		}
	}
	fmt.Fprintln(out, "```")
	return handle.Err()
}

func writeMarkdownResult(out io.Writer, res *llm.TurnResult, providerName, model string) {
	if out == nil || res == nil {
		return
	}
	fmt.Fprintln(out, "# llmctl chat")
	fmt.Fprintf(out, "- Provider: `%s`\n", providerName)
	fmt.Fprintf(out, "- Model: `%s`\n", model)
	fmt.Fprintf(out, "- Finish: `%s`\n", res.Finish)
	fmt.Fprintf(out, "- Rounds: %d\n", res.Rounds)
	if res.Reasoning != "" {
		fmt.Fprintln(out, "\n## Reasoning")
		fmt.Fprintf(out, "```\n%s\n```\n", res.Reasoning)
	}
	fmt.Fprintln(out, "\n## Output")
	fmt.Fprintf(out, "```\n%s\n```\n", res.Text)
	fmt.Fprintln(out, "\n## Usage")
	fmt.Fprintf(out, "- Prompt tokens: %d\n", res.Usage.PromptTokens)
	fmt.Fprintf(out, "- Completion tokens: %d\n", res.Usage.CompletionTokens)
	fmt.Fprintf(out, "- Total tokens: %d\n", res.Usage.TotalTokens)
	if len(res.ToolCalls) == 0 {
		return
	}
	fmt.Fprintln(out, "\n## Tool Calls")
	for _, call := range res.ToolCalls {
		status := "ok"
		if !call.Result.OK {
			status = "error"
		}
		fmt.Fprintf(out, "- `%s` round %d (%s): %dms\n", call.Call.Name, call.Round, status, call.Duration.Milliseconds())
	}
}
