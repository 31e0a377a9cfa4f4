package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/kestrelab/agentrun/config"
	"github.com/kestrelab/agentrun/flow"
	"github.com/kestrelab/agentrun/llm"
	"github.com/kestrelab/agentrun/orchestrator"
	"github.com/kestrelab/agentrun/toolkit"
)

type rootFlags struct {
	provider    string
	model       string
	maxSteps    int
	flowsFile   string
	workDir     string
	autoApprove bool
	verbose     bool
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:           "agentrun",
		Short:         "Run an autonomous LLM agent against a goal",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	run := &cobra.Command{
		Use:   "run [goal]",
		Short: "Run the agent loop until the goal is met",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAgent(cmd.Context(), flags, strings.Join(args, " "))
		},
	}
	run.Flags().StringVar(&flags.provider, "provider", "", "LLM provider (default: first detected from environment)")
	run.Flags().StringVar(&flags.model, "model", "", "model name (default: provider default)")
	run.Flags().IntVar(&flags.maxSteps, "max-steps", 0, "maximum model round-trips per run")
	run.Flags().StringVar(&flags.flowsFile, "flows", "", "YAML file of named flows")
	run.Flags().StringVar(&flags.workDir, "workdir", "", "working directory for tools")
	run.Flags().BoolVar(&flags.autoApprove, "yes", false, "approve the agent's finish without prompting")
	run.Flags().BoolVarP(&flags.verbose, "verbose", "v", false, "log every run event")

	flows := &cobra.Command{
		Use:   "flows",
		Short: "List the flows defined in a flow file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return listFlows(flags)
		},
	}
	flows.Flags().StringVar(&flags.flowsFile, "flows", "", "YAML file of named flows")

	root.AddCommand(run, flows)
	return root
}

func runAgent(ctx context.Context, flags *rootFlags, goal string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	applyFlags(cfg, flags)

	logger := newLogger(flags.verbose)

	client, err := llm.NewClientFromEnv()
	if err != nil {
		return err
	}
	defer client.Close()

	registry := orchestrator.NewRegistry()
	env := toolkit.NewLocalEnv(cfg.WorkDir)
	toolkit.Register(registry, env, toolkit.Options{})

	var flowRegistry *flow.Registry
	if cfg.FlowsFile != "" {
		flowRegistry, err = flow.Load(cfg.FlowsFile)
		if err != nil {
			return err
		}
		orchestrator.RegisterFlowTools(registry, flowRegistry)
	}

	o := orchestrator.New(client, registry, orchestrator.Config{
		Provider:                  cfg.Provider,
		Model:                     cfg.Model,
		MaxSteps:                  cfg.MaxSteps,
		HistoryBudget:             cfg.HistoryBudget,
		OutputCompactionThreshold: cfg.CompactThreshold,
		SkipConfirmation:          cfg.AutoApprove,
	})
	if flowRegistry != nil {
		o.SetFlows(flowRegistry)
	}
	o.SetSummarizer(&orchestrator.LLMSummarizer{
		Client:   client,
		Model:    cfg.Model,
		Provider: cfg.Provider,
	})
	o.SetTokenCounter(orchestrator.NewTokenCounter(cfg.TokenEncoding))
	if !cfg.AutoApprove {
		o.SetConfirmer(&stdinConfirmer{})
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		consumeEvents(o.Events(), logger, flags.verbose)
	}()

	output, err := o.Run(ctx, goal)
	o.Close()
	wg.Wait()
	if err != nil {
		return err
	}

	fmt.Println(output)
	return nil
}

func applyFlags(cfg *config.Config, flags *rootFlags) {
	if flags.provider != "" {
		cfg.Provider = flags.provider
	}
	if flags.model != "" {
		cfg.Model = flags.model
	}
	if flags.maxSteps > 0 {
		cfg.MaxSteps = flags.maxSteps
	}
	if flags.flowsFile != "" {
		cfg.FlowsFile = flags.flowsFile
	}
	if flags.workDir != "" {
		cfg.WorkDir = flags.workDir
	}
	if flags.autoApprove {
		cfg.AutoApprove = true
	}
}

func listFlows(flags *rootFlags) error {
	path := flags.flowsFile
	if path == "" {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		path = cfg.FlowsFile
	}
	if path == "" {
		return fmt.Errorf("no flow file given; use --flows or AGENTRUN_FLOWS_FILE")
	}

	registry, err := flow.Load(path)
	if err != nil {
		return err
	}
	for _, name := range registry.Names() {
		f, _ := registry.Resolve(name)
		if f.Description != "" {
			fmt.Printf("%s\t%s (%d steps)\n", name, f.Description, len(f.Steps))
		} else {
			fmt.Printf("%s\t(%d steps)\n", name, len(f.Steps))
		}
	}
	return nil
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// consumeEvents drains the run's event stream into the logger until the
// orchestrator closes the channel.
func consumeEvents(events <-chan orchestrator.Event, logger *slog.Logger, verbose bool) {
	for ev := range events {
		switch ev.Kind {
		case orchestrator.EventRunStart:
			logger.Info("run started", "goal", ev.Data["goal"])
		case orchestrator.EventThought:
			logger.Info("thought", "step", ev.Step, "text", ev.Data["thought"])
		case orchestrator.EventToolCallStart:
			logger.Info("tool call", "tool", ev.Data["tool"])
		case orchestrator.EventToolCallEnd:
			if errMsg, ok := ev.Data["error"]; ok {
				logger.Warn("tool failed", "tool", ev.Data["tool"], "error", errMsg)
			} else if verbose {
				logger.Debug("tool done", "tool", ev.Data["tool"])
			}
		case orchestrator.EventWarning:
			logger.Warn("warning", "message", ev.Data["message"])
		case orchestrator.EventError:
			logger.Warn("step error", "step", ev.Step, "error", ev.Data["error"])
		case orchestrator.EventFinished:
			logger.Info("run finished", "steps", ev.Data["steps"], "degraded", ev.Data["degraded"])
		default:
			if verbose {
				logger.Debug(string(ev.Kind), "step", ev.Step)
			}
		}
	}
}

// stdinConfirmer prompts the operator on the terminal.
type stdinConfirmer struct{}

func (stdinConfirmer) Prompt(ctx context.Context, text string) (string, error) {
	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, text)
	fmt.Fprint(os.Stderr, "> ")

	type readResult struct {
		line string
		err  error
	}
	ch := make(chan readResult, 1)
	go func() {
		reader := bufio.NewReader(os.Stdin)
		line, err := reader.ReadString('\n')
		ch <- readResult{strings.TrimSpace(line), err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-ch:
		if r.err != nil {
			return "", r.err
		}
		return r.line, nil
	}
}
