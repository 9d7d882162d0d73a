// Command flowmesh validates and executes flow graphs from the command line.
//
// Usage:
//
//	flowmesh validate <flow.json>
//	flowmesh run <flow.json> [--input key=value] [--var key=value] [--stream]
//
// The run command registers every model provider whose credentials are
// present in the environment (OPENAI_API_KEY, ANTHROPIC_API_KEY,
// OLLAMA_HOST) and prints the final execution result as formatted JSON.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/tidwall/pretty"

	"github.com/ethanlchristensen/flowmesh"
	"github.com/ethanlchristensen/flowmesh/graph"
	"github.com/ethanlchristensen/flowmesh/logging"
	"github.com/ethanlchristensen/flowmesh/provider/anthropic"
	"github.com/ethanlchristensen/flowmesh/provider/ollama"
	"github.com/ethanlchristensen/flowmesh/provider/openai"
	"github.com/ethanlchristensen/flowmesh/run"
)

// version is set via ldflags at build time.
var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:           "flowmesh",
		Short:         "flowmesh executes directed flows of typed nodes",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(newValidateCmd(), newRunCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <flow.json>",
		Short: "Validate a flow graph without executing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := loadGraph(args[0])
			if err != nil {
				return err
			}
			vr := g.Validate()
			for _, w := range vr.Warnings {
				fmt.Fprintln(os.Stderr, "warning:", w)
			}
			if !vr.Valid {
				for _, e := range vr.Errors {
					fmt.Fprintln(os.Stderr, "error:", e.Error())
				}
				return fmt.Errorf("%d validation error(s)", len(vr.Errors))
			}
			fmt.Printf("%s: valid (%d nodes, %d edges)\n", g.ID, len(g.Nodes), len(g.Edges))
			return nil
		},
	}
}

func newRunCmd() *cobra.Command {
	var (
		inputs    map[string]string
		variables map[string]string
		stream    bool
		logLevel  string
		timeout   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "run <flow.json>",
		Short: "Execute a flow graph and print the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := loadGraph(args[0])
			if err != nil {
				return err
			}

			mesh := flowmesh.New(func(o *flowmesh.Options) {
				o.Logger = newLogger(logLevel)
			})
			registerProviders(mesh)

			ctx := cmd.Context()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			executionID, err := mesh.StartExecution(ctx, g, toAnyMap(inputs), toAnyMap(variables))
			if err != nil {
				return err
			}

			if stream {
				events, err := mesh.Subscribe(executionID)
				if err != nil {
					return err
				}
				for ev := range events {
					printEvent(ev)
				}
			}

			result, err := waitForResult(ctx, mesh, executionID)
			if err != nil {
				return err
			}

			data, err := json.Marshal(result)
			if err != nil {
				return err
			}
			os.Stdout.Write(pretty.Pretty(data))

			if result.Status != run.FlowCompleted {
				return fmt.Errorf("execution finished with status %s", result.Status)
			}
			return nil
		},
	}

	cmd.Flags().StringToStringVar(&inputs, "input", nil, "Initial input values (key=value, repeatable)")
	cmd.Flags().StringToStringVar(&variables, "var", nil, "Flow variable overrides (key=value, repeatable)")
	cmd.Flags().BoolVar(&stream, "stream", false, "Print run events as they happen")
	cmd.Flags().StringVar(&logLevel, "log-level", "warn", "Log level: debug, info, warn, error")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "Overall execution timeout (0 to disable)")

	return cmd
}

func loadGraph(path string) (*graph.Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read flow file: %w", err)
	}
	return graph.Parse(data)
}

// registerProviders wires every provider whose environment credentials are
// present, so a flow file can reference any of them by name.
func registerProviders(mesh *flowmesh.FlowMesh) {
	if os.Getenv("OPENAI_API_KEY") != "" {
		mesh.RegisterProvider("openai", openai.New())
	}
	if os.Getenv("ANTHROPIC_API_KEY") != "" {
		mesh.RegisterProvider("anthropic", anthropic.New())
	}
	if host := os.Getenv("OLLAMA_HOST"); host != "" {
		mesh.RegisterProvider("ollama", ollama.New(func(o *ollama.Options) {
			o.ServerURL = host
		}))
	}
}

func newLogger(level string) logging.Logger {
	cfg := logging.DefaultLoggerConfig()
	cfg.Format = "text"
	cfg.Output = os.Stderr
	cfg.AddSource = false
	switch level {
	case "debug":
		cfg.Level = logging.LogLevelDebug
	case "info":
		cfg.Level = logging.LogLevelInfo
	case "error":
		cfg.Level = logging.LogLevelError
	default:
		cfg.Level = logging.LogLevelWarn
	}
	return logging.NewLogger(cfg)
}

func printEvent(ev run.Event) {
	switch ev.Type {
	case run.EventFlowStatus:
		fmt.Fprintf(os.Stderr, "[flow] %s\n", ev.FlowStatus)
	case run.EventNodeStatus:
		if ev.Error != "" {
			fmt.Fprintf(os.Stderr, "[node %s] %s: %s\n", ev.NodeID, ev.NodeStatus, ev.Error)
			return
		}
		fmt.Fprintf(os.Stderr, "[node %s] %s\n", ev.NodeID, ev.NodeStatus)
	case run.EventNodeChunk:
		fmt.Fprint(os.Stderr, ev.Chunk)
	}
}

// waitForResult polls until the run reaches a terminal status. The façade's
// snapshot API keeps the CLI decoupled from engine internals.
func waitForResult(ctx context.Context, mesh *flowmesh.FlowMesh, executionID string) (*run.FlowExecutionResult, error) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		result, err := mesh.GetExecutionStatus(executionID)
		if err != nil {
			return nil, err
		}
		if result.Status.Terminal() {
			return result, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func toAnyMap(m map[string]string) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
