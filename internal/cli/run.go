package cli

import (
	"bufio"
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"

	"github.com/bufbuild/connect-go"
	"github.com/spf13/cobra"
	"golang.org/x/net/http2"

	"github.com/aashiqmuhamed/refusalbench-studio/internal/rpc"
	"github.com/aashiqmuhamed/refusalbench-studio/internal/rpc/connectjson"
	workflowrpc "github.com/aashiqmuhamed/refusalbench-studio/internal/rpc/workflow"
)

// NewRunCmd wires the run command to stream workflow events from the daemon.
func NewRunCmd(opts *Options) *cobra.Command {
	var query string
	var contextText string
	var contextFile string
	var referenceAnswer string
	var workflowID string

	cmd := &cobra.Command{
		Use:   "run \"<workflow description>\"",
		Short: "Run an evaluation workflow against the daemon and stream the trace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}

			if strings.TrimSpace(query) == "" {
				return fmt.Errorf("--query cannot be empty")
			}
			if contextFile != "" {
				data, err := os.ReadFile(contextFile)
				if err != nil {
					return fmt.Errorf("read context file: %w", err)
				}
				contextText = string(data)
			}
			if strings.TrimSpace(contextText) == "" {
				return fmt.Errorf("provide --context or --context-file")
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			reqBody := rpc.WorkflowRunRequest{
				WorkflowID:          workflowID,
				Query:               query,
				Context:             contextText,
				WorkflowDescription: args[0],
				ReferenceAnswer:     referenceAnswer,
			}

			baseURL := daemonURL(cfg.Server.Addr)
			switch strings.ToLower(strings.TrimSpace(cfg.Server.Transport)) {
			case "ndjson":
				return runNDJSON(ctx, cmd, baseURL+"/workflow/run", reqBody)
			default:
				return runConnect(ctx, cmd, baseURL+workflowrpc.ConnectRunWorkflowProcedure, reqBody)
			}
		},
	}

	cmd.Flags().StringVar(&query, "query", "", "Perturbed query to evaluate")
	cmd.Flags().StringVar(&contextText, "context", "", "Perturbed context passage")
	cmd.Flags().StringVar(&contextFile, "context-file", "", "Read the context passage from a file")
	cmd.Flags().StringVar(&referenceAnswer, "reference-answer", "", "Expected label for baseline runs")
	cmd.Flags().StringVar(&workflowID, "workflow-id", "", "Workflow identifier (optional)")
	return cmd
}

func daemonURL(addr string) string {
	if strings.HasPrefix(addr, "http://") || strings.HasPrefix(addr, "https://") {
		return addr
	}
	if strings.HasPrefix(addr, ":") {
		return "http://localhost" + addr
	}
	return "http://" + addr
}

func runNDJSON(ctx context.Context, cmd *cobra.Command, url string, reqBody rpc.WorkflowRunRequest) error {
	data, err := json.Marshal(reqBody)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("daemon returned status %d", resp.StatusCode)
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		var evt rpc.WorkflowEvent
		if err := json.Unmarshal(scanner.Bytes(), &evt); err != nil {
			return fmt.Errorf("decode event: %w", err)
		}
		if err := renderEvent(cmd, evt); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func runConnect(ctx context.Context, cmd *cobra.Command, url string, reqBody rpc.WorkflowRunRequest) error {
	client := connect.NewClient[rpc.WorkflowRunStreamRequest, rpc.WorkflowEvent](buildH2CClient(), url, connect.WithCodec(connectjson.Codec{}))
	stream := client.CallBidiStream(ctx)

	if err := stream.Send(&rpc.WorkflowRunStreamRequest{Run: &reqBody}); err != nil {
		return err
	}

	// propagate cancellation to the daemon.
	go func() {
		<-ctx.Done()
		_ = stream.Send(&rpc.WorkflowRunStreamRequest{Cancel: true, WorkflowID: reqBody.WorkflowID})
		_ = stream.CloseRequest()
	}()

	for {
		evt, err := stream.Receive()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		if err := renderEvent(cmd, *evt); err != nil {
			return err
		}
	}
	_ = stream.CloseRequest()
	return stream.CloseResponse()
}

func renderEvent(cmd *cobra.Command, evt rpc.WorkflowEvent) error {
	out := cmd.OutOrStdout()
	switch evt.Type {
	case "trace":
		if evt.Trace == nil {
			return nil
		}
		switch evt.Trace.Step {
		case "decision":
			fmt.Fprintf(out, "[decision %s] %s\n", evt.Trace.Decision, evt.Trace.Output)
		case "reasoning":
			fmt.Fprintf(out, "[reasoning]\n%s\n", evt.Trace.Output)
		default:
			fmt.Fprintf(out, "[tool %s] %s\n", evt.Trace.Step, evt.Trace.Output)
		}
	case "result":
		fmt.Fprintf(out, "\n[done %s after %d turn(s)]\n", evt.Termination, evt.Turns)
		fmt.Fprintf(out, "Decision: %s\n%s\n", evt.FinalDecision, evt.FinalOutput)
		if evt.ReferenceMatch != nil {
			fmt.Fprintf(out, "Reference match: %v\n", *evt.ReferenceMatch)
		}
	case "error":
		return fmt.Errorf("daemon error: %s", evt.Error)
	}
	return nil
}

func buildH2CClient() *http.Client {
	return &http.Client{
		Transport: &http2.Transport{
			AllowHTTP: true,
			DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, network, addr)
			},
		},
	}
}
