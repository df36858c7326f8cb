// travel-cli is a terminal chat client for the agent service.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/tiammomo/Shuai-Travel-Agent/internal/rpc"
	"github.com/tiammomo/Shuai-Travel-Agent/internal/rpc/agentpb"
)

var (
	promptColor    = color.New(color.FgGreen, color.Bold)
	reasoningColor = color.New(color.FgCyan, color.Faint)
	errorColor     = color.New(color.FgRed)
	statsColor     = color.New(color.Faint)
)

type options struct {
	addr     string
	modelID  string
	mode     string
	maxSteps int
}

func main() {
	_ = godotenv.Load()

	opts := &options{}
	root := &cobra.Command{
		Use:   "travel-cli",
		Short: "旅行助手命令行客户端",
		Long:  "travel-cli 连接智能体服务，在终端里进行旅行规划对话。",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runChat(cmd.Context(), opts)
		},
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.addr, "addr", "localhost:50051", "agent service address")
	root.PersistentFlags().StringVar(&opts.modelID, "model", "", "model id (empty uses the service default)")
	root.Flags().StringVar(&opts.mode, "mode", "", "force a dispatch mode: direct, react or plan")
	root.Flags().IntVar(&opts.maxSteps, "max-steps", 0, "cap on tool iterations per turn")

	ask := &cobra.Command{
		Use:   "ask <message>",
		Short: "单轮提问，等待完整回答",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAsk(cmd.Context(), opts, strings.Join(args, " "))
		},
	}
	ask.Flags().StringVar(&opts.mode, "mode", "", "force a dispatch mode: direct, react or plan")
	ask.Flags().IntVar(&opts.maxSteps, "max-steps", 0, "cap on tool iterations per turn")

	health := &cobra.Command{
		Use:   "health",
		Short: "检查智能体服务状态",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runHealth(cmd.Context(), opts)
		},
	}

	root.AddCommand(ask, health)
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runChat(ctx context.Context, opts *options) error {
	client, err := rpc.Dial(opts.addr)
	if err != nil {
		return fmt.Errorf("连接智能体服务失败: %w", err)
	}
	defer client.Close()

	sessionID := uuid.NewString()
	var history []agentpb.ChatMessage

	fmt.Println("旅行助手已就绪，输入问题开始对话（exit 退出）。")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		promptColor.Print("你> ")
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			return nil
		}

		answer, err := streamTurn(ctx, client, &agentpb.MessageRequest{
			SessionID: sessionID,
			UserInput: input,
			ModelID:   opts.modelID,
			Stream:    true,
			Mode:      opts.mode,
			MaxSteps:  opts.maxSteps,
			History:   history,
		})
		if err != nil {
			errorColor.Fprintf(os.Stderr, "出错了: %v\n", err)
			continue
		}
		history = append(history,
			agentpb.ChatMessage{Role: "user", Content: input},
			agentpb.ChatMessage{Role: "assistant", Content: answer},
		)
	}
}

// streamTurn renders one streamed turn and returns the assembled answer.
func streamTurn(ctx context.Context, client *rpc.Client, req *agentpb.MessageRequest) (string, error) {
	ch, err := client.Stream(ctx, req)
	if err != nil {
		return "", err
	}

	var answer strings.Builder
	for chunk := range ch {
		switch chunk.ChunkType {
		case agentpb.ChunkThinkingStart:
			reasoningColor.Println("── 推理 ──")
		case agentpb.ChunkThinking:
			reasoningColor.Print(chunk.Content)
		case agentpb.ChunkThinkingEnd:
			reasoningColor.Println("──────────")
		case agentpb.ChunkAnswerStart:
			// Answer tokens follow on a fresh line.
		case agentpb.ChunkAnswer:
			fmt.Print(chunk.Content)
			answer.WriteString(chunk.Content)
		case agentpb.ChunkError:
			fmt.Println()
			return answer.String(), fmt.Errorf("%s", chunk.Content)
		case agentpb.ChunkDone:
			fmt.Println()
			printStats(chunk.Content)
		}
	}
	return answer.String(), nil
}

func printStats(raw string) {
	var stats struct {
		Mode            string   `json:"mode"`
		TotalSteps      int      `json:"steps_completed"`
		SuccessfulSteps int      `json:"successful_steps"`
		ToolsUsed       []string `json:"tools_used"`
		DurationMillis  int64    `json:"duration_ms"`
	}
	if err := json.Unmarshal([]byte(raw), &stats); err != nil || stats.Mode == "" {
		return
	}
	line := fmt.Sprintf("[%s 模式, %d/%d 步成功, %dms]", stats.Mode, stats.SuccessfulSteps, stats.TotalSteps, stats.DurationMillis)
	if len(stats.ToolsUsed) > 0 {
		line += " 工具: " + strings.Join(stats.ToolsUsed, ", ")
	}
	statsColor.Println(line)
}

func runAsk(ctx context.Context, opts *options, message string) error {
	client, err := rpc.Dial(opts.addr)
	if err != nil {
		return fmt.Errorf("连接智能体服务失败: %w", err)
	}
	defer client.Close()

	resp, err := client.Process(ctx, &agentpb.MessageRequest{
		SessionID: uuid.NewString(),
		UserInput: message,
		ModelID:   opts.modelID,
		Mode:      opts.mode,
		MaxSteps:  opts.maxSteps,
	})
	if err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("%s", resp.Error)
	}
	fmt.Println(resp.Answer)
	if resp.Reasoning != nil {
		statsColor.Printf("[%s 模式, %d/%d 步成功]\n",
			resp.Reasoning.Mode, resp.Reasoning.SuccessfulSteps, resp.Reasoning.TotalSteps)
	}
	return nil
}

func runHealth(ctx context.Context, opts *options) error {
	client, err := rpc.Dial(opts.addr)
	if err != nil {
		return fmt.Errorf("连接智能体服务失败: %w", err)
	}
	defer client.Close()

	resp, err := client.Health(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("状态: %s\n版本: %s\n活跃模型: %s\n", resp.Status, resp.Version, resp.ActiveModel)
	return nil
}
