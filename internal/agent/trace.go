package agent

import (
	"fmt"
	"strings"
)

const traceRule = "════════════════════════════════════"

var phaseTitles = map[Phase]string{
	PhaseUnderstanding: "理解任务",
	PhasePlanning:      "制定计划",
	PhaseExecution:     "执行步骤",
	PhaseGeneration:    "生成回答",
}

// FormatStep renders one HistoryStep as the human-readable reasoning trace
// shown to the client. The engine itself only emits structured records;
// this rendering is a presentation concern.
func FormatStep(hs HistoryStep) string {
	var sb strings.Builder

	title := phaseTitles[hs.Phase]
	if title == "" {
		title = string(hs.Phase)
	}
	fmt.Fprintf(&sb, "%s\n【%s】第%d步\n", traceRule, title, hs.Step+1)
	fmt.Fprintf(&sb, "%s\n", hs.Thought.Content)

	if a := hs.Action; a != nil {
		switch a.Status {
		case ActionSuccess:
			fmt.Fprintf(&sb, "✓ 工具 %s 执行成功（%s）\n", a.ToolName, a.Duration.Round(1e6))
		case ActionFailed:
			fmt.Fprintf(&sb, "✗ 工具 %s 执行失败：%s\n", a.ToolName, a.Error)
		case ActionTimeout:
			fmt.Fprintf(&sb, "✗ 工具 %s 执行超时\n", a.ToolName)
		case ActionSkipped:
			if a.ToolName != "" {
				fmt.Fprintf(&sb, "- 跳过 %s：%s\n", a.ToolName, a.Error)
			}
		}
	}
	if e := hs.Evaluation; e != nil && hs.Action != nil && hs.Action.Status != ActionSkipped {
		fmt.Fprintf(&sb, "评估：成功=%v 置信度变化=%+.2f\n", e.Success, e.ConfidenceDelta)
	}
	return sb.String()
}
