package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"github.com/tiammomo/Shuai-Travel-Agent/internal/llm"
	"github.com/tiammomo/Shuai-Travel-Agent/internal/logging"
)

// interestVocab are the interest tags the rule-based classifier recognizes.
var interestVocab = []string{
	"美食", "历史文化", "自然风光", "海滨", "购物", "冰雪",
	"休闲", "草原", "民族风情", "古迹", "博物馆", "都市",
}

var seasonVocab = []string{"春季", "夏季", "秋季", "冬季"}

var daysPattern = regexp.MustCompile(`(\d+)\s*[日天]`)

// entities are the surface features extracted from a user request.
type entities struct {
	Cities    []string `json:"cities,omitempty"`
	Interests []string `json:"interests,omitempty"`
	Days      int      `json:"days,omitempty"`
	Season    string   `json:"season,omitempty"`
	Budget    []int    `json:"budget,omitempty"`
}

// ThoughtEngine produces reasoning artifacts from observations. It holds no
// per-task state; every method is a function of its inputs.
type ThoughtEngine struct {
	client    llm.Client
	cityNames []string
	logger    logging.Logger
}

// NewThoughtEngine builds an engine. client may be nil, in which case
// analysis always uses the rule-based classifier. cityNames is the
// vocabulary for entity extraction.
func NewThoughtEngine(client llm.Client, cityNames []string) *ThoughtEngine {
	return &ThoughtEngine{
		client:    client,
		cityNames: append([]string(nil), cityNames...),
		logger:    logging.NewComponentLogger("agent.thought"),
	}
}

const analysisPrompt = `你是旅游助手的任务分析模块。分析用户输入，只输出JSON，格式:
{"intent": "city_recommendation|attraction_query|route_planning|budget_query|preference_update|general_chat",
 "entities": {"cities": [], "interests": [], "days": 0, "season": "", "budget": []},
 "confidence": 0.8}
已知城市: %s
用户输入: %s`

type analysisPayload struct {
	Intent     string   `json:"intent"`
	Entities   entities `json:"entities"`
	Confidence float64  `json:"confidence"`
}

// AnalyzeTask produces the ANALYSIS thought for a user turn. It asks the
// LLM for a structured classification and falls back to the rule-based
// classifier whenever the call or the parse fails.
func (e *ThoughtEngine) AnalyzeTask(ctx context.Context, userInput string) (Thought, Intent, entities) {
	intent, ents, confidence, fromLLM := e.classify(ctx, userInput)

	source := "规则匹配"
	if fromLLM {
		source = "模型分析"
	}
	content := fmt.Sprintf("任务理解（%s）：意图=%s", source, intent)
	if len(ents.Cities) > 0 {
		content += fmt.Sprintf("，城市=%s", strings.Join(ents.Cities, "、"))
	}
	if len(ents.Interests) > 0 {
		content += fmt.Sprintf("，兴趣=%s", strings.Join(ents.Interests, "、"))
	}
	if ents.Days > 0 {
		content += fmt.Sprintf("，天数=%d", ents.Days)
	}

	t := newThought(ThoughtAnalysis, PhaseUnderstanding, content, confidence)
	t.Decision = &Decision{Intent: intent}
	return t, intent, ents
}

func (e *ThoughtEngine) classify(ctx context.Context, userInput string) (Intent, entities, float64, bool) {
	if e.client != nil {
		resp, err := e.client.Complete(ctx, llm.CompletionRequest{
			Messages: []llm.Message{{
				Role:    "user",
				Content: fmt.Sprintf(analysisPrompt, strings.Join(e.cityNames, "、"), userInput),
			}},
			Temperature: 0.1,
			MaxTokens:   300,
		})
		if err == nil {
			if payload, ok := parseAnalysis(resp.Content); ok {
				if intent := validIntent(payload.Intent); intent != "" {
					conf := payload.Confidence
					if conf <= 0 || conf > 1 {
						conf = 0.8
					}
					return intent, payload.Entities, conf, true
				}
			}
			e.logger.Debug("analysis response unparseable, using rules")
		} else {
			e.logger.Warn("analysis call failed, using rules: %v", err)
		}
	}
	intent, ents := e.ruleClassify(userInput)
	return intent, ents, 0.7, false
}

func parseAnalysis(raw string) (analysisPayload, bool) {
	var payload analysisPayload
	text := extractJSON(raw)
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		repaired, repairErr := jsonrepair.JSONRepair(text)
		if repairErr != nil {
			return payload, false
		}
		if err := json.Unmarshal([]byte(repaired), &payload); err != nil {
			return payload, false
		}
	}
	return payload, true
}

func validIntent(s string) Intent {
	switch Intent(s) {
	case IntentCityRecommendation, IntentAttractionQuery, IntentRoutePlanning,
		IntentBudgetQuery, IntentPreferenceUpdate, IntentGeneralChat:
		return Intent(s)
	}
	return ""
}

// ruleClassify is the deterministic fallback classifier. Unmatched input
// fails open to general_chat.
func (e *ThoughtEngine) ruleClassify(input string) (Intent, entities) {
	ents := e.extractEntities(input)

	switch {
	case containsAny(input, "预算", "费用", "花费", "多少钱"):
		return IntentBudgetQuery, ents
	case containsAny(input, "规划", "行程", "路线", "几日游", "一日游", "攻略") ||
		(ents.Days > 0 && len(ents.Cities) > 0):
		return IntentRoutePlanning, ents
	case containsAny(input, "景点", "好玩的", "看什么", "玩什么"):
		return IntentAttractionQuery, ents
	case containsAny(input, "推荐", "去哪", "适合") || len(ents.Interests) > 0:
		return IntentCityRecommendation, ents
	case containsAny(input, "喜欢", "偏好", "不喜欢"):
		return IntentPreferenceUpdate, ents
	default:
		return IntentGeneralChat, ents
	}
}

func (e *ThoughtEngine) extractEntities(input string) entities {
	var ents entities
	for _, name := range e.cityNames {
		if strings.Contains(input, name) {
			ents.Cities = append(ents.Cities, name)
		}
	}
	for _, tag := range interestVocab {
		if strings.Contains(input, tag) {
			ents.Interests = append(ents.Interests, tag)
		}
	}
	for _, s := range seasonVocab {
		if strings.Contains(input, s) {
			ents.Season = s
			break
		}
	}
	if m := daysPattern.FindStringSubmatch(input); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n > 0 && n <= 30 {
			ents.Days = n
		}
	}
	return ents
}

// PlanActions turns an analysis into a PLANNING thought carrying the
// ordered tool steps for the detected intent. General chat and preference
// updates produce no steps, which the loop treats as "answer directly".
func (e *ThoughtEngine) PlanActions(intent Intent, ents entities) Thought {
	steps := planSteps(intent, ents)

	var content string
	if len(steps) == 0 {
		content = "无需调用工具，直接生成回答"
	} else {
		names := make([]string, len(steps))
		for i, s := range steps {
			names[i] = s.Tool
		}
		content = fmt.Sprintf("执行计划：共%d步（%s）", len(steps), strings.Join(names, " → "))
	}

	t := newThought(ThoughtPlanning, PhasePlanning, content, 0.7)
	t.Decision = &Decision{Intent: intent, Steps: steps}
	return t
}

func planSteps(intent Intent, ents entities) []PlannedStep {
	city := ""
	if len(ents.Cities) > 0 {
		city = ents.Cities[0]
	}
	days := ents.Days
	if days <= 0 {
		days = 3
	}

	switch intent {
	case IntentCityRecommendation:
		params := map[string]any{}
		if len(ents.Interests) > 0 {
			params["interests"] = toAnySlice(ents.Interests)
		}
		if len(ents.Budget) == 2 {
			params["budget"] = []any{ents.Budget[0], ents.Budget[1]}
		}
		if ents.Season != "" {
			params["season"] = ents.Season
		}
		return []PlannedStep{
			{Tool: "search_cities", Params: params, Description: "按条件搜索候选城市"},
		}
	case IntentAttractionQuery:
		cities := ents.Cities
		if len(cities) == 0 {
			return nil
		}
		return []PlannedStep{
			{Tool: "query_attractions", Params: map[string]any{"cities": toAnySlice(cities)}, Description: "查询城市景点"},
		}
	case IntentRoutePlanning:
		if city == "" {
			return nil
		}
		return []PlannedStep{
			{Tool: "get_city_info", Params: map[string]any{"city": city}, Description: "获取城市概况"},
			{Tool: "query_attractions", Params: map[string]any{"cities": []any{city}}, Description: "查询景点清单"},
			{Tool: "calculate_budget", Params: map[string]any{"city": city, "days": days}, Description: "估算行程预算"},
		}
	case IntentBudgetQuery:
		if city == "" {
			return nil
		}
		return []PlannedStep{
			{Tool: "calculate_budget", Params: map[string]any{"city": city, "days": days}, Description: "估算行程预算"},
		}
	default:
		return nil
	}
}

func toAnySlice(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}

// Infer produces the per-iteration EXECUTION thought. After a failed action
// it becomes a REFLECTION instead; the loop uses that signal to avoid
// retrying the same call.
func (e *ThoughtEngine) Infer(obs Observation, next *PlannedStep, confidence float64) Thought {
	last := obs.LastAction

	if last != nil && (last.Status == ActionFailed || last.Status == ActionTimeout) {
		content := fmt.Sprintf("反思：%s 执行失败（%s），不重试该调用", last.ToolName, last.Error)
		if next != nil {
			content += fmt.Sprintf("，改为执行 %s", next.Tool)
		} else {
			content += "，基于已有结果生成回答"
		}
		t := newThought(ThoughtReflection, PhaseExecution, content, confidence)
		if next != nil {
			t.Decision = &Decision{Steps: []PlannedStep{*next}}
		}
		return t
	}

	var content string
	switch {
	case last != nil && last.Status == ActionSuccess:
		content = fmt.Sprintf("观察：%s 执行成功，耗时%s", last.ToolName, last.Duration.Round(1e6))
	case last != nil:
		content = fmt.Sprintf("观察：%s 状态为%s", last.ToolName, last.Status)
	default:
		content = "观察：尚无工具结果"
	}
	if next != nil {
		content += fmt.Sprintf("；下一步执行 %s", next.Tool)
	}

	t := newThought(ThoughtInference, PhaseExecution, content, confidence)
	if next != nil {
		t.Decision = &Decision{Steps: []PlannedStep{*next}}
	}
	return t
}

// Decide emits the closing DECISION thought.
func (e *ThoughtEngine) Decide(reason string, confidence float64) Thought {
	t := newThought(ThoughtDecision, PhaseGeneration, fmt.Sprintf("决定生成最终回答：%s", reason), confidence)
	t.Decision = &Decision{Ready: true}
	return t
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// extractJSON trims markdown fences and surrounding prose around a JSON
// object.
func extractJSON(raw string) string {
	s := strings.TrimSpace(raw)
	if i := strings.Index(s, "```"); i >= 0 {
		s = s[i+3:]
		s = strings.TrimPrefix(s, "json")
		if j := strings.Index(s, "```"); j >= 0 {
			s = s[:j]
		}
	}
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start >= 0 && end > start {
		s = s[start : end+1]
	}
	return strings.TrimSpace(s)
}
