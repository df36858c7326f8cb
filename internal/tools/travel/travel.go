package travel

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/tiammomo/Shuai-Travel-Agent/internal/tools"
)

// Toolset exposes the travel tools over a city index.
type Toolset struct {
	index *Index
}

// NewToolset builds the travel toolset.
func NewToolset(index *Index) *Toolset {
	return &Toolset{index: index}
}

// Register adds every travel tool plus the terminal final_answer tool to reg.
func (t *Toolset) Register(reg *tools.Registry) error {
	descriptors := []tools.Descriptor{
		{
			Name:        "search_cities",
			Description: "根据兴趣、预算、季节搜索匹配的目的地城市，返回按匹配度排序的列表",
			Category:    "travel",
			Tags:        []string{"search", "readonly"},
			Timeout:     10 * time.Second,
			Params: tools.ParameterSchema{
				Type: "object",
				Properties: map[string]tools.Property{
					"interests": {Type: "array", Description: "兴趣标签列表，如 [\"美食\", \"历史文化\"]"},
					"budget":    {Type: "array", Description: "日均预算范围 [min, max]，如 [300, 800]"},
					"season":    {Type: "string", Description: "出行季节，如 \"春季\""},
				},
			},
			Handler: t.searchCities,
		},
		{
			Name:        "query_attractions",
			Description: "查询指定城市（或地区）的景点信息、日均预算和推荐天数",
			Category:    "travel",
			Tags:        []string{"query", "readonly"},
			Timeout:     10 * time.Second,
			Params: tools.ParameterSchema{
				Type: "object",
				Properties: map[string]tools.Property{
					"cities": {Type: "array", Description: "城市名称列表，如 [\"北京\", \"西安\"]"},
				},
				Required: []string{"cities"},
			},
			Handler: t.queryAttractions,
		},
		{
			Name:        "calculate_budget",
			Description: "计算指定城市若干天行程的费用预估（门票、餐饮、交通、住宿）",
			Category:    "travel",
			Tags:        []string{"compute", "readonly"},
			Timeout:     10 * time.Second,
			Params: tools.ParameterSchema{
				Type: "object",
				Properties: map[string]tools.Property{
					"city":                   {Type: "string", Description: "目标城市名称"},
					"days":                   {Type: "integer", Description: "旅行天数"},
					"include_accommodation":  {Type: "boolean", Description: "是否包含住宿费用，默认 true"},
					"include_transportation": {Type: "boolean", Description: "是否包含城际交通费用，默认 true"},
				},
				Required: []string{"city", "days"},
			},
			Handler: t.calculateBudget,
		},
		{
			Name:        "get_city_info",
			Description: "获取城市的详细信息，支持按地区名称查询",
			Category:    "travel",
			Tags:        []string{"query", "readonly"},
			Timeout:     10 * time.Second,
			Params: tools.ParameterSchema{
				Type: "object",
				Properties: map[string]tools.Property{
					"city": {Type: "string", Description: "城市或地区名称"},
				},
				Required: []string{"city"},
			},
			Handler: t.getCityInfo,
		},
		{
			Name:        "final_answer",
			Description: "提交最终答案，结束本轮推理",
			Category:    "control",
			Terminal:    true,
			Timeout:     5 * time.Second,
			Params: tools.ParameterSchema{
				Type: "object",
				Properties: map[string]tools.Property{
					"answer": {Type: "string", Description: "给用户的最终回答"},
				},
				Required: []string{"answer"},
			},
			Handler: finalAnswer,
		},
	}
	for _, d := range descriptors {
		if err := reg.Register(d); err != nil {
			return err
		}
	}
	return nil
}

func finalAnswer(_ context.Context, args map[string]any) (any, error) {
	answer, _ := args["answer"].(string)
	return map[string]any{"answer": answer}, nil
}

// cityMatch is one scored entry of a search result.
type cityMatch struct {
	City         string   `json:"city"`
	Score        int      `json:"score"`
	Info         City     `json:"info"`
	MatchReasons []string `json:"match_reasons"`
}

// searchCities scores every catalog city against the provided filters.
// Interest hit +30 each, budget in range +20, below range max +10, season
// match +15. With no filters at all every city gets a flat 50.
func (t *Toolset) searchCities(_ context.Context, args map[string]any) (any, error) {
	interests := stringSlice(args["interests"])
	season, _ := args["season"].(string)
	budgetMin, budgetMax, hasBudget := budgetRange(args["budget"])

	unfiltered := len(interests) == 0 && !hasBudget && season == ""

	var matched []cityMatch
	for _, name := range t.index.All() {
		city, _ := t.index.Get(name)

		score := 0
		var reasons []string

		for _, interest := range interests {
			if tagsMatch(city.Tags, interest) {
				score += 30
				reasons = append(reasons, fmt.Sprintf("符合%s兴趣", interest))
			}
		}

		if hasBudget {
			avg := city.AvgBudgetPerDay
			switch {
			case avg >= budgetMin && avg <= budgetMax:
				score += 20
				reasons = append(reasons, "预算适合")
			case avg < budgetMax:
				score += 10
			}
		}

		if season != "" && contains(city.BestSeason, season) {
			score += 15
			reasons = append(reasons, "季节适宜")
		}

		if unfiltered {
			score = 50
		}
		if score > 0 {
			matched = append(matched, cityMatch{City: name, Score: score, Info: city, MatchReasons: reasons})
		}
	}

	sort.SliceStable(matched, func(i, j int) bool { return matched[i].Score > matched[j].Score })

	return map[string]any{
		"success": true,
		"cities":  matched,
		"count":   len(matched),
	}, nil
}

// queryAttractions returns attraction details per city. Unknown names are
// retried as region names, expanding to every city in that region.
func (t *Toolset) queryAttractions(_ context.Context, args map[string]any) (any, error) {
	cities := stringSlice(args["cities"])
	if len(cities) == 0 {
		return nil, fmt.Errorf("cities 不能为空")
	}

	result := make(map[string]any)
	for _, name := range cities {
		if city, ok := t.index.Get(name); ok {
			result[name] = map[string]any{
				"attractions":        city.Attractions,
				"avg_budget_per_day": city.AvgBudgetPerDay,
				"recommended_days":   city.RecommendedDays,
			}
			continue
		}
		for _, city := range t.index.ByRegion(name) {
			result[city.Name] = map[string]any{
				"attractions":        city.Attractions,
				"avg_budget_per_day": city.AvgBudgetPerDay,
				"recommended_days":   city.RecommendedDays,
				"region":             name,
			}
		}
	}

	return map[string]any{
		"success":      true,
		"data":         result,
		"cities_count": len(result),
	}, nil
}

// calculateBudget estimates trip cost: attraction tickets, meals at 40% of
// the daily average, local transport at 20%, accommodation at 30% when
// included, plus a flat intercity transport allowance.
func (t *Toolset) calculateBudget(_ context.Context, args map[string]any) (any, error) {
	cityName, _ := args["city"].(string)
	days := intArg(args["days"], 0)
	if days <= 0 {
		return nil, fmt.Errorf("days 必须为正整数")
	}

	city, ok := t.index.Get(cityName)
	if !ok {
		return map[string]any{
			"success": false,
			"error":   fmt.Sprintf("未找到城市: %s", cityName),
		}, nil
	}

	includeAccommodation := boolArg(args["include_accommodation"], true)
	includeTransportation := boolArg(args["include_transportation"], true)

	avgDaily := city.AvgBudgetPerDay
	if avgDaily <= 0 {
		avgDaily = 400
	}

	ticketTotal := 0
	for _, a := range city.Attractions {
		ticketTotal += a.Ticket
	}

	budget := map[string]int{
		"tickets":              ticketTotal,
		"meals":                int(float64(avgDaily) * 0.4 * float64(days)),
		"local_transportation": int(float64(avgDaily) * 0.2 * float64(days)),
	}
	if includeAccommodation {
		budget["accommodation"] = int(float64(avgDaily) * 0.3 * float64(days))
	}
	if includeTransportation {
		budget["inter_city_transportation"] = 1000
	}

	total := 0
	for _, v := range budget {
		total += v
	}
	budget["total"] = total
	budget["days"] = days
	budget["avg_per_day"] = total / days

	return map[string]any{
		"success": true,
		"city":    cityName,
		"budget":  budget,
	}, nil
}

// getCityInfo returns a single city's details, falling back to a region view
// when the name matches a region instead of a city.
func (t *Toolset) getCityInfo(_ context.Context, args map[string]any) (any, error) {
	name, _ := args["city"].(string)

	if city, ok := t.index.Get(name); ok {
		return map[string]any{
			"success": true,
			"city":    name,
			"info":    city,
		}, nil
	}

	regionCities := t.index.ByRegion(name)
	if len(regionCities) > 0 {
		first := regionCities[0]
		names := make([]string, len(regionCities))
		for i, c := range regionCities {
			names[i] = c.Name
		}
		return map[string]any{
			"success": true,
			"city":    name,
			"info": map[string]any{
				"name":               name,
				"is_region":          true,
				"cities":             names,
				"region":             first.Region,
				"tags":               first.Tags,
				"avg_budget_per_day": first.AvgBudgetPerDay,
				"best_season":        first.BestSeason,
				"recommended_days":   first.RecommendedDays,
				"attractions":        first.Attractions,
			},
		}, nil
	}

	return map[string]any{
		"success": false,
		"error":   fmt.Sprintf("未找到城市: %s", name),
	}, nil
}

// tagsMatch reports whether interest equals or is contained in any tag.
func tagsMatch(tags []string, interest string) bool {
	for _, tag := range tags {
		if tag == interest || strings.Contains(tag, interest) {
			return true
		}
	}
	return false
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// stringSlice coerces a decoded JSON value into []string.
func stringSlice(v any) []string {
	switch vv := v.(type) {
	case []string:
		return vv
	case []any:
		out := make([]string, 0, len(vv))
		for _, item := range vv {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		if vv == "" {
			return nil
		}
		return []string{vv}
	default:
		return nil
	}
}

// budgetRange accepts [min, max] arrays or {"min": x, "max": y} objects.
func budgetRange(v any) (min, max int, ok bool) {
	switch vv := v.(type) {
	case []any:
		if len(vv) != 2 {
			return 0, 0, false
		}
		return intArg(vv[0], 0), intArg(vv[1], 0), true
	case []int:
		if len(vv) != 2 {
			return 0, 0, false
		}
		return vv[0], vv[1], true
	case map[string]any:
		lo, okLo := vv["min"]
		hi, okHi := vv["max"]
		if !okLo || !okHi {
			return 0, 0, false
		}
		return intArg(lo, 0), intArg(hi, 0), true
	default:
		return 0, 0, false
	}
}

// intArg coerces JSON numbers (float64 after decoding) and ints.
func intArg(v any, fallback int) int {
	switch vv := v.(type) {
	case int:
		return vv
	case int64:
		return int(vv)
	case float64:
		return int(vv)
	case float32:
		return int(vv)
	default:
		return fallback
	}
}

func boolArg(v any, fallback bool) bool {
	if b, ok := v.(bool); ok {
		return b
	}
	return fallback
}
