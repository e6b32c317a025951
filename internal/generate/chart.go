package generate

import (
	"encoding/json"
	"time"

	"github.com/kbukum/aiviz/internal/apperrors"
	"github.com/kbukum/aiviz/internal/schema"
)

const chartSystemPrompt = `你是数据可视化专家。依据用户提供的数据生成严格符合 ECharts Option 的 JSON；不要输出任何非 JSON 文本。按以下要求：
1) 自动选择合适图表类型（如 bar/line/pie/scatter），
2) 生成最小必要字段（title、legend、tooltip、xAxis/yAxis、series），
3) 文本请使用简体中文，
4) 若输入信息不足，合理假设并给出可渲染的配置。`

const chartBasicSystemPrompt = `你是数据可视化专家。依据用户提供的数据生成严格符合 ECharts 的 JSON；不要输出任何非 JSON 文本。`

// ChartPurpose is the quota-aware chart-generation variant.
func ChartPurpose() Purpose {
	p := chartPurposeBase()
	p.Name = "chart"
	p.SystemPrompt = chartSystemPrompt
	p.Deadline = 15 * time.Second
	p.QuotaGated = true
	return p
}

// ChartBasicPurpose is the legacy unauthenticated variant: no quota gate and
// a tight deadline.
func ChartBasicPurpose() Purpose {
	p := chartPurposeBase()
	p.Name = "chart-basic"
	p.SystemPrompt = chartBasicSystemPrompt
	p.Deadline = 3 * time.Second
	return p
}

func chartPurposeBase() Purpose {
	return Purpose{
		LogAction:        "chart_generation",
		InputSchema:      schema.UserData,
		OutputSchema:     schema.ChartConfig,
		ErrorCode:        apperrors.ErrCodeQwenError,
		BuildUserMessage: buildChartUserMessage,
		Fallback:         chartFallback,
	}
}

// buildChartUserMessage embeds the serialized payload; string payloads are
// passed through as-is (pre-parsed CSV text, for example).
func buildChartUserMessage(payload any) string {
	text, ok := payload.(string)
	if !ok {
		encoded, _ := json.Marshal(payload)
		text = string(encoded)
	}
	return "请根据以下数据返回 ECharts 配置的 JSON：\n" + text
}

// chartFallback is the static degraded chart configuration. It renders an
// empty line chart and satisfies the output contract.
func chartFallback(time.Time) map[string]any {
	return map[string]any{
		"title":   map[string]any{"text": "AI 推荐图表"},
		"tooltip": map[string]any{},
		"xAxis":   map[string]any{"type": "category"},
		"yAxis":   map[string]any{"type": "value"},
		"series": []any{
			map[string]any{"type": "line", "data": []any{}},
		},
	}
}
