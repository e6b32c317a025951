package generate

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/kbukum/aiviz/internal/apperrors"
	"github.com/kbukum/aiviz/internal/schema"
)

// Insight kinds carried in the request's type field.
const (
	InsightKindChart = "chart"
	InsightKindFocus = "focus"
)

const chartInsightPrompt = `你是数据分析专家。基于用户提供的图表数据，生成结构化的数据洞察分析。分析必须包含以下三个部分：
1. **趋势分析**：分析数据的变化趋势（上升、下降、波动等），识别主要趋势模式
2. **关键点**：识别数据中的关键信息，包括最大值、最小值、异常值、峰值、低谷等
3. **建议**：基于数据分析提供操作建议，如"建议关注X月的异常下降"、"建议分析Y数据的快速增长原因"等

请以JSON格式返回，包含以下字段：
- insightText: 完整的洞察文本（必须包含趋势分析、关键点、建议三部分）
- confidence: 置信度（0-1之间的数字）
- suggestions: 结构化的建议列表（可选）

确保返回的JSON格式严格符合要求，不要包含任何非JSON文本。`

const focusInsightPrompt = `你是专注力分析专家。基于用户提供的专注时间数据，生成结构化的专注力分析报告。分析必须包含以下内容：
1. **专注趋势**：分析专注时间的变化趋势（上升、下降、波动等）
2. **最佳时段**：识别用户专注力最高的时间段
3. **改进建议**：基于数据分析提供专注力提升建议

请以JSON格式返回，包含以下字段：
- insightText: 完整的分析报告文本（必须包含专注趋势、最佳时段、改进建议）
- confidence: 置信度（0-1之间的数字）
- suggestions: 结构化的建议列表（可选）

确保返回的JSON格式严格符合要求，不要包含任何非JSON文本。`

const (
	chartInsightFallbackText = "AI洞察暂时不可用，请稍后重试。图表数据已正常显示，您可以继续使用其他功能。"
	focusInsightFallbackText = "AI洞察暂时不可用，请稍后重试。专注数据已正常显示，您可以继续使用其他功能。"
)

// InsightChartPurpose analyzes chart data.
func InsightChartPurpose() Purpose {
	p := insightPurposeBase()
	p.Name = "insight-chart"
	p.SystemPrompt = chartInsightPrompt
	p.BuildUserMessage = buildChartInsightMessage
	p.Fallback = insightFallback(chartInsightFallbackText)
	return p
}

// InsightFocusPurpose analyzes focus-time data.
func InsightFocusPurpose() Purpose {
	p := insightPurposeBase()
	p.Name = "insight-focus"
	p.SystemPrompt = focusInsightPrompt
	p.BuildUserMessage = buildFocusInsightMessage
	p.Fallback = insightFallback(focusInsightFallbackText)
	return p
}

func insightPurposeBase() Purpose {
	return Purpose{
		LogAction:       "insight_generation",
		InputSchema:     schema.InsightRequest,
		OutputSchema:    schema.Insight,
		MandatoryText:   "insightText",
		Deadline:        5 * time.Second,
		TimeoutDegrades: true,
		ErrorCode:       apperrors.ErrCodeInsightFailed,
		Finalize:        finalizeInsight,
	}
}

// buildChartInsightMessage prefers the rendered chart config, then the raw
// data, then the whole data object.
func buildChartInsightMessage(payload any) string {
	data := insightData(payload)
	subject := data
	if m, ok := data.(map[string]any); ok {
		if v, ok := m["chartConfig"]; ok {
			subject = v
		} else if v, ok := m["rawData"]; ok {
			subject = v
		}
	}
	encoded, _ := json.MarshalIndent(subject, "", "  ")
	return "请分析以下图表数据：\n" + string(encoded)
}

// buildFocusInsightMessage embeds the reporting window alongside the data.
func buildFocusInsightMessage(payload any) string {
	data := insightData(payload)
	subject := data
	var userID, period, periodStart, periodEnd any
	if m, ok := data.(map[string]any); ok {
		if v, ok := m["focusData"]; ok {
			subject = v
		}
		userID = m["userId"]
		period = m["period"]
		periodStart = m["periodStart"]
		periodEnd = m["periodEnd"]
	}
	encoded, _ := json.MarshalIndent(subject, "", "  ")
	return fmt.Sprintf("请分析以下专注时间数据：\n用户ID: %v\n周期: %v\n时间范围: %v 至 %v\n数据: %s",
		userID, period, periodStart, periodEnd, encoded)
}

// insightData unwraps the request envelope's data member.
func insightData(payload any) any {
	if m, ok := payload.(map[string]any); ok {
		if data, ok := m["data"]; ok {
			return data
		}
	}
	return payload
}

func insightFallback(text string) func(now time.Time) map[string]any {
	return func(now time.Time) map[string]any {
		return map[string]any{
			"insightText": text,
			"confidence":  0.5,
			"suggestions": []any{},
			"metadata": map[string]any{
				"model":       "fallback",
				"generatedAt": now.UTC().Format(time.RFC3339),
			},
		}
	}
}

// finalizeInsight applies the derived defaults the clients rely on:
// confidence 0.8, an empty suggestions list, and metadata stamped with the
// producing model and generation time.
func finalizeInsight(payload map[string]any, model string, now time.Time) {
	if _, ok := payload["confidence"]; !ok {
		payload["confidence"] = 0.8
	}
	if _, ok := payload["suggestions"]; !ok {
		payload["suggestions"] = []any{}
	}
	metadata, ok := payload["metadata"].(map[string]any)
	if !ok {
		metadata = map[string]any{}
	}
	metadata["model"] = model
	metadata["generatedAt"] = now.UTC().Format(time.RFC3339)
	payload["metadata"] = metadata
}
