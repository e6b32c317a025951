package schema

import "github.com/santhosh-tekuri/jsonschema/v5"

// Input contract for chart generation: deliberately permissive, the model is
// expected to interpret loosely structured data.
const userDataSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "$id": "https://example.com/schemas/userData.schema.json",
  "title": "UserData",
  "description": "用户上传的数据，可为结构化 JSON 或 CSV 解析后的对象",
  "type": ["object", "array", "string"]
}`

// Output contract for chart generation (minimal ECharts option guard).
const chartConfigSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "$id": "https://example.com/schemas/chartConfig.schema.json",
  "title": "EChartsConfig",
  "type": "object",
  "properties": {
    "title": {
      "type": "object",
      "properties": {"text": {"type": "string"}},
      "required": ["text"]
    },
    "series": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {"type": {"type": "string"}},
        "required": ["type"]
      },
      "minItems": 1
    }
  },
  "required": ["series"]
}`

// Input contract for insight generation.
const insightRequestSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "$id": "https://example.com/schemas/insightRequest.schema.json",
  "title": "InsightRequest",
  "type": "object",
  "properties": {
    "type": {"type": "string", "enum": ["chart", "focus"]},
    "data": {"type": "object"}
  },
  "required": ["type", "data"]
}`

// Output contract for insight generation. additionalProperties is a hard
// contract: any extra top-level key fails validation.
const insightSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "$id": "https://example.com/schemas/insightSchema.json",
  "title": "AIInsight",
  "type": "object",
  "properties": {
    "insightText": {"type": "string", "minLength": 1},
    "confidence": {"type": "number", "minimum": 0, "maximum": 1},
    "suggestions": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "type": {"type": "string"},
          "text": {"type": "string"},
          "priority": {"type": "string", "enum": ["high", "medium", "low"]}
        },
        "required": ["type", "text"]
      }
    },
    "metadata": {
      "type": "object",
      "properties": {
        "model": {"type": "string"},
        "generatedAt": {"type": "string"},
        "dataHash": {"type": "string"}
      }
    }
  },
  "required": ["insightText"],
  "additionalProperties": false
}`

// Compiled contracts, built once at init. Compilation of a broken schema is a
// programming error, so MustCompile is appropriate here.
var (
	UserData       = mustCompile("userData.schema.json", userDataSchema)
	ChartConfig    = mustCompile("chartConfig.schema.json", chartConfigSchema)
	InsightRequest = mustCompile("insightRequest.schema.json", insightRequestSchema)
	Insight        = mustCompile("insightSchema.json", insightSchema)
)

func mustCompile(name, source string) *jsonschema.Schema {
	return jsonschema.MustCompileString(name, source)
}
