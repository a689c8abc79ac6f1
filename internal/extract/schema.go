package extract

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/carescribe/carescribe/pkg/careplan"
)

// ToolName is the function name offered to the model. Backends must check
// that the model's tool call matches this name before decoding.
const ToolName = "record_care_plan"

// ToolDescription explains the function's purpose to the model.
const ToolDescription = "ケアマネージャーと利用者の会話から居宅サービス計画書の情報を抽出する"

// SystemPrompt is the system-level instruction for extraction requests.
const SystemPrompt = "あなたは居宅介護支援の記録係です。会話から居宅サービス計画書の情報を抽出し、必ず record_care_plan 関数で報告してください。"

// Tool is a provider-neutral function definition. Backends convert it into
// their SDK's tool parameter type.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// Definition returns the care-plan extraction tool. The parameter schema
// names every extractable field, its type, and whether it is required, so
// the validation boundary is explicit rather than encoded in prompt wording.
func Definition() Tool {
	return Tool{
		Name:        ToolName,
		Description: ToolDescription,
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"subject_name": map[string]any{
					"type":        "string",
					"description": "利用者の氏名",
				},
				"subject_age": map[string]any{
					"type":        "number",
					"description": "利用者の年齢",
				},
				"care_level": map[string]any{
					"type":        "string",
					"description": "要介護度（例: 要介護1, 要介護2, 要支援1など）",
				},
				"life_issues": map[string]any{
					"type":        "string",
					"description": "生活上の課題や困っていること",
				},
				"long_term_goal": map[string]any{
					"type":        "string",
					"description": "長期目標",
				},
				"long_term_goal_period": map[string]any{
					"type":        "string",
					"description": "長期目標の期間",
				},
				"short_term_needs": map[string]any{
					"type":        "array",
					"description": "短期目標のリスト",
					"items": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"content": map[string]any{
								"type":        "string",
								"description": "目標内容",
							},
							"period": map[string]any{
								"type":        "string",
								"description": "期間",
							},
						},
						"required": []string{"content"},
					},
				},
				"services": map[string]any{
					"type":        "array",
					"description": "サービス内容のリスト",
					"items": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"service_type": map[string]any{
								"type":        "string",
								"description": "サービス種類（例: 訪問介護, 通所介護, 訪問看護など）",
							},
							"frequency": map[string]any{
								"type":        "string",
								"description": "頻度（例: 週3回, 週2回など）",
							},
							"details": map[string]any{
								"type":        "string",
								"description": "詳細内容",
							},
						},
						"required": []string{"service_type"},
					},
				},
				"equipment": map[string]any{
					"type":        "string",
					"description": "福祉用具",
				},
				"remarks": map[string]any{
					"type":        "string",
					"description": "備考（緊急連絡先、家族構成など）",
				},
			},
			"required": []string{"subject_name", "long_term_goal"},
		},
	}
}

// Prompt builds the user-level extraction prompt around the transcript.
func Prompt(transcript string) string {
	var sb strings.Builder
	sb.WriteString("以下はケアマネージャーと利用者（またはその家族）の会話です。\n")
	sb.WriteString("この会話から居宅サービス計画書に必要な情報を抽出してください。\n\n")
	sb.WriteString("【会話内容】\n")
	sb.WriteString(transcript)
	sb.WriteString("\n\n【注意事項】\n")
	sb.WriteString("- 会話に明記されていない情報は省略してください\n")
	sb.WriteString("- 数値は正確に抽出してください\n")
	sb.WriteString("- サービス内容は種類、頻度、詳細を具体的に記載してください\n")
	return sb.String()
}

// ParseArguments validates a tool-call arguments payload against the schema
// and returns the extracted fields.
//
// Validation rules:
//   - unknown extra fields are dropped;
//   - a missing or empty long_term_goal is a [*ValidationError];
//   - a missing subject_name is tolerated (the pipeline skips resolution);
//   - subject_age arriving as a numeric-looking string is coerced, any other
//     non-numeric value makes the field absent, never fatal;
//   - array entries that are not objects are dropped.
func ParseArguments(args string) (*Fields, error) {
	var raw map[string]any
	if err := json.Unmarshal([]byte(args), &raw); err != nil {
		return nil, fmt.Errorf("extract: parse tool arguments: %w", err)
	}

	f := &Fields{
		SubjectName:        stringField(raw, "subject_name"),
		SubjectAge:         intField(raw, "subject_age"),
		CareLevel:          stringField(raw, "care_level"),
		LifeIssues:         stringField(raw, "life_issues"),
		LongTermGoal:       stringField(raw, "long_term_goal"),
		LongTermGoalPeriod: stringField(raw, "long_term_goal_period"),
		Equipment:          stringField(raw, "equipment"),
		Remarks:            stringField(raw, "remarks"),
	}

	for _, item := range arrayField(raw, "short_term_needs") {
		f.ShortTermNeeds = append(f.ShortTermNeeds, parseNeed(item))
	}
	for _, item := range arrayField(raw, "services") {
		f.Services = append(f.Services, parseService(item))
	}

	if f.LongTermGoal == "" {
		return nil, &ValidationError{Missing: []string{"long_term_goal"}}
	}
	return f, nil
}

// stringField extracts a trimmed string value, tolerating absent keys and
// non-string values (both yield "").
func stringField(m map[string]any, key string) string {
	v, ok := m[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(s)
}

// intField extracts an integer value, coercing numeric-looking strings.
// Non-numeric values make the field absent (nil), never an error.
func intField(m map[string]any, key string) *int {
	v, ok := m[key]
	if !ok {
		return nil
	}
	switch n := v.(type) {
	case float64:
		i := int(n)
		return &i
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return nil
		}
		return &i
	default:
		return nil
	}
}

// arrayField extracts the object entries of an array value, dropping
// anything that is not an object.
func arrayField(m map[string]any, key string) []map[string]any {
	v, ok := m[key]
	if !ok {
		return nil
	}
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	var out []map[string]any
	for _, item := range items {
		if obj, ok := item.(map[string]any); ok {
			out = append(out, obj)
		}
	}
	return out
}

func parseNeed(m map[string]any) careplan.Need {
	return careplan.Need{
		Content: stringField(m, "content"),
		Period:  stringField(m, "period"),
	}
}

func parseService(m map[string]any) careplan.Service {
	return careplan.Service{
		ServiceType: stringField(m, "service_type"),
		Frequency:   stringField(m, "frequency"),
		Details:     stringField(m, "details"),
	}
}
