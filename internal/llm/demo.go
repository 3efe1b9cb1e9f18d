package llm

import (
	"encoding/json"
	"strings"
)

const demoReasoning = "데모 모드 - AI 기반 자동 분류 시뮬레이션"

// demoUsage is the synthetic usage reported for every demo call.
var demoUsage = Usage{Input: 150, Output: 50, Total: 200}

type demoRule struct {
	account  string
	keywords []string
}

// demoRules are checked in order; the first group with a hit wins.
var demoRules = []demoRule{
	{account: "소모품비", keywords: []string{"문구", "사무", "용품"}},
	{account: "복리후생비", keywords: []string{"카페", "커피", "식대", "회식"}},
	{account: "통신비", keywords: []string{"통신", "인터넷", "전화"}},
	{account: "임차료", keywords: []string{"임대", "월세", "사무실"}},
}

const demoFallbackAccount = "기타비용"

type demoPayload struct {
	AccountCode string  `json:"account_code"`
	TaxType     string  `json:"tax_type"`
	Reasoning   string  `json:"reasoning"`
	Confidence  float64 `json:"confidence"`
}

// demoAccount picks an account from the user-authored text of a conversation.
func demoAccount(messages []Message) string {
	var sb strings.Builder
	for _, msg := range messages {
		if msg.Role == RoleUser {
			sb.WriteString(msg.Content)
			sb.WriteByte('\n')
		}
	}
	text := sb.String()

	for _, rule := range demoRules {
		for _, kw := range rule.keywords {
			if strings.Contains(text, kw) {
				return rule.account
			}
		}
	}
	return demoFallbackAccount
}

// demoResponse synthesizes a deterministic classification without a network call.
func demoResponse(model string, messages []Message) ChatResponse {
	payload := demoPayload{
		AccountCode: demoAccount(messages),
		TaxType:     "과세",
		Confidence:  0.85,
		Reasoning:   demoReasoning,
	}
	// Marshaling a struct of plain strings and floats cannot fail.
	content, _ := json.Marshal(payload)

	return ChatResponse{
		Model:   model + " (demo)",
		Content: string(content),
		Usage:   demoUsage,
	}
}
