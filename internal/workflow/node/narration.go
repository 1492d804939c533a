package node

import (
	"encoding/json"
	"strings"

	"rpg-narrative-api/internal/domain/combat"
)

type narrationJSON struct {
	Narrative string `json:"narrative"`
	combat.Directives
}

// ParseNarration 解析叙事模型输出；无法解析时退化为原文叙述且不带任何指令
func ParseNarration(raw string) (narrative string, directives combat.Directives, structured bool) {
	text := strings.TrimSpace(raw)

	obj, ok := firstJSONObject(text)
	if !ok {
		return text, combat.Directives{}, false
	}
	var out narrationJSON
	if err := json.Unmarshal([]byte(obj), &out); err != nil {
		return text, combat.Directives{}, false
	}
	n := strings.TrimSpace(out.Narrative)
	if n == "" {
		return text, combat.Directives{}, false
	}
	return n, out.Directives, true
}

// firstJSONObject 返回 s 中第一个括号配平的 {...}。
// 模型常在对象前后夹带说明文字或 ``` 围栏，字符串内的括号与转义不计入配平。
func firstJSONObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
