package node

import (
	"fmt"
	"strings"
	"unicode/utf8"

	wfmodel "rpg-narrative-api/internal/workflow/model"
)

const maxTurnRunes = 600

// BuildPreviousTurnsBlock 渲染历史回合，保持传入顺序
func BuildPreviousTurnsBlock(turns []wfmodel.PastTurn) string {
	if len(turns) == 0 {
		return "- (no prior turns)"
	}
	return renderTurns(turns)
}

// BuildRecentTurnsBlock 渲染最近回合
func BuildRecentTurnsBlock(turns []wfmodel.PastTurn) string {
	if len(turns) == 0 {
		return "- (none)"
	}
	return renderTurns(turns)
}

func renderTurns(turns []wfmodel.PastTurn) string {
	lines := make([]string, 0, len(turns))
	for _, t := range turns {
		action := truncateRunes(strings.TrimSpace(t.PlayerAction), maxTurnRunes)
		narrative := truncateRunes(strings.TrimSpace(t.Narrative), maxTurnRunes)
		lines = append(lines, fmt.Sprintf("- [turn %d] Player: %s | Narrator: %s", t.SequenceIndex, action, narrative))
	}
	return strings.Join(lines, "\n")
}

// truncateRunes 按字符截断，超长时以 … 结尾
func truncateRunes(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit-1]) + "…"
}
