package combat

import (
	"math"

	"rpg-narrative-api/internal/domain/dice"
)

// EstimateEnemy 以玩家为基线生成敌人，各项数值在 ±variance 范围内浮动
func EstimateEnemy(player Participant, name string, variance float64, src dice.Source) Participant {
	if name == "" {
		name = "Enemy"
	}
	if variance < 0 {
		variance = 0
	}

	vary := func(v int) int {
		if v <= 0 {
			return v
		}
		factor := 1 + variance*float64(src.Intn(2001)-1000)/1000
		n := int(math.Round(float64(v) * factor))
		if n < 1 {
			n = 1
		}
		return n
	}

	baseHP := player.MaxHP
	if baseHP <= 0 {
		baseHP = 10
	}
	baseDefense := player.Defense
	if baseDefense <= 0 {
		baseDefense = 10
	}

	maxHP := vary(baseHP)
	return Participant{
		Name:        name,
		Side:        SideEnemy,
		CurrentHP:   maxHP,
		MaxHP:       maxHP,
		Defense:     vary(baseDefense),
		AttackBonus: player.AttackBonus,
		Attributes: Attributes{
			Strength:     vary(player.Attributes.Strength),
			Dexterity:    vary(player.Attributes.Dexterity),
			Intelligence: vary(player.Attributes.Intelligence),
			Charisma:     vary(player.Attributes.Charisma),
		},
	}
}
