package combat

import (
	"regexp"
	"strconv"
	"strings"

	"rpg-narrative-api/internal/domain/dice"
)

// ActionKind 行动类型
type ActionKind string

const (
	ActionAttack    ActionKind = "attack"
	ActionSpell     ActionKind = "spell"
	ActionFlee      ActionKind = "flee"
	ActionEngage    ActionKind = "engage"
	ActionNonCombat ActionKind = "non_combat"
)

// Valid 是否为已知类型
func (k ActionKind) Valid() bool {
	switch k {
	case ActionAttack, ActionSpell, ActionFlee, ActionEngage, ActionNonCombat:
		return true
	default:
		return false
	}
}

// IsCombat 是否声明了战斗意图
func (k ActionKind) IsCombat() bool {
	return k != ActionNonCombat && k != ""
}

// Spell 法术参数
type Spell struct {
	Name     string    `json:"name"`
	Damage   dice.Spec `json:"damage,omitempty"`
	Effect   string    `json:"effect,omitempty"`
	Duration int       `json:"duration,omitempty"`
	AutoHit  bool      `json:"auto_hit,omitempty"`
}

// Action 解析后的玩家行动
type Action struct {
	Kind   ActionKind `json:"kind"`
	Text   string     `json:"text"`
	Actor  string     `json:"actor,omitempty"`
	Target string     `json:"target,omitempty"`
	Weapon string     `json:"weapon,omitempty"`

	// Damage 显式伤害骰，未设置时按武器或规则默认值
	Damage  dice.Spec     `json:"damage,omitempty"`
	Spell   *Spell        `json:"spell,omitempty"`
	Enemies []Participant `json:"enemies,omitempty"`

	// Rolls 玩家自行掷出的点数，按消耗顺序排列
	Rolls []int `json:"rolls,omitempty"`
}

// weaponDice 常见武器伤害骰
var weaponDice = map[string]dice.Spec{
	"dagger": dice.MustParseSpec("1d4"),
	"knife":  dice.MustParseSpec("1d4"),
	"fists":  dice.MustParseSpec("1d2"),
	"club":   dice.MustParseSpec("1d6"),
	"staff":  dice.MustParseSpec("1d6"),
	"bow":    dice.MustParseSpec("1d6"),
	"mace":   dice.MustParseSpec("1d6"),
	"sword":  dice.MustParseSpec("1d8"),
	"spear":  dice.MustParseSpec("1d8"),
	"axe":    dice.MustParseSpec("1d10"),
	"hammer": dice.MustParseSpec("1d10"),
}

// spellBook 已知法术
var spellBook = map[string]Spell{
	"fireball":     {Name: "fireball", Damage: dice.MustParseSpec("2d6"), Effect: "burning", Duration: 2},
	"firebolt":     {Name: "firebolt", Damage: dice.MustParseSpec("1d10")},
	"frostbolt":    {Name: "frostbolt", Damage: dice.MustParseSpec("1d8"), Effect: "slowed", Duration: 2},
	"poison":       {Name: "poison", Damage: dice.MustParseSpec("1d4"), Effect: "poisoned", Duration: 3},
	"stun":         {Name: "stun", Effect: "stunned", Duration: 1},
	"hex":          {Name: "hex", Effect: "weakened", Duration: 3, AutoHit: true},
	"magicmissile": {Name: "magicmissile", Damage: dice.MustParseSpec("3d4"), AutoHit: true},
}

// WeaponDice 查询武器伤害骰
func WeaponDice(weapon string) (dice.Spec, bool) {
	spec, ok := weaponDice[strings.ToLower(strings.TrimSpace(weapon))]
	return spec, ok
}

// LookupSpell 查询法术；名称中的空格会被忽略
func LookupSpell(name string) (Spell, bool) {
	key := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "")
	spell, ok := spellBook[key]
	return spell, ok
}

var (
	rollPattern   = regexp.MustCompile(`(?i)\broll\s*=\s*(\d+)`)
	attackPattern = regexp.MustCompile(`(?i)^(?:attack|strike|hit|stab|slash)\s+(?:the\s+)?(.+?)(?:\s+with\s+(?:my\s+|a\s+|an\s+|the\s+)?(\w+))?$`)
	spellPattern  = regexp.MustCompile(`(?i)^cast\s+(.+?)(?:\s+(?:at|on)\s+(?:the\s+)?(.+))?$`)
	engagePattern = regexp.MustCompile(`(?i)^(?:engage|fight|ambush)(?:\s+(?:the\s+|a\s+|an\s+)?(.+))?$`)
	// 只认裸动词或 "from ..."，"run to the tavern"、"escape the dungeon" 属于叙述
	fleePattern = regexp.MustCompile(`(?i)^(?:flee|retreat|run away|run|escape)(?:\s+(?:from\s+.+|away))?$`)
)

// fillerWords 出现在目标里说明这是一句叙述而不是一个对手，例如 "fight the urge to sleep"
var fillerWords = map[string]bool{
	"to": true, "of": true, "for": true, "about": true, "into": true, "on": true, "off": true,
	"through": true, "over": true, "back": true, "my": true, "our": true, "your": true, "it": true,
}

// maxTargetWords 目标名最多的词数
const maxTargetWords = 3

// plainTarget 目标是否像一个参与者名字
func plainTarget(s string) bool {
	words := strings.Fields(s)
	if len(words) == 0 || len(words) > maxTargetWords {
		return false
	}
	for _, w := range words {
		if fillerWords[strings.ToLower(w)] {
			return false
		}
	}
	return true
}

// ParseAction 把自由文本解析为结构化行动
//
// 只看第一个逗号前的指令部分；"roll=N" 片段在全文范围内按出现顺序收集为玩家报数，
// 例如 "attack Goblin with dagger, roll=15 vs defense=12, damage roll=4"。
// 目标不像参与者名字的句子按非战斗行动处理。
func ParseAction(text string) Action {
	action := Action{Kind: ActionNonCombat, Text: strings.TrimSpace(text)}

	for _, m := range rollPattern.FindAllStringSubmatch(text, -1) {
		if n, err := strconv.Atoi(m[1]); err == nil {
			action.Rolls = append(action.Rolls, n)
		}
	}

	command := action.Text
	if i := strings.IndexAny(command, ",;"); i >= 0 {
		command = command[:i]
	}
	command = strings.TrimSpace(strings.TrimRight(command, ".!"))

	if m := attackPattern.FindStringSubmatch(command); m != nil {
		if target := strings.TrimSpace(m[1]); plainTarget(target) {
			action.Kind = ActionAttack
			action.Target = target
			action.Weapon = strings.ToLower(m[2])
		}
		return action
	}
	if m := spellPattern.FindStringSubmatch(command); m != nil {
		name, target := strings.TrimSpace(m[1]), strings.TrimSpace(m[2])
		spell, known := LookupSpell(name)
		if !known && len(strings.Fields(name)) > 1 {
			return action
		}
		if target != "" && !plainTarget(target) {
			return action
		}
		if !known {
			spell = Spell{Name: strings.ToLower(name)}
		}
		action.Kind = ActionSpell
		action.Spell = &spell
		action.Target = target
		return action
	}
	if fleePattern.MatchString(command) {
		action.Kind = ActionFlee
		return action
	}
	if m := engagePattern.FindStringSubmatch(command); m != nil {
		target := strings.TrimSpace(m[1])
		if target == "" || plainTarget(target) {
			action.Kind = ActionEngage
			action.Target = target
		}
	}
	return action
}

// InContext 按当前战斗状态校正从自由文本解析出的意图
//
// 战斗未开始时，攻击、施法与撤退只是叙述（"hit the road"），按非战斗行动处理；
// 战斗中喊出已在场的对手名字（"fight the goblin"）按攻击处理。
// 客户端显式给出的结构化行动不经过这里。
func (a Action) InContext(state State) Action {
	switch {
	case !state.Active:
		switch a.Kind {
		case ActionAttack, ActionSpell, ActionFlee:
			return Action{Kind: ActionNonCombat, Text: a.Text, Rolls: a.Rolls}
		}
	case a.Kind == ActionEngage:
		if _, ok := state.Find(a.Target); ok {
			a.Kind = ActionAttack
		}
	}
	return a
}
