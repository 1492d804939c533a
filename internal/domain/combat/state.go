// Package combat 实现回合制战斗的状态模型与结算规则
//
// 结算是 (state, action, rng) 到 (new state, outcome) 的纯函数：入参状态从不被修改，
// 调用方拿到的是深拷贝后的新值，编排层是权威副本的唯一写入者。
package combat

import (
	"strings"
)

// Side 阵营
type Side string

const (
	SidePlayer Side = "player"
	SideEnemy  Side = "enemy"
)

// Attributes 角色属性
type Attributes struct {
	Strength     int `json:"strength"`
	Dexterity    int `json:"dexterity"`
	Intelligence int `json:"intelligence"`
	Charisma     int `json:"charisma"`
}

// Modifier 属性调整值，10 为基准，每 2 点 +1；0 视为未设置
func Modifier(score int) int {
	if score <= 0 {
		return 0
	}
	if score >= 10 {
		return (score - 10) / 2
	}
	return -((11 - score) / 2)
}

// Participant 战斗参与者
type Participant struct {
	Name          string         `json:"name"`
	Side          Side           `json:"side"`
	CurrentHP     int            `json:"current_hp"`
	MaxHP         int            `json:"max_hp"`
	Defense       int            `json:"defense"`
	AttackBonus   int            `json:"attack_bonus,omitempty"`
	Attributes    Attributes     `json:"attributes"`
	StatusEffects []StatusEffect `json:"status_effects,omitempty"`
}

// Alive 生命值大于 0
func (p Participant) Alive() bool {
	return p.CurrentHP > 0
}

// HasEffect 是否带有指定标签的状态
func (p Participant) HasEffect(tag string) bool {
	for _, e := range p.StatusEffects {
		if strings.EqualFold(e.Tag, tag) {
			return true
		}
	}
	return false
}

func (p Participant) clone() Participant {
	cp := p
	if p.StatusEffects != nil {
		cp.StatusEffects = append([]StatusEffect(nil), p.StatusEffects...)
	}
	return cp
}

// State 战役当前的战斗状态
type State struct {
	Participants []Participant `json:"participants"`
	RoundIndex   int           `json:"round_index"`
	Active       bool          `json:"active"`
}

// Clone 深拷贝
func (s State) Clone() State {
	cp := State{RoundIndex: s.RoundIndex, Active: s.Active}
	if s.Participants != nil {
		cp.Participants = make([]Participant, len(s.Participants))
		for i, p := range s.Participants {
			cp.Participants[i] = p.clone()
		}
	}
	return cp
}

// Find 按名称查找参与者（忽略大小写）
func (s State) Find(name string) (int, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return -1, false
	}
	for i, p := range s.Participants {
		if strings.EqualFold(p.Name, name) {
			return i, true
		}
	}
	return -1, false
}

// FirstOf 返回指定阵营的第一个存活参与者
func (s State) FirstOf(side Side) (int, bool) {
	for i, p := range s.Participants {
		if p.Side == side && p.Alive() {
			return i, true
		}
	}
	return -1, false
}

// SideDefeated 指定阵营至少有一名参与者且全部倒下
func (s State) SideDefeated(side Side) bool {
	seen := false
	for _, p := range s.Participants {
		if p.Side != side {
			continue
		}
		seen = true
		if p.Alive() {
			return false
		}
	}
	return seen
}

// Names 返回指定阵营的参与者名称
func (s State) Names(side Side) []string {
	var names []string
	for _, p := range s.Participants {
		if p.Side == side {
			names = append(names, p.Name)
		}
	}
	return names
}

// NewState 以玩家角色初始化非战斗状态
func NewState(players ...Participant) State {
	s := State{}
	for _, p := range players {
		p.Side = SidePlayer
		if p.CurrentHP == 0 && p.MaxHP > 0 {
			p.CurrentHP = p.MaxHP
		}
		s.Participants = append(s.Participants, p.clone())
	}
	return s
}
