// Package dice 提供可复现的掷骰原语
//
// 所有随机性都来自调用方注入的 Source：生产环境使用带显式种子的 *rand.Rand，
// 测试与玩家手动报数时使用 Scripted。包内不持有任何全局随机状态。
package dice

import (
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"math/rand"
	"regexp"
	"strconv"
	"strings"

	apperrors "rpg-narrative-api/pkg/errors"
)

// Source 随机源，*rand.Rand 满足该接口
type Source interface {
	// Intn 返回 [0, n) 内的整数
	Intn(n int) int
}

var (
	// ErrInvalidDiceSpec 面数或数量不合法
	ErrInvalidDiceSpec = apperrors.ErrInvalidInput.WithDetail("dice sides and count must be positive")
	// ErrInvalidNotation 无法解析的骰子表达式
	ErrInvalidNotation = apperrors.ErrInvalidInput.WithDetail("invalid dice notation")
)

// NewSource 以显式种子创建随机源
func NewSource(seed int64) *rand.Rand {
	return rand.New(rand.NewSource(seed))
}

// NewSeed 从 crypto/rand 生成种子
func NewSeed() (int64, error) {
	var buf [8]byte
	if _, err := crand.Read(buf[:]); err != nil {
		return 0, fmt.Errorf("failed to read seed: %w", err)
	}
	return int64(binary.LittleEndian.Uint64(buf[:]) >> 1), nil
}

// Roll 掷 count 个 sides 面骰，结果按掷出顺序返回
func Roll(src Source, sides, count int) ([]int, error) {
	if sides <= 0 || count <= 0 {
		return nil, ErrInvalidDiceSpec
	}
	if src == nil {
		return nil, fmt.Errorf("dice source is nil")
	}
	results := make([]int, count)
	for i := range results {
		results[i] = rollDie(src, sides)
	}
	return results, nil
}

// rollDie 掷一个 sides 面骰
func rollDie(src Source, sides int) int {
	return src.Intn(sides) + 1
}

// Spec 骰子表达式，例如 2d6+1
type Spec struct {
	Count    int `json:"count"`
	Sides    int `json:"sides"`
	Modifier int `json:"modifier,omitempty"`
}

// Result 一次表达式掷骰的结果
type Result struct {
	Rolls    []int `json:"rolls"`
	Modifier int   `json:"modifier,omitempty"`
	Total    int   `json:"total"`
}

var notationPattern = regexp.MustCompile(`^(\d*)d(\d+)([+-]\d+)?$`)

// ParseSpec 解析 NdS[+M] 表达式，N 缺省为 1
func ParseSpec(notation string) (Spec, error) {
	m := notationPattern.FindStringSubmatch(strings.ToLower(strings.TrimSpace(notation)))
	if m == nil {
		return Spec{}, ErrInvalidNotation.WithDetail(fmt.Sprintf("invalid dice notation %q", notation))
	}

	count := 1
	if m[1] != "" {
		count, _ = strconv.Atoi(m[1])
	}
	sides, _ := strconv.Atoi(m[2])
	modifier := 0
	if m[3] != "" {
		modifier, _ = strconv.Atoi(m[3])
	}

	spec := Spec{Count: count, Sides: sides, Modifier: modifier}
	if err := spec.Validate(); err != nil {
		return Spec{}, err
	}
	return spec, nil
}

// MustParseSpec 解析失败时 panic，仅用于常量表
func MustParseSpec(notation string) Spec {
	spec, err := ParseSpec(notation)
	if err != nil {
		panic(err)
	}
	return spec
}

// IsZero 未设置的表达式
func (s Spec) IsZero() bool {
	return s.Count == 0 && s.Sides == 0 && s.Modifier == 0
}

// Validate 校验面数与数量
func (s Spec) Validate() error {
	if s.Sides <= 0 || s.Count <= 0 {
		return ErrInvalidDiceSpec
	}
	return nil
}

// String 返回标准表达式
func (s Spec) String() string {
	switch {
	case s.Modifier > 0:
		return fmt.Sprintf("%dd%d+%d", s.Count, s.Sides, s.Modifier)
	case s.Modifier < 0:
		return fmt.Sprintf("%dd%d%d", s.Count, s.Sides, s.Modifier)
	default:
		return fmt.Sprintf("%dd%d", s.Count, s.Sides)
	}
}

// Roll 按表达式掷骰
func (s Spec) Roll(src Source) (Result, error) {
	rolls, err := Roll(src, s.Sides, s.Count)
	if err != nil {
		return Result{}, err
	}
	total := s.Modifier
	for _, r := range rolls {
		total += r
	}
	return Result{Rolls: rolls, Modifier: s.Modifier, Total: total}, nil
}
