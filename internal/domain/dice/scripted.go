package dice

// Scripted 先按顺序返回预设点数，耗尽后回落到 fallback
//
// 用于玩家在桌面上自行掷骰后报数，以及测试中的确定性掷骰。
// 预设点数会被钳制到 [1, sides]。
type Scripted struct {
	faces    []int
	next     int
	fallback Source
}

// NewScripted 创建脚本化随机源，fallback 为 nil 时耗尽后恒返回 1 点
func NewScripted(fallback Source, faces ...int) *Scripted {
	return &Scripted{
		faces:    append([]int(nil), faces...),
		fallback: fallback,
	}
}

// Intn 实现 Source
func (s *Scripted) Intn(n int) int {
	if s.next < len(s.faces) {
		face := s.faces[s.next]
		s.next++
		if face < 1 {
			face = 1
		}
		if face > n {
			face = n
		}
		return face - 1
	}
	if s.fallback == nil {
		return 0
	}
	return s.fallback.Intn(n)
}

// Remaining 尚未消耗的预设点数
func (s *Scripted) Remaining() int {
	return len(s.faces) - s.next
}
