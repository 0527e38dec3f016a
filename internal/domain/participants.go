package domain

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

// participantsJSON 使用 UseNumber，避免大整数经 float64 丢精度
var participantsJSON = jsoniter.Config{
	EscapeHTML:             true,
	SortMapKeys:            true,
	ValidateJsonRawMessage: true,
	UseNumber:              true,
}.Froze()

// DecodeParticipants 将持久化的成员列表还原为有序整数序列。
// raw 可以是已结构化的切片，也可以是 JSON 文本；无法转换为整数的元素被静默丢弃，
// 无法解析或为空的输入返回空序列，从不报错。去重由调用方负责。
func DecodeParticipants(raw any) []int64 {
	switch v := raw.(type) {
	case nil:
		return []int64{}
	case []int64:
		out := make([]int64, len(v))
		copy(out, v)
		return out
	case []int:
		out := make([]int64, 0, len(v))
		for _, n := range v {
			out = append(out, int64(n))
		}
		return out
	case []any:
		return coerceAll(v)
	case string:
		return decodeParticipantsText([]byte(v))
	case []byte:
		return decodeParticipantsText(v)
	case *string:
		if v == nil {
			return []int64{}
		}
		return decodeParticipantsText([]byte(*v))
	default:
		return []int64{}
	}
}

func decodeParticipantsText(b []byte) []int64 {
	if len(strings.TrimSpace(string(b))) == 0 {
		return []int64{}
	}
	var items []any
	if err := participantsJSON.Unmarshal(b, &items); err != nil {
		return []int64{}
	}
	return coerceAll(items)
}

func coerceAll(items []any) []int64 {
	out := make([]int64, 0, len(items))
	for _, item := range items {
		if n, ok := coerceInt(item); ok {
			out = append(out, n)
		}
	}
	return out
}

// coerceInt 只接受值为整数的元素 (数字或数字字符串)
func coerceInt(item any) (int64, bool) {
	switch v := item.(type) {
	case json.Number:
		return parseIntegral(string(v))
	case float64:
		return floatToInt(v)
	case int:
		return int64(v), true
	case int64:
		return v, true
	case string:
		return parseIntegral(strings.TrimSpace(v))
	default:
		return 0, false
	}
}

func parseIntegral(s string) (int64, bool) {
	if s == "" {
		return 0, false
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return floatToInt(f)
}

func floatToInt(f float64) (int64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	if f > math.MaxInt64 || f < math.MinInt64 {
		return 0, false
	}
	return int64(f), true
}

// EncodeParticipants 序列化为持久化使用的 JSON 数组文本。
func EncodeParticipants(ids []int64) string {
	if len(ids) == 0 {
		return "[]"
	}
	b, err := participantsJSON.Marshal(ids)
	if err != nil {
		// []int64 不会序列化失败
		return "[]"
	}
	return string(b)
}

// ContainsParticipant 判断 id 是否在序列中
func ContainsParticipant(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// RemoveParticipant 移除 id 并保持其余元素的相对顺序
func RemoveParticipant(ids []int64, id int64) []int64 {
	out := make([]int64, 0, len(ids))
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

// DedupeParticipants 去重，保留首次出现的顺序
func DedupeParticipants(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, v := range ids {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// ParticipantKind 成员类别
type ParticipantKind int

const (
	ParticipantReal ParticipantKind = iota
	ParticipantRobot
)

// Participant 显式区分真实用户与机器人的成员标识。
// ID 始终为正；线上/持久化形式仍是带符号整数 (负数 = 机器人)。
type Participant struct {
	Kind ParticipantKind
	ID   int64
}

// ParticipantFromWire 从带符号整数构造
func ParticipantFromWire(v int64) Participant {
	if v < 0 {
		return Participant{Kind: ParticipantRobot, ID: -v}
	}
	return Participant{Kind: ParticipantReal, ID: v}
}

// Wire 返回持久化使用的带符号整数
func (p Participant) Wire() int64 {
	if p.Kind == ParticipantRobot {
		return -p.ID
	}
	return p.ID
}

func (p Participant) IsRobot() bool { return p.Kind == ParticipantRobot }

// SplitParticipants 按真实用户/机器人拆分，保持各自原有顺序
func SplitParticipants(ids []int64) (humans []Participant, robots []Participant) {
	for _, v := range ids {
		p := ParticipantFromWire(v)
		if p.IsRobot() {
			robots = append(robots, p)
		} else {
			humans = append(humans, p)
		}
	}
	return humans, robots
}
