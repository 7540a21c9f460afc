package matting

import (
	"errors"
	"fmt"
)

type Mode string

const (
	ModeGeneric  Mode = "generic"   // 通用模式
	ModeHardEdge Mode = "hard-edge" // 硬边模式 (图标/设备)
	ModeHair     Mode = "hair"      // 发丝精修 (人像)
)

// 硬边模式的滑块范围
const (
	MinShrink    = 0
	MaxShrink    = 5
	MinThreshold = 100
	MaxThreshold = 250

	DefaultShrink    = 1
	DefaultThreshold = 200
)

var (
	ErrInvalidParams = errors.New("invalid matting params")
	ErrDecode        = errors.New("decode image")
	ErrRemove        = errors.New("remove background")
)

var Modes = []Mode{ModeGeneric, ModeHardEdge, ModeHair}

func ParseMode(s string) (Mode, error) {
	for _, m := range Modes {
		if string(m) == s {
			return m, nil
		}
	}
	return "", fmt.Errorf("%w: unknown mode %q", ErrInvalidParams, s)
}

func (m Mode) Label() string {
	switch m {
	case ModeHardEdge:
		return "硬边模式 (图标/设备)"
	case ModeHair:
		return "发丝精修 (人像)"
	default:
		return "通用模式"
	}
}

// Settings 只作用于之后的计算，不会跟随缓存结果保存
type Settings struct {
	Mode      Mode `json:"mode"`
	Threshold int  `json:"threshold"`
	Shrink    int  `json:"shrink"`
}

func DefaultSettings() Settings {
	return Settings{
		Mode:      ModeGeneric,
		Threshold: DefaultThreshold,
		Shrink:    DefaultShrink,
	}
}

// Validate 检查配置边界。收缩和阈值只在硬边模式下生效，也只在该模式下校验
func (s Settings) Validate() error {
	if _, err := ParseMode(string(s.Mode)); err != nil {
		return err
	}
	if s.Mode != ModeHardEdge {
		return nil
	}
	if s.Shrink < MinShrink || s.Shrink > MaxShrink {
		return fmt.Errorf("%w: shrink %d outside [%d,%d]", ErrInvalidParams, s.Shrink, MinShrink, MaxShrink)
	}
	if s.Threshold < MinThreshold || s.Threshold > MaxThreshold {
		return fmt.Errorf("%w: threshold %d outside [%d,%d]", ErrInvalidParams, s.Threshold, MinThreshold, MaxThreshold)
	}
	return nil
}
