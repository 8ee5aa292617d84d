// Package money 在接口层的十进制金额（如 10.00）与存储层的最小货币单位（分）之间转换。
package money

import (
	"errors"
	"math"

	"github.com/shopspring/decimal"
)

// MinorUnitExponent 两位小数的货币
const MinorUnitExponent = 2

var (
	ErrNegative       = errors.New("金额不能为负数")
	ErrFractionalCent = errors.New("金额精度超过两位小数")
	ErrOutOfRange     = errors.New("金额超出可表示范围")
)

var maxMinor = decimal.NewFromInt(math.MaxInt64)

// ToMinor 把十进制金额转换为分，超过两位小数时报错而不是静默舍入
func ToMinor(d decimal.Decimal) (int64, error) {
	if d.IsNegative() {
		return 0, ErrNegative
	}
	shifted := d.Shift(MinorUnitExponent)
	if !shifted.Equal(shifted.Truncate(0)) {
		return 0, ErrFractionalCent
	}
	if shifted.GreaterThan(maxMinor) {
		return 0, ErrOutOfRange
	}
	return shifted.IntPart(), nil
}

// FromMinor 分转换为十进制金额
func FromMinor(amount int64) decimal.Decimal {
	return decimal.New(amount, -MinorUnitExponent)
}

// Format 输出固定两位小数的字符串
func Format(amount int64) string {
	return FromMinor(amount).StringFixed(MinorUnitExponent)
}
