package service

import (
	"github.com/shopspring/decimal"
)

// PlatformFeeRate 平台抽成比例，进程级常量，不读取商品或用户配置
var PlatformFeeRate = decimal.RequireFromString("0.10")

// Split 按固定比例分账，金额单位为分。
// 平台抽成 = amount * 10% 四舍五入到分（0.5 向上），卖家所得取补数，
// 两者之和恒等于 amount，不会出现分位漂移。
func Split(amount int64) (platformShare, sellerShare int64, err error) {
	if amount <= 0 {
		return 0, 0, errSplitAmountNotPositive
	}
	platformShare = decimal.NewFromInt(amount).Mul(PlatformFeeRate).Round(0).IntPart()
	sellerShare = amount - platformShare
	return platformShare, sellerShare, nil
}
