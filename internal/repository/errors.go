package repository

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

var (
	ErrUserNotFound     = errors.New("用户不存在")
	ErrItemNotFound     = errors.New("商品不存在")
	ErrOrderNotFound    = errors.New("订单不存在")
	ErrIntentNotFound   = errors.New("提现意图不存在")
	ErrOptimisticLock   = errors.New("乐观锁冲突，请重试")
	ErrStatusConflict   = errors.New("状态不合法")
	ErrDuplicateRequest = errors.New("重复请求")
)

// pick 返回事务连接，未传事务时退回默认连接
func pick(db, tx *gorm.DB) *gorm.DB {
	if tx == nil {
		return db
	}
	return tx
}

// isDuplicateKey 优先使用 gorm.Config.TranslateError 翻译后的错误，
// 未翻译时按各驱动的错误文本判断
func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "Duplicate entry") ||
		strings.Contains(msg, "duplicate key value")
}
