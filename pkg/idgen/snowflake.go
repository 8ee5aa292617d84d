package idgen

import (
	"fmt"
	"sync"
	"time"
)

// 雪花 ID：41 位毫秒时间戳 | 10 位机器 ID | 12 位序列号
// 订单号、提现意图号都由它派生，保证全局唯一且趋势递增

const (
	epoch          = int64(1704067200000) // 2024-01-01 00:00:00 UTC
	workerIDBits   = 10
	sequenceBits   = 12
	maxWorkerID    = -1 ^ (-1 << workerIDBits)
	maxSequence    = -1 ^ (-1 << sequenceBits)
	workerIDShift  = sequenceBits
	timestampShift = sequenceBits + workerIDBits
)

type Snowflake struct {
	mu        sync.Mutex
	timestamp int64
	workerID  int64
	sequence  int64
}

var (
	defaultGenerator *Snowflake
	initOnce         sync.Once
)

func NewSnowflake(workerID int64) (*Snowflake, error) {
	if workerID < 0 || workerID > maxWorkerID {
		return nil, fmt.Errorf("workerID 必须在 0-%d 之间", maxWorkerID)
	}
	return &Snowflake{workerID: workerID}, nil
}

// Init 初始化默认生成器，只有第一次调用生效
func Init(workerID int64) error {
	var err error
	initOnce.Do(func() {
		defaultGenerator, err = NewSnowflake(workerID)
	})
	return err
}

// NextID 未显式 Init 时按 workerID=1 初始化
func NextID() int64 {
	_ = Init(1)
	return defaultGenerator.Generate()
}

func (s *Snowflake) Generate() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UnixMilli()

	if now == s.timestamp {
		s.sequence = (s.sequence + 1) & maxSequence
		if s.sequence == 0 {
			// 本毫秒序列号用完，自旋到下一毫秒
			for now <= s.timestamp {
				now = time.Now().UnixMilli()
			}
		}
	} else {
		s.sequence = 0
	}

	s.timestamp = now

	return ((now - epoch) << timestampShift) |
		(s.workerID << workerIDShift) |
		s.sequence
}

// 前缀 + 雪花 ID 十进制，长度不超过 24
func generateNo(prefix string) string {
	return fmt.Sprintf("%s%d", prefix, NextID())
}

// GenerateOrderNo 订单号，例如 ORD123456789012345678
func GenerateOrderNo() string {
	return generateNo("ORD")
}

// GeneratePayoutNo 提现意图号，同时作为外部渠道的幂等键
func GeneratePayoutNo() string {
	return generateNo("PO")
}

// GenerateTransferNo 全额转账意图号
func GenerateTransferNo() string {
	return generateNo("TR")
}
