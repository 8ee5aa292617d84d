package job

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"marketpay/internal/config"
	"marketpay/internal/model"
	"marketpay/internal/repository"
)

// MessageSender 消息投递，mq.Producer 实现
type MessageSender interface {
	Send(topic, key, value string) error
}

// OutboxSender 轮询 outbox 表，把通知投递到 Kafka。
// 投递成功后才标记 SENT，消费端需按 payload 中的业务键去重
type OutboxSender struct {
	outboxRepo *repository.OutboxRepository
	sender     MessageSender
	cfg        *config.Config
	log        logrus.FieldLogger
	interval   time.Duration
	batchSize  int
}

func NewOutboxSender(db *gorm.DB, sender MessageSender, cfg *config.Config, log logrus.FieldLogger) *OutboxSender {
	return &OutboxSender{
		outboxRepo: repository.NewOutboxRepository(db),
		sender:     sender,
		cfg:        cfg,
		log:        log.WithField("job", "outbox_sender"),
		interval:   100 * time.Millisecond,
		batchSize:  100,
	}
}

func (s *OutboxSender) Start(ctx context.Context) {
	s.log.Info("消息发送任务启动")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("收到停止信号，任务退出")
			return
		case <-ticker.C:
			s.ProcessPending(ctx)
		}
	}
}

// ProcessPending 发送一批待投递消息，返回成功条数
func (s *OutboxSender) ProcessPending(ctx context.Context) int {
	messages, err := s.outboxRepo.GetPendingMessages(ctx, s.batchSize)
	if err != nil {
		s.log.WithError(err).Error("查询消息失败")
		return 0
	}

	sent := 0
	for _, msg := range messages {
		if s.sendMessage(ctx, msg) {
			sent++
		}
	}
	return sent
}

func (s *OutboxSender) sendMessage(ctx context.Context, msg *model.OutboxMessage) bool {
	entry := s.log.WithFields(logrus.Fields{
		"id":    msg.ID,
		"topic": msg.Topic,
		"key":   msg.MessageKey,
	})

	err := s.sender.Send(msg.Topic, msg.MessageKey, msg.Payload)
	if err == nil {
		if updateErr := s.outboxRepo.UpdateStatus(ctx, msg.ID, model.OutboxStatusSent); updateErr != nil {
			entry.WithError(updateErr).Error("更新消息状态失败")
			return false
		}
		entry.Debug("消息发送成功")
		return true
	}

	entry.WithError(err).Warn("消息发送失败")

	if err := s.outboxRepo.IncrementRetryCount(ctx, msg.ID); err != nil {
		entry.WithError(err).Error("增加重试次数失败")
	}

	if msg.RetryCount+1 >= s.cfg.Business.MaxRetryCount {
		if err := s.outboxRepo.MarkAsFailed(ctx, msg.ID); err != nil {
			entry.WithError(err).Error("标记消息失败状态失败")
		} else {
			entry.Warn("消息超过最大重试次数，标记为失败")
		}
	}
	return false
}
