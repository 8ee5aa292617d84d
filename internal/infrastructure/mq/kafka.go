package mq

import (
	"github.com/IBM/sarama"
	"github.com/pkg/errors"

	"marketpay/internal/config"
)

// Producer 对 sarama.SyncProducer 的薄封装，outbox 投递使用
type Producer struct {
	producer sarama.SyncProducer
}

// NewProducer 初始化 Kafka 生产者
func NewProducer(cfg config.KafkaConfig) (*Producer, error) {
	kafkaConfig := sarama.NewConfig()
	kafkaConfig.Producer.RequiredAcks = sarama.WaitForAll // 等待所有副本确认
	kafkaConfig.Producer.Retry.Max = 3
	kafkaConfig.Producer.Return.Successes = true
	kafkaConfig.Producer.Idempotent = true
	kafkaConfig.Net.MaxOpenRequests = 1
	kafkaConfig.Version = sarama.V2_1_0_0

	producer, err := sarama.NewSyncProducer(cfg.Brokers, kafkaConfig)
	if err != nil {
		return nil, errors.Wrap(err, "创建 Kafka 生产者失败")
	}
	return NewProducerFrom(producer), nil
}

func NewProducerFrom(producer sarama.SyncProducer) *Producer {
	return &Producer{producer: producer}
}

// Send 以卖家 ID 为 key，同一卖家的事件落在同一分区保持顺序
func (p *Producer) Send(topic, key, value string) error {
	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.StringEncoder(value),
	}
	_, _, err := p.producer.SendMessage(msg)
	return errors.Wrapf(err, "发送消息到 %s 失败", topic)
}

func (p *Producer) Close() error {
	return p.producer.Close()
}
