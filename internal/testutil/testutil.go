// Package testutil 测试用的内存数据库、配置和数据构造
package testutil

import (
	"io"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"marketpay/internal/config"
	"marketpay/internal/model"
)

// NewDB 每个测试独立的内存 SQLite。
// 单连接：并发事务在连接池上排队，效果等同于行锁串行化。
// SQLite 忽略 FOR UPDATE，并发用例在这里只能验证结果，不能证明行锁和 version 条件本身生效
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(model.AllModels()...))
	return db
}

func Config() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Mode: "test", WorkerID: 1},
		Kafka: config.KafkaConfig{
			Topic: config.KafkaTopicConfig{
				ItemSold:     "marketplace.item_sold",
				PayoutResult: "marketplace.payout_result",
			},
		},
		Auth:      config.AuthConfig{JWTSecret: "test-secret"},
		Telemetry: config.TelemetryConfig{ServiceName: "marketpay-test"},
		Business: config.BusinessConfig{
			Currency:                 "usd",
			MaxRetryCount:            3,
			PayoutReconcileSeconds:   1,
			PayoutStaleAfterSeconds:  0,
			PayoutMaxAttempts:        5,
			PayoutLockTimeoutSeconds: 5,
		},
	}
}

func Logger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func SeedUser(t *testing.T, db *gorm.DB, name string, balance int64) *model.User {
	t.Helper()
	user := &model.User{
		AuthRef:        "test|" + name + "|" + uuid.NewString(),
		Username:       name,
		Email:          name + "@example.com",
		AccountBalance: balance,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

func SeedItem(t *testing.T, db *gorm.DB, id string, seller *model.User, price int64) *model.MarketplaceItem {
	t.Helper()
	item := &model.MarketplaceItem{
		ID:        id,
		Name:      "item " + id,
		Price:     price,
		Currency:  "usd",
		UserID:    seller.ID,
		UserName:  seller.Username,
		UserEmail: seller.Email,
	}
	require.NoError(t, db.Create(item).Error)
	return item
}

func Balance(t *testing.T, db *gorm.DB, userID int64) int64 {
	t.Helper()
	var user model.User
	require.NoError(t, db.First(&user, userID).Error)
	return user.AccountBalance
}

func Count(t *testing.T, db *gorm.DB, m interface{}) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(m).Count(&n).Error)
	return n
}
