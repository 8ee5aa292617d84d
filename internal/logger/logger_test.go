package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestIDFromContextIsLogged(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "release")

	ctx := ContextWithRequestID(context.Background(), "req-42")
	log.WithContext(ctx).WithField("order_no", "OD1").Info("结算成功")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "req-42", line["request_id"])
	assert.Equal(t, "OD1", line["order_no"])
}

func TestNoRequestIDWithoutContext(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "release")

	log.Info("启动")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.NotContains(t, line, "request_id")
	assert.Empty(t, RequestIDFrom(context.Background()))
}
