package rabbitmq

import (
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"media-orchestrator/constant"
	"testing"
)

func TestRetryCount(t *testing.T) {
	cases := []struct {
		name    string
		headers amqp.Table
		want    int
		wantErr bool
	}{
		{name: "nil headers", headers: nil, want: 0},
		{name: "absent", headers: amqp.Table{"other": "x"}, want: 0},
		{name: "null value", headers: amqp.Table{constant.RetryCountHeader: nil}, want: 0},
		{name: "int32", headers: amqp.Table{constant.RetryCountHeader: int32(2)}, want: 2},
		{name: "int64", headers: amqp.Table{constant.RetryCountHeader: int64(4)}, want: 4},
		{name: "int8", headers: amqp.Table{constant.RetryCountHeader: int8(1)}, want: 1},
		{name: "numeric string", headers: amqp.Table{constant.RetryCountHeader: "3"}, want: 3},
		{name: "garbage string", headers: amqp.Table{constant.RetryCountHeader: "three"}, want: 0, wantErr: true},
		{name: "negative", headers: amqp.Table{constant.RetryCountHeader: int32(-1)}, want: 0, wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := RetryCount(tc.headers)
			if tc.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestWithRetryCount_CopiesHeaders(t *testing.T) {
	original := amqp.Table{"x-trace": "abc", constant.RetryCountHeader: int32(1)}

	next := WithRetryCount(original, 2)

	assert.Equal(t, int32(2), next[constant.RetryCountHeader])
	assert.Equal(t, "abc", next["x-trace"])
	assert.Equal(t, int32(1), original[constant.RetryCountHeader])
	require.NoError(t, next.Validate())
}

func TestWithRetryCount_NilHeaders(t *testing.T) {
	next := WithRetryCount(nil, 0)
	n, err := RetryCount(next)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
