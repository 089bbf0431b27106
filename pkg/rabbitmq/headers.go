package rabbitmq

import (
	"fmt"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/spf13/cast"
	"media-orchestrator/constant"
)

// RetryCount reads the retry header. A missing header is zero; a value that
// is not an integer is reported as an error alongside zero.
func RetryCount(headers amqp.Table) (int, error) {
	raw, ok := headers[constant.RetryCountHeader]
	if !ok || raw == nil {
		return 0, nil
	}
	n, err := cast.ToIntE(raw)
	if err != nil {
		return 0, fmt.Errorf("rabbitmq: header %s: %w", constant.RetryCountHeader, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("rabbitmq: header %s is negative: %d", constant.RetryCountHeader, n)
	}
	return n, nil
}

// WithRetryCount copies headers and sets the retry header to n.
func WithRetryCount(headers amqp.Table, n int) amqp.Table {
	out := make(amqp.Table, len(headers)+1)
	for k, v := range headers {
		out[k] = v
	}
	out[constant.RetryCountHeader] = int32(n)
	return out
}
