package camunda

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"

	"ria-search/internal/common/config"
)

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("rpc error: code = Unavailable desc = connection refused"), true},
		{errors.New("context deadline exceeded"), true},
		{errors.New("read: connection reset by peer"), true},
		{errors.New("rpc error: code = NotFound desc = job not found"), false},
		{errors.New("permission denied"), false},
	}

	for _, tt := range tests {
		name := "nil"
		if tt.err != nil {
			name = tt.err.Error()
		}
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestStartWorker_Disabled(t *testing.T) {
	// a disabled worker never touches the client
	w := StartWorker(nil, "hybrid-search", config.WorkerConfig{Enabled: false}, nil, zaptest.NewLogger(t))
	assert.Nil(t, w)
}
