package routing

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

type mockExecutor struct {
	output []byte
	err    error
	calls  []string
}

func (m *mockExecutor) Run(_ context.Context, name string, arg ...string) ([]byte, error) {
	m.calls = append(m.calls, name+" "+strings.Join(arg, " "))
	return m.output, m.err
}

func newVIPAdapter(goos string) (*SystemVIPAdapter, *mockExecutor) {
	mock := &mockExecutor{}
	return &SystemVIPAdapter{logger: slog.New(slog.DiscardHandler), executor: mock, goos: goos}, mock
}

func TestSystemVIPAdapter_Commands(t *testing.T) {
	tests := []struct {
		goos       string
		iface      string
		wantBind   string
		wantUnbind string
	}{
		{"linux", "lo", "ip addr add 203.0.113.53/32 dev lo", "ip addr del 203.0.113.53/32 dev lo"},
		{"darwin", "lo0", "ifconfig lo0 alias 203.0.113.53 255.255.255.255", "ifconfig lo0 -alias 203.0.113.53"},
	}

	for _, tt := range tests {
		t.Run(tt.goos, func(t *testing.T) {
			adapter, mock := newVIPAdapter(tt.goos)
			ctx := context.Background()
			assert.NoError(t, adapter.Bind(ctx, "203.0.113.53", tt.iface))
			assert.NoError(t, adapter.Unbind(ctx, "203.0.113.53", tt.iface))
			assert.Equal(t, []string{tt.wantBind, tt.wantUnbind}, mock.calls)
		})
	}
}

func TestSystemVIPAdapter_Idempotent(t *testing.T) {
	adapter, mock := newVIPAdapter("linux")
	ctx := context.Background()
	mock.err = errors.New("exit status 2")

	mock.output = []byte("RTNETLINK answers: File exists")
	assert.NoError(t, adapter.Bind(ctx, "203.0.113.53", "lo"))

	mock.output = []byte("RTNETLINK answers: Cannot assign requested address")
	assert.NoError(t, adapter.Unbind(ctx, "203.0.113.53", "lo"))
}

func TestSystemVIPAdapter_Failures(t *testing.T) {
	adapter, mock := newVIPAdapter("linux")
	ctx := context.Background()
	mock.err = errors.New("exit status 2")
	mock.output = []byte("Operation not permitted")

	assert.Error(t, adapter.Bind(ctx, "203.0.113.53", "lo"))
	assert.Error(t, adapter.Unbind(ctx, "203.0.113.53", "lo"))

	assert.Error(t, adapter.Bind(ctx, "not-an-ip", "lo"))
	assert.Error(t, adapter.Bind(ctx, "203.0.113.53", ""))

	adapter.goos = "windows"
	mock.calls = nil
	assert.Error(t, adapter.Bind(ctx, "203.0.113.53", "lo"))
	assert.Error(t, adapter.Unbind(ctx, "203.0.113.53", "lo"))
	assert.Empty(t, mock.calls)
}

func TestNewSystemVIPAdapter(t *testing.T) {
	adapter := NewSystemVIPAdapter(nil)
	assert.NotNil(t, adapter.logger)
	assert.NotEmpty(t, adapter.goos)
}
