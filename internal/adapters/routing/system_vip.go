package routing

import (
	"context"
	"fmt"
	"log/slog"
	"net/netip"
	"os/exec"
	"runtime"
	"strings"

	"github.com/poyrazK/nameregistry/internal/core/ports"
)

// commandExecutor allows mocking exec.Command for testing
type commandExecutor interface {
	Run(ctx context.Context, name string, arg ...string) ([]byte, error)
}

type realExecutor struct{}

func (e *realExecutor) Run(ctx context.Context, name string, arg ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, arg...).CombinedOutput()
}

// SystemVIPAdapter implements the VIPManager port by shelling out to the
// platform's interface tool to add or remove a /32 alias.
type SystemVIPAdapter struct {
	logger   *slog.Logger
	executor commandExecutor
	goos     string
}

// NewSystemVIPAdapter initializes a new SystemVIPAdapter.
func NewSystemVIPAdapter(logger *slog.Logger) *SystemVIPAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &SystemVIPAdapter{
		logger:   logger,
		executor: &realExecutor{},
		goos:     runtime.GOOS,
	}
}

// Output fragments that mean the alias is already in the requested state.
var (
	alreadyBound   = []string{"File exists", "already bound"}
	alreadyUnbound = []string{"Cannot assign requested address", "Can't assign requested address"}
)

// Bind attaches a VIP to the specified interface. Binding twice is not an error.
func (a *SystemVIPAdapter) Bind(ctx context.Context, vip, iface string) error {
	name, args, err := a.command(true, vip, iface)
	if err != nil {
		return err
	}

	output, err := a.executor.Run(ctx, name, args...)
	if err != nil {
		out := string(output)
		if containsAny(out, alreadyBound) {
			a.logger.Info("VIP already bound", "vip", vip, "iface", iface)
			return nil
		}
		a.logger.Warn("VIP bind command failed", "error", err, "vip", vip, "output", out)
		return fmt.Errorf("failed to bind VIP: %w (output: %s)", err, out)
	}

	a.logger.Info("bound VIP to interface", "vip", vip, "iface", iface)
	return nil
}

// Unbind removes a VIP from the specified interface. Removing an absent VIP is not an error.
func (a *SystemVIPAdapter) Unbind(ctx context.Context, vip, iface string) error {
	name, args, err := a.command(false, vip, iface)
	if err != nil {
		return err
	}

	output, err := a.executor.Run(ctx, name, args...)
	if err != nil {
		out := string(output)
		if containsAny(out, alreadyUnbound) {
			return nil
		}
		a.logger.Warn("VIP unbind command failed", "error", err, "vip", vip, "output", out)
		return fmt.Errorf("failed to unbind VIP: %w (output: %s)", err, out)
	}

	a.logger.Info("unbound VIP from interface", "vip", vip, "iface", iface)
	return nil
}

func (a *SystemVIPAdapter) command(bind bool, vip, iface string) (string, []string, error) {
	addr, err := netip.ParseAddr(vip)
	if err != nil {
		return "", nil, fmt.Errorf("invalid VIP address: %s", vip)
	}
	if iface == "" {
		return "", nil, fmt.Errorf("interface name cannot be empty")
	}
	ip := addr.String()

	switch a.goos {
	case "linux":
		op := "del"
		if bind {
			op = "add"
		}
		return "ip", []string{"addr", op, ip + "/32", "dev", iface}, nil
	case "darwin":
		if bind {
			return "ifconfig", []string{iface, "alias", ip, "255.255.255.255"}, nil
		}
		return "ifconfig", []string{iface, "-alias", ip}, nil
	default:
		return "", nil, fmt.Errorf("unsupported OS for VIP management: %s", a.goos)
	}
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

var _ ports.VIPManager = (*SystemVIPAdapter)(nil)
