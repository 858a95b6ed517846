package backends

import (
	"context"
	"fmt"
	"sync"

	"github.com/macup/macup/pkg/engine"
)

// supportedManagers are tried in order when no manager is configured.
var supportedManagers = []string{"apt", "dnf", "yum", "zypper"}

// SysPkg installs Linux system packages through apt, dnf, yum or zypper.
// Packages are installed in one transaction per section.
type SysPkg struct {
	tool
	manager string
	sudo    bool

	once     sync.Once
	detected string
}

// NewSysPkg creates the system package backend. An empty manager is detected
// from PATH on first use.
func NewSysPkg(runner Runner, manager string, sudo bool) *SysPkg {
	return &SysPkg{
		tool:    newTool(NameSysPkg, runner),
		manager: manager,
		sudo:    sudo,
	}
}

// RuntimeAvailable reports whether a supported package manager is on PATH.
func (p *SysPkg) RuntimeAvailable(ctx context.Context) bool {
	manager := p.Manager()
	if manager == "" {
		return false
	}
	_, err := p.runner.LookPath(manager)
	return err == nil
}

// Manager returns the configured or detected package manager.
func (p *SysPkg) Manager() string {
	if p.manager != "" {
		return p.manager
	}
	p.once.Do(func() {
		for _, mgr := range supportedManagers {
			if _, err := p.runner.LookPath(mgr); err == nil {
				p.detected = mgr
				return
			}
		}
	})
	return p.detected
}

// ListInstalled lists installed package names.
func (p *SysPkg) ListInstalled(ctx context.Context) (engine.ItemSet, error) {
	var cmd Command
	switch p.Manager() {
	case "apt":
		cmd = Command{Name: "dpkg-query", Args: []string{"-W", "-f=${Package}\n"}}
	case "dnf", "yum", "zypper":
		cmd = Command{Name: "rpm", Args: []string{"-qa", "--queryformat", "%{NAME}\n"}}
	default:
		return nil, fmt.Errorf("unsupported package manager: %q", p.Manager())
	}

	res, err := Check(ctx, p.runner, cmd)
	if err != nil {
		return nil, err
	}
	return engine.NewItemSet(res.Lines()...), nil
}

// IsInstalled checks one package.
func (p *SysPkg) IsInstalled(ctx context.Context, item string) (bool, error) {
	return engine.IsInstalledVia(ctx, p, item)
}

// Install installs one package.
func (p *SysPkg) Install(ctx context.Context, item string) error {
	return p.install(ctx, []string{item})
}

// InstallBatch installs all packages in one transaction.
func (p *SysPkg) InstallBatch(ctx context.Context, items []string) error {
	return p.install(ctx, items)
}

func (p *SysPkg) install(ctx context.Context, items []string) error {
	manager := p.Manager()
	switch manager {
	case "apt", "dnf", "yum", "zypper":
	default:
		return fmt.Errorf("unsupported package manager: %q", manager)
	}

	args := append([]string{"install", "-y"}, items...)
	cmd := Command{Name: manager, Args: args, Sudo: p.sudo}
	if manager == "apt" {
		cmd.Env = map[string]string{"DEBIAN_FRONTEND": "noninteractive"}
	}

	_, err := Check(ctx, p.runner, cmd)
	return err
}
