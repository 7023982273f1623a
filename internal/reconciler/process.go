package reconciler

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"
)

// ProcessSupervisor starts, restarts, and stops one guard child
// process per market, tracking them in memory — the direct os/exec
// substitute for guard_reconciler.py's
// systemctl enable/restart/disable --now trading-guard@<market>.
type ProcessSupervisor struct {
	mu        sync.Mutex
	guardPath string
	procs     map[string]*exec.Cmd
}

// NewProcessSupervisor builds a supervisor that execs guardPath once
// per managed market.
func NewProcessSupervisor(guardPath string) *ProcessSupervisor {
	return &ProcessSupervisor{guardPath: guardPath, procs: make(map[string]*exec.Cmd)}
}

// Running lists the markets this supervisor currently has a live child
// process for.
func (s *ProcessSupervisor) Running() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.procs))
	for m, cmd := range s.procs {
		if cmd.ProcessState == nil {
			out = append(out, m)
		}
	}
	return out
}

// Start launches a guard child process for market with the given
// MARKET/PROM_PORT environment. No-op if already running.
func (s *ProcessSupervisor) Start(ctx context.Context, market string, port int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cmd, ok := s.procs[market]; ok && cmd.ProcessState == nil {
		return nil
	}
	cmd := s.build(market, port)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("reconciler: start guard %s: %w", market, err)
	}
	s.procs[market] = cmd
	go func() { _ = cmd.Wait() }() // reap; exit status observed via ProcessState
	return nil
}

// Restart stops then starts market's guard process.
func (s *ProcessSupervisor) Restart(ctx context.Context, market string, port int) error {
	s.Stop(market)
	return s.Start(ctx, market, port)
}

// Stop signals market's guard process to terminate, if running.
func (s *ProcessSupervisor) Stop(market string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cmd, ok := s.procs[market]
	if !ok || cmd.Process == nil {
		return
	}
	_ = cmd.Process.Kill()
	delete(s.procs, market)
}

func (s *ProcessSupervisor) build(market string, port int) *exec.Cmd {
	cmd := exec.Command(s.guardPath)
	cmd.Env = append(os.Environ(),
		fmt.Sprintf("MARKET=%s", market),
		fmt.Sprintf("PROM_PORT=%d", port),
	)
	return cmd
}
