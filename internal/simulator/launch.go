package simulator

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"github.com/bngseg/collector/pkg/core"
)

// process is a simulator instance started by this client.
type process struct {
	cmd  *exec.Cmd
	done chan error
}

// binaryCandidates lists the simulator executables, relative to the install
// directory, in the order they are tried.
func binaryCandidates() []string {
	if runtime.GOOS == "windows" {
		return []string{
			filepath.Join("Bin64", "BeamNG.tech.x64.exe"),
			filepath.Join("Bin64", "BeamNG.drive.x64.exe"),
		}
	}
	return []string{
		filepath.Join("BinLinux", "BeamNG.tech.x64"),
		filepath.Join("BinLinux", "BeamNG.drive.x64"),
	}
}

// findBinary returns the first simulator executable found under home.
func findBinary(home string) (string, error) {
	if home == "" {
		return "", fmt.Errorf("%w: simulator.home must be set to launch the simulator", core.ErrInvalidConfiguration)
	}
	for _, rel := range binaryCandidates() {
		p := filepath.Join(home, rel)
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: no simulator executable under %s", core.ErrSimulatorUnavailable, home)
}

// launchArgs returns the command line that makes the simulator listen for
// this client.
func launchArgs(cfg Config) []string {
	args := []string{
		"-console",
		"-nosteam",
		"-tcom-listen-ip", cfg.Host,
		"-tport", strconv.Itoa(cfg.Port),
	}
	if cfg.User != "" {
		args = append(args, "-userpath", cfg.User)
	}
	return args
}

func launch(cfg Config, logger *slog.Logger) (*process, error) {
	bin, err := findBinary(cfg.Home)
	if err != nil {
		return nil, err
	}

	cmd := exec.Command(bin, launchArgs(cfg)...)
	cmd.Dir = cfg.Home
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: start %s: %v", core.ErrSimulatorUnavailable, bin, err)
	}
	logger.Info("Launched simulator", "binary", bin, "pid", cmd.Process.Pid, "args", cmd.Args[1:])

	p := &process{cmd: cmd, done: make(chan error, 1)}
	go func() { p.done <- cmd.Wait() }()
	return p, nil
}

func (p *process) stop(logger *slog.Logger) {
	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		logger.Warn("Failed to stop simulator", "pid", p.cmd.Process.Pid, "error", err)
		return
	}
	select {
	case <-p.done:
	case <-time.After(10 * time.Second):
		logger.Warn("Simulator did not exit after kill", "pid", p.cmd.Process.Pid)
	}
}
