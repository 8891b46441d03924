// Package proctree walks OS process ancestry to decide whether the
// supervised agent binary is running under a pane's shell. The pane's
// reported foreground command is unreliable when the agent is launched
// through a wrapper script, so descendant walking is the primary signal and
// the foreground command only a complementary one.
package proctree

import (
	"log/slog"
	"os/exec"
	"strconv"
	"strings"

	"github.com/muxpilot/muxpilot/internal/logging"
)

var procLog = logging.ForComponent(logging.CompProc)

// Detector inspects the process tree via pgrep/ps. The zero value is not
// usable; construct with New.
type Detector struct {
	// run executes a command and returns stdout; swapped in tests.
	run func(name string, args ...string) ([]byte, error)
}

// New returns a detector shelling out to pgrep and ps.
func New() *Detector {
	return &Detector{
		run: func(name string, args ...string) ([]byte, error) {
			return exec.Command(name, args...).Output()
		},
	}
}

// NewWithRunner returns a detector using a custom command runner (tests).
func NewWithRunner(run func(name string, args ...string) ([]byte, error)) *Detector {
	return &Detector{run: run}
}

// Descendants returns all descendant PIDs of pid, breadth-first, excluding
// pid itself. Walk failures for individual parents are not fatal: a process
// with no children makes pgrep exit non-zero.
func (d *Detector) Descendants(pid int) []int {
	var all []int
	queue := []int{pid}
	for len(queue) > 0 {
		parent := queue[0]
		queue = queue[1:]
		out, err := d.run("pgrep", "-P", strconv.Itoa(parent))
		if err != nil {
			continue
		}
		for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
			child, err := strconv.Atoi(strings.TrimSpace(line))
			if err != nil || child <= 0 {
				continue
			}
			all = append(all, child)
			queue = append(queue, child)
		}
	}
	return all
}

// CommandName returns the command name of a PID, or empty if it is gone.
func (d *Detector) CommandName(pid int) string {
	out, err := d.run("ps", "-p", strconv.Itoa(pid), "-o", "comm=")
	if err != nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(string(out)))
}

// AgentRunning reports whether the agent binary runs under the pane's
// leader process. The pane PID itself counts: the agent may have been
// exec'd directly rather than forked from a shell.
func (d *Detector) AgentRunning(panePID int, agent string) bool {
	if panePID <= 0 || agent == "" {
		return false
	}
	agent = strings.ToLower(agent)
	if strings.Contains(d.CommandName(panePID), agent) {
		return true
	}
	for _, pid := range d.Descendants(panePID) {
		if name := d.CommandName(pid); strings.Contains(name, agent) {
			procLog.Debug("agent_found_in_tree",
				slog.Int("pane_pid", panePID),
				slog.Int("agent_pid", pid),
				slog.String("comm", name))
			return true
		}
	}
	return false
}

// ForegroundMatches is the cheap complementary signal: whether the pane's
// reported foreground command names the agent. Disagrees with AgentRunning
// when the agent sits behind a wrapper; callers treat the two as
// complementary, not interchangeable.
func ForegroundMatches(command, agent string) bool {
	if command == "" || agent == "" {
		return false
	}
	return strings.Contains(strings.ToLower(command), strings.ToLower(agent))
}
