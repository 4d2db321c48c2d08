package coordinator

import (
	"context"
	"os"
	"os/exec"
	"strconv"
	"time"
)

// hookTimeout bounds how long an ON_COMPLETE/ON_FAILURE command may run
// before it is killed, so a hung hook can't wedge the next invocation.
const hookTimeout = 30 * time.Second

// runHook invokes ON_COMPLETE or ON_FAILURE under the shell, matching the
// corpus convention (umputun-spot's Local executor) of running hook commands
// through "sh -c" rather than parsing them into argv ourselves. A hook
// failure is logged, never escalated: it must not turn a successful sync
// into a reported failure or vice versa.
func (c *Coordinator) runHook(ctx context.Context, report Report) {
	cmd := c.Config.Hooks.OnComplete
	if report.Failed() {
		cmd = c.Config.Hooks.OnFailure
	}
	if cmd == "" {
		return
	}

	hookCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), hookTimeout)
	defer cancel()

	run := exec.CommandContext(hookCtx, "sh", "-c", cmd)
	run.Env = append(os.Environ(),
		"SYNC_PROFILE="+report.Profile,
		"SYNC_PUSHED="+strconv.Itoa(report.Pushed),
		"SYNC_PULLED="+strconv.Itoa(report.Pulled),
		"SYNC_ERRORS="+strconv.Itoa(report.Errors),
	)
	if out, err := run.CombinedOutput(); err != nil {
		c.Log.Logf("WARN hook %q failed: %v: %s", cmd, err, out)
	}
}
