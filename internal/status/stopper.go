package status

import (
	"time"

	"github.com/markusressel/heat2go/internal/ui"
	"github.com/markusressel/heat2go/internal/util"
)

const stopCommandTimeout = 5 * time.Second

// CommandStopper runs an external command to halt all motion, e.g. an
// emergency stop of the motion controller.
type CommandStopper struct {
	Exec string
	Args []string
}

func (s CommandStopper) Stop() {
	if len(s.Exec) <= 0 {
		ui.Warning("No stop command configured, motion is not halted")
		return
	}
	output, err := util.SafeCmdExecution(s.Exec, s.Args, stopCommandTimeout)
	if err != nil {
		ui.Error("Stop command %s failed: %v", s.Exec, err)
		return
	}
	ui.Info("Stop command %s: %s", s.Exec, output)
}
