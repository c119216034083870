//go:build unix

package convert

import (
	"os/exec"
	"syscall"
)

// configureProcessGroup запускает конвертер в отдельной группе процессов,
// отмена контекста убивает всю группу (soffice порождает soffice.bin).
func configureProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
