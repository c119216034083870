//go:build !unix

package convert

import "os/exec"

// configureProcessGroup — на не-unix платформах отмена убивает только сам процесс.
func configureProcessGroup(cmd *exec.Cmd) {
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return cmd.Process.Kill()
	}
}
