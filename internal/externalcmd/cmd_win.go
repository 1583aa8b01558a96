//go:build windows

package externalcmd

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/kballard/go-shellquote"
)

func (e *Cmd) runOSSpecific() error {
	parts, err := shellquote.Split(e.Cmdstr)
	if err != nil {
		return err
	}
	if len(parts) == 0 {
		return fmt.Errorf("empty command")
	}

	cmd := exec.Command(parts[0], parts[1:]...)

	cmd.Env = append([]string(nil), os.Environ()...)
	for key, val := range e.Env {
		cmd.Env = append(cmd.Env, key+"="+val)
	}

	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	err = cmd.Start()
	if err != nil {
		return err
	}

	cmdDone := make(chan error, 1)
	go func() {
		cmdDone <- cmd.Wait()
	}()

	select {
	case <-e.terminate:
		cmd.Process.Kill() //nolint:errcheck
		<-cmdDone
		return errTerminated

	case err = <-cmdDone:
		return err
	}
}
