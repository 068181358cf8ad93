//go:build !unix

package process

import "os/exec"

func configureProcess(*exec.Cmd) {}
