//go:build mage

package main

import (
	"fmt"
	"path/filepath"

	"github.com/magefile/mage/mg"
)

type Run mg.Namespace

// Scripts builds vkrun and runs every .shader_test file under the given
// directory.
func (Run) Scripts(dir string) error {
	mg.Deps(Build.Binary)
	matches, err := filepath.Glob(filepath.Join(dir, "*.shader_test"))
	if err != nil {
		return err
	}
	if len(matches) == 0 {
		return fmt.Errorf("no .shader_test files under %s", dir)
	}
	args := append([]string{}, matches...)
	if _, err := executeCmd("bin/vkrun", withArgs(args...), withStream()); err != nil {
		return err
	}
	return nil
}
