//go:build mage

package main

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/magefile/mage/mg"
)

type Build mg.Namespace

// Binary compiles the vkrun executable into bin/.
func (Build) Binary() error {
	if err := os.MkdirAll("bin", 0o755); err != nil {
		return err
	}
	if _, err := executeCmd("go", withArgs("build", "-o", "bin/vkrun", "."), withStream()); err != nil {
		return err
	}
	return nil
}

// Test runs the whole test suite.
func (Build) Test() error {
	if _, err := executeCmd("go", withArgs("test", "./..."), withStream()); err != nil {
		return err
	}
	return nil
}

// Tidy runs go mod tidy.
func (Build) Tidy() error {
	if _, err := executeCmd("go", withArgs("mod", "tidy")); err != nil {
		return err
	}
	return nil
}

// CheckTools verifies the external shader tools are reachable, honouring
// the same PIGLIT_* overrides the runner uses.
func (Build) CheckTools() error {
	tools := map[string]string{
		"PIGLIT_GLSLANG_VALIDATOR_BINARY": "glslangValidator",
		"PIGLIT_SPIRV_AS_BINARY":          "spirv-as",
		"PIGLIT_SPIRV_DIS_BINARY":         "spirv-dis",
	}
	for env, fallback := range tools {
		name := os.Getenv(env)
		if name == "" {
			name = fallback
		}
		path, err := exec.LookPath(name)
		if err != nil {
			return fmt.Errorf("%s not found (set %s to override)", name, env)
		}
		fmt.Printf("%s: %s\n", fallback, path)
	}
	return nil
}
