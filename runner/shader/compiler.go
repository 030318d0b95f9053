package shader

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/spaghettifunk/vkrun/runner/core"
	"github.com/spaghettifunk/vkrun/runner/pipeline"
)

// Tools locates the external shader tool binaries. The PIGLIT_* environment
// variables override whatever the configuration chose.
type Tools struct {
	GlslangValidator string
	SpirvAs          string
	SpirvDis         string
}

// DefaultTools returns the standard binary names with environment overrides
// applied.
func DefaultTools() Tools {
	return Tools{
		GlslangValidator: "glslangValidator",
		SpirvAs:          "spirv-as",
		SpirvDis:         "spirv-dis",
	}.WithEnvOverrides()
}

// WithEnvOverrides applies the PIGLIT_* variables on top of t.
func (t Tools) WithEnvOverrides() Tools {
	if v := os.Getenv("PIGLIT_GLSLANG_VALIDATOR_BINARY"); v != "" {
		t.GlslangValidator = v
	}
	if v := os.Getenv("PIGLIT_SPIRV_AS_BINARY"); v != "" {
		t.SpirvAs = v
	}
	if v := os.Getenv("PIGLIT_SPIRV_DIS_BINARY"); v != "" {
		t.SpirvDis = v
	}
	return t
}

// StageExtension is the glslangValidator -S name for a stage.
func StageExtension(stage pipeline.Stage) string {
	switch stage {
	case pipeline.StageVertex:
		return "vert"
	case pipeline.StageTessCtrl:
		return "tesc"
	case pipeline.StageTessEval:
		return "tese"
	case pipeline.StageGeometry:
		return "geom"
	case pipeline.StageFragment:
		return "frag"
	default:
		return "comp"
	}
}

// TargetEnv formats the --target-env value for a script's Vulkan version.
func TargetEnv(version [2]int) string {
	return fmt.Sprintf("vulkan%d.%d", version[0], version[1])
}

// runTool executes a tool synchronously, capturing stderr for the error
// report.
func runTool(tool string, args ...string) error {
	core.LogDebug("Executing: %s %v", tool, args)
	cmd := exec.Command(tool, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	cmd.Stdout = &stderr
	if err := cmd.Run(); err != nil {
		return &core.SubprocessError{Tool: tool, Stderr: stderr.String(), Err: err}
	}
	return nil
}

// tempDir makes a unique working directory for one tool invocation.
func tempDir() (string, error) {
	dir := filepath.Join(os.TempDir(), "vkrun-"+uuid.NewString())
	if err := os.Mkdir(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating work directory: %w", err)
	}
	return dir, nil
}

// CompileGLSL compiles and links the GLSL fragments of one stage into a
// SPIR-V module via glslangValidator.
func (t Tools) CompileGLSL(stage pipeline.Stage, sources [][]byte, version [2]int) ([]byte, error) {
	dir, err := tempDir()
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	ext := StageExtension(stage)
	args := []string{"-V", "--target-env", TargetEnv(version), "-S", ext}
	out := filepath.Join(dir, "shader.spv")
	args = append(args, "-o", out)
	for i, source := range sources {
		in := filepath.Join(dir, fmt.Sprintf("shader.%d.%s", i, ext))
		if err := os.WriteFile(in, source, 0o644); err != nil {
			return nil, fmt.Errorf("writing shader source: %w", err)
		}
		args = append(args, in)
	}
	if err := runTool(t.GlslangValidator, args...); err != nil {
		return nil, err
	}
	spirv, err := os.ReadFile(out)
	if err != nil {
		return nil, fmt.Errorf("reading compiled shader: %w", err)
	}
	return spirv, nil
}

// AssembleSpirv assembles SPIR-V assembly text via spirv-as.
func (t Tools) AssembleSpirv(source []byte, version [2]int) ([]byte, error) {
	dir, err := tempDir()
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	in := filepath.Join(dir, "shader.spvasm")
	out := filepath.Join(dir, "shader.spv")
	if err := os.WriteFile(in, source, 0o644); err != nil {
		return nil, fmt.Errorf("writing shader source: %w", err)
	}
	if err := runTool(t.SpirvAs, "--target-env", TargetEnv(version), "-o", out, in); err != nil {
		return nil, err
	}
	spirv, err := os.ReadFile(out)
	if err != nil {
		return nil, fmt.Errorf("reading assembled shader: %w", err)
	}
	return spirv, nil
}

// Disassemble turns a SPIR-V binary back into assembly text via spirv-dis.
func (t Tools) Disassemble(spirv []byte) (string, error) {
	dir, err := tempDir()
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(dir)

	in := filepath.Join(dir, "shader.spv")
	out := filepath.Join(dir, "shader.spvasm")
	if err := os.WriteFile(in, spirv, 0o644); err != nil {
		return "", fmt.Errorf("writing shader binary: %w", err)
	}
	if err := runTool(t.SpirvDis, "-o", out, in); err != nil {
		return "", err
	}
	text, err := os.ReadFile(out)
	if err != nil {
		return "", fmt.Errorf("reading disassembly: %w", err)
	}
	return string(text), nil
}
