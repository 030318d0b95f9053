package runner

import (
	"errors"
	"fmt"

	"github.com/spaghettifunk/vkrun/runner/config"
	"github.com/spaghettifunk/vkrun/runner/core"
	"github.com/spaghettifunk/vkrun/runner/pipeline"
	"github.com/spaghettifunk/vkrun/runner/script"
	"github.com/spaghettifunk/vkrun/runner/shader"
	"github.com/spaghettifunk/vkrun/runner/vulkan"
)

// Runner loads, compiles and executes test scripts.
type Runner struct {
	tools        shader.Tools
	replacements []script.Replacement
}

// New builds a runner from the configuration and the -D token replacements.
func New(cfg *config.Config, replacements []script.Replacement) *Runner {
	return &Runner{
		tools:        cfg.ShaderTools(),
		replacements: replacements,
	}
}

// compileStages turns every shader section into a SPIR-V module.
func (r *Runner) compileStages(scr *script.Script) (map[pipeline.Stage][]byte, error) {
	modules := make(map[pipeline.Stage][]byte)
	for stage := pipeline.Stage(0); stage < pipeline.StageCount; stage++ {
		entries := scr.Stages[stage]
		if len(entries) == 0 {
			continue
		}
		switch entries[0].Source {
		case script.SourceSpirvBinary:
			modules[stage] = entries[0].Code
		case script.SourceSpirvAsm:
			spirv, err := r.tools.AssembleSpirv(entries[0].Code, scr.VulkanVersion)
			if err != nil {
				return nil, err
			}
			modules[stage] = spirv
		default:
			sources := make([][]byte, len(entries))
			for i, entry := range entries {
				sources[i] = entry.Code
			}
			spirv, err := r.tools.CompileGLSL(stage, sources, scr.VulkanVersion)
			if err != nil {
				return nil, err
			}
			modules[stage] = spirv
		}
	}
	return modules, nil
}

// RunScript executes an already parsed script.
func (r *Runner) RunScript(scr *script.Script) core.Result {
	modules, err := r.compileStages(scr)
	if err != nil {
		core.LogError("%s: %v", scr.Filename, err)
		return core.ResultFail
	}

	ctx, err := vulkan.NewContext(scr)
	if err != nil {
		if errors.Is(err, vulkan.ErrUnsupported) {
			core.LogInfo("%s: %v", scr.Filename, err)
			return core.ResultSkip
		}
		core.LogError("%s: %v", scr.Filename, err)
		return core.ResultFail
	}
	defer ctx.Destroy()

	fb, err := vulkan.NewFramebuffer(ctx, scr.WindowFormat)
	if err != nil {
		core.LogError("%s: %v", scr.Filename, err)
		return core.ResultFail
	}
	defer fb.Destroy(ctx)

	pl, err := vulkan.NewPipeline(ctx, scr, modules, fb)
	if err != nil {
		core.LogError("%s: %v", scr.Filename, err)
		return core.ResultFail
	}
	defer pl.Destroy()

	result, err := vulkan.Execute(ctx, scr, pl, fb)
	if err != nil {
		core.LogError("%s: %v", scr.Filename, err)
		return core.ResultFail
	}
	return result
}

// RunFile parses and executes one script file.
func (r *Runner) RunFile(path string) core.Result {
	scr, err := script.ParseFile(path, r.replacements)
	if err != nil {
		core.LogError("%v", err)
		return core.ResultFail
	}
	return r.RunScript(scr)
}

// RunAll runs every script and merges the outcomes, reporting one line per
// script.
func (r *Runner) RunAll(paths []string) core.Result {
	overall := core.ResultSkip
	for _, path := range paths {
		result := r.RunFile(path)
		fmt.Printf("%s: %s\n", path, result)
		overall = overall.Merge(result)
	}
	return overall
}
