package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/spaghettifunk/vkrun/runner/shader"
)

// DefaultPath is where Load looks when no config file is named.
const DefaultPath = "vkrun.toml"

// ToolsConfig names the external shader tool binaries.
type ToolsConfig struct {
	GlslangValidator string `toml:"glslang_validator"`
	SpirvAs          string `toml:"spirv_as"`
	SpirvDis         string `toml:"spirv_dis"`
}

// Config is the runner configuration, read from a TOML file.
type Config struct {
	LogLevel string      `toml:"log_level"`
	Tools    ToolsConfig `toml:"tools"`
}

func defaults() *Config {
	return &Config{
		LogLevel: "info",
		Tools: ToolsConfig{
			GlslangValidator: "glslangValidator",
			SpirvAs:          "spirv-as",
			SpirvDis:         "spirv-dis",
		},
	}
}

// Load reads a config file. A missing default file is not an error; a named
// file must exist.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}
	cfg := defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

// ShaderTools converts the config into shader tool locations, letting the
// PIGLIT_* environment variables have the last word.
func (c *Config) ShaderTools() shader.Tools {
	return shader.Tools{
		GlslangValidator: c.Tools.GlslangValidator,
		SpirvAs:          c.Tools.SpirvAs,
		SpirvDis:         c.Tools.SpirvDis,
	}.WithEnvOverrides()
}
