/*
vkrun executes declarative Vulkan test scripts: each script names the
device features it needs, carries its shaders, and drives draws, dispatches
and probes against a headless device. The exit status is zero unless any
script fails.
*/
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/spaghettifunk/vkrun/runner"
	"github.com/spaghettifunk/vkrun/runner/config"
	"github.com/spaghettifunk/vkrun/runner/core"
	"github.com/spaghettifunk/vkrun/runner/script"
)

// defineFlag collects repeated -D token=value replacements in order.
type defineFlag struct {
	replacements []script.Replacement
}

func (d *defineFlag) String() string {
	parts := make([]string, len(d.replacements))
	for i, r := range d.replacements {
		parts[i] = r.Token + "=" + r.Value
	}
	return strings.Join(parts, ",")
}

func (d *defineFlag) Set(value string) error {
	token, replacement, found := strings.Cut(value, "=")
	if !found || token == "" {
		return fmt.Errorf("expected token=value, got %q", value)
	}
	d.replacements = append(d.replacements, script.Replacement{Token: token, Value: replacement})
	return nil
}

func main() {
	var defines defineFlag
	configPath := flag.String("config", "", "path to a vkrun.toml configuration file")
	watch := flag.Bool("watch", false, "re-run scripts when their files change")
	logLevel := flag.String("log-level", "", "log level (debug, info, warn, error)")
	flag.Var(&defines, "D", "replace a token in the scripts, e.g. -D WIDTH=64 (repeatable)")
	flag.Parse()

	if flag.NArg() == 0 {
		fmt.Fprintf(os.Stderr, "usage: %s [options] script...\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		core.LogFatal("%v", err)
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	core.SetLevel(cfg.LogLevel)

	r := runner.New(cfg, defines.replacements)

	if *watch {
		if err := r.Watch(flag.Args()); err != nil {
			core.LogFatal("%v", err)
		}
		return
	}

	if result := r.RunAll(flag.Args()); result == core.ResultFail {
		os.Exit(1)
	}
}
