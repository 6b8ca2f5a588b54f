// cmd/gantry/main.go
//
// The gantry host: composes the built-in capabilities with the watched
// plugin directory, runs the tick loop and the task runner, and either
// blocks headless until a signal or serves the live dashboard.

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/gantryhost/gantry/internal/builtin"
	"github.com/gantryhost/gantry/internal/bus"
	"github.com/gantryhost/gantry/internal/config"
	"github.com/gantryhost/gantry/internal/logging"
	"github.com/gantryhost/gantry/internal/loop"
	"github.com/gantryhost/gantry/internal/runtime"
	"github.com/gantryhost/gantry/internal/task"
	"github.com/gantryhost/gantry/internal/tui"
)

func main() {
	projectDir := flag.String("project", "", "path to the project directory (defaults to cwd)")
	dashboard := flag.Bool("dashboard", false, "serve the live export dashboard instead of running headless")
	flag.Parse()

	project := *projectDir
	if project == "" {
		var err error
		project, err = os.Getwd()
		if err != nil {
			die("determine working directory: %v", err)
		}
	}
	if err := config.InitGantryDir(project); err != nil {
		die("init .gantry: %v", err)
	}
	cfg, err := config.NewConfig(project)
	if err != nil {
		die("load config: %v", err)
	}
	log, closeLog, err := logging.New(cfg)
	if err != nil {
		die("init logging: %v", err)
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eventBus := bus.New(bus.WithLogger(log))
	if err := runtime.Configure(runtime.Options{
		Dir:      cfg.PluginDir(),
		Pattern:  cfg.Plugins.Pattern,
		Settle:   cfg.SettleWindow(),
		Builtins: builtin.Exports(log, eventBus),
		Logger:   log,
	}); err != nil {
		die("configure runtime: %v", err)
	}
	rt, err := runtime.Default()
	if err != nil {
		die("build runtime: %v", err)
	}
	defer runtime.CloseDefault()

	ticker := loop.New(eventBus, loop.WithInterval(cfg.TickInterval()), loop.WithLogger(log))
	ticker.MustStart(ctx)
	defer ticker.Stop()

	runner := task.NewRunner(rt, eventBus, log)
	go runner.Run(ctx)

	if *dashboard {
		program := tea.NewProgram(tui.NewDashboard(rt, eventBus), tea.WithAltScreen())
		if _, err := program.Run(); err != nil {
			die("run dashboard: %v", err)
		}
		return
	}

	log.Info("gantry: running", "plugins", cfg.PluginDir())
	<-ctx.Done()
	log.Info("gantry: shutting down")
}

func die(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "gantry: "+format+"\n", args...)
	os.Exit(1)
}
