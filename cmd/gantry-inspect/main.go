// cmd/gantry-inspect/main.go
//
// One-shot inspection of a plugin directory: load every plugin file the
// runtime would load and print the exports it contributes, without
// starting a watch or a composition engine.

package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"

	"github.com/gantryhost/gantry/internal/plugindir"
)

var headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))

func main() {
	dir := flag.String("dir", "", "plugin directory to inspect")
	pattern := flag.String("pattern", plugindir.DefaultPattern, "plugin filename pattern")
	flag.Parse()

	if *dir == "" {
		die("--dir is required")
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, nil))
	catalog, err := plugindir.New(*dir, *pattern, log)
	if err != nil {
		die("%v", err)
	}
	if err := catalog.Refresh(); err != nil {
		die("refresh: %v", err)
	}
	exports := catalog.Exports()
	fmt.Println(headerStyle.Render(fmt.Sprintf("%d export(s) in %s", len(exports), catalog.Dir())))
	if len(exports) == 0 {
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CONTRACT\tPROVIDER\tPOLICY\tNAME\tORIGIN")
	for _, export := range exports {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			export.Contract, export.Provider, export.Policy, export.Metadata.Get("name"), export.Origin)
	}
	w.Flush()
}

func die(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "gantry-inspect: "+format+"\n", args...)
	os.Exit(1)
}
