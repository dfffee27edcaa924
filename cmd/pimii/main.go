// Command pimii runs a single pimii source file to completion.
package main

import (
	"flag"
	"log"
	"os"

	"github.com/andyha/pimii"
)

func main() {
	var (
		sourcePath   = flag.String("source", "", "Path to the source file to run")
		settingsPath = flag.String("settings", "", "Path to an optional YAML engine-settings file")
		dump         = flag.Bool("dump", false, "Print a storage introspection dump after running")
		homePath     = flag.String("home", ".", "Home directory searched first by `include`")
	)
	flag.Parse()

	if *sourcePath == "" {
		log.Fatal("Source file not informed")
	}

	settings := pimii.DefaultEngineSettings()
	if *settingsPath != "" {
		loaded, err := pimii.LoadEngineSettings(*settingsPath)
		if err != nil {
			log.Fatalf("Can't read engine settings: %s", err.Error())
		}
		settings = loaded
	}
	settings.HomePath = *homePath

	source, err := os.ReadFile(*sourcePath)
	if err != nil {
		log.Fatalf("Can't read source file: %s", err.Error())
	}

	engine := pimii.NewEngine(settings, nil)
	result, err := engine.Eval(string(source), *sourcePath)
	if err != nil {
		log.Fatalf("Execution failed: %s", err.Error())
	}

	log.Printf("result: %s", engine.String(result))

	if *dump {
		engine.Storage().DebugDump(os.Stdout)
	}
}
