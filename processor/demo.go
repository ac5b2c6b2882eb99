/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package processor

import (
	"embed"
	"io/fs"
)

//go:embed scenarios/demo.yaml scenarios/students.json
var scenarios embed.FS

// DemoStudentsFile is the source file name the demo imports students from.
const DemoStudentsFile = "students.json"

// DemoFiles exposes the files bundled with the demo scenario.
func DemoFiles() fs.FS {
	sub, err := fs.Sub(scenarios, "scenarios")
	if err != nil {
		panic(err)
	}
	return sub
}

// Demo returns the bundled walkthrough over users, articles and students.
func Demo() (*Scenario, error) {
	data, err := fs.ReadFile(DemoFiles(), "demo.yaml")
	if err != nil {
		return nil, err
	}
	return ParseScenario(data)
}
