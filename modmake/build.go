package main

import (
	. "github.com/saylorsolutions/modmake"
)

const (
	drivelockVersion = "0.1.0"
)

func main() {
	b := NewBuild()
	b.Generate().DependsOnRunner("tidy", "", Go().ModTidy())

	drivelock := NewAppBuild("drivelock", "cmd/drivelock", drivelockVersion)
	drivelock.Build(func(gb *GoBuild) {
		gb.
			StripDebugSymbols().
			SetVariable("main", "version", drivelockVersion).
			CgoEnabled(false)
	})
	drivelock.Variant("windows", "amd64")
	drivelock.Variant("linux", "amd64")
	drivelock.Variant("linux", "arm64")
	drivelock.Variant("darwin", "amd64")
	drivelock.Variant("darwin", "arm64")
	b.ImportApp(drivelock)

	b.Execute()
}
