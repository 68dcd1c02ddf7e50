package main // entry point of the campus-events binary

import "github.com/iliyamo/campus-events/cmd/server/cmd"

func main() {
	cmd.Execute()
}
