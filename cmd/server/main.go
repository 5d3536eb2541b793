package main

import "github.com/dom/shared-calendar/cmd/server/cmd"

func main() {
	cmd.Execute()
}
