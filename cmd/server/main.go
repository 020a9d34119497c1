package main

import (
	"email-triage/cmd/server/cmd"
)

func main() {
	cmd.Execute()
}
