package main

import (
	"github.com/tanpawarit/brain-orchestrator/cmd"
	_ "github.com/tanpawarit/brain-orchestrator/pkg/logger/autoload"
)

func main() {
	cmd.Execute()
}
