// Command ppg is the CLI front-end for the orchestration engine.
package main

import (
	"os"

	"github.com/xcawolfe-amzn/ppg/internal/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
