// Command benchlab runs program/input pairings locally or on Slurm, measures
// resource usage, and reports on the results.
package main

import (
	"fmt"
	"os"

	"github.com/benchlab/benchlab/pkg/cli"
)

func main() {
	app := cli.NewApp()

	if err := app.Main(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
