// Command rgf runs and inspects reactive property graphs.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/rgf/internal/cli"
)

func main() {
	err := cli.NewRootCommand().Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	os.Exit(cli.GetExitCode(err))
}
