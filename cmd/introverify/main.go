// introverify verifies the intro skipper plugin end to end.
package main

import (
	"os"

	"intro-verifier/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
