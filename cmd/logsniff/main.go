// logsniff - Log Format Detection and Parsing
//
// logsniff detects the format of log files and parses them into normalized
// records with canonical timestamps and an inferred schema.
package main

import (
	"os"

	"github.com/ccollicutt/logsniff/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
