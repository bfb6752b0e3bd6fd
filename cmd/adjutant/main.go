// Command adjutant runs maintenance operations against an adjutant
// deployment: schema migrations, token purges, status and notification
// triage.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
