// Command roboanalyzer runs the RoboAnalyzer Hub API server and its
// maintenance commands.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
