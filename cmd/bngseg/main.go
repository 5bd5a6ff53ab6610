// Command bngseg records paths in BeamNG.tech, samples capture locations
// along them and saves paired base/annotated camera images for training
// segmentation models.
package main

import "os"

// BuildDate and Version can be set at build time via ldflags
var (
	Version   = "0.0.1"
	BuildDate = "unknown"
)

func main() {
	os.Exit(execute(os.Args[1:]))
}
