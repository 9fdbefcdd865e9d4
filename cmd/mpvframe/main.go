// Command mpvframe plays media through libmpv's render API into a gogpu/gg
// scene, in a window or offscreen.
package main

import (
	"os"

	"github.com/thesyncim/mpvframe/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
