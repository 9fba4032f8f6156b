package main

import (
	"os"

	"github.com/oremus-labs/ol-logstream/internal/logcli"
)

func main() {
	if err := logcli.Execute(); err != nil {
		os.Exit(1)
	}
}
