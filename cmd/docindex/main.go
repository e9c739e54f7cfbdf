// Command docindex builds and queries embedding indexes over text documents.
package main

import (
	"os"

	"github.com/Aman-CERP/docindex/cmd/docindex/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
