// Command gridquery is the offline companion to the server: it runs the
// refresh and query pipeline against a workbook directly, without HTTP.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
