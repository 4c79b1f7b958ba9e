// Command manifest-sync mirrors the files listed in a remote manifest into a
// local directory using aria2c, re-fetching parquet files that fail
// structural validation.
package main

import (
	"os"
)

func main() {
	a := newApp(os.Stdout, os.Stderr)
	if err := a.command().Execute(); err != nil {
		os.Exit(1)
	}
	os.Exit(a.code)
}
