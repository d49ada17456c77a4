// Bunchee CLI: view the monthly dashboard from a terminal
//
// Usage:
//
//	bunchee-cli login --server http://localhost:8080 --username alice
//	bunchee-cli dashboard --month 7 --year 2025 --kind expense
//	bunchee-cli dashboard -i
//	bunchee-cli report --out july.pdf --font ./fonts/Sarabun-Regular.ttf
package main

import (
	"os"

	"bunchee/cmd/bunchee-cli/cli"
)

func main() {
	os.Exit(cli.Execute())
}
