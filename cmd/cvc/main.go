// Command cvc is a thin porcelain over modules/cvc/engine, demonstrating
// the Engine operation contract end-to-end the way hugescm's cmd/zeta is
// thin porcelain over pkg/zeta: flag parsing only, every semantic lives
// in modules/cvc/engine. Grounded on suju297-mem's cmd/mem main.go
// (os.Exit(app.Run(os.Args[1:], os.Stdout, os.Stderr))).
package main

import "os"

func main() {
	os.Exit(Run(os.Args[1:], os.Stdout, os.Stderr))
}
