package main

import "github.com/StinkyLord/binary-sbom-builder/cmd"

func main() {
	cmd.Execute()
}
