package main

import "github.com/OpenTraceLab/OpenTraceScan/cmd/scanctl/cmd"

func main() {
	cmd.Execute()
}
