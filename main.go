package main

import "github.com/odin-workspace/ms-go-billing/cmd"

func main() {
	cmd.Execute()
}
