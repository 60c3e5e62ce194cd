package main

import "github.com/joegilkes/speechcli/cmd"

func main() {
	cmd.Execute()
}
