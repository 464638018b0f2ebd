package main

import "github.com/jmcleod/customersvc/cmd/customersvc/cmd"

func main() {
	cmd.Execute()
}
