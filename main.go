package main

import "github.com/nextlevelbuilder/noteindex/cmd"

func main() {
	cmd.Execute()
}
