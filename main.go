package main

import "github.com/nextlevelbuilder/lettabot/cmd"

func main() {
	cmd.Execute()
}
