package main

import "github.com/LENAX/wengine/pkg/cli/cmd"

func main() {
	cmd.Execute()
}
