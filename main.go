package main

import "github.com/sloonz/zclone/cmd"

func main() {
	cmd.Execute()
}
