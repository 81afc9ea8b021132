package main

import "github.com/bentsi/charybdisfs/cmd"

func main() {
	cmd.Execute()
}
