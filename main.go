package main

import "github.com/samsaffron/tonenotes/cmd"

func main() {
	cmd.Execute()
}
