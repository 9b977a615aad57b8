package main

import "github.com/jmehdipour/xl-gateway/cmd"

func main() {
	cmd.Execute()
}
