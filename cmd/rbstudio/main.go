package main

import "github.com/aashiqmuhamed/refusalbench-studio/internal/cli"

func main() {
	cli.Execute()
}
