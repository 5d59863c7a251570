package main

import "github.com/mamage/photo-similarity/cmd"

func main() {
	cmd.Execute()
}
