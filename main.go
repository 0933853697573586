package main

import "github.com/tanq16/yandl/cmd"

func main() {
	cmd.Execute()
}
