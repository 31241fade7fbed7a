package main

import "github.com/xiaot623/livedesk/cmd"

func main() {
	cmd.Execute()
}
