package main

import (
	"tocfetch/cmd/tocfetch/commands"
	"tocfetch/lib/serviceutil"
)

func main() {
	commands.ExecuteContext(serviceutil.SignalContext())
}
