package main

import (
	"github.com/crucial707/keykiosk/cmd/kiosk/commands"
	"github.com/crucial707/keykiosk/cmd/kiosk/root"
)

func main() {
	commands.Init(root.GetRoot())
	root.Execute()
}
