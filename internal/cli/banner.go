package cli

import (
	"fmt"
	"io"
)

// Version is set at build time with -ldflags "-X ...cli.Version=...".
var Version = "v2.0.0"

const (
	colorGreen uint8 = 32
	colorCyan  uint8 = 36
)

const banner = `
 ___    _____   ____                                   ___  ____   ____ _   _   _    
|_ _|__|_   _| / ___|  ___ _ __  ___  ___  _ __ ___   / _ \|  _ \ / ___| | | | / \   %s
 | |/ _ \| |   \___ \ / _ \ '_ \/ __|/ _ \| '__/ __| | | | | |_) | |   | | | |/ _ \  
 | | (_) | |    ___) |  __/ | | \__ \ (_) | |  \__ \ | |_| |  __/| |___| |_| / ___ \ 
|___\___/|_|   |____/ \___|_| |_|___/\___/|_|  |___/  \___/|_|    \____|\___/_/   \_\
IoT Sensors Data Over OPCUA
`

// colorize wraps s in an ANSI foreground color.
func colorize(s string, c uint8) string {
	return fmt.Sprintf("\x1b[%dm%s\x1b[0m", c, s)
}

// PrintBanner writes the startup banner to w.
func PrintBanner(w io.Writer) {
	fmt.Fprintln(w, colorize(fmt.Sprintf(banner, Version), colorCyan))
	fmt.Fprintln(w, colorize("Monitored items, subscriptions and notifications over OPC UA", colorGreen))
}
