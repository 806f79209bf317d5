package tui

import (
	"fmt"

	"github.com/aretw0/hmi"
)

var bannerLines = []struct {
	text, color string
}{
	{"  _   _ __  __ ___ ", "#818cf8"},
	{" | | | |  \\/  |_ _|", "#a78bfa"},
	{" | |_| | |\\/| || | ", "#c084fc"},
	{" |  _  | |  | || | ", "#e879f9"},
	{" |_| |_|_|  |_|___|", "#f472b6"},
}

// Banner prints the HMI banner and version.
func (p *Printer) Banner() {
	fmt.Fprintln(p.w)
	for _, l := range bannerLines {
		fmt.Fprintln(p.w, p.profile.String(l.text).Foreground(p.profile.Color(l.color)))
	}
	fmt.Fprintln(p.w, p.profile.String(" v"+hmi.Version).Faint())
	fmt.Fprintln(p.w)
}
