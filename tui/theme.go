package tui

import (
	"strconv"

	"pkt.systems/tabaret/schema"
)

type rgb struct {
	r int
	g int
	b int
}

type tuiTheme struct {
	TabBarBG      rgb
	TabActiveBG   rgb
	TabActiveFG   rgb
	TabInactiveBG rgb
	TabInactiveFG rgb
	BellFG        rgb
	ExitedFG      rgb
	MetaFG        rgb
	HeaderFG      rgb
	SelectedBG    rgb
	SelectedFG    rgb
	CostFG        rgb
	StatusFG      map[schema.SessionStatus]rgb
}

const (
	ansiReset = "\x1b[0m"
	ansiBold  = "\x1b[1m"
	ansiDim   = "\x1b[2m"
)

var defaultTheme = tuiTheme{
	TabBarBG:      rgb{r: 26, g: 27, b: 38},
	TabActiveBG:   rgb{r: 122, g: 162, b: 247},
	TabActiveFG:   rgb{r: 26, g: 27, b: 38},
	TabInactiveBG: rgb{r: 26, g: 27, b: 38},
	TabInactiveFG: rgb{r: 192, g: 202, b: 245},
	BellFG:        rgb{r: 224, g: 175, b: 104},
	ExitedFG:      rgb{r: 247, g: 118, b: 142},
	MetaFG:        rgb{r: 127, g: 133, b: 163},
	HeaderFG:      rgb{r: 122, g: 162, b: 247},
	SelectedBG:    rgb{r: 41, g: 46, b: 66},
	SelectedFG:    rgb{r: 192, g: 202, b: 245},
	CostFG:        rgb{r: 158, g: 206, b: 106},
	StatusFG: map[schema.SessionStatus]rgb{
		schema.StatusThinking: {r: 122, g: 162, b: 247},
		schema.StatusActive:   {r: 158, g: 206, b: 106},
		schema.StatusIdle:     {r: 192, g: 202, b: 245},
		schema.StatusHung:     {r: 224, g: 175, b: 104},
		schema.StatusDead:     {r: 127, g: 133, b: 163},
	},
}

func (t tuiTheme) statusColor(status schema.SessionStatus) rgb {
	if c, ok := t.StatusFG[status]; ok {
		return c
	}
	return t.MetaFG
}

func ansiFgRGB(c rgb) string {
	return "\x1b[38;2;" + strconv.Itoa(c.r) + ";" + strconv.Itoa(c.g) + ";" + strconv.Itoa(c.b) + "m"
}

func ansiBgRGB(c rgb) string {
	return "\x1b[48;2;" + strconv.Itoa(c.r) + ";" + strconv.Itoa(c.g) + ";" + strconv.Itoa(c.b) + "m"
}
