package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Width(12)
	valueStyle = lipgloss.NewStyle().Bold(true)
	goodStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	badStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	boxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

// RenderText formats st for a terminal.
func RenderText(st Status, now time.Time) string {
	if !st.HasData {
		return boxStyle.Render(titleStyle.Render("hamlet") + "\n" + "no ticks recorded yet")
	}

	row := func(label, value string) string {
		return lipgloss.JoinHorizontal(lipgloss.Top, labelStyle.Render(label), valueStyle.Render(value))
	}

	streak := "none"
	switch {
	case st.GoodStreak > 0:
		streak = goodStyle.Render(fmt.Sprintf("%d good %s", st.GoodStreak, plural(st.GoodStreak, "year")))
	case st.BadStreak > 0:
		streak = badStyle.Render(fmt.Sprintf("%d bad %s", st.BadStreak, plural(st.BadStreak, "year")))
	}

	lines := []string{
		titleStyle.Render(fmt.Sprintf("hamlet · tick %s", humanize.Comma(st.TickIndex))),
		row("time", st.SimTime),
		row("population", humanize.Comma(int64(st.Population))),
		row("workers", humanize.Comma(int64(st.Workers))),
		row("food", humanize.CommafWithDigits(st.Food, 1)),
		row("per capita", fmt.Sprintf("%.2f", st.Food/float64(max(st.Population, 1)))),
		row("this tick", fmt.Sprintf("+%d / -%d", st.Births, st.Deaths)),
		row("streak", streak),
		row("updated", humanize.RelTime(st.Timestamp, now, "ago", "from now")),
	}
	if trend := sparkline(st.Recent); trend != "" {
		lines = append(lines, row("trend", trend))
	}
	return boxStyle.Render(strings.Join(lines, "\n"))
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}

var sparkRunes = []rune("▁▂▃▄▅▆▇█")

// sparkline renders recent population as a one-line chart.
func sparkline(points []Point) string {
	if len(points) < 2 {
		return ""
	}
	lo, hi := points[0].Population, points[0].Population
	for _, p := range points {
		lo = min(lo, p.Population)
		hi = max(hi, p.Population)
	}
	var b strings.Builder
	for _, p := range points {
		i := 0
		if hi > lo {
			i = (p.Population - lo) * (len(sparkRunes) - 1) / (hi - lo)
		}
		b.WriteRune(sparkRunes[i])
	}
	return b.String()
}
