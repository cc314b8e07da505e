// Package ui draws the watch-mode terminal view.
package ui

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"

	"github.com/doridoridoriand/pingtrain/internal/config"
	"github.com/doridoridoriand/pingtrain/internal/state"
)

const (
	refreshEvery = 500 * time.Millisecond
	defaultGroup = "default"
	trailLength  = 10
	// a group box needs its two borders plus at least one row
	minGroupRows = 4
)

// UI renders a live table of targets, one row per target grouped by config section.
type UI struct {
	cfg       config.GlobalOptions
	state     state.Store
	newScreen func() (tcell.Screen, error)
}

// New returns a UI instance drawing on the controlling terminal.
func New(cfg config.GlobalOptions, store state.Store) *UI {
	return &UI{cfg: cfg, state: store, newScreen: tcell.NewScreen}
}

// Run blocks until the context is cancelled or the user quits with q or Ctrl-C.
func (u *UI) Run(ctx context.Context) error {
	screen, err := u.newScreen()
	if err != nil {
		return err
	}
	if err := screen.Init(); err != nil {
		return err
	}
	defer screen.Fini()
	screen.HideCursor()

	events := make(chan tcell.Event, 1)
	go pollEvents(ctx, screen, events)

	ticker := time.NewTicker(refreshEvery)
	defer ticker.Stop()

	u.render(screen, u.state.GetSnapshot())
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			u.render(screen, u.state.GetSnapshot())
		case ev := <-events:
			if quit(ev) {
				return context.Canceled
			}
			if _, ok := ev.(*tcell.EventResize); ok {
				screen.Sync()
			}
		}
	}
}

func pollEvents(ctx context.Context, screen tcell.Screen, out chan<- tcell.Event) {
	for {
		ev := screen.PollEvent()
		if ev == nil {
			return
		}
		select {
		case out <- ev:
		case <-ctx.Done():
			return
		}
	}
}

func quit(ev tcell.Event) bool {
	key, ok := ev.(*tcell.EventKey)
	return ok && (key.Key() == tcell.KeyCtrlC || key.Rune() == 'q')
}

func (u *UI) render(screen tcell.Screen, snapshot []state.TargetStatus) {
	screen.Clear()
	defer screen.Show()

	width, height := screen.Size()
	if width < 20 || height < 5 {
		return
	}

	header := fmt.Sprintf(" pingtrain  %s  %s  (q to quit)", time.Now().Format("2006-01-02 15:04:05"), tally(snapshot))
	put(screen, 0, 0, width, text(header, tcell.StyleDefault.Bold(true)))
	put(screen, 0, 1, width, text(formatConfigInfo(u.cfg), tcell.StyleDefault.Foreground(tcell.ColorGray)))

	top := 2
	for _, group := range groupTargets(snapshot) {
		room := height - top
		if room < minGroupRows {
			break
		}
		rows := len(group.Targets) + 2
		if rows > room {
			rows = room
		}
		u.drawGroup(screen, top, width, rows, group)
		top += rows
	}
}

// tally summarizes how many targets sit in each status.
func tally(snapshot []state.TargetStatus) string {
	counts := make(map[state.Status]int, 4)
	for _, target := range snapshot {
		counts[target.Status]++
	}
	return fmt.Sprintf("ok=%d warn=%d down=%d", counts[state.StatusOK], counts[state.StatusWarn], counts[state.StatusDown])
}

type targetGroup struct {
	Name    string
	Targets []state.TargetStatus
}

// groupTargets buckets the snapshot by group. The unnamed group comes first,
// the rest follow by name, and targets inside a group are sorted by name.
func groupTargets(snapshot []state.TargetStatus) []targetGroup {
	if len(snapshot) == 0 {
		return nil
	}
	byName := make(map[string]*targetGroup)
	var groups []*targetGroup
	for _, target := range snapshot {
		name := strings.TrimSpace(target.Group)
		if name == "" {
			name = defaultGroup
		}
		g, ok := byName[name]
		if !ok {
			g = &targetGroup{Name: name}
			byName[name] = g
			groups = append(groups, g)
		}
		g.Targets = append(g.Targets, target)
	}

	sort.Slice(groups, func(i, j int) bool {
		a, b := groups[i].Name, groups[j].Name
		if a == defaultGroup || b == defaultGroup {
			return a == defaultGroup && b != defaultGroup
		}
		return a < b
	})

	result := make([]targetGroup, len(groups))
	for i, g := range groups {
		sort.Slice(g.Targets, func(a, b int) bool {
			return g.Targets[a].Name < g.Targets[b].Name
		})
		result[i] = *g
	}
	return result
}

func (u *UI) drawGroup(screen tcell.Screen, top, width, rows int, group targetGroup) {
	frame(screen, top, width, rows)
	put(screen, 2, top, width-4, text(" "+group.Name+" ", tcell.StyleDefault.Bold(true)))

	for i, target := range group.Targets {
		if i >= rows-2 {
			return
		}
		put(screen, 1, top+1+i, width-2, u.formatTargetLine(width-2, target))
	}
}

// formatTargetLine lays out one target: name, address, status, latest and
// average RTT, lifetime loss, the recent-run trail and an RTT bar filling the
// remaining width.
func (u *UI) formatTargetLine(width int, target state.TargetStatus) line {
	style := statusStyle(target.Status)
	plain := tcell.StyleDefault

	var l line
	l.add(fit(target.Name, min(14, width)), plain)
	l.add(" "+fit(target.Address, min(18, width)), plain)
	l.add(" "+fit(string(target.Status), 6), style)
	l.add(" "+fit("RTT:"+formatRTT(target.LastRTT), 11), plain)
	l.add(" "+fit("AVG:"+formatRTT(calculateAvgRTT(target)), 11), plain)
	l.add(" "+fit(fmt.Sprintf("LOSS:%.1f%%", calculateLossPercent(target)), 12), style)
	l.add(" "+fit(historyTrail(target.History, trailLength), trailLength)+" ", style)

	if rest := width - l.len(); rest > 0 {
		l.add(buildBar(target, u.cfg.UIScale, rest), style)
	}
	return l.clip(width)
}

// buildBar draws one '#' per scale milliseconds of the latest RTT, padded to width.
func buildBar(target state.TargetStatus, scale int, width int) string {
	if width <= 0 {
		return ""
	}
	if scale <= 0 {
		scale = 10
	}
	units := 0
	if ms := float64(target.LastRTT) / float64(time.Millisecond); ms > 0 {
		units = int(math.Round(ms / float64(scale)))
	}
	units = max(0, min(units, width))
	return strings.Repeat("#", units) + strings.Repeat(" ", width-units)
}

// span is a run of text drawn in one style.
type span struct {
	r     []rune
	style tcell.Style
}

type line []span

func text(s string, style tcell.Style) line {
	return line{{r: []rune(s), style: style}}
}

func (l *line) add(s string, style tcell.Style) {
	*l = append(*l, span{r: []rune(s), style: style})
}

func (l line) len() int {
	n := 0
	for _, s := range l {
		n += len(s.r)
	}
	return n
}

func (l line) clip(width int) line {
	out := make(line, 0, len(l))
	left := width
	for _, s := range l {
		if left <= 0 {
			break
		}
		if len(s.r) > left {
			s.r = s.r[:left]
		}
		out = append(out, s)
		left -= len(s.r)
	}
	return out
}

func (l line) String() string {
	var b strings.Builder
	for _, s := range l {
		b.WriteString(string(s.r))
	}
	return b.String()
}

// put writes l at (x, y) and blanks the rest of the width.
func put(screen tcell.Screen, x, y, width int, l line) {
	col := x
	for _, s := range l.clip(width) {
		for _, r := range s.r {
			screen.SetContent(col, y, r, nil, s.style)
			col++
		}
	}
	for ; col < x+width; col++ {
		screen.SetContent(col, y, ' ', nil, tcell.StyleDefault)
	}
}

func frame(screen tcell.Screen, top, width, rows int) {
	if width < 2 || rows < 2 {
		return
	}
	right, bottom := width-1, top+rows-1
	for col := 1; col < right; col++ {
		screen.SetContent(col, top, tcell.RuneHLine, nil, tcell.StyleDefault)
		screen.SetContent(col, bottom, tcell.RuneHLine, nil, tcell.StyleDefault)
	}
	for row := top + 1; row < bottom; row++ {
		screen.SetContent(0, row, tcell.RuneVLine, nil, tcell.StyleDefault)
		screen.SetContent(right, row, tcell.RuneVLine, nil, tcell.StyleDefault)
	}
	screen.SetContent(0, top, tcell.RuneULCorner, nil, tcell.StyleDefault)
	screen.SetContent(right, top, tcell.RuneURCorner, nil, tcell.StyleDefault)
	screen.SetContent(0, bottom, tcell.RuneLLCorner, nil, tcell.StyleDefault)
	screen.SetContent(right, bottom, tcell.RuneLRCorner, nil, tcell.StyleDefault)
}

func fit(value string, width int) string {
	if width <= 0 {
		return ""
	}
	runes := []rune(value)
	if len(runes) >= width {
		return string(runes[:width])
	}
	return value + strings.Repeat(" ", width-len(runes))
}

func formatRTT(rtt time.Duration) string {
	switch {
	case rtt <= 0:
		return "-"
	case rtt < time.Millisecond:
		return fmt.Sprintf("%dus", rtt.Microseconds())
	case rtt < time.Second:
		return fmt.Sprintf("%dms", rtt.Milliseconds())
	default:
		return fmt.Sprintf("%.1fs", rtt.Seconds())
	}
}

// calculateAvgRTT averages the runs in history that received replies.
func calculateAvgRTT(target state.TargetStatus) time.Duration {
	var sum time.Duration
	used := 0
	for _, point := range target.History {
		if point.RTT > 0 {
			sum += point.RTT
			used++
		}
	}
	if used == 0 {
		return target.LastRTT
	}
	return sum / time.Duration(used)
}

// calculateLossPercent is the lifetime probe loss of the target.
func calculateLossPercent(target state.TargetStatus) float64 {
	if target.ProbesSent == 0 {
		return 0
	}
	return float64(target.ProbesSent-target.ProbesReceived) / float64(target.ProbesSent) * 100
}

// historyTrail renders the most recent runs oldest first: '.' for a clean
// run, '+' for partial loss and 'X' for a run without replies.
func historyTrail(history []state.RTTPoint, n int) string {
	if len(history) > n {
		history = history[len(history)-n:]
	}
	trail := make([]byte, len(history))
	for i, point := range history {
		switch {
		case point.LossPercent >= 100:
			trail[i] = 'X'
		case point.LossPercent > 0:
			trail[i] = '+'
		default:
			trail[i] = '.'
		}
	}
	return string(trail)
}

func statusStyle(status state.Status) tcell.Style {
	colors := map[state.Status]tcell.Color{
		state.StatusOK:   tcell.ColorGreen,
		state.StatusWarn: tcell.ColorYellow,
		state.StatusDown: tcell.ColorRed,
	}
	color, ok := colors[status]
	if !ok {
		color = tcell.ColorGray
	}
	return tcell.StyleDefault.Foreground(color)
}

func formatConfigInfo(cfg config.GlobalOptions) string {
	return fmt.Sprintf(" count=%d  delay=%s  expiry=%s  interval=%s  mode=%s  ui.scale=%d",
		cfg.Count, shortDuration(cfg.Delay), shortDuration(cfg.Expiry),
		shortDuration(cfg.Interval), cfg.Mode, cfg.UIScale)
}

func shortDuration(d time.Duration) string {
	switch {
	case d < time.Millisecond:
		return fmt.Sprintf("%dus", d.Microseconds())
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	default:
		return fmt.Sprintf("%.1fm", d.Minutes())
	}
}
