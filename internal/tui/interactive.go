// Package tui renders one participant's view of a running experiment in
// the terminal and drives a keyboard handle.
package tui

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/san-kum/dyadsim/internal/dynamo"
	"github.com/san-kum/dyadsim/internal/experiment"
	"github.com/san-kum/dyadsim/internal/participant"
	"github.com/san-kum/dyadsim/internal/role"
)

var (
	cyan   = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	white  = lipgloss.NewStyle().Foreground(lipgloss.Color("255"))
	dim    = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	dimmer = lipgloss.NewStyle().Foreground(lipgloss.Color("238"))
	green  = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	yellow = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	red    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

const (
	// span is the half width of the visible workspace.
	span          = 1.2
	secondsPerRow = 0.1
	historyLen    = 120
	// errorScale is the tracking error drawn as a full block.
	errorScale    = 0.5
	maxPace       = 16
)

type cell struct {
	r     rune
	style lipgloss.Style
}

type model struct {
	exp    *experiment.Experiment
	watch  role.Participant
	manual *participant.Manual

	paused  bool
	pace    int
	view    dynamo.View
	handle  float64
	force   float64
	track   string
	history []trackPoint

	lastFrame time.Time
	fps       float64

	width  int
	height int
}

// New returns the watch model for exp, rendering the view that watch is
// given. Arrow keys move watch when it is a Manual participant.
func New(exp *experiment.Experiment, watch role.Participant) tea.Model {
	m := model{
		exp:     exp,
		watch:   watch,
		pace:    1,
		history: make([]trackPoint, 0, historyLen),
		width:   80,
		height:  24,
	}
	if man, ok := watch.(*participant.Manual); ok {
		m.manual = man
	}
	return m
}

type tickMsg time.Time

func (m model) tick() tea.Cmd {
	interval := time.Duration(m.exp.Timestep() * float64(time.Second))
	return tea.Tick(interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m model) Init() tea.Cmd { return m.tick() }

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil
	case tickMsg:
		if m.exp.Done() {
			return m, nil
		}
		if !m.paused {
			now := time.Now()
			if !m.lastFrame.IsZero() {
				if dt := now.Sub(m.lastFrame).Seconds(); dt > 0 {
					m.fps = 1.0 / dt
				}
			}
			m.lastFrame = now
			m.advance(m.pace)
		}
		if m.exp.Done() {
			return m, nil
		}
		return m, m.tick()
	}
	return m, nil
}

// advance runs n ticks of the experiment and refreshes the watched view.
func (m *model) advance(n int) {
	for i := 0; i < n && !m.exp.Done(); i++ {
		if err := m.exp.Step(m.exp.Timestep()); err != nil {
			break
		}
		m.observe()
	}
}

func (m *model) observe() {
	trial := m.exp.Active()
	if trial == nil {
		return
	}
	for _, t := range trial {
		for _, r := range t.Roles() {
			if r.Participant() != m.watch {
				continue
			}
			m.view = r.Perspective().TaskToView(t.Snapshot())
			// flipping is its own inverse
			m.handle = r.Perspective().HandleToTask(r.Handle().Position())
			m.force = r.LastForce()
			m.record()
			return
		}
	}
	m.view = trial[0].Snapshot()
}

// trackPoint pairs the handle with the reference it follows at one tick.
type trackPoint struct {
	handle float64
	ref    float64
}

// record appends the handle against the first reference in the watched
// view, the same one a scripted agent falls back to.
func (m *model) record() {
	names := sortedKeys(m.view.Trajectories)
	if len(names) == 0 {
		m.track = ""
		return
	}
	if m.track != names[0] {
		m.track = names[0]
		m.history = m.history[:0]
	}
	m.history = append(m.history, trackPoint{handle: m.handle, ref: m.view.Trajectories[m.track].Now})
	if len(m.history) > historyLen {
		m.history = m.history[1:]
	}
}

func (m model) handleKey(msg tea.KeyMsg) (model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c", "esc":
		return m, tea.Quit
	case " ", "p":
		m.paused = !m.paused
	case "n", ".":
		if m.paused {
			m.advance(1)
		}
	case "left", "h":
		m.nudge(-1)
	case "right", "l":
		m.nudge(1)
	case "H", "shift+left":
		m.nudge(-5)
	case "L", "shift+right":
		m.nudge(5)
	case "+", "=":
		m.pace = min(m.pace*2, maxPace)
	case "-", "_":
		m.pace = max(m.pace/2, 1)
	case "0":
		m.pace = 1
	}
	return m, nil
}

func (m model) nudge(n int) {
	if m.manual != nil {
		m.manual.Nudge(n)
	}
}

func (m model) View() string {
	cw := m.width - 6
	ch := m.height - 10
	if cw < 40 {
		cw = 40
	}
	if ch < 8 {
		ch = 8
	}
	now := ch * 2 / 3

	canvas := make([][]cell, ch)
	for i := range canvas {
		canvas[i] = make([]cell, cw)
		for j := range canvas[i] {
			canvas[i][j] = cell{r: ' ', style: dim}
		}
	}
	drawAxis(canvas, cw, now)
	drawTrajectories(canvas, m.view, cw, ch, now)
	drawEntities(canvas, m.view, cw, now)

	var b strings.Builder

	statusIcon := green.Render("●")
	statusText := green.Render(strings.ToLower(m.view.Status))
	switch {
	case m.exp.Err() != nil:
		statusIcon = red.Render("●")
		statusText = red.Render("failed")
	case m.exp.Done():
		statusIcon = cyan.Render("●")
		statusText = cyan.Render("complete")
	case m.paused:
		statusIcon = yellow.Render("○")
		statusText = yellow.Render("paused")
	}
	trial := fmt.Sprintf("trial %d/%d", min(m.exp.ActiveIndex()+1, len(m.exp.Trials())), len(m.exp.Trials()))
	b.WriteString(fmt.Sprintf("\n   %s %s  %s  %s  %s\n", statusIcon, cyan.Render(m.exp.Name()),
		dim.Render(trial), white.Render(m.view.Task), statusText))
	b.WriteString(fmt.Sprintf("   %s  %s  %s\n",
		dim.Render(fmt.Sprintf("task %.1fs", m.view.TaskTime)),
		dim.Render(fmt.Sprintf("experiment %.1fs", m.exp.Time())),
		dim.Render(fmt.Sprintf("%.0ffps %d ticks/frame", m.fps, m.pace))))
	if m.view.Message != "" {
		b.WriteString("\n   " + yellow.Render(m.view.Message) + "\n")
	}
	b.WriteString("\n")

	for _, row := range canvas {
		b.WriteString("   ")
		for _, c := range row {
			b.WriteString(c.style.Render(string(c.r)))
		}
		b.WriteString("\n")
	}

	b.WriteString(fmt.Sprintf("\n   %s%s  %s%s",
		dim.Render("handle="), white.Render(fmt.Sprintf("%+.3f", m.handle)),
		dim.Render("force="), white.Render(fmt.Sprintf("%+.2f", m.force))))
	if n := len(m.history); n > 0 {
		last := m.history[n-1]
		b.WriteString(fmt.Sprintf("  %s%s  %s",
			dim.Render(m.track+" err="), white.Render(fmt.Sprintf("%+.3f", last.handle-last.ref)),
			errorStrip(m.history, 32)))
	}
	b.WriteString("\n")

	if err := m.exp.Err(); err != nil {
		b.WriteString("   " + red.Render(err.Error()) + "\n")
	}
	help := "   space pause  n step  +/- pace  q quit"
	if m.manual != nil {
		help = "   ←/→ move  H/L fast  " + strings.TrimSpace(help)
	}
	b.WriteString("\n" + dim.Render(help) + "\n")

	return b.String()
}

func column(x float64, w int) int {
	return int(math.Round((x + span) / (2 * span) * float64(w-1)))
}

func set(canvas [][]cell, x, y int, c cell) {
	if y >= 0 && y < len(canvas) && x >= 0 && x < len(canvas[y]) {
		canvas[y][x] = c
	}
}

func drawAxis(canvas [][]cell, w, now int) {
	for x := 0; x < w; x++ {
		set(canvas, x, now, cell{r: '─', style: dimmer})
	}
	for _, p := range []float64{-1, 0, 1} {
		set(canvas, column(p, w), now, cell{r: '┼', style: dimmer})
	}
}

// drawTrajectories plots each reference with time running down the screen:
// future samples above the now row, past samples below.
func drawTrajectories(canvas [][]cell, v dynamo.View, w, h, now int) {
	for _, name := range sortedKeys(v.Trajectories) {
		tr := v.Trajectories[name]
		style := styleFor(tr.Appearance, cyan)
		for i, s := range tr.Samples {
			if i >= len(tr.Times) {
				break
			}
			row := now - int(math.Round((tr.Times[i]-v.TaskTime)/secondsPerRow))
			if row < 0 || row >= h {
				continue
			}
			set(canvas, column(s, w), row, cell{r: '·', style: style})
		}
	}
}

func drawEntities(canvas [][]cell, v dynamo.View, w, now int) {
	for _, name := range sortedKeys(v.Entities) {
		e := v.Entities[name]
		shape, _ := e.Appearance["shape"].(string)
		style := styleFor(e.Appearance, white)
		x := column(e.State.Position, w)
		switch shape {
		case "link", "":
			continue
		case "rectangle":
			for dy := -1; dy <= 1; dy++ {
				set(canvas, x, now+dy, cell{r: '█', style: style})
			}
		default:
			set(canvas, x, now, cell{r: '●', style: style})
		}
	}
}

func styleFor(a dynamo.Appearance, fallback lipgloss.Style) lipgloss.Style {
	if c, ok := a["color"].(string); ok && c != "" {
		return lipgloss.NewStyle().Foreground(lipgloss.Color(c))
	}
	return fallback
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// errorStrip draws the latest tracking errors oldest first. Shade is the
// error size on a fixed scale; colour tells whether the handle is above or
// below its reference.
func errorStrip(points []trackPoint, width int) string {
	if len(points) > width {
		points = points[len(points)-width:]
	}
	shades := []rune{'─', '░', '▒', '▓', '█'}
	var sb strings.Builder
	for _, p := range points {
		d := p.handle - p.ref
		level := int(math.Abs(d) / errorScale * float64(len(shades)-1))
		level = min(level, len(shades)-1)
		style := green
		switch {
		case level == 0:
		case d > 0:
			style = cyan
		default:
			style = yellow
		}
		sb.WriteString(style.Render(string(shades[level])))
	}
	return sb.String()
}

// Run shows the experiment until the user quits and returns the error that
// stopped it, if any.
func Run(exp *experiment.Experiment, watch role.Participant) error {
	p := tea.NewProgram(New(exp, watch), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return err
	}
	return exp.Err()
}
