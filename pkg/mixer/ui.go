package mixer

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"
)

const (
	// rows before the first stream row
	mainRowCount = 2

	sliderWidth = 24
	labelWidth  = 22
)

var (
	nord0  = lipgloss.Color("#2E3440")
	nord3  = lipgloss.Color("#4C566A")
	nord4  = lipgloss.Color("#D8DEE9")
	nord8  = lipgloss.Color("#88C0D0")
	nord9  = lipgloss.Color("#81A1C1")
	nord11 = lipgloss.Color("#BF616A")
	nord13 = lipgloss.Color("#EBCB8B")
	nord14 = lipgloss.Color("#A3BE8C")

	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(nord8)
	sectionStyle = lipgloss.NewStyle().MarginTop(1).Foreground(nord9)
	focusStyle   = lipgloss.NewStyle().Foreground(nord13)
	pressedStyle = lipgloss.NewStyle().Foreground(nord0).Background(nord13)
	staleStyle   = lipgloss.NewStyle().Padding(0, 1).Foreground(nord0).Background(nord11)
	helpStyle    = lipgloss.NewStyle().Faint(true)
)

// frameTickMsg starts one refresh frame
type frameTickMsg struct{}

// refreshMsg asks for an immediate refresh outside the frame cadence
type refreshMsg struct{}

// hardwareMsg carries a controller event onto the UI thread
type hardwareMsg struct {
	event HardwareEvent
}

// uiModel is the terminal front-end. It owns State; every change to it happens in Update
type uiModel struct {
	logger *zap.SugaredLogger
	core   *Core
	config *CanonicalConfig
	relay  *StateRelay

	state State
	stale bool

	// focused row: sink, source, then streams
	focused   int
	focusedID uint32

	// a key touched a slot since the last frame
	touched bool

	width int
}

func newUIModel(logger *zap.SugaredLogger, core *Core, config *CanonicalConfig, relay *StateRelay) uiModel {
	return uiModel{
		logger: logger.Named("ui"),
		core:   core,
		config: config,
		relay:  relay,
	}
}

func (m uiModel) Init() tea.Cmd {
	return func() tea.Msg { return frameTickMsg{} }
}

func (m uiModel) scheduleFrame() tea.Cmd {
	return tea.Tick(m.config.Current().RefreshInterval, func(time.Time) tea.Msg { return frameTickMsg{} })
}

func (m uiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case frameTickMsg:
		m.releaseSlots()
		m.refresh()
		return m, m.scheduleFrame()

	case refreshMsg:
		m.refresh()
		return m, nil

	case hardwareMsg:
		m.handleHardware(msg.event)
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "up", "k":
			m.moveFocus(-1)
		case "down", "j":
			m.moveFocus(1)
		case "left", "h":
			m.adjust(-1)
		case "right", "l":
			m.adjust(1)
		case "enter", " ":
			m.toggleMute()
		case "r":
			m.refresh()
		}
	}

	return m, nil
}

func (m *uiModel) refresh() {
	var frame Frame
	m.state, frame = m.core.RefreshAll(m.state)
	m.stale = frame.Stale

	m.refocus()

	if m.relay != nil {
		m.relay.Publish(frame)
	}
}

// releaseSlots lets go of drags and presses once a whole frame passed without keys
func (m *uiModel) releaseSlots() {
	if m.touched {
		m.touched = false
		return
	}

	for _, slot := range m.state.Slots {
		slot.Dragging = false
		slot.Pressed = false
	}
}

func (m *uiModel) rowCount() int {
	return mainRowCount + len(m.state.Streams)
}

func (m *uiModel) moveFocus(delta int) {
	m.focused += delta
	if m.focused < 0 {
		m.focused = 0
	}
	if last := m.rowCount() - 1; m.focused > last {
		m.focused = last
	}

	if i := m.focused - mainRowCount; i >= 0 {
		m.focusedID = m.state.Streams[i].ID
	}

	m.syncHover()
}

// refocus keeps the focus on the same stream after the list changed
func (m *uiModel) refocus() {
	if m.focused >= mainRowCount {
		if i := m.state.indexOf(m.focusedID); i >= 0 {
			m.focused = mainRowCount + i
		} else if last := m.rowCount() - 1; m.focused > last {
			m.focused = last
		}

		if i := m.focused - mainRowCount; i >= 0 {
			m.focusedID = m.state.Streams[i].ID
		}
	}

	m.syncHover()
}

func (m *uiModel) syncHover() {
	for i, slot := range m.state.Slots {
		slot.Hovered = i == m.focused-mainRowCount
	}
}

func (m *uiModel) focusedStream() (int, bool) {
	i := m.focused - mainRowCount
	return i, i >= 0 && i < len(m.state.Streams)
}

func (m *uiModel) focusedChannel() ChannelKind {
	if m.focused == 1 {
		return Source
	}
	return Sink
}

func (m *uiModel) adjust(direction int) {
	step := m.config.Current().VolumeStep * MaxVolume / 100 * direction

	if i, ok := m.focusedStream(); ok {
		slot := m.state.Slots[i]
		level := int(slot.SliderLevel(m.state.Streams[i])) + step

		slot.Dragging = true
		slot.DragLevel = ClampVolume(level)
		m.touched = true

		m.core.Dispatch(&m.state, StreamVolumeChanged{ID: m.state.Streams[i].ID, Level: level})
		return
	}

	if m.focused >= mainRowCount {
		return
	}

	kind := m.focusedChannel()
	main := m.state.Main(kind)
	level := int(main.VolumeLevel) + step

	m.core.Dispatch(&m.state, MainVolumeChanged{Channel: kind, Level: level})
	main.VolumeLevel = ClampVolume(level)
}

func (m *uiModel) toggleMute() {
	if i, ok := m.focusedStream(); ok {
		m.state.Slots[i].Pressed = true
		m.touched = true

		record := &m.state.Streams[i]
		m.core.Dispatch(&m.state, StreamMuteToggled{ID: record.ID, CurrentMuted: record.Muted})
		record.Muted = !record.Muted
		return
	}

	if m.focused >= mainRowCount {
		return
	}

	kind := m.focusedChannel()
	main := m.state.Main(kind)

	m.core.Dispatch(&m.state, MainMuteToggled{Channel: kind, CurrentMuted: main.Muted})
	main.Muted = !main.Muted
}

func (m *uiModel) handleHardware(event HardwareEvent) {
	settings := m.config.Current()

	var intents []Intent

	switch e := event.(type) {
	case SliderMoveEvent:
		targets, ok := settings.SliderMapping.get(e.SliderID)
		if !ok {
			return
		}
		intents = ResolveSliderIntents(m.state, targets, e.PercentValue)

	case SwitchEvent:
		targets, ok := settings.SwitchesMapping.get(e.SwitchID)
		if !ok {
			return
		}
		intents = ResolveSwitchIntents(m.state, targets, e.State)
	}

	for _, intent := range intents {
		m.core.Dispatch(&m.state, intent)
	}
}

func (m uiModel) View() string {
	b := &strings.Builder{}

	title := titleStyle.Render("mixer")
	if m.stale {
		title = lipgloss.JoinHorizontal(lipgloss.Top, title, " ", staleStyle.Render("stale"))
	}
	fmt.Fprintln(b, title)

	fmt.Fprintln(b, sectionStyle.Render("Devices"))
	fmt.Fprintln(b, renderRow("Output", m.state.Sink.VolumeLevel, m.state.Sink.Muted, m.focused == 0, false))
	fmt.Fprintln(b, renderRow("Input", m.state.Source.VolumeLevel, m.state.Source.Muted, m.focused == 1, false))

	fmt.Fprintln(b, sectionStyle.Render("Streams"))
	if len(m.state.Streams) == 0 {
		fmt.Fprintln(b, helpStyle.Render(" nothing is playing"))
	}
	for i, record := range m.state.Streams {
		slot := m.state.Slots[i]
		fmt.Fprintln(b, renderRow(record.DisplayName, slot.SliderLevel(record), record.Muted, slot.Hovered, slot.Pressed))
	}

	fmt.Fprintln(b)
	fmt.Fprintln(b, helpStyle.Render("↑/↓ select  ←/→ volume  enter mute  r refresh  q quit"))

	return b.String()
}

func renderRow(label string, level uint32, muted bool, focused bool, pressed bool) string {
	name := lipgloss.NewStyle().Width(labelWidth).MaxWidth(labelWidth).Render(" " + label)
	if focused {
		name = focusStyle.Render(name)
	}

	color := nord14
	if muted {
		color = nord3
	}

	slider := renderSlider(level, sliderWidth, color)
	mute := renderToggle("Mute", muted, focused, nord11, nord4)
	if pressed {
		mute = pressedStyle.Render(mute)
	}

	return lipgloss.JoinHorizontal(lipgloss.Top, name, slider, "  ", mute)
}

// renderSlider draws [====|----] with the handle at level
func renderSlider(level uint32, width int, color lipgloss.Color) string {
	percent := VolumePercent(level)
	filled := percent * width / 100
	if filled > width {
		filled = width
	}

	bar := strings.Repeat("=", filled) + "|" + strings.Repeat("-", width-filled)
	return lipgloss.NewStyle().Foreground(color).Render(fmt.Sprintf("[%s] %3d%%", bar, percent))
}

// Single-line toggle [ ] Label or [x] Label
func renderToggle(label string, checked bool, focused bool, on lipgloss.Color, off lipgloss.Color) string {
	box := "[ ]"
	style := lipgloss.NewStyle().Foreground(off)
	if checked {
		box = "[x]"
		style = style.Foreground(on)
	}
	out := fmt.Sprintf("%s %s", box, label)
	if focused {
		out = focusStyle.Render(out)
	}
	return style.Render(out)
}
