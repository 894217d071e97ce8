package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nebulark/wasm-substrate/heap"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	allocatedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	freeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	addrStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

// chunkMapWidth is the character width of the arena occupancy bar.
const chunkMapWidth = 60

// historySize bounds the command log shown above the prompt.
const historySize = 8

type inspectorModel struct {
	h       *heap.Heap
	mem     []byte
	pages   uint32
	input   textinput.Model
	history []string
}

func newInspectorModel(pages uint32) *inspectorModel {
	ti := textinput.New()
	ti.Placeholder = "alloc 64"
	ti.Prompt = "> "
	ti.Width = 48
	ti.Focus()

	m := &inspectorModel{pages: pages, input: ti}
	m.reset()
	return m
}

// reset lays a fresh arena over new memory, mirroring a guest with the
// default heap base and pages*64KiB of linear memory.
func (m *inspectorModel) reset() {
	m.mem = make([]byte, uint64(m.pages)*65536)
	m.h = heap.New(m.mem, 0x10000)
}

func (m *inspectorModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m *inspectorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit

		case "enter":
			line := strings.TrimSpace(m.input.Value())
			m.input.SetValue("")
			if line == "" {
				return m, nil
			}
			if line == "quit" || line == "q" || line == "exit" {
				return m, tea.Quit
			}
			m.log("> " + line)
			m.log(m.execute(line))
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *inspectorModel) log(line string) {
	m.history = append(m.history, line)
	if len(m.history) > historySize {
		m.history = m.history[len(m.history)-historySize:]
	}
}

// execute runs one inspector command and returns the styled result line.
func (m *inspectorModel) execute(line string) string {
	fields := strings.Fields(line)
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "alloc", "a":
		size, err := argUint(args, 0)
		if err != nil {
			return errorStyle.Render("usage: alloc <size>")
		}
		ptr, err := m.tryAlloc(size)
		if err != nil {
			return errorStyle.Render(err.Error())
		}
		return resultStyle.Render(fmt.Sprintf("allocated %d bytes at %#x", size, ptr))

	case "free", "f":
		ptr, err := argUint(args, 0)
		if err != nil {
			return errorStyle.Render("usage: free <ptr>")
		}
		m.h.Free(ptr)
		return resultStyle.Render(fmt.Sprintf("freed %#x", ptr))

	case "realloc", "r":
		ptr, err1 := argUint(args, 0)
		size, err2 := argUint(args, 1)
		if err1 != nil || err2 != nil {
			return errorStyle.Render("usage: realloc <ptr> <size>")
		}
		moved, err := m.tryRealloc(ptr, size)
		if err != nil {
			return errorStyle.Render(err.Error())
		}
		if moved == ptr {
			return resultStyle.Render(fmt.Sprintf("resized %#x to %d bytes in place", ptr, size))
		}
		return resultStyle.Render(fmt.Sprintf("moved %#x to %#x (%d bytes)", ptr, moved, size))

	case "vector", "v":
		members, err1 := argUint(args, 0)
		elemSize, err2 := argUint(args, 1)
		if err1 != nil || err2 != nil {
			return errorStyle.Render("usage: vector <members> <elemsize>")
		}
		ptr, err := m.tryVector(members, elemSize)
		if err != nil {
			return errorStyle.Render(err.Error())
		}
		return resultStyle.Render(fmt.Sprintf("vector of %d x %d bytes at %#x", members, elemSize, ptr))

	case "check", "c":
		if err := m.h.CheckIntegrity(); err != nil {
			return errorStyle.Render(err.Error())
		}
		return resultStyle.Render("chunk list intact")

	case "reset":
		m.reset()
		return resultStyle.Render("arena reset")

	case "help", "h", "?":
		return helpStyle.Render("alloc <size> | free <ptr> | realloc <ptr> <size> | vector <n> <size> | check | reset | quit")

	default:
		return errorStyle.Render(fmt.Sprintf("unknown command %q (try help)", cmd))
	}
}

// tryAlloc converts the allocator's exhaustion panic into an error so a
// failed allocation shows up in the log instead of killing the TUI.
func (m *inspectorModel) tryAlloc(size uint32) (ptr uint32, err error) {
	defer catchOOM(&err)
	return m.h.Alloc(size), nil
}

func (m *inspectorModel) tryRealloc(ptr, size uint32) (moved uint32, err error) {
	defer catchOOM(&err)
	return m.h.Realloc(ptr, size), nil
}

func (m *inspectorModel) tryVector(members, elemSize uint32) (ptr uint32, err error) {
	defer catchOOM(&err)
	return m.h.NewVector(members, elemSize, nil), nil
}

func catchOOM(errp *error) {
	if r := recover(); r != nil {
		if e, ok := r.(error); ok && e == heap.ErrOutOfMemory {
			*errp = e
			return
		}
		panic(r)
	}
}

func argUint(args []string, i int) (uint32, error) {
	if i >= len(args) {
		return 0, fmt.Errorf("missing argument %d", i)
	}
	v, err := strconv.ParseUint(args[i], 0, 32)
	if err != nil {
		return 0, err
	}
	return uint32(v), nil
}

func (m *inspectorModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Heap Inspector"))
	b.WriteString(fmt.Sprintf("  %d KiB memory, arena at %#x\n\n", uint64(m.pages)*64, m.h.Base()))

	s := m.h.Stats()
	b.WriteString(fmt.Sprintf("arena %d bytes | %s in %d chunks | %s in %d chunks | largest free %d\n",
		s.ArenaSize,
		allocatedStyle.Render(fmt.Sprintf("%d allocated", s.AllocatedBytes)), s.AllocatedChunks,
		freeStyle.Render(fmt.Sprintf("%d free", s.FreeBytes)), s.FreeChunks,
		s.LargestFree))

	chunks := m.h.Chunks()
	b.WriteString(m.chunkMap(chunks, s.ArenaSize))
	b.WriteString("\n\n")

	b.WriteString(m.chunkTable(chunks))
	b.WriteString("\n")

	for _, line := range m.history {
		b.WriteString(line)
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(m.input.View())
	b.WriteString("\n\n")
	b.WriteString(helpStyle.Render("enter run command • help commands • esc quit"))

	return b.String()
}

// chunkMap renders the arena as a proportional bar, one colored segment
// per chunk. Small chunks still get one cell so every chunk is visible.
func (m *inspectorModel) chunkMap(chunks []heap.ChunkInfo, arenaSize uint32) string {
	var b strings.Builder
	for _, c := range chunks {
		w := int(uint64(c.Length+heap.HeaderSize) * chunkMapWidth / uint64(arenaSize))
		if w < 1 {
			w = 1
		}
		seg := strings.Repeat("█", w)
		if c.Allocated {
			b.WriteString(allocatedStyle.Render(seg))
		} else {
			b.WriteString(freeStyle.Render(seg))
		}
	}
	return b.String()
}

// chunkTable lists chunks in address order, eliding the middle when the
// list outgrows the screen.
func (m *inspectorModel) chunkTable(chunks []heap.ChunkInfo) string {
	const maxRows = 12

	var b strings.Builder
	for i, c := range chunks {
		if len(chunks) > maxRows && i == maxRows-1 {
			b.WriteString(helpStyle.Render(fmt.Sprintf("  … %d more chunks\n", len(chunks)-i)))
			break
		}
		state := freeStyle.Render("free     ")
		if c.Allocated {
			state = allocatedStyle.Render("allocated")
		}
		b.WriteString(fmt.Sprintf("  %s  %s  %8d bytes\n",
			addrStyle.Render(fmt.Sprintf("%#08x", c.Payload)), state, c.Length))
	}
	return b.String()
}

func runInteractive(pages uint32) error {
	p := tea.NewProgram(newInspectorModel(pages), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
