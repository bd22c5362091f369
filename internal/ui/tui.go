package ui

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// quitTimeout bounds how long Stop waits for the program to restore the
// terminal.
const quitTimeout = 2 * time.Second

// TUIRenderer draws the index run on the alternate screen with bubbletea.
// The tracker is fed under mu; the model reads it on every tick.
type TUIRenderer struct {
	mu      sync.Mutex
	cfg     Config
	tracker *ProgressTracker
	model   *indexingModel
	program *tea.Program
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewTUIRenderer creates a TUI renderer. It fails when the output is not
// a terminal.
func NewTUIRenderer(cfg Config) (*TUIRenderer, error) {
	if !IsTTY(cfg.Output) {
		return nil, fmt.Errorf("output is not a TTY")
	}

	tracker := NewProgressTracker()
	model := newIndexingModel(tracker, cfg.VaultDir)
	model.onQuit = cfg.OnQuit
	if cfg.NoColor || DetectNoColor() {
		model.styles = NoColorStyles()
	}

	return &TUIRenderer{cfg: cfg, tracker: tracker, model: model, done: make(chan struct{})}, nil
}

// Start implements Renderer. Calling it twice is a no-op.
func (r *TUIRenderer) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.program != nil {
		return nil
	}

	ctx, r.cancel = context.WithCancel(ctx)
	opts := []tea.ProgramOption{tea.WithContext(ctx), tea.WithAltScreen()}
	if f, ok := r.cfg.Output.(*os.File); ok {
		opts = append(opts, tea.WithOutput(f))
	}
	r.program = tea.NewProgram(r.model, opts...)

	go func() {
		defer close(r.done)
		_, _ = r.program.Run()
	}()
	return nil
}

// send forwards msg to the running program, if any. Callers hold mu.
func (r *TUIRenderer) send(msg tea.Msg) {
	if r.program != nil {
		r.program.Send(msg)
	}
}

// UpdateProgress implements Renderer.
func (r *TUIRenderer) UpdateProgress(event ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tracker.Apply(event)
	r.send(progressUpdateMsg(event))
}

// AddError implements Renderer.
func (r *TUIRenderer) AddError(event ErrorEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tracker.AddError(event)
	r.send(errorMsg(event))
}

// Complete implements Renderer.
func (r *TUIRenderer) Complete(stats CompletionStats) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tracker.SetStage(StageComplete, 0)
	r.send(completeMsg(stats))
}

// Stop implements Renderer.
func (r *TUIRenderer) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cancel != nil {
		r.cancel()
	}
	if r.program == nil {
		return nil
	}
	r.program.Quit()
	select {
	case <-r.done:
	case <-time.After(quitTimeout):
	}
	return nil
}

type (
	progressUpdateMsg ProgressEvent
	errorMsg          ErrorEvent
	completeMsg       CompletionStats
	tickMsg           time.Time
)

// indexingModel is the bubbletea model of one index run.
type indexingModel struct {
	tracker  *ProgressTracker
	spinner  spinner.Model
	bar      progress.Model
	styles   Styles
	vaultDir string
	onQuit   func()

	width    int
	quitting bool
	complete bool
	stats    CompletionStats
}

func newIndexingModel(tracker *ProgressTracker, vaultDir string) *indexingModel {
	s := spinner.New(spinner.WithSpinner(spinner.Dot))
	s.Style = fg(ColorAccent)

	return &indexingModel{
		tracker:  tracker,
		spinner:  s,
		bar:      progress.New(progress.WithSolidFill(ColorAccent), progress.WithWidth(50), progress.WithoutPercentage()),
		styles:   DefaultStyles(),
		vaultDir: vaultDir,
		width:    80,
	}
}

// Init implements tea.Model.
func (m *indexingModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tick())
}

func tick() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Update implements tea.Model.
func (m *indexingModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if k := msg.String(); k == "ctrl+c" || k == "q" {
			// Raw mode swallows SIGINT, so the run is cancelled from here
			m.quitting = true
			if m.onQuit != nil {
				m.onQuit()
			}
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.bar.Width = max(msg.Width-20, 20)
	case completeMsg:
		m.complete = true
		m.stats = CompletionStats(msg)
		return m, tea.Quit
	case tickMsg:
		return m, tick()
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	// progressUpdateMsg and errorMsg: the tracker is already fed, the next
	// tick redraws.
	return m, nil
}

// View implements tea.Model.
func (m *indexingModel) View() string {
	if m.quitting {
		return "Cancelled.\n"
	}
	if m.complete {
		return m.summaryView()
	}

	stats := m.tracker.Stats()
	width := max(m.width-4, 40)

	title := "vaultrag index"
	if m.vaultDir != "" {
		title += " • " + m.vaultDir
	}

	body := []string{m.stageLine(stats.Stage), ""}
	body = append(body, m.progressLines(stats)...)
	body = append(body, m.styles.Sparkline.Render(m.tracker.RenderSparkline(max(width-12, 10)))+m.styles.Dim.Render(" chunks/s"))
	if stats.CurrentFile != "" {
		body = append(body, m.styles.Dim.Render(shortenPath(stats.CurrentFile, width-2)))
	}

	gutter := lipgloss.NewStyle().
		Border(lipgloss.ThickBorder(), false, false, false, true).
		BorderForeground(lipgloss.Color(ColorRule)).
		PaddingLeft(1)

	return lipgloss.JoinVertical(lipgloss.Left,
		m.styles.Header.Render(title),
		gutter.Render(strings.Join(body, "\n")),
		m.footer(stats),
	) + "\n"
}

var stageNames = []struct {
	stage Stage
	name  string
}{
	{StageDetermining, "Scan"},
	{StageChunking, "Chunk"},
	{StageEmbedding, "Embed"},
	{StagePersisting, "Save"},
}

// stageLine marks finished stages ●, the current one with the spinner and
// pending ones ○.
func (m *indexingModel) stageLine(current Stage) string {
	parts := make([]string, len(stageNames))
	for i, s := range stageNames {
		switch {
		case s.stage < current:
			parts[i] = m.styles.Success.Render("● " + s.name)
		case s.stage == current:
			parts[i] = m.styles.Active.Render(m.spinner.View() + " " + s.name)
		default:
			parts[i] = m.styles.Dim.Render("○ " + s.name)
		}
	}
	return strings.Join(parts, "   ")
}

func (m *indexingModel) progressLines(stats ProgressStats) []string {
	if stats.Total == 0 {
		return []string{
			fmt.Sprintf("%s %s...", m.spinner.View(), stats.Stage),
			m.styles.Dim.Render("Preparing..."),
		}
	}

	count := fmt.Sprintf("%d / %d chunks", stats.Current, stats.Total)
	if stats.TotalFiles > 0 {
		count += fmt.Sprintf(" from %d files", stats.TotalFiles)
	}
	count = m.styles.Label.Render(count)
	if stats.Waiting {
		count += "  " + m.styles.Warning.Render("rate limited, waiting to retry")
	}

	rate := fmt.Sprintf("%.0f/s", stats.Speed.Current)
	if stats.Speed.Avg > 0 {
		rate += fmt.Sprintf(" · avg %.0f · peak %.0f", stats.Speed.Avg, stats.Speed.Peak)
	}
	if stats.ETA > 0 {
		rate += " · " + formatDuration(stats.ETA) + " left"
	}

	return []string{
		m.bar.ViewAs(stats.Progress) + "  " + m.styles.Active.Render(fmt.Sprintf("%3.0f%%", stats.Progress*100)),
		count,
		m.styles.Speed.Render(rate),
	}
}

// footer shows the throttle, warning and error counters, then the quit hint.
func (m *indexingModel) footer(stats ProgressStats) string {
	var parts []string
	if stats.WaitCount > 0 {
		parts = append(parts, m.styles.Warning.Render(fmt.Sprintf("⏳ %d rate limits", stats.WaitCount)))
	}
	if stats.WarnCount > 0 {
		parts = append(parts, m.styles.Warning.Render(fmt.Sprintf("⚠ %d warnings", stats.WarnCount)))
	}
	if stats.ErrorCount > 0 {
		parts = append(parts, m.styles.Error.Render(fmt.Sprintf("✗ %d errors", stats.ErrorCount)))
	}
	parts = append(parts, m.styles.Dim.Render("q to quit"))
	return strings.Join(parts, m.styles.Dim.Render(" │ "))
}

func (m *indexingModel) summaryView() string {
	type row struct{ label, value string }
	rows := []row{
		{"Files", fmt.Sprint(m.stats.Files)},
		{"Chunks", fmt.Sprintf("%d/%d embedded", m.stats.Embedded, m.stats.Chunks)},
	}
	if m.stats.Deleted > 0 {
		rows = append(rows, row{"Removed", fmt.Sprint(m.stats.Deleted)})
	}
	rows = append(rows, row{"Duration", formatDuration(m.stats.Duration)})
	if speed := m.tracker.SpeedStats(); speed.Avg > 0 {
		rows = append(rows, row{"Avg Speed", fmt.Sprintf("%.0f chunks/sec", speed.Avg)})
	}
	if e := m.stats.Embedder; e.Backend != "" {
		rows = append(rows, row{"Embedder", fmt.Sprintf("%s (%s, %d dims)", e.Backend, e.Model, e.Dimensions)})
	}

	label := m.styles.Label.Width(11)
	lines := []string{m.styles.Success.Render("✓ Indexing Complete"), ""}
	for _, r := range rows {
		lines = append(lines, label.Render(r.label+":")+m.styles.Active.Render(r.value))
	}
	if m.stats.Errors > 0 {
		lines = append(lines, "", m.styles.Error.Render(fmt.Sprintf("✗ %d errors", m.stats.Errors)))
	}
	if m.stats.Warnings > 0 {
		lines = append(lines, m.styles.Warning.Render(fmt.Sprintf("⚠ %d warnings", m.stats.Warnings)))
	}

	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(ColorAccent)).
		Padding(1, 2).
		Width(max(m.width-4, 40))
	return box.Render(strings.Join(lines, "\n")) + "\n"
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	hrs, mins, secs := int(d.Hours()), int(d.Minutes())%60, int(d.Seconds())%60
	switch {
	case hrs > 0:
		return fmt.Sprintf("%dh %dm", hrs, mins)
	case mins > 0 && secs == 0:
		return fmt.Sprintf("%dm", mins)
	case mins > 0:
		return fmt.Sprintf("%dm %ds", mins, secs)
	default:
		return fmt.Sprintf("%ds", secs)
	}
}

// shortenPath fits a vault path into limit runes by dropping leading
// folders behind "…/". The note name is kept whole when it fits.
func shortenPath(path string, limit int) string {
	if len([]rune(path)) <= limit {
		return path
	}
	if limit < 2 {
		return "…"
	}

	dirs := strings.Split(path, "/")
	for i := 1; i < len(dirs); i++ {
		candidate := "…/" + strings.Join(dirs[i:], "/")
		if len([]rune(candidate)) <= limit {
			return candidate
		}
	}

	// Even the note name is too long: keep its tail
	runes := []rune(path)
	return "…" + string(runes[len(runes)-limit+1:])
}

var _ Renderer = (*TUIRenderer)(nil)
