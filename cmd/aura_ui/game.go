package main

import (
	"fmt"
	"image"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/inpututil"

	"github.com/cbegin/musicaura-go"
	"github.com/cbegin/musicaura-go/internal/decode"
	"github.com/cbegin/musicaura-go/internal/frame"
	"github.com/cbegin/musicaura-go/internal/render"
	"github.com/cbegin/musicaura-go/internal/surface"
)

const seekStep = 5.0 // seconds

type navEntry struct {
	name  string
	path  string
	isDir bool
}

type game struct {
	player *aura.Player
	events <-chan aura.PlaybackEvent

	sched    *frame.Scheduler
	loop     *frame.Loop
	scene    *render.Scene
	surface  *surface.Surface
	spectrum []uint8
	canvasW  int
	canvasH  int

	// awaitingReady is set between a play request and the first audio
	// reaching the analyzer; the loop starts when the pipeline is ready.
	awaitingReady bool

	volume         float64
	draggingVolume bool

	status    string
	statusErr bool

	cwd       string
	nav       []navEntry
	navScroll int
	selected  string

	loadedPath string

	frameTick        int
	lastNavPath      string
	lastNavClickTick int

	textCache map[string]*ebiten.Image
	viewW     int
	viewH     int
}

func newGame(player *aura.Player, particles int, initialPath string) (*game, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	if initialPath != "" {
		cwd = filepath.Dir(initialPath)
	}

	g := &game{
		player:    player,
		events:    player.Watch(),
		sched:     frame.NewScheduler(),
		scene:     render.NewScene(render.WithParticleCount(particles)),
		spectrum:  make([]uint8, player.BinCount()),
		volume:    player.Volume(),
		status:    "Ready",
		cwd:       cwd,
		textCache: make(map[string]*ebiten.Image, 1024),
		viewW:     windowW,
		viewH:     windowH,
	}
	g.loop = frame.NewLoop(g.sched, g.renderFrame)
	if err := g.refreshNav(); err != nil {
		g.setError(err.Error())
	}
	if initialPath != "" {
		g.selected = initialPath
		g.loadPath(initialPath)
	}
	return g, nil
}

func (g *game) Update() error {
	g.frameTick++
	g.pollEvents()
	g.handleDrops()
	g.handleKeys()
	g.handleMouse()
	g.startLoopWhenReady()
	if g.loop.Running() && !g.player.Playing() {
		g.stopLoop()
	}
	g.sched.Dispatch()
	return nil
}

func (g *game) Draw(screen *ebiten.Image) {
	screen.Fill(bgColor)

	l := g.layoutRects()

	g.drawSunkenPanel(screen, l.nav)
	g.drawDarkPanel(screen, l.canvas)
	g.drawPanel(screen, l.track)
	g.drawButton(screen, l.upload, "Load")
	g.drawButton(screen, l.play, g.playButtonLabel())
	g.drawVolumeSlider(screen, l.volume)
	g.drawSunkenPanel(screen, l.status)

	g.drawText(screen, "Files", l.nav.Min.X+8, l.nav.Min.Y+8)

	g.drawNavigator(screen, l.nav)
	g.drawCanvas(screen, l.canvas)
	g.drawTrack(screen, l.track)
	g.drawStatus(screen, l.status)
}

func (g *game) Layout(outsideW, outsideH int) (int, int) {
	if outsideW < minWindowW {
		outsideW = minWindowW
	}
	if outsideH < minWindowH {
		outsideH = minWindowH
	}
	g.viewW = outsideW
	g.viewH = outsideH
	return outsideW, outsideH
}

// Close stops the render loop before tearing down the player so no frame
// runs against a released pipeline.
func (g *game) Close() {
	g.loop.Stop()
	g.awaitingReady = false
	if err := g.player.Close(); err != nil {
		slog.Warn("closing player", "err", err)
	}
}

func (g *game) pollEvents() {
	for {
		select {
		case ev, ok := <-g.events:
			if !ok {
				return
			}
			switch ev.Kind {
			case aura.EventPlaybackEnded:
				// A restart may already be queued behind the event.
				if g.player.Playing() {
					continue
				}
				g.stopLoop()
				if !g.statusErr {
					g.status = "Playback ended"
				}
			case aura.EventTrackLoaded:
				g.setStatus("Loaded " + ev.Track)
			}
		default:
			return
		}
	}
}

func (g *game) stopLoop() {
	g.loop.Stop()
	g.awaitingReady = false
}

// trackChanged clears the visuals of the previous track before any frame of
// the new one is drawn.
func (g *game) trackChanged() {
	g.stopLoop()
	g.scene.Reset()
}

// startLoopWhenReady starts the render loop once audio has reached the
// analyzer after a play request.
func (g *game) startLoopWhenReady() {
	if !g.awaitingReady {
		return
	}
	if !g.player.Playing() {
		g.awaitingReady = false
		return
	}
	pl := g.player.Pipeline()
	if pl == nil {
		return
	}
	select {
	case <-pl.Ready():
		g.awaitingReady = false
		if g.loop.Start() {
			slog.Debug("render loop started")
		}
	default:
	}
}

// renderFrame is one iteration of the render loop.
func (g *game) renderFrame() {
	if g.surface == nil || g.canvasW <= 0 || g.canvasH <= 0 {
		return
	}
	g.player.Spectrum(g.spectrum)
	g.scene.Draw(g.surface, g.spectrum)
}

func (g *game) handleDrops() {
	dropped := ebiten.DroppedFiles()
	if dropped == nil {
		return
	}
	entries, err := fs.ReadDir(dropped, ".")
	if err != nil {
		g.setError(err.Error())
		return
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		data, err := fs.ReadFile(dropped, e.Name())
		if err != nil {
			g.setError(err.Error())
			return
		}
		ok, err := g.player.Load(e.Name(), data)
		if err != nil {
			g.setError(err.Error())
			return
		}
		if ok {
			g.trackChanged()
			g.loadedPath = ""
			return
		}
	}
}

func (g *game) handleKeys() {
	if inpututil.IsKeyJustPressed(ebiten.KeySpace) {
		g.togglePlayPause()
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyArrowLeft) {
		g.player.SeekTo(g.player.Position() - seekStep)
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyArrowRight) {
		g.player.SeekTo(g.player.Position() + seekStep)
	}
}

func (g *game) handleMouse() {
	mx, my := ebiten.CursorPosition()
	l := g.layoutRects()

	if inpututil.IsMouseButtonJustPressed(ebiten.MouseButtonLeft) {
		switch {
		case pointInRect(mx, my, l.play):
			g.togglePlayPause()
			return
		case pointInRect(mx, my, l.upload):
			g.loadSelected()
			return
		case pointInRect(mx, my, l.volume):
			g.draggingVolume = true
			g.updateVolumeFromMouse(mx, l.volume)
			return
		case pointInRect(mx, my, g.progressRect(l.track)):
			g.seekFromMouse(mx, g.progressRect(l.track))
			return
		case pointInRect(mx, my, l.nav):
			g.clickNavigator(my, l.nav)
			return
		}
	}
	if !ebiten.IsMouseButtonPressed(ebiten.MouseButtonLeft) {
		g.draggingVolume = false
	}
	if g.draggingVolume {
		g.updateVolumeFromMouse(mx, l.volume)
	}

	_, wy := ebiten.Wheel()
	if wy == 0 {
		return
	}
	if pointInRect(mx, my, l.nav) {
		g.navScroll -= int(wy * 2)
		if g.navScroll < 0 {
			g.navScroll = 0
		}
	}
}

type uiLayout struct {
	nav, canvas, track   image.Rectangle
	upload, play, volume image.Rectangle
	status               image.Rectangle
}

func (g *game) layoutRects() uiLayout {
	w := g.viewW
	h := g.viewH
	if w < minWindowW {
		w = minWindowW
	}
	if h < minWindowH {
		h = minWindowH
	}

	pad := 20
	rowH := 44
	statusH := 40
	trackH := 76

	// Bottom: status row, then controls row above it.
	statusTop := h - pad - statusH
	controlsTop := statusTop - 8 - rowH

	// Left column: navigator.
	navW := 280
	navRect := image.Rect(pad, pad, pad+navW, controlsTop-12)

	// Right column: canvas + track panel.
	rightX := navRect.Max.X + 12
	rightW := w - rightX - pad
	if rightW < 320 {
		rightW = 320
	}
	contentBottom := controlsTop - 12
	trackRect := image.Rect(rightX, contentBottom-trackH, rightX+rightW, contentBottom)
	canvasRect := image.Rect(rightX, pad, rightX+rightW, trackRect.Min.Y-12)

	// Controls row.
	uploadRect := image.Rect(pad, controlsTop, pad+130, controlsTop+rowH)
	playRect := image.Rect(pad+142, controlsTop, pad+272, controlsTop+rowH)
	volRight := pad + 284 + 320
	if volRight > w-pad {
		volRight = w - pad
	}
	volumeRect := image.Rect(pad+284, controlsTop, volRight, controlsTop+rowH)

	// Status row.
	statusRect := image.Rect(pad, statusTop, w-pad, statusTop+statusH)

	return uiLayout{
		nav: navRect, canvas: canvasRect, track: trackRect,
		upload: uploadRect, play: playRect, volume: volumeRect,
		status: statusRect,
	}
}

// progressRect is the clickable progress track inside the track panel.
func (g *game) progressRect(track image.Rectangle) image.Rectangle {
	y := track.Min.Y + 12 + lineH + 8
	return image.Rect(track.Min.X+8, y, track.Max.X-8, y+14)
}

func (g *game) drawCanvas(screen *ebiten.Image, rect image.Rectangle) {
	inner := image.Rect(rect.Min.X+8, rect.Min.Y+8, rect.Max.X-8, rect.Max.Y-8)
	width := inner.Dx()
	height := inner.Dy()
	if width <= 0 || height <= 0 {
		return
	}

	if g.surface == nil {
		g.surface = surface.New(width, height)
	}
	if g.canvasW != width || g.canvasH != height {
		g.canvasW = width
		g.canvasH = height
		g.surface.Resize(width, height)
		g.scene.Resize(float64(width), float64(height))
	}

	op := &ebiten.DrawImageOptions{}
	op.GeoM.Translate(float64(inner.Min.X), float64(inner.Min.Y))
	screen.DrawImage(g.surface.Image(), op)

	if g.player.Playing() {
		g.drawBadge(screen, "Live", inner.Max.X-8, inner.Min.Y+8)
	}
}

func (g *game) drawTrack(screen *ebiten.Image, rect image.Rectangle) {
	maxChars := max(8, (rect.Dx()-16)/charW)
	info, ok := g.player.Track()
	name := "No track loaded"
	if ok {
		name = info.Display
	}
	pos, dur := g.player.Position(), g.player.Duration()
	clock := aura.FormatTime(pos) + " / " + aura.FormatTime(dur)
	clockW := len(clock) * charW
	g.drawText(screen, shortenEnd(name, maxChars-len(clock)-2), rect.Min.X+8, rect.Min.Y+8)
	g.drawText(screen, clock, rect.Max.X-8-clockW, rect.Min.Y+8)

	bar := g.progressRect(rect)
	ebitenutil.DrawRect(screen, float64(bar.Min.X), float64(bar.Min.Y), float64(bar.Dx()), float64(bar.Dy()), bevelDarker)
	fillW := int(float64(bar.Dx()) * aura.Progress(pos, dur))
	if fillW > 2 {
		ebitenutil.DrawRect(screen, float64(bar.Min.X+1), float64(bar.Min.Y+1), float64(fillW-1), float64(bar.Dy()-2), sliderFillColor)
	}
	drawSunkenBorder(screen, bar)
}

func (g *game) seekFromMouse(mx int, bar image.Rectangle) {
	frac := aura.SeekFraction(float64(mx-bar.Min.X), float64(bar.Dx()))
	g.player.Seek(frac)
}

func (g *game) drawStatus(screen *ebiten.Image, rect image.Rectangle) {
	msg := "Status: " + g.status
	if g.statusErr {
		msg = "Status: ERROR - " + g.status
	}
	maxChars := max(8, (rect.Dx()-16)/charW)
	g.drawText(screen, shortenEnd(msg, maxChars), rect.Min.X+8, rect.Min.Y+6)
}

func (g *game) drawNavigator(screen *ebiten.Image, rect image.Rectangle) {
	label := g.cwd
	if g.loadedPath != "" {
		label = g.cwd + "  [" + filepath.Base(g.loadedPath) + "]"
	}
	maxChars := max(8, (rect.Dx()-16)/charW)
	g.drawText(screen, shortenMiddle(label, maxChars), rect.Min.X+8, rect.Min.Y+8+lineH)

	top := rect.Min.Y + 12 + (lineH * 2)
	maxLines := (rect.Dy() - (lineH * 2) - 18) / lineH
	if maxLines < 1 {
		maxLines = 1
	}
	if g.navScroll > len(g.nav)-1 {
		g.navScroll = max(0, len(g.nav)-1)
	}

	for i := 0; i < maxLines; i++ {
		idx := g.navScroll + i
		if idx < 0 || idx >= len(g.nav) {
			break
		}
		entry := g.nav[idx]
		y := top + i*lineH
		if !entry.isDir && (samePath(entry.path, g.selected) || samePath(entry.path, g.loadedPath)) {
			hl := highlightColor
			if !samePath(entry.path, g.loadedPath) {
				hl = selectColor
			}
			ebitenutil.DrawRect(screen, float64(rect.Min.X+6), float64(y-2), float64(rect.Dx()-12), float64(lineH+2), hl)
		}
		txt := entry.name
		if entry.isDir && entry.name != ".." {
			txt += "/"
		}
		g.drawText(screen, shortenEnd(txt, maxChars-1), rect.Min.X+10, y)
	}
}

func (g *game) clickNavigator(my int, rect image.Rectangle) {
	top := rect.Min.Y + 12 + (lineH * 2)
	row := (my - top) / lineH
	if row < 0 {
		return
	}
	idx := g.navScroll + row
	if idx < 0 || idx >= len(g.nav) {
		return
	}
	entry := g.nav[idx]
	if entry.isDir {
		g.cwd = entry.path
		g.navScroll = 0
		if err := g.refreshNav(); err != nil {
			g.setError(err.Error())
			return
		}
		g.setStatus("Directory: " + g.cwd)
		return
	}

	doubleClickSame := samePath(entry.path, g.lastNavPath) && (g.frameTick-g.lastNavClickTick) <= 18
	g.lastNavPath = entry.path
	g.lastNavClickTick = g.frameTick
	g.selected = entry.path

	if !doubleClickSame {
		g.setStatus("Selected " + entry.name)
		return
	}
	if g.loadPath(entry.path) && !g.player.Playing() {
		g.togglePlayPause()
	}
}

// refreshNav lists directories and audio files in cwd.
func (g *game) refreshNav() error {
	items, err := os.ReadDir(g.cwd)
	if err != nil {
		return err
	}
	dirs := make([]navEntry, 0)
	files := make([]navEntry, 0)

	parent := filepath.Dir(g.cwd)
	if parent != g.cwd {
		dirs = append(dirs, navEntry{name: "..", path: parent, isDir: true})
	}

	for _, it := range items {
		name := it.Name()
		full := filepath.Join(g.cwd, name)
		if it.IsDir() {
			dirs = append(dirs, navEntry{name: name, path: full, isDir: true})
			continue
		}
		if strings.HasPrefix(decode.MediaType(name), "audio/") {
			files = append(files, navEntry{name: name, path: full, isDir: false})
		}
	}

	sort.Slice(dirs, func(i, j int) bool {
		if dirs[i].name == ".." {
			return true
		}
		if dirs[j].name == ".." {
			return false
		}
		return strings.ToLower(dirs[i].name) < strings.ToLower(dirs[j].name)
	})
	sort.Slice(files, func(i, j int) bool {
		return strings.ToLower(files[i].name) < strings.ToLower(files[j].name)
	})
	g.nav = append(dirs, files...)
	return nil
}

func (g *game) loadSelected() {
	if g.selected == "" {
		g.setStatus("Select a file first")
		return
	}
	g.loadPath(g.selected)
}

// loadPath loads path into the player. Non-audio files are ignored without
// touching the status line.
func (g *game) loadPath(path string) bool {
	ok, err := g.player.LoadFile(path)
	if err != nil {
		slog.Warn("load failed", "path", path, "err", err)
		g.setError(err.Error())
		return false
	}
	if !ok {
		return false
	}
	g.trackChanged()
	g.loadedPath = path
	if dir := filepath.Dir(path); dir != g.cwd {
		g.cwd = dir
		if err := g.refreshNav(); err != nil {
			g.setError(err.Error())
		}
	}
	return true
}

func (g *game) togglePlayPause() {
	if _, ok := g.player.Track(); !ok {
		return
	}
	if g.player.TogglePlay() {
		g.awaitingReady = true
		g.setStatus("Playing")
		return
	}
	g.stopLoop()
	g.setStatus("Paused")
}

func (g *game) playButtonLabel() string {
	if g.player.Playing() {
		return "Pause"
	}
	return "Play"
}

func (g *game) updateVolumeFromMouse(mx int, rect image.Rectangle) {
	trackX := rect.Min.X + 130
	trackW := rect.Dx() - 146
	if trackW <= 0 {
		return
	}
	v := clamp(float64(mx-trackX)/float64(trackW), 0, 1)
	g.volume = v
	g.player.SetVolume(v)
	g.setStatus(fmt.Sprintf("Volume: %d%%", int(v*100+0.5)))
}

func (g *game) setError(msg string) {
	g.status = msg
	g.statusErr = true
}

func (g *game) setStatus(msg string) {
	g.status = msg
	g.statusErr = false
}
