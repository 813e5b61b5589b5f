// Command peelview shows the demo scene in a window. Arrow keys orbit the
// camera, W and S zoom, Escape quits.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"math"
	"os"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/peel"
	"github.com/gogpu/peel/backend"
	"github.com/gogpu/peel/capture"
	"github.com/gogpu/peel/scene"
	"github.com/hajimehoshi/ebiten/v2"

	_ "github.com/gogpu/peel/backend/wgpu"
)

const (
	orbitSpeed = 0.03
	zoomSpeed  = 0.05
	minPitch   = -1.2
	maxPitch   = 1.4
	minRadius  = 1.5
	maxRadius  = 8
)

var errQuit = errors.New("quit")

type viewer struct {
	r      *peel.Renderer
	scene  *scene.Scene
	width  int
	height int
	frame  *ebiten.Image

	yaw, pitch, radius float32
	last               peel.FrameStats
}

func newViewer(r *peel.Renderer, s *scene.Scene, w, h int) *viewer {
	off := s.Camera.Position.Sub(s.Camera.Target)
	radius := off.Len()
	return &viewer{
		r:      r,
		scene:  s,
		width:  w,
		height: h,
		yaw:    float32(math.Atan2(float64(off.X()), float64(off.Z()))),
		pitch:  float32(math.Asin(float64(off.Y() / radius))),
		radius: radius,
	}
}

func (v *viewer) Update() error {
	switch {
	case ebiten.IsKeyPressed(ebiten.KeyEscape):
		return errQuit
	case ebiten.IsKeyPressed(ebiten.KeyArrowLeft):
		v.yaw -= orbitSpeed
	case ebiten.IsKeyPressed(ebiten.KeyArrowRight):
		v.yaw += orbitSpeed
	}
	if ebiten.IsKeyPressed(ebiten.KeyArrowUp) {
		v.pitch = min(v.pitch+orbitSpeed, maxPitch)
	}
	if ebiten.IsKeyPressed(ebiten.KeyArrowDown) {
		v.pitch = max(v.pitch-orbitSpeed, minPitch)
	}
	if ebiten.IsKeyPressed(ebiten.KeyW) {
		v.radius = max(v.radius-zoomSpeed, minRadius)
	}
	if ebiten.IsKeyPressed(ebiten.KeyS) {
		v.radius = min(v.radius+zoomSpeed, maxRadius)
	}

	cam := v.scene.Camera
	sy, cy := math.Sincos(float64(v.yaw))
	sp, cp := math.Sincos(float64(v.pitch))
	cam.Position = cam.Target.Add(mgl32.Vec3{
		float32(sy * cp), float32(sp), float32(cy * cp),
	}.Mul(v.radius))

	stats, err := v.r.RenderFrame(v.scene.Batch(), cam)
	if err != nil {
		return err
	}
	if stats.PeelIterations != v.last.PeelIterations || stats.Termination != v.last.Termination {
		peel.Logger().Info("peelview: frame", "iterations", stats.PeelIterations, "termination", stats.Termination)
	}
	v.last = stats
	return nil
}

func (v *viewer) Draw(screen *ebiten.Image) {
	img, err := capture.Read(v.r.Device(), v.r.Output().Texture(), v.width, v.height)
	if err != nil {
		peel.Logger().Warn("peelview: readback", "err", err)
		return
	}
	if v.frame == nil {
		v.frame = ebiten.NewImage(v.width, v.height)
	}
	v.frame.WritePixels(img.RGBA().Pix)
	screen.DrawImage(v.frame, nil)
}

func (v *viewer) Layout(_, _ int) (int, int) {
	return v.width, v.height
}

func main() {
	var (
		width   = flag.Int("width", scene.DemoWidth, "frame width")
		height  = flag.Int("height", scene.DemoHeight, "frame height")
		device  = flag.String("backend", backend.BackendSoftware, "device backend: wgpu or software")
		verbose = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	peel.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if err := run(*device, *width, *height); err != nil && !errors.Is(err, errQuit) {
		log.Fatal(err)
	}
}

func run(device string, w, h int) error {
	dev, err := backend.Open(device)
	if err != nil {
		return fmt.Errorf("open device: %w", err)
	}
	defer dev.Destroy()

	r, err := peel.NewRenderer(dev)
	if err != nil {
		return err
	}
	defer r.Close()
	if err := r.Initialize(w, h); err != nil {
		return err
	}
	res, err := scene.NewResources(r)
	if err != nil {
		return err
	}
	defer res.Release()

	ebiten.SetWindowTitle("peelview (" + dev.Caps().Name + ")")
	ebiten.SetWindowSize(w, h)
	ebiten.SetTPS(30)
	return ebiten.RunGame(newViewer(r, scene.Demo(res), w, h))
}
