// Command peeldemo renders the demo scene headlessly and writes the
// composite to a PNG or OpenEXR file.
package main

import (
	"flag"
	"log"
	"log/slog"
	"os"

	"github.com/gogpu/peel"
	"github.com/gogpu/peel/backend"
	"github.com/gogpu/peel/capture"
	"github.com/gogpu/peel/gpucore"
	"github.com/gogpu/peel/scene"

	_ "github.com/gogpu/peel/backend/wgpu"
)

func main() {
	var (
		width     = flag.Int("width", scene.DemoWidth, "image width")
		height    = flag.Int("height", scene.DemoHeight, "image height")
		output    = flag.String("output", "peel.png", "output file (.png or .exr)")
		device    = flag.String("backend", "", "device backend: wgpu or software (default: best available)")
		passes    = flag.Int("passes", peel.DefaultMaxPasses, "maximum peel iterations")
		pipelined = flag.Bool("pipelined", false, "double-buffer occlusion queries")
		dump      = flag.String("dump", "", "directory for accumulator and depth bounds captures")
		verbose   = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	peel.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	dev, err := openDevice(*device)
	if err != nil {
		log.Fatalf("Failed to open device: %v", err)
	}
	defer dev.Destroy()

	r, err := peel.NewRenderer(dev, peel.WithMaxPasses(*passes), peel.WithPipelinedQueries(*pipelined))
	if err != nil {
		log.Fatalf("Failed to create renderer: %v", err)
	}
	defer r.Close()
	if err := r.Initialize(*width, *height); err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}

	res, err := scene.NewResources(r)
	if err != nil {
		log.Fatalf("Failed to create scene resources: %v", err)
	}
	defer res.Release()

	s := scene.Demo(res)
	stats, err := r.RenderFrame(s.Batch(), s.Camera)
	if err != nil {
		log.Fatalf("Failed to render: %v", err)
	}

	f, err := capture.Capture(r)
	if err != nil {
		log.Fatalf("Failed to read back frame: %v", err)
	}
	if err := f.Composite.Save(*output); err != nil {
		log.Fatalf("Failed to save: %v", err)
	}
	if *dump != "" {
		if err := f.WriteDir(*dump); err != nil {
			log.Fatalf("Failed to dump targets: %v", err)
		}
	}

	log.Printf("Frame saved to %s (%dx%d, %s): %d peel iterations, counts %v, %s\n",
		*output, *width, *height, dev.Caps().Name, stats.PeelIterations, stats.OcclusionCounts, stats.Termination)
}

func openDevice(name string) (gpucore.Device, error) {
	if name == "" {
		return backend.OpenDefault()
	}
	return backend.Open(name)
}
