package main

import (
	"fmt"

	"github.com/cshum/vipsgen/vips"
	"github.com/hajimehoshi/ebiten/v2"
	"go.uber.org/zap"

	"panoview"
	"panoview/internal/config"
	"panoview/internal/gpu"
	"panoview/internal/logger"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.LogLevel, cfg.LogEncoding)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer log.Sync()

	if cfg.TileURLTemplate == "" {
		log.Fatal("TILE_URL_TEMPLATE is required, e.g. https://tiles.example.com/{z}/{x}/{y}.jpg")
	}

	if cfg.Decoder == "vips" {
		vipsConfig := &vips.Config{
			ConcurrencyLevel: 1,
			MaxCacheMem:      64 * 1024 * 1024,
			MaxCacheFiles:    0,
			MaxCacheSize:     0,
		}
		vips.SetLogging(func(domain string, level vips.LogLevel, message string) {
			if level >= vips.LogLevelError {
				log.Error("vips", zap.String("domain", domain), zap.String("message", message))
			} else if level >= vips.LogLevelWarning {
				log.Warn("vips", zap.String("domain", domain), zap.String("message", message))
			}
		}, vips.LogLevelError)
		vips.Startup(vipsConfig)
		defer vips.Shutdown()
		log.Info("VIPS initialized")
	}

	engine := newPyramidEngine(cfg.TileURLTemplate, screenWidth, screenHeight)

	gctx := gpu.NewEbiten()
	viewer, err := panoview.New(engine, gctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize viewer engine", zap.Error(err))
	}

	game := newGame(viewer, engine, gctx)

	ebiten.SetWindowSize(screenWidth, screenHeight)
	ebiten.SetWindowTitle("panoview")

	log.Info("Starting viewer",
		zap.String("template", cfg.TileURLTemplate),
		zap.String("decoder", cfg.Decoder),
	)

	if err := ebiten.RunGame(game); err != nil {
		log.Error("Viewer exited", zap.Error(err))
	}

	viewer.Shutdown()
	log.Info("Viewer stopped")
}
