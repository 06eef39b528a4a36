// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"fmt"
	"image"
	"log"
	"sync"
	"time"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/devices/v3/ssd1306/image1bit"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/force_feedback/internal/config"
	"github.com/relabs-tech/force_feedback/internal/sample"
)

const (
	displayW = 128
	displayH = 64

	displayRefresh = 50 * time.Millisecond

	// symbolScale enlarges the feedback symbol for the subject.
	symbolScale = 3
)

// DisplayData holds the latest messages for the subject display.
type DisplayData struct {
	mu       sync.Mutex
	feedback *sample.FeedbackMsg
	status   *sample.Status
	version  uint64
}

func (d *DisplayData) setFeedback(m sample.FeedbackMsg) {
	d.mu.Lock()
	d.feedback = &m
	d.version++
	d.mu.Unlock()
}

func (d *DisplayData) setStatus(s sample.Status) {
	d.mu.Lock()
	d.status = &s
	d.version++
	d.mu.Unlock()
}

func (d *DisplayData) setTrial(e sample.TrialEvent) {
	d.mu.Lock()
	if d.status == nil {
		d.status = &sample.Status{RunID: e.RunID}
	}
	d.status.Trial = e.Trial
	d.status.Active = e.Kind == "start"
	d.status.Finished = e.Finished
	d.version++
	d.mu.Unlock()
}

// view returns copies of the current messages and the change counter.
func (d *DisplayData) view() (displayView, uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var v displayView
	if d.feedback != nil {
		f := *d.feedback
		v.feedback = &f
	}
	if d.status != nil {
		s := *d.status
		v.status = &s
	}
	return v, d.version
}

type displayView struct {
	feedback *sample.FeedbackMsg
	status   *sample.Status
}

// RunDisplay drives the subject-facing OLED from the controller's MQTT
// messages.
func RunDisplay() error {
	cfg := config.Get()

	// Initialize periph
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("failed to initialize periph: %w", err)
	}

	// Open I2C bus
	bus, err := i2creg.Open(cfg.DisplayI2CBus)
	if err != nil {
		return fmt.Errorf("failed to open I2C bus: %w", err)
	}
	defer bus.Close()

	dev, err := ssd1306.NewI2C(bus, &ssd1306.DefaultOpts)
	if err != nil {
		return fmt.Errorf("failed to initialize display: %w", err)
	}
	defer dev.Halt()
	log.Printf("display: initialized on I2C bus %q", cfg.DisplayI2CBus)

	if err := dev.Draw(dev.Bounds(), renderSplash(), image.Point{}); err != nil {
		log.Printf("display: error showing splash: %v", err)
	}

	client, err := connectMQTT("display", cfg.MQTTBroker, cfg.MQTTClientIDDisplay)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	data := &DisplayData{}
	if err := subscribe(client, "display", cfg.TopicFeedback,
		jsonHandler("display", "feedback", data.setFeedback)); err != nil {
		return err
	}
	if err := subscribe(client, "display", cfg.TopicTrial,
		jsonHandler("display", "trial", data.setTrial)); err != nil {
		return err
	}
	if err := subscribe(client, "display", cfg.TopicStatus,
		jsonHandler("display", "status", data.setStatus)); err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	ticker := time.NewTicker(displayRefresh)
	defer ticker.Stop()

	log.Println("display: starting update loop")

	var shown uint64
	for {
		select {
		case <-ctx.Done():
			log.Println("display: shutting down")
			return nil
		case <-ticker.C:
			v, version := data.view()
			if version == shown {
				continue
			}
			shown = version
			if err := dev.Draw(dev.Bounds(), renderFeedback(v), image.Point{}); err != nil {
				log.Printf("display: error updating display: %v", err)
			}
		}
	}
}

func newFrame() (*image1bit.VerticalLSB, *font.Drawer) {
	img := image1bit.NewVerticalLSB(image.Rect(0, 0, displayW, displayH))
	drawer := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{image1bit.On},
		Face: basicfont.Face7x13,
	}
	return img, drawer
}

func renderSplash() *image1bit.VerticalLSB {
	img, drawer := newFrame()

	drawer.Dot = fixed.P(15, 26)
	drawer.DrawString("Force Feedback")

	drawer.Dot = fixed.P(25, 43)
	drawer.DrawString("Waiting for")

	drawer.Dot = fixed.P(50, 56)
	drawer.DrawString("run")

	return img
}

// renderFeedback draws the trial counter on top, the feedback symbol
// enlarged in the middle and the written cue at the bottom.
func renderFeedback(v displayView) *image1bit.VerticalLSB {
	img, drawer := newFrame()

	top := "Waiting..."
	if s := v.status; s != nil {
		switch {
		case s.Finished:
			top = "Done"
		case s.Trials > 0:
			top = fmt.Sprintf("Trial %d/%d", min(s.Trial, s.Trials), s.Trials)
		default:
			top = fmt.Sprintf("Trial %d", s.Trial)
		}
	}
	drawer.Dot = fixed.P(0, 11)
	drawer.DrawString(top)

	if v.feedback == nil || v.feedback.Symbol == "" {
		return img
	}

	drawSymbol(img, v.feedback.Symbol)

	cue := cueText(v.feedback.Level)
	w := drawer.MeasureString(cue).Ceil()
	drawer.Dot = fixed.P((displayW-w)/2, 62)
	drawer.DrawString(cue)
	return img
}

// drawSymbol renders s at symbolScale, centred between the text rows.
func drawSymbol(dst *image1bit.VerticalLSB, s string) {
	face := basicfont.Face7x13
	w := font.MeasureString(face, s).Ceil()
	h := face.Height

	small := image1bit.NewVerticalLSB(image.Rect(0, 0, w, h))
	d := &font.Drawer{
		Dst:  small,
		Src:  &image.Uniform{image1bit.On},
		Face: face,
		Dot:  fixed.P(0, face.Ascent),
	}
	d.DrawString(s)

	sw, sh := w*symbolScale, h*symbolScale
	x0 := (displayW - sw) / 2
	y0 := 13
	draw.NearestNeighbor.Scale(dst, image.Rect(x0, y0, x0+sw, y0+sh), small, small.Bounds(), draw.Src, nil)
}

func cueText(level string) string {
	switch level {
	case "below":
		return "GRIP MORE"
	case "within":
		return "HOLD"
	case "above":
		return "GRIP LESS"
	default:
		return ""
	}
}
