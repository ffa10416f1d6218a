package worker

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/multierr"
	"gocv.io/x/gocv"

	"github.com/ayusman/yolodesk/internal/capture"
	"github.com/ayusman/yolodesk/internal/detector"
	"github.com/ayusman/yolodesk/internal/persist"
	"github.com/ayusman/yolodesk/internal/postprocess"
	"github.com/ayusman/yolodesk/internal/render"
)

// ErrAlreadyRun is returned when Run is called twice on the same Worker.
var ErrAlreadyRun = errors.New("worker already ran")

// Run executes the whole run on the calling goroutine and returns when it
// terminates. Stop and context cancellation end it with status "Stop" and a
// nil error; an exhausted source ends it with "Finished". Any other failure
// is published once as an "Error: ..." status and returned.
func (w *Worker) Run(ctx context.Context) (err error) {
	if w.ran {
		return ErrAlreadyRun
	}
	w.ran = true

	w.setState(Initializing)
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
		if err != nil {
			if rerr := w.release(); rerr != nil {
				w.logger.Warnw("failed to release resources", "error", rerr)
			}
			w.logger.Errorw("run failed", "error", err)
			w.router.PublishStatus(ErrorStatus(err))
		}
		w.setState(Terminated)
	}()

	if err := w.init(); err != nil {
		return err
	}

	// cancellation behaves like Stop
	cancelWatch := context.AfterFunc(ctx, w.Stop)
	defer cancelWatch()

	w.setState(Running)
	w.router.PublishStatus(StatusDetecting)
	w.fpsMark = w.now()

	for {
		// Checkpoint 1: stop
		if w.stopRequested() || ctx.Err() != nil {
			w.stop()
			return nil
		}

		// Checkpoint 2: model reload
		if cmd, ok := w.takeReload(); ok {
			if err := w.reloadModel(cmd); err != nil {
				return err
			}
		}

		// Checkpoint 3: pause
		if w.IsPaused() {
			w.idle()
			continue
		}
		if w.State() == Paused {
			w.setState(Running)
			w.router.PublishStatus(StatusDetecting)
		}

		// Checkpoint 4: frame
		done, err := w.step()
		if err != nil {
			return err
		}
		if done {
			w.finish()
			return nil
		}
	}
}

// init opens the source, prepares the run directory and loads the model.
func (w *Worker) init() error {
	if w.cfg.Augment {
		w.logger.Debugw("augmented inference is not supported by ONNX models, ignoring")
	}
	if w.cfg.NoTrace {
		w.logger.Debugw("no-trace has no effect on ONNX models, ignoring")
	}

	src, err := w.open(w.cfg.Source)
	if err != nil {
		return fmt.Errorf("failed to open source %s: %w", w.cfg.Source, err)
	}
	w.src = src

	if w.cfg.Save {
		dir, err := persist.IncrementPath(w.cfg.Project, w.cfg.Name, w.cfg.ExistOK)
		if err != nil {
			return err
		}
		w.saver = persist.NewSaver(dir, w.writer, w.logger)

		w.mu.Lock()
		w.runDir = dir
		w.mu.Unlock()
	}

	if err := w.loadModel(w.cfg.Weights); err != nil {
		return err
	}

	w.pre = detector.NewPreprocessor()

	w.logger.Infow("run initialized",
		"source", w.cfg.Source,
		"weights", w.cfg.Weights,
		"imgsz", w.imgSize,
		"device", w.cfg.Device,
		"classes", len(w.names),
	)
	return nil
}

// loadModel loads weights, derives the stride-adjusted input size and
// class colors, and warms the device once. The previous model is closed only
// after the new one is ready.
func (w *Worker) loadModel(weights string) error {
	model, err := w.load(weights, w.cfg.Device)
	if err != nil {
		return fmt.Errorf("failed to load model %s: %w", weights, err)
	}

	size := detector.CheckImgSize(w.cfg.ImgSize, model.Stride())
	if size != w.cfg.ImgSize {
		w.logger.Warnw("image size is not a multiple of the model stride, adjusted",
			"imgsz", w.cfg.ImgSize, "stride", model.Stride(), "adjusted", size)
	}

	if !w.cfg.IsCPU() {
		blob := detector.ZeroBlob(size)
		err := detector.Warmup(model, blob, 1)
		blob.Close()
		if err != nil {
			model.Close()
			return fmt.Errorf("failed to warm up model: %w", err)
		}
	}

	old := w.model
	w.model = model
	w.names = model.Names()
	w.palette = render.RandomPalette(len(w.names), uint64(w.now().UnixNano()))
	w.imgSize = size
	// the load warm-up primes the square input
	w.prev = [3]int{1, size, size}

	w.mu.Lock()
	w.weights = weights
	w.mu.Unlock()

	if old != nil {
		if err := old.Close(); err != nil {
			w.logger.Warnw("failed to close previous model", "error", err)
		}
	}
	return nil
}

// reloadModel swaps the model when the command names new weights or is
// forced. The source is left where it is.
func (w *Worker) reloadModel(cmd reloadCmd) error {
	current := w.Weights()
	weights := cmd.weights
	if weights == "" {
		weights = current
	}
	if weights == current && !cmd.force {
		return nil
	}

	prev := w.State()
	w.setState(Reloading)
	w.logger.Infow("reloading model", "from", current, "to", weights, "forced", cmd.force)

	if err := w.loadModel(weights); err != nil {
		return err
	}

	w.setState(prev)
	return nil
}

// idle blocks until a control call arrives.
func (w *Worker) idle() {
	if w.State() != Paused {
		w.setState(Paused)
		w.router.PublishStatus(StatusPause)
		w.logger.Infow("run paused", "frames", w.Frames())
	}
	<-w.wake
}

// step processes one frame. It reports done once the source is exhausted
// or progress reaches ProgressMax.
func (w *Worker) step() (bool, error) {
	// Step 1: pull the next frame
	rec, err := w.src.Next()
	if errors.Is(err, io.EOF) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read frame: %w", err)
	}
	defer rec.Close()

	n := w.frames.Add(1)

	// Step 2: raw frame
	w.router.PublishInput(rec.Path, &rec.Frame)

	// Step 3: throughput
	if n%fpsWindow == 0 {
		now := w.now()
		fps := 0
		if secs := now.Sub(w.fpsMark).Seconds(); secs > 0 {
			fps = int(fpsWindow / secs)
		}
		w.router.PublishFPS(FPSMessage(fps))
		w.fpsMark = now
	}

	// Step 4: progress
	progress := progressOf(w.src)
	w.router.PublishProgress(progress)

	// Step 5: letterbox and blob, re-priming the device on a new input shape
	blob, lb := w.pre.Prepare(rec.Frame, w.imgSize, w.model.Stride(), w.cfg.Rect)
	defer blob.Close()

	if err := w.reprime(blob); err != nil {
		return false, err
	}

	// Step 6: inference and suppression
	cands, err := w.model.Infer(blob)
	if err != nil {
		return false, fmt.Errorf("inference failed: %w", err)
	}
	kept := postprocess.NonMaxSuppression(cands, postprocess.Options{
		Conf:     float32(w.cfg.Conf),
		IoU:      float32(w.cfg.IoU),
		Classes:  w.cfg.Classes,
		Agnostic: w.cfg.AgnosticNMS,
		MaxDet:   w.cfg.MaxDet,
	})

	// Step 7: back to display space, count and draw
	postprocess.ScaleCandidates(kept, lb.Width(), lb.Height(), rec.Frame.Cols(), rec.Frame.Rows())
	counts := postprocess.Count(w.names, kept)
	render.Detections(&rec.Frame, kept, w.names, w.palette, w.cfg.LineThickness)

	// Step 8: annotated frame and counts
	w.router.PublishOutput(rec.Path, &rec.Frame)
	w.router.PublishResult(rec.Path, counts)

	// Step 9: persist
	if w.saver != nil {
		if err := w.save(rec); err != nil {
			return false, err
		}
	}

	// Step 10: completion
	return progress >= ProgressMax, nil
}

// reprime runs warm-up passes when the blob shape differs from the last one.
// CPU inference needs no priming.
func (w *Worker) reprime(blob gocv.Mat) error {
	if w.cfg.IsCPU() {
		return nil
	}

	b, h, wd := detector.BlobShape(blob)
	shape := [3]int{b, h, wd}
	if shape == w.prev {
		return nil
	}
	w.prev = shape

	if err := detector.Warmup(w.model, blob, reprimeRuns); err != nil {
		return fmt.Errorf("failed to warm up model: %w", err)
	}
	return nil
}

func (w *Worker) save(rec *capture.FrameRecord) error {
	if rec.Capture == nil {
		return w.saver.SaveImage(w.saver.ImagePath(rec.Path), rec.Frame)
	}

	h := rec.Capture
	return w.saver.AppendVideo(w.saver.VideoPath(rec.Path), rec.Frame, h.FPS(), h.Width(), h.Height())
}

func progressOf(src capture.Source) int {
	p := int(src.Progress() * ProgressMax)
	if p < 0 {
		return 0
	}
	if p > ProgressMax {
		return ProgressMax
	}
	return p
}

// stop releases the source and writer and reports "Stop".
func (w *Worker) stop() {
	w.setState(Stopping)
	if err := w.release(); err != nil {
		w.logger.Warnw("failed to release resources on stop", "error", err)
	}
	w.router.PublishProgress(0)
	w.router.PublishStatus(StatusStop)
	w.logger.Infow("run stopped", "frames", w.Frames())
}

// finish releases the writer and source and reports "Finished".
func (w *Worker) finish() {
	w.setState(Finishing)
	if err := w.release(); err != nil {
		w.logger.Warnw("failed to release resources on finish", "error", err)
	}
	w.router.PublishProgress(0)
	w.router.PublishStatus(StatusFinished)
	w.logger.Infow("run finished", "frames", w.Frames(), "dir", w.RunDir())
}

// release closes everything the loop owns. It is safe to call repeatedly.
func (w *Worker) release() error {
	var err error
	if w.saver != nil {
		err = multierr.Append(err, w.saver.Close())
		w.saver = nil
	}
	if w.src != nil {
		err = multierr.Append(err, w.src.Close())
		w.src = nil
	}
	if w.model != nil {
		err = multierr.Append(err, w.model.Close())
		w.model = nil
	}
	if w.pre != nil {
		err = multierr.Append(err, w.pre.Close())
		w.pre = nil
	}
	return err
}
