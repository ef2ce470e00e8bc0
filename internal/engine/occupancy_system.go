package engine

import (
	"context"
	"fmt"
	"image"
	"io"
	"time"

	// Upload decoders
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/google/uuid"

	"github.com/parkpilot/server/internal/events"
	"github.com/parkpilot/server/internal/occupancy"
	"github.com/parkpilot/server/internal/platform/metrics"
)

// ClassificationReport describes what one upload did to the lot.
type ClassificationReport struct {
	ImageID  string                   `json:"image_id"`
	Format   string                   `json:"format,omitempty"`
	Applied  bool                     `json:"applied"`
	Occupied []string                 `json:"occupied"`
	Changed  []string                 `json:"changed"`
	Regions  []occupancy.RegionReport `json:"regions"`
	Latency  time.Duration            `json:"latency_ns"`
}

// ClassifyUpload decodes r and classifies it against the current spots. The
// upload becomes the latest one before decoding starts, so even an upload
// that fails to decode supersedes older in-flight classifications. On a
// decode failure the lot is left untouched.
func (e *Engine) ClassifyUpload(ctx context.Context, r io.Reader) (ClassificationReport, error) {
	imageID := e.beginClassification()
	start := time.Now()

	img, format, err := image.Decode(r)
	if err != nil {
		e.metrics.RecordClassification(metrics.ClassifyFailed, time.Since(start))
		e.emit(events.EventTypeClassificationFailed, ActorClassifier, imageID, events.ClassificationPayload{
			ImageID: imageID,
			Error:   err.Error(),
		})
		return ClassificationReport{ImageID: imageID}, fmt.Errorf("%w: %v", ErrImageDecode, err)
	}

	report, err := e.classify(ctx, imageID, img, start)
	report.Format = format
	return report, err
}

// ClassifyImage classifies an already decoded image as a new upload.
func (e *Engine) ClassifyImage(ctx context.Context, img image.Image) (ClassificationReport, error) {
	imageID := e.beginClassification()
	return e.classify(ctx, imageID, img, time.Now())
}

func (e *Engine) beginClassification() string {
	id := uuid.NewString()
	e.mu.Lock()
	e.latestImageID = id
	e.mu.Unlock()
	return id
}

func (e *Engine) isLatest(imageID string) (bool, string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.latestImageID == imageID, e.latestImageID
}

func (e *Engine) classify(ctx context.Context, imageID string, img image.Image, start time.Time) (ClassificationReport, error) {
	report := ClassificationReport{ImageID: imageID}

	select {
	case e.classifySlots <- struct{}{}:
		defer func() { <-e.classifySlots }()
	case <-ctx.Done():
		return report, ctx.Err()
	}

	// A newer upload may have arrived while waiting for a slot.
	if latest, newest := e.isLatest(imageID); !latest {
		return report, e.discardStale(report, newest, start)
	}

	e.mu.Lock()
	spots := e.lot.Spots()
	e.mu.Unlock()

	res := e.detector.Classify(img, spots)
	report.Occupied = res.OccupiedIDs()
	report.Regions = res.Regions

	if err := ctx.Err(); err != nil {
		return report, err
	}
	return e.apply(report, res, start)
}

// apply swaps in the result in one locked step if imageID is still the latest upload.
func (e *Engine) apply(report ClassificationReport, res occupancy.Result, start time.Time) (ClassificationReport, error) {
	e.mu.Lock()
	if e.latestImageID != report.ImageID {
		newest := e.latestImageID
		e.mu.Unlock()
		return report, e.discardStale(report, newest, start)
	}
	report.Changed = e.lot.ApplyOccupancy(res.Occupied)
	report.Applied = true
	e.appliedImageID = report.ImageID
	e.lotUpdatedAt = e.now()
	snap := e.lotSnapshotLocked()
	e.mu.Unlock()

	report.Latency = time.Since(start)
	e.metrics.RecordClassification(metrics.ClassifyApplied, report.Latency)

	skipped := 0
	for _, r := range res.Regions {
		if r.Skipped {
			skipped++
		}
	}
	e.emit(events.EventTypeClassificationApplied, ActorClassifier, report.ImageID, events.ClassificationPayload{
		ImageID:  report.ImageID,
		Occupied: len(report.Occupied),
		Skipped:  skipped,
		Changed:  report.Changed,
	})
	e.notifyLot(snap)
	return report, nil
}

func (e *Engine) discardStale(report ClassificationReport, newest string, start time.Time) error {
	report.Latency = time.Since(start)
	e.metrics.RecordClassification(metrics.ClassifyStale, report.Latency)
	e.emit(events.EventTypeClassificationStale, ActorClassifier, report.ImageID, events.ClassificationPayload{
		ImageID: report.ImageID,
		Latest:  newest,
	})
	return ErrSuperseded
}
