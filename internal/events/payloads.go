package events

import "fmt"

// InstructionPayload is attached to GUIDANCE_INSTRUCTION.
type InstructionPayload struct {
	Command   string  `json:"command"`
	Text      string  `json:"text"`
	Distance  float64 `json:"distance"`
	AngleDiff float64 `json:"angle_diff"`
}

// ArrivalPayload is attached to ARRIVED.
type ArrivalPayload struct {
	SearchSeconds float64 `json:"search_seconds"`
	Distance      float64 `json:"distance"`
}

// ReservationPayload is attached to SPOT_RESERVED and SPOT_RELEASED.
type ReservationPayload struct {
	Category string  `json:"category"`
	Hours    float64 `json:"hours,omitempty"`
	Charge   float64 `json:"charge,omitempty"`
}

// ClassificationPayload is attached to the CLASSIFICATION_* events.
type ClassificationPayload struct {
	ImageID  string   `json:"image_id"`
	Occupied int      `json:"occupied"`
	Skipped  int      `json:"skipped"`
	Changed  []string `json:"changed,omitempty"`
	Latest   string   `json:"latest,omitempty"` // set on stale results
	Error    string   `json:"error,omitempty"`
}

// NoSpotPayload is attached to NO_SPOT_AVAILABLE.
type NoSpotPayload struct {
	Category string `json:"category,omitempty"`
}

// Summary renders e as one human readable line.
func Summary(e LotEvent) string {
	ts := e.Timestamp.Format("15:04:05")
	switch p := e.Payload.(type) {
	case InstructionPayload:
		return fmt.Sprintf("%s %s %s -> %s: %q (%.1f away)", ts, e.Type, e.ActorID, e.TargetID, p.Text, p.Distance)
	case ArrivalPayload:
		return fmt.Sprintf("%s %s %s parked in %s after %.0fs", ts, e.Type, e.ActorID, e.TargetID, p.SearchSeconds)
	case ReservationPayload:
		if p.Charge > 0 {
			return fmt.Sprintf("%s %s %s (%s, $%.2f)", ts, e.Type, e.TargetID, p.Category, p.Charge)
		}
		return fmt.Sprintf("%s %s %s (%s)", ts, e.Type, e.TargetID, p.Category)
	case ClassificationPayload:
		if p.Error != "" {
			return fmt.Sprintf("%s %s image %s: %s", ts, e.Type, p.ImageID, p.Error)
		}
		return fmt.Sprintf("%s %s image %s: %d occupied, %d changed", ts, e.Type, p.ImageID, p.Occupied, len(p.Changed))
	case NoSpotPayload:
		if p.Category != "" {
			return fmt.Sprintf("%s %s %s wanted %s", ts, e.Type, e.ActorID, p.Category)
		}
		return fmt.Sprintf("%s %s %s", ts, e.Type, e.ActorID)
	}
	if e.TargetID != "" {
		return fmt.Sprintf("%s %s %s -> %s", ts, e.Type, e.ActorID, e.TargetID)
	}
	return fmt.Sprintf("%s %s %s", ts, e.Type, e.ActorID)
}
