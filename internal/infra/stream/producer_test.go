package stream

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/IBM/sarama/mocks"

	"github.com/parkpilot/server/internal/events"
	"github.com/parkpilot/server/internal/platform/logger"
)

func TestAppendPublishesKeyedMessage(t *testing.T) {
	// Setup
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var m Message
		if err := json.Unmarshal(val, &m); err != nil {
			return err
		}
		if m.LotID != "main" || m.Event.Type != events.EventTypeArrived || m.Event.TargetID != "A4" {
			return errors.New("unexpected message " + string(val))
		}
		return nil
	})
	pub := NewActivityPublisherWithProducer(producer, "parking-activity", "main", logger.Discard())

	// Act
	err := pub.Append(events.NewEvent(events.EventTypeArrived, "car-1", "A4",
		events.ArrivalPayload{SearchSeconds: 18}))

	// Assert
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := pub.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestAppendReportsBrokerFailure(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageAndFail(errors.New("leader not available"))
	pub := NewActivityPublisherWithProducer(producer, "parking-activity", "main", logger.Discard())

	err := pub.Append(events.NewEvent(events.EventTypeSpotReleased, "operator", "B2", nil))
	if err == nil {
		t.Fatal("expected publish error")
	}
	_ = pub.Close()
}

func expectTarget(target string) func([]byte) error {
	return func(val []byte) error {
		var m Message
		if err := json.Unmarshal(val, &m); err != nil {
			return err
		}
		if m.Event.TargetID != target {
			return errors.New("out of order: got " + m.Event.TargetID + ", want " + target)
		}
		return nil
	}
}

func TestEventLogPublishesInLogOrder(t *testing.T) {
	// Setup: expectations are consumed in send order
	producer := mocks.NewSyncProducer(t, nil)
	targets := []string{"A1", "A2", "A3", "A4", "A5"}
	for _, id := range targets {
		producer.ExpectSendMessageWithCheckerFunctionAndSucceed(expectTarget(id))
	}
	el := events.NewEventLog(NewActivityPublisherWithProducer(producer, "t", "main", logger.Discard()))

	// Act
	for _, id := range targets {
		el.Append(events.NewEvent(events.EventTypeTargetAssigned, "car-1", id, nil))
	}
	el.Close()

	// Assert
	if err := producer.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}
