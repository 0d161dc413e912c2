package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
)

func TestPublish(t *testing.T) {
	producer := mocks.NewSyncProducer(t, NewSaramaConfig())
	publisher := NewPublisherWithProducer(producer, "feed-refreshes")
	defer publisher.Close()

	event := RefreshEvent{
		FeedID:         "feed-1",
		FeedURL:        "https://example.com/feed.xml",
		Status:         "success",
		ItemsProcessed: 3,
		Inserted:       2,
		Updated:        1,
		DurationMs:     120,
		At:             time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var got RefreshEvent
		if err := json.Unmarshal(val, &got); err != nil {
			return err
		}
		if got.FeedID != "feed-1" || got.Status != "success" || got.ItemsProcessed != 3 {
			return fmt.Errorf("unexpected event: %+v", got)
		}
		return nil
	})

	if err := publisher.Publish(context.Background(), event); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
}

func TestPublishFailure(t *testing.T) {
	producer := mocks.NewSyncProducer(t, NewSaramaConfig())
	publisher := NewPublisherWithProducer(producer, "feed-refreshes")
	defer publisher.Close()

	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	err := publisher.Publish(context.Background(), RefreshEvent{FeedID: "feed-1"})
	if !errors.Is(err, sarama.ErrOutOfBrokers) {
		t.Errorf("Expected ErrOutOfBrokers, got %v", err)
	}
}

func TestPublishCancelledContext(t *testing.T) {
	producer := mocks.NewSyncProducer(t, NewSaramaConfig())
	publisher := NewPublisherWithProducer(producer, "feed-refreshes")
	defer publisher.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := publisher.Publish(ctx, RefreshEvent{FeedID: "feed-1"}); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}
