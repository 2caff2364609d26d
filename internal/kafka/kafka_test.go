package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/biohunter/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPublisherKeysByPlayer(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		key, err := msg.Key.Encode()
		if err != nil {
			return err
		}
		if string(key) != "p1" {
			return errors.New("expected message keyed by player id")
		}
		value, err := msg.Value.Encode()
		if err != nil {
			return err
		}
		var evt domain.SessionRecorded
		if err := json.Unmarshal(value, &evt); err != nil {
			return err
		}
		if evt.Session.ID != "s1" {
			return errors.New("unexpected session id in payload")
		}
		return nil
	})

	pub := NewPublisherWithProducer(producer, "sessions-recorded", testLogger())
	defer pub.Close()

	evt := domain.SessionRecorded{Session: domain.Session{ID: "s1", PlayerID: "p1", Score: 10}}
	if err := pub.Publish(context.Background(), evt); err != nil {
		t.Fatalf("publish: %v", err)
	}
}

func TestPublisherReturnsBrokerError(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	pub := NewPublisherWithProducer(producer, "sessions-recorded", testLogger())
	defer pub.Close()

	err := pub.Publish(context.Background(), domain.SessionRecorded{Session: domain.Session{ID: "s1", PlayerID: "p1"}})
	if !errors.Is(err, sarama.ErrOutOfBrokers) {
		t.Fatalf("expected ErrOutOfBrokers, got %v", err)
	}
}

type recordingDispatcher struct {
	mu     sync.Mutex
	events []domain.SessionRecorded
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, evt domain.SessionRecorded) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, evt)
	return nil
}

type fakeSession struct {
	ctx    context.Context
	marked []int64
}

func (s *fakeSession) Claims() map[string][]int32 { return nil }
func (s *fakeSession) MemberID() string { return "member" }
func (s *fakeSession) GenerationID() int32 { return 1 }
func (s *fakeSession) MarkOffset(topic string, partition int32, offset int64, metadata string) {}
func (s *fakeSession) Commit() {}
func (s *fakeSession) ResetOffset(topic string, partition int32, offset int64, metadata string) {}
func (s *fakeSession) MarkMessage(msg *sarama.ConsumerMessage, metadata string) {
	s.marked = append(s.marked, msg.Offset)
}
func (s *fakeSession) Context() context.Context { return s.ctx }

type fakeClaim struct {
	messages chan *sarama.ConsumerMessage
}

func (c *fakeClaim) Topic() string { return "sessions-recorded" }
func (c *fakeClaim) Partition() int32 { return 0 }
func (c *fakeClaim) InitialOffset() int64 { return 0 }
func (c *fakeClaim) HighWaterMarkOffset() int64 { return 0 }
func (c *fakeClaim) Messages() <-chan *sarama.ConsumerMessage { return c.messages }

func TestConsumeClaimDispatchesAndMarksEveryMessage(t *testing.T) {
	dispatcher := &recordingDispatcher{}
	handler := &consumerGroupHandler{
		consumer: &Consumer{dispatcher: dispatcher, logger: testLogger()},
		ready:    make(chan bool),
	}

	good, _ := json.Marshal(domain.SessionRecorded{Session: domain.Session{ID: "s1", PlayerID: "p1", Score: 5}})
	invalid, _ := json.Marshal(domain.SessionRecorded{Session: domain.Session{ID: "s2"}})

	claim := &fakeClaim{messages: make(chan *sarama.ConsumerMessage, 3)}
	claim.messages <- &sarama.ConsumerMessage{Offset: 1, Value: good}
	claim.messages <- &sarama.ConsumerMessage{Offset: 2, Value: []byte("not json")}
	claim.messages <- &sarama.ConsumerMessage{Offset: 3, Value: invalid}
	close(claim.messages)

	session := &fakeSession{ctx: context.Background()}
	if err := handler.ConsumeClaim(session, claim); err != nil {
		t.Fatalf("consume claim: %v", err)
	}

	if len(dispatcher.events) != 1 || dispatcher.events[0].Session.ID != "s1" {
		t.Fatalf("expected only s1 dispatched, got %+v", dispatcher.events)
	}
	if len(session.marked) != 3 {
		t.Fatalf("expected all 3 messages marked, got %v", session.marked)
	}
}
