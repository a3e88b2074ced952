// Package notify dispatches best-effort notifications (upload
// receipts, deletion notices) off the request path through a bounded
// queue. A full queue drops the notification rather than blocking a
// request.
package notify

import (
	"context"
	"time"

	"github.com/docchat/docchat/internal/config"
	"github.com/docchat/docchat/internal/metrics"
	"github.com/docchat/docchat/pkg/logx"
)

type Message struct {
	Address string
	Subject string
	Body    string
}

// Sender performs the actual delivery. The default is LogSender;
// a real mail or webhook sender satisfies the same interface.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// LogSender writes notifications to the log. Used when no delivery
// channel is configured so the rest of the pipeline stays exercised.
type LogSender struct {
	logger *logx.Logger
}

func NewLogSender() *LogSender {
	return &LogSender{logger: logx.New("notify_log")}
}

func (s *LogSender) Send(_ context.Context, msg Message) error {
	s.logger.Info("notification", "address", msg.Address, "subject", msg.Subject)
	return nil
}

// Queue decouples notification submission from delivery. One worker
// drains the channel; a failed delivery is retried once after a short
// delay and then dropped with an error log.
type Queue struct {
	sender     Sender
	ch         chan Message
	logger     *logx.Logger
	done       chan struct{}
	retryDelay time.Duration
}

func NewQueue(sender Sender) *Queue {
	return &Queue{
		sender:     sender,
		ch:         make(chan Message, config.NotifyQueueSize),
		logger:     logx.New("notify"),
		done:       make(chan struct{}),
		retryDelay: config.NotifyRetryDelay,
	}
}

// Start runs the delivery worker until ctx is cancelled.
func (q *Queue) Start(ctx context.Context) {
	go func() {
		defer close(q.done)
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-q.ch:
				metrics.DecrementNotifyQueue()
				q.deliver(ctx, msg)
			}
		}
	}()
}

// Wait blocks until the worker has stopped.
func (q *Queue) Wait() {
	<-q.done
}

// Send enqueues a notification. Non-blocking: if the queue is full the
// notification is dropped and counted against the caller in logs only.
func (q *Queue) Send(address, subject, body string) {
	msg := Message{Address: address, Subject: subject, Body: body}
	select {
	case q.ch <- msg:
		metrics.IncrementNotifyQueue()
	default:
		q.logger.Warn("notification queue full, dropping", "address", address, "subject", subject)
	}
}

func (q *Queue) deliver(ctx context.Context, msg Message) {
	err := q.sender.Send(ctx, msg)
	if err == nil {
		return
	}
	q.logger.Warn("delivery failed, retrying once", "address", msg.Address, "error", err)

	select {
	case <-ctx.Done():
		return
	case <-time.After(q.retryDelay):
	}

	if err := q.sender.Send(ctx, msg); err != nil {
		q.logger.Error("notification dropped after retry", "address", msg.Address, "subject", msg.Subject, "error", err)
	}
}
