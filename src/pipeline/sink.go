package pipeline

import (
	"context"
	"fmt"

	"buildtime-agent/src/broker"
	"buildtime-agent/src/contracts"
	"buildtime-agent/src/store"
)

// Sink receives run results. Sink errors are logged, never fatal.
type Sink interface {
	RunStarted(ctx context.Context, report *contracts.RunReport) error
	BuildAccepted(ctx context.Context, msg *contracts.BuildSummaryMessage) error
	RunCompleted(ctx context.Context, report *contracts.RunReport) error
}

// BrokerSink publishes accepted builds and the final report.
type BrokerSink struct {
	broker broker.Broker
}

func NewBrokerSink(b broker.Broker) *BrokerSink {
	return &BrokerSink{broker: b}
}

// RunStarted publishes nothing; consumers only see completed reports.
func (s *BrokerSink) RunStarted(ctx context.Context, report *contracts.RunReport) error {
	return nil
}

func (s *BrokerSink) BuildAccepted(ctx context.Context, msg *contracts.BuildSummaryMessage) error {
	if err := broker.PublishJSON(ctx, s.broker, contracts.TopicBuilds, msg.BuildID, msg); err != nil {
		return fmt.Errorf("failed to publish build %s: %w", msg.BuildID, err)
	}
	return nil
}

func (s *BrokerSink) RunCompleted(ctx context.Context, report *contracts.RunReport) error {
	if err := broker.PublishJSON(ctx, s.broker, contracts.TopicReports, report.RunID, report); err != nil {
		return fmt.Errorf("failed to publish report %s: %w", report.RunID, err)
	}
	return nil
}

// StoreSink persists the run, its builds and the final report.
type StoreSink struct {
	store store.Store
}

func NewStoreSink(s store.Store) *StoreSink {
	return &StoreSink{store: s}
}

func (s *StoreSink) RunStarted(ctx context.Context, report *contracts.RunReport) error {
	return s.store.CreateRun(ctx, report)
}

func (s *StoreSink) BuildAccepted(ctx context.Context, msg *contracts.BuildSummaryMessage) error {
	return s.store.SaveBuild(ctx, msg)
}

func (s *StoreSink) RunCompleted(ctx context.Context, report *contracts.RunReport) error {
	return s.store.CompleteRun(ctx, report)
}
