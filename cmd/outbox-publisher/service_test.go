package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-stock/pkg/config"
	"github.com/angelmondragon/packfinderz-stock/pkg/db/models"
	"github.com/angelmondragon/packfinderz-stock/pkg/enums"
	"github.com/angelmondragon/packfinderz-stock/pkg/logger"
	"github.com/angelmondragon/packfinderz-stock/pkg/metrics"
	"github.com/angelmondragon/packfinderz-stock/pkg/outbox"
	"github.com/angelmondragon/packfinderz-stock/pkg/outbox/payloads"
	"github.com/angelmondragon/packfinderz-stock/pkg/outbox/registry"
)

func TestProcessBatchContinuesAfterTransientFailure(t *testing.T) {
	repo := &fakeRepo{events: []models.OutboxEvent{
		alertRow(t, "alert-1", 0),
		alertRow(t, "alert-2", 0),
	}}
	pub := &fakePublisher{results: []publishResult{
		fakePublishResult{err: errors.New("transient")},
		fakePublishResult{},
	}}
	service := newTestService(t, repo, pub, &fakeRegistry{resolved: alertResolved()}, 5)

	processed, err := service.processBatch(context.Background())
	if err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if !processed {
		t.Fatalf("expected batch to report processed")
	}
	if len(repo.failed) != 1 || repo.failed[0] != repo.events[0].ID {
		t.Fatalf("expected first row marked failed, got %v", repo.failed)
	}
	if len(repo.published) != 1 || repo.published[0] != repo.events[1].ID {
		t.Fatalf("expected second row published, got %v", repo.published)
	}
	if len(repo.terminal) != 0 {
		t.Fatalf("expected no parked rows, got %v", repo.terminal)
	}
	if got := pub.messages[1].Attributes["aggregate_id"]; got != "alert-2" {
		t.Fatalf("unexpected aggregate_id attribute %q", got)
	}
}

func TestProcessBatchRecordsOutcomeMetrics(t *testing.T) {
	repo := &fakeRepo{events: []models.OutboxEvent{
		alertRow(t, "alert-1", 0),
		alertRow(t, "alert-2", 0),
		alertRow(t, "alert-3", 4),
	}}
	pub := &fakePublisher{results: []publishResult{
		fakePublishResult{},
		fakePublishResult{err: errors.New("transient")},
		fakePublishResult{err: errors.New("transient")},
	}}
	service := newTestService(t, repo, pub, &fakeRegistry{resolved: alertResolved()}, 5)
	reg := prometheus.NewRegistry()
	service.metrics = metrics.NewOutboxMetrics(reg, nil)

	if _, err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}

	want := map[string]float64{
		"stock_outbox_published_total": 1,
		"stock_outbox_failed_total":    1,
		"stock_outbox_parked_total":    1,
	}
	for name, expected := range want {
		if got := counterValue(t, reg, name); got != expected {
			t.Fatalf("%s = %v, want %v", name, got, expected)
		}
	}
}

func TestProcessBatchParksUnresolvableRows(t *testing.T) {
	repo := &fakeRepo{events: []models.OutboxEvent{alertRow(t, "alert-1", 0)}}
	pub := &fakePublisher{}
	eventRegistry := &fakeRegistry{err: registry.NewNonRetryableError(errors.New("bad payload"))}
	service := newTestService(t, repo, pub, eventRegistry, 5)

	if _, err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if len(repo.terminal) != 1 || repo.terminal[0] != repo.events[0].ID {
		t.Fatalf("expected row parked, got %v", repo.terminal)
	}
	if len(pub.messages) != 0 {
		t.Fatalf("expected nothing published, got %d", len(pub.messages))
	}
}

func TestProcessBatchParksAfterMaxAttempts(t *testing.T) {
	repo := &fakeRepo{events: []models.OutboxEvent{alertRow(t, "alert-1", 2)}}
	pub := &fakePublisher{results: []publishResult{
		fakePublishResult{err: errors.New("unavailable")},
	}}
	service := newTestService(t, repo, pub, &fakeRegistry{resolved: alertResolved()}, 3)

	if _, err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if len(repo.failed) != 0 {
		t.Fatalf("expected no retry bookkeeping, got %v", repo.failed)
	}
	if len(repo.terminal) != 1 {
		t.Fatalf("expected row parked after final attempt, got %v", repo.terminal)
	}
	if repo.terminalAttempts != 3 {
		t.Fatalf("expected terminal attempts 3, got %d", repo.terminalAttempts)
	}
}

func TestProcessBatchReportsIdleAndBookkeepingErrors(t *testing.T) {
	service := newTestService(t, &fakeRepo{}, &fakePublisher{}, &fakeRegistry{resolved: alertResolved()}, 5)
	processed, err := service.processBatch(context.Background())
	if err != nil || processed {
		t.Fatalf("expected idle batch, got processed=%v err=%v", processed, err)
	}

	repo := &fakeRepo{
		events:     []models.OutboxEvent{alertRow(t, "alert-1", 0)},
		publishErr: errors.New("db gone"),
	}
	service = newTestService(t, repo, &fakePublisher{}, &fakeRegistry{resolved: alertResolved()}, 5)
	if _, err := service.processBatch(context.Background()); err == nil {
		t.Fatalf("expected bookkeeping error to abort the batch")
	}
}

func TestNewServiceAppliesDefaults(t *testing.T) {
	service, err := NewService(ServiceParams{
		Config:     &config.Config{},
		Logger:     testLogger(),
		DB:         fakeDB{},
		PubSub:     fakePubSubClient{},
		Repository: &fakeRepo{},
		Registry:   &fakeRegistry{},
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if service.batchSize != defaultBatchSize || service.maxAttempts != defaultMaxAttempts {
		t.Fatalf("unexpected defaults batch=%d attempts=%d", service.batchSize, service.maxAttempts)
	}
	if service.pollInterval != defaultPollMs*time.Millisecond {
		t.Fatalf("unexpected poll interval %s", service.pollInterval)
	}

	if _, err := NewService(ServiceParams{Config: &config.Config{}, Logger: testLogger()}); err == nil {
		t.Fatalf("expected missing dependencies to fail")
	}
}

func TestNextBackoffCapsAtMax(t *testing.T) {
	base := 100 * time.Millisecond
	if got := nextBackoff(0, base, time.Second); got != 200*time.Millisecond {
		t.Fatalf("unexpected first backoff %s", got)
	}
	if got := nextBackoff(800*time.Millisecond, base, time.Second); got != time.Second {
		t.Fatalf("expected cap, got %s", got)
	}
	if got := withJitter(base); got < base || got >= base+jitterWindow {
		t.Fatalf("jitter out of window: %s", got)
	}
}

func newTestService(t *testing.T, repo *fakeRepo, pub *fakePublisher, resolver registryResolver, maxAttempts int) *Service {
	t.Helper()
	cfg := &config.Config{}
	cfg.Outbox.BatchSize = 10
	cfg.Outbox.PollIntervalMS = 10
	cfg.Outbox.MaxAttempts = maxAttempts

	service, err := NewService(ServiceParams{
		Config:     cfg,
		Logger:     testLogger(),
		DB:         fakeDB{},
		PubSub:     fakePubSubClient{},
		Repository: repo,
		Registry:   resolver,
		PublisherFactory: func(string) publisher {
			return pub
		},
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return service
}

func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	t.Fatalf("metric %s not registered", name)
	return 0
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "outbox-publisher-test", Output: io.Discard})
}

func alertRow(t *testing.T, aggregateID string, attempts int) models.OutboxEvent {
	t.Helper()
	data, err := json.Marshal(payloads.StockAlertEvent{ProductID: "P1", AlertType: enums.AlertTypeLowStock})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	payload, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Data:       data,
	})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventStockAlertRaised,
		AggregateType: enums.AggregateStockAlert,
		AggregateID:   aggregateID,
		Payload:       payload,
		AttemptCount:  attempts,
	}
}

func alertResolved() *registry.ResolvedEvent {
	return &registry.ResolvedEvent{
		Descriptor: registry.EventDescriptor{
			EventType:     enums.EventStockAlertRaised,
			AggregateType: enums.AggregateStockAlert,
			Topic:         "pf-stock-alerts",
		},
		Envelope: outbox.PayloadEnvelope{Version: 1, EventID: uuid.NewString()},
		Payload:  &payloads.StockAlertEvent{},
	}
}

type fakeRepo struct {
	events           []models.OutboxEvent
	published        []uuid.UUID
	failed           []uuid.UUID
	terminal         []uuid.UUID
	terminalAttempts int
	publishErr       error
}

func (r *fakeRepo) FetchUnpublishedForPublish(_ *gorm.DB, limit, _ int) ([]models.OutboxEvent, error) {
	if limit < len(r.events) {
		return r.events[:limit], nil
	}
	return r.events, nil
}

func (r *fakeRepo) MarkPublishedTx(_ *gorm.DB, id uuid.UUID) error {
	if r.publishErr != nil {
		return r.publishErr
	}
	r.published = append(r.published, id)
	return nil
}

func (r *fakeRepo) MarkFailedTx(_ *gorm.DB, id uuid.UUID, _ error) error {
	r.failed = append(r.failed, id)
	return nil
}

func (r *fakeRepo) MarkTerminalTx(_ *gorm.DB, id uuid.UUID, _ error, terminalAttempts int) error {
	r.terminal = append(r.terminal, id)
	r.terminalAttempts = terminalAttempts
	return nil
}

type fakeDB struct{}

func (fakeDB) Ping(context.Context) error { return nil }

func (fakeDB) WithTx(_ context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type fakePubSubClient struct{}

func (fakePubSubClient) Ping(context.Context) error { return nil }

func (fakePubSubClient) Publisher(string) *gcppubsub.Publisher { return nil }

type fakePublisher struct {
	results  []publishResult
	messages []*gcppubsub.Message
}

func (p *fakePublisher) Publish(_ context.Context, msg *gcppubsub.Message) publishResult {
	p.messages = append(p.messages, msg)
	if len(p.results) == 0 {
		return fakePublishResult{}
	}
	result := p.results[0]
	p.results = p.results[1:]
	return result
}

type fakePublishResult struct {
	err error
}

func (r fakePublishResult) Get(context.Context) (string, error) {
	if r.err != nil {
		return "", r.err
	}
	return "server-id", nil
}

type fakeRegistry struct {
	resolved *registry.ResolvedEvent
	err      error
}

func (r *fakeRegistry) Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.resolved, nil
}
