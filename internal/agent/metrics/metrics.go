// Package metrics implements C6: the metrics scraper. It holds an index
// of assigned_name -> metrics endpoint, and once per scrape interval
// fetches each endpoint in parallel, parsing the Prometheus exposition
// format response into a wire.MetricsBatch per node.
package metrics

import (
	"bufio"
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"go.uber.org/zap"

	"github.com/volaticloud/fleetwatch/internal/agent/avs"
	"github.com/volaticloud/fleetwatch/internal/logger"
	"github.com/volaticloud/fleetwatch/internal/signer"
	"github.com/volaticloud/fleetwatch/internal/wire"
)

// defaultInterval is how often the scraper sweeps every known endpoint
// (spec.md §4.5).
const defaultInterval = 30 * time.Second

// endpointTimeout bounds a single endpoint fetch so one unresponsive
// target never delays the rest of the sweep.
const endpointTimeout = 5 * time.Second

// mailboxCap bounds Add/Remove backpressure on the event router
// (spec.md §4.5).
const mailboxCap = 64

// Sink is the dispatch actor's (C7) inbound mailbox.
type Sink interface {
	Send(ctx context.Context, p wire.SignedPayload) error
}

type command struct {
	add    *avs.ConfiguredAvs
	remove string
}

// Scraper is C6.
type Scraper struct {
	sink      Sink
	sign      *signer.Signer
	machineID wire.MachineID
	interval  time.Duration
	client    *http.Client

	mailbox chan command
	targets map[string]avs.ConfiguredAvs
}

// NewScraper builds a Scraper. Run must be called to start its sweep loop.
func NewScraper(sink Sink, sign *signer.Signer, machineID wire.MachineID) *Scraper {
	return &Scraper{
		sink:      sink,
		sign:      sign,
		machineID: machineID,
		interval:  defaultInterval,
		client:    &http.Client{Timeout: endpointTimeout},
		mailbox:   make(chan command, mailboxCap),
		targets:   make(map[string]avs.ConfiguredAvs),
	}
}

// Add registers target for scraping. Safe to call concurrently; backed
// by the scraper's own bounded mailbox.
func (s *Scraper) Add(ctx context.Context, target avs.ConfiguredAvs) {
	select {
	case s.mailbox <- command{add: &target}:
	case <-ctx.Done():
	}
}

// Remove stops scraping the endpoint for assignedName.
func (s *Scraper) Remove(ctx context.Context, assignedName string) {
	select {
	case s.mailbox <- command{remove: assignedName}:
	case <-ctx.Done():
	}
}

// Run drives the scrape-interval ticker and mailbox until ctx is done.
func (s *Scraper) Run(ctx context.Context) {
	log := logger.GetLogger(ctx)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-s.mailbox:
			s.apply(cmd)
		case <-ticker.C:
			s.sweep(ctx, log)
		}
	}
}

func (s *Scraper) apply(cmd command) {
	if cmd.add != nil {
		s.targets[cmd.add.AssignedName] = *cmd.add
	}
	if cmd.remove != "" {
		delete(s.targets, cmd.remove)
	}
}

func (s *Scraper) sweep(ctx context.Context, log *zap.Logger) {
	var wg sync.WaitGroup
	for _, target := range s.targets {
		if !target.HasMetrics() {
			continue
		}
		wg.Add(1)
		go func(t avs.ConfiguredAvs) {
			defer wg.Done()
			s.scrapeOne(ctx, log, t)
		}(target)
	}
	wg.Wait()
}

func (s *Scraper) scrapeOne(ctx context.Context, log *zap.Logger, target avs.ConfiguredAvs) {
	fetchCtx, cancel := context.WithTimeout(ctx, endpointTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, target.MetricsURL, nil)
	if err != nil {
		log.Warn("metrics: building scrape request failed", zap.String("assigned_name", target.AssignedName), zap.Error(err))
		return
	}

	resp, err := s.client.Do(req)
	if err != nil {
		log.Warn("metrics: scrape failed, will retry next tick", zap.String("assigned_name", target.AssignedName), zap.Error(err))
		return
	}
	defer resp.Body.Close()

	batch, err := parseExposition(target.AssignedName, resp.Body)
	if err != nil {
		log.Warn("metrics: parsing exposition format failed", zap.String("assigned_name", target.AssignedName), zap.Error(err))
		return
	}

	sig, err := s.sign.Sign(batch)
	if err != nil {
		log.Warn("metrics: signing batch failed", zap.String("assigned_name", target.AssignedName), zap.Error(err))
		return
	}
	signed := wire.SignedPayload{MachineID: s.machineID, Signature: sig, Inner: batch}
	if err := s.sink.Send(ctx, signed); err != nil {
		log.Warn("metrics: dispatch send failed", zap.String("assigned_name", target.AssignedName), zap.Error(err))
	}
}

// parseExposition parses a Prometheus text-exposition-format response body
// into a MetricsBatch, flattening each sample's labels into Attributes.
func parseExposition(assignedName string, body io.Reader) (wire.MetricsBatch, error) {
	var parser expfmt.TextParser
	families, err := parser.TextToMetricFamilies(bufio.NewReader(body))
	if err != nil {
		return wire.MetricsBatch{}, err
	}

	batch := wire.MetricsBatch{AssignedName: assignedName}
	for name, mf := range families {
		for _, m := range mf.GetMetric() {
			value, ok := metricValue(mf.GetType(), m)
			if !ok {
				continue
			}
			attrs := make(map[string]string, len(m.GetLabel()))
			for _, l := range m.GetLabel() {
				attrs[l.GetName()] = l.GetValue()
			}
			batch.Metrics = append(batch.Metrics, wire.MetricValue{
				Name:       name,
				Value:      value,
				Attributes: attrs,
			})
		}
	}
	return batch, nil
}

// metricValue extracts the single scalar value FleetWatch cares about from
// a sample, skipping the multi-bucket shapes (histogram, summary) that
// don't reduce to one number.
func metricValue(kind dto.MetricType, m *dto.Metric) (float64, bool) {
	switch kind {
	case dto.MetricType_COUNTER:
		return m.GetCounter().GetValue(), true
	case dto.MetricType_GAUGE:
		return m.GetGauge().GetValue(), true
	case dto.MetricType_UNTYPED:
		return m.GetUntyped().GetValue(), true
	default:
		return 0, false
	}
}
