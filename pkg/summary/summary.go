package summary

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/ndltd-tw/papergraph/pkg/ai"
	"github.com/ndltd-tw/papergraph/pkg/common"
	"github.com/ndltd-tw/papergraph/pkg/graph"
	"github.com/ndltd-tw/papergraph/pkg/logger"
	"github.com/ndltd-tw/papergraph/pkg/metrics"
)

// DefaultNResults is the number of related documents compared with the
// target when a request does not set one.
const DefaultNResults = 6

// ClientFactory creates a text client for one request. apiKey may be empty,
// in which case the factory falls back to its configured key.
type ClientFactory func(ctx context.Context, provider ai.Provider, model, apiKey string) (ai.TextClient, error)

// Service writes comparison summaries of a document and its nearest
// neighbours.
type Service struct {
	builder           *graph.Builder
	newClient         ClientFactory
	truncator         Truncator
	maxAbstractTokens int
	models            map[ai.Provider]string
	generateOpts      []ai.GenerateOption
}

type ServiceOption func(*Service)

// WithTruncator limits every abstract in the prompt to maxTokens tokens.
func WithTruncator(t Truncator, maxTokens int) ServiceOption {
	return func(s *Service) {
		s.truncator = t
		s.maxAbstractTokens = maxTokens
	}
}

// WithModels overrides the default model of some providers.
func WithModels(models map[ai.Provider]string) ServiceOption {
	return func(s *Service) {
		for p, m := range models {
			if m != "" {
				s.models[p] = m
			}
		}
	}
}

// WithGenerateOptions applies opts to every completion. The model chosen
// for a request always wins over a model set here.
func WithGenerateOptions(opts ...ai.GenerateOption) ServiceOption {
	return func(s *Service) {
		s.generateOpts = append(s.generateOpts, opts...)
	}
}

func NewService(builder *graph.Builder, newClient ClientFactory, opts ...ServiceOption) *Service {
	s := &Service{
		builder:   builder,
		newClient: newClient,
		models:    make(map[ai.Provider]string),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(s)
	}
	return s
}

type Request struct {
	Provider  string
	Model     string
	APIKey    string
	TargetUID string
	NResults  int
}

// Stream is a running summary. Events is closed when the model finishes
// or fails; Client exposes token usage once Events is drained.
type Stream struct {
	Provider ai.Provider
	Model    string
	Events   <-chan ai.StreamEvent
	Client   ai.TextClient
}

// Stream validates req, collects the target and its neighbours and starts
// the completion. Errors returned here happen before any output; later
// failures arrive as an error event.
func (s *Service) Stream(ctx context.Context, req Request) (*Stream, error) {
	provider, err := ai.ParseProvider(req.Provider)
	if err != nil {
		return nil, err
	}
	if req.TargetUID == "" {
		return nil, common.NewValidationError("summary", "target_uid", "must not be empty")
	}
	n := req.NResults
	if n == 0 {
		n = DefaultNResults
	}
	if n < 1 {
		return nil, common.NewValidationError("summary", "n_results", "must be at least 1")
	}
	model := req.Model
	if model == "" {
		model = s.models[provider]
	}
	if model == "" {
		model = ai.DefaultModel(provider)
	}

	network, err := s.builder.Build(ctx, req.TargetUID, 0, n)
	if err != nil {
		return nil, err
	}
	main, related, err := splitArticles(network, req.TargetUID)
	if err != nil {
		return nil, err
	}
	prompt := s.BuildPrompt(main, related)

	client, err := s.newClient(ctx, provider, model, req.APIKey)
	if err != nil {
		metrics.ObserveSummaryStream(provider.String(), err)
		return nil, fmt.Errorf("failed to create %s client: %w", provider, err)
	}
	opts := append(slices.Clone(s.generateOpts), ai.WithModel(model))
	events, err := client.GenerateStream(ctx, prompt, opts...)
	if err != nil {
		metrics.ObserveSummaryStream(provider.String(), err)
		return nil, common.NewUpstreamError("summary", provider.String(), err)
	}

	logger.Debug("Started summary stream", "provider", provider, "model", model, "target", req.TargetUID, "related", len(related))

	return &Stream{
		Provider: provider,
		Model:    model,
		Events:   observe(ctx, provider, events),
		Client:   client,
	}, nil
}

// observe forwards events unchanged and records the outcome of the stream.
func observe(ctx context.Context, provider ai.Provider, in <-chan ai.StreamEvent) <-chan ai.StreamEvent {
	out := make(chan ai.StreamEvent, cap(in))
	go func() {
		defer close(out)
		var streamErr error
		for ev := range in {
			if ev.Type == ai.EventError {
				streamErr = ev.Err
			}
			if !ai.Send(ctx, out, ev) {
				streamErr = ctx.Err()
				break
			}
		}
		// drain so the producer can exit
		for range in {
		}
		metrics.ObserveSummaryStream(provider.String(), streamErr)
	}()
	return out
}

// splitArticles returns the target document and the other documents of a
// layer-0 network in node order.
func splitArticles(network *common.NetworkResult, target string) (common.Document, []common.Document, error) {
	main, ok := network.Documents[target]
	if !ok {
		return common.Document{}, nil, common.NewNotFoundError("summary", target)
	}
	related := make([]common.Document, 0, len(network.Nodes))
	for _, n := range network.Nodes {
		if n.UID == target {
			continue
		}
		if doc, ok := network.Documents[n.UID]; ok {
			related = append(related, doc)
		}
	}
	return main, related, nil
}

func (s *Service) formatArticle(doc common.Document) string {
	abstract := doc.Abstract
	if s.truncator != nil && s.maxAbstractTokens > 0 {
		abstract = s.truncator.Truncate(abstract, s.maxAbstractTokens)
	}
	return fmt.Sprintf(ai.ArticleTemplate, doc.Title, abstract)
}

// BuildPrompt renders the comparison prompt for main and related.
func (s *Service) BuildPrompt(main common.Document, related []common.Document) string {
	parts := make([]string, 0, len(related))
	for _, doc := range related {
		parts = append(parts, s.formatArticle(doc))
	}
	return fmt.Sprintf(ai.ComparePrompt, s.formatArticle(main), strings.Join(parts, "\n"))
}
