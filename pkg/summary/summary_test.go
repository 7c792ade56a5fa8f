package summary

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/ndltd-tw/papergraph/pkg/ai"
	"github.com/ndltd-tw/papergraph/pkg/common"
	"github.com/ndltd-tw/papergraph/pkg/graph"
	"github.com/ndltd-tw/papergraph/pkg/store/storetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	ai.MetricsRecorder

	chunks    []string
	streamErr error
	startErr  error

	prompt string
	opts   ai.GenerateOptions
}

func (f *fakeClient) GenerateStream(ctx context.Context, prompt string, opts ...ai.GenerateOption) (<-chan ai.StreamEvent, error) {
	if f.startErr != nil {
		return nil, f.startErr
	}
	f.prompt = prompt
	f.opts = ai.ApplyOptions(ai.GenerateOptions{}, opts...)

	out := make(chan ai.StreamEvent)
	go func() {
		defer close(out)
		for _, c := range f.chunks {
			if !ai.Send(ctx, out, ai.StreamEvent{Type: ai.EventContent, Content: c}) {
				return
			}
		}
		if f.streamErr != nil {
			ai.Send(ctx, out, ai.StreamEvent{Type: ai.EventError, Err: f.streamErr})
			return
		}
		f.AddMetrics(ai.ModelMetrics{InputTokens: 10, OutputTokens: 5})
	}()
	return out, nil
}

type factoryCall struct {
	provider ai.Provider
	model    string
	apiKey   string
}

func factory(client *fakeClient, calls *[]factoryCall) ClientFactory {
	return func(ctx context.Context, provider ai.Provider, model, apiKey string) (ai.TextClient, error) {
		*calls = append(*calls, factoryCall{provider, model, apiKey})
		return client, nil
	}
}

// firstRunes keeps the first n runes, standing in for a token budget.
type firstRunes struct{}

func (firstRunes) Truncate(text string, n int) string {
	r := []rune(text)
	if len(r) <= n {
		return text
	}
	return string(r[:n])
}

func corpus() *storetest.Store {
	return storetest.New().
		AddDocument(common.Document{UID: "109THU00099005", Title: "Main", Abstract: "main abstract"}).
		AddDocument(common.Document{UID: "r1", Title: "Related 1", Abstract: "first related abstract"}).
		AddDocument(common.Document{UID: "r2", Title: "Related 2", Abstract: "second"}).
		Link("109THU00099005", []string{"r1", "109THU00099005", "r2"}, nil)
}

func drain(t *testing.T, s *Stream) (string, error) {
	t.Helper()
	var sb strings.Builder
	var err error
	for ev := range s.Events {
		if ev.Type == ai.EventError {
			err = ev.Err
			continue
		}
		sb.WriteString(ev.Content)
	}
	return sb.String(), err
}

func TestStream(t *testing.T) {
	st := corpus()
	client := &fakeClient{chunks: []string{"兩篇", "文章"}}
	var calls []factoryCall
	svc := NewService(graph.NewBuilder(st), factory(client, &calls))

	s, err := svc.Stream(context.Background(), Request{
		Provider:  "claude",
		APIKey:    "key",
		TargetUID: "109THU00099005",
	})
	require.NoError(t, err)

	text, err := drain(t, s)
	require.NoError(t, err)
	assert.Equal(t, "兩篇文章", text)

	assert.Equal(t, ai.ProviderAnthropic, s.Provider)
	assert.Equal(t, ai.DefaultModel(ai.ProviderAnthropic), s.Model)
	assert.Equal(t, []factoryCall{{ai.ProviderAnthropic, ai.DefaultModel(ai.ProviderAnthropic), "key"}}, calls)
	assert.Equal(t, s.Model, client.opts.Model)
	assert.Equal(t, 15, s.Client.GetMetrics().TotalTokens)

	assert.Contains(t, client.prompt, "主要文章：\n# Main\n\n摘要：\nmain abstract\n")
	assert.Contains(t, client.prompt, "相似文章：\n# Related 1\n\n摘要：\nfirst related abstract\n# Related 2\n\n摘要：\nsecond\n")
	assert.Equal(t, 1, strings.Count(client.prompt, "# Main"))

	queries := st.Queries()
	require.Len(t, queries, 1)
	assert.Equal(t, DefaultNResults, queries[0].K)
}

func TestStream_TruncatesAbstracts(t *testing.T) {
	client := &fakeClient{}
	var calls []factoryCall
	svc := NewService(graph.NewBuilder(corpus()), factory(client, &calls), WithTruncator(firstRunes{}, 5))

	s, err := svc.Stream(context.Background(), Request{Provider: "openai", Model: "gpt-x", TargetUID: "109THU00099005", NResults: 2})
	require.NoError(t, err)
	_, err = drain(t, s)
	require.NoError(t, err)

	assert.Contains(t, client.prompt, "摘要：\nmain \n")
	assert.Contains(t, client.prompt, "摘要：\nfirst\n")
	assert.NotContains(t, client.prompt, "Related 2")
	assert.Equal(t, "gpt-x", calls[0].model)
}

func TestStream_UnsupportedProvider(t *testing.T) {
	st := corpus()
	var calls []factoryCall
	svc := NewService(graph.NewBuilder(st), factory(&fakeClient{}, &calls))

	_, err := svc.Stream(context.Background(), Request{Provider: "mistral", TargetUID: "109THU00099005"})
	assert.ErrorIs(t, err, common.ErrUnsupportedOption)
	assert.Zero(t, st.TotalCalls())
	assert.Empty(t, calls)
}

func TestStream_Validation(t *testing.T) {
	st := corpus()
	var calls []factoryCall
	svc := NewService(graph.NewBuilder(st), factory(&fakeClient{}, &calls))

	_, err := svc.Stream(context.Background(), Request{Provider: "google"})
	assert.ErrorIs(t, err, common.ErrValidation)
	_, err = svc.Stream(context.Background(), Request{Provider: "google", TargetUID: "x", NResults: -1})
	assert.ErrorIs(t, err, common.ErrValidation)
	assert.Zero(t, st.TotalCalls())
}

func TestStream_UnknownTarget(t *testing.T) {
	var calls []factoryCall
	svc := NewService(graph.NewBuilder(corpus()), factory(&fakeClient{}, &calls))

	_, err := svc.Stream(context.Background(), Request{Provider: "google", TargetUID: "missing"})
	assert.ErrorIs(t, err, common.ErrNotFound)
	assert.Empty(t, calls)
}

func TestStream_StartFailure(t *testing.T) {
	var calls []factoryCall
	svc := NewService(graph.NewBuilder(corpus()), factory(&fakeClient{startErr: errors.New("401 unauthorized")}, &calls))

	_, err := svc.Stream(context.Background(), Request{Provider: "google", TargetUID: "109THU00099005"})
	assert.ErrorIs(t, err, common.ErrUpstreamUnavailable)
}

func TestStream_ErrorEvent(t *testing.T) {
	var calls []factoryCall
	client := &fakeClient{chunks: []string{"partial"}, streamErr: errors.New("overloaded")}
	svc := NewService(graph.NewBuilder(corpus()), factory(client, &calls))

	s, err := svc.Stream(context.Background(), Request{Provider: "google", TargetUID: "109THU00099005"})
	require.NoError(t, err)

	text, err := drain(t, s)
	assert.Equal(t, "partial", text)
	assert.EqualError(t, err, "overloaded")
}

func TestSplitArticles(t *testing.T) {
	network := &common.NetworkResult{
		Nodes: []common.Node{{UID: "t"}, {UID: "b", Layer: 1}, {UID: "a", Layer: 1}},
		Documents: map[string]common.Document{
			"t": {UID: "t"}, "a": {UID: "a"}, "b": {UID: "b"},
		},
	}
	main, related, err := splitArticles(network, "t")
	require.NoError(t, err)
	assert.Equal(t, "t", main.UID)
	assert.Equal(t, []common.Document{{UID: "b"}, {UID: "a"}}, related)

	_, _, err = splitArticles(network, "x")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestStream_ConfiguredModel(t *testing.T) {
	client := &fakeClient{}
	var calls []factoryCall
	svc := NewService(graph.NewBuilder(corpus()), factory(client, &calls),
		WithModels(map[ai.Provider]string{ai.ProviderOllama: "qwen2.5", ai.ProviderGoogle: ""}))

	s, err := svc.Stream(context.Background(), Request{Provider: "ollama", TargetUID: "109THU00099005"})
	require.NoError(t, err)
	_, _ = drain(t, s)
	assert.Equal(t, "qwen2.5", s.Model)

	s, err = svc.Stream(context.Background(), Request{Provider: "google", TargetUID: "109THU00099005"})
	require.NoError(t, err)
	_, _ = drain(t, s)
	assert.Equal(t, ai.DefaultModel(ai.ProviderGoogle), s.Model)
}

func TestStream_GenerateOptions(t *testing.T) {
	client := &fakeClient{}
	var calls []factoryCall
	svc := NewService(graph.NewBuilder(corpus()), factory(client, &calls),
		WithGenerateOptions(ai.WithTemperature(0.3), ai.WithMaxOutputTokens(512), ai.WithModel("ignored")))

	s, err := svc.Stream(context.Background(), Request{Provider: "openai", Model: "gpt-4.1", TargetUID: "109THU00099005"})
	require.NoError(t, err)
	_, _ = drain(t, s)

	assert.Equal(t, 0.3, client.opts.Temperature)
	assert.Equal(t, 512, client.opts.MaxOutputTokens)
	assert.Equal(t, "gpt-4.1", client.opts.Model)
}
