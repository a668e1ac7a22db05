package ingest

import (
	"context"
	"errors"
	"sync"

	"github.com/sajagshrestha/autofin-BE/internal/llm"
	"github.com/sajagshrestha/autofin-BE/internal/model"
	"github.com/sajagshrestha/autofin-BE/internal/service"
)

// fakeProvider serves a canned delta and message set.
type fakeProvider struct {
	delta       *service.MailDelta
	deltaErr    error
	messages    map[string]*service.MailMessage
	fetchErrs   map[string]error
	markReadErr error

	mu         sync.Mutex
	fetched    []string
	markedRead []string
}

func (f *fakeProvider) HistoryDelta(_ context.Context, _ uint64) (*service.MailDelta, error) {
	if f.deltaErr != nil {
		return nil, f.deltaErr
	}
	return f.delta, nil
}

func (f *fakeProvider) FetchMessage(_ context.Context, id string) (*service.MailMessage, error) {
	f.mu.Lock()
	f.fetched = append(f.fetched, id)
	f.mu.Unlock()

	if err, ok := f.fetchErrs[id]; ok {
		return nil, err
	}
	if msg, ok := f.messages[id]; ok {
		return msg, nil
	}
	return &service.MailMessage{ID: id, From: "alerts@nicasia.com.np", Body: "debited"}, nil
}

func (f *fakeProvider) MarkRead(_ context.Context, id string) error {
	f.mu.Lock()
	f.markedRead = append(f.markedRead, id)
	f.mu.Unlock()
	return f.markReadErr
}

func (f *fakeProvider) RegisterWatch(_ context.Context, _ string, _ []string) (*service.WatchRegistration, error) {
	return &service.WatchRegistration{HistoryID: 1}, nil
}

func (f *fakeProvider) StopWatch(_ context.Context) error { return nil }

func providerFactory(p *fakeProvider) service.MailProviderFactory {
	return func(_ context.Context, _ *model.MailboxSync) (service.MailProvider, error) {
		return p, nil
	}
}

// fakeExtractor answers with a per-message verdict, or a default.
type fakeExtractor struct {
	results map[string]model.ExtractionResult
	byBody  func(msg service.MailMessage) model.ExtractionResult
}

func (f *fakeExtractor) Extract(_ context.Context, msg service.MailMessage, _ []model.Category) model.ExtractionResult {
	if f.byBody != nil {
		return f.byBody(msg)
	}
	if result, ok := f.results[msg.ID]; ok {
		return result
	}
	return model.ExtractionResult{IsTransaction: false}
}

// downLLM simulates a model endpoint outage.
type downLLM struct{}

func (downLLM) ExtractTransaction(context.Context, string, string) (llm.ExtractionResponse, error) {
	return llm.ExtractionResponse{}, errors.New("model unavailable")
}

// fakeNotifier records announced transactions.
type fakeNotifier struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeNotifier) TransactionRecorded(_ context.Context, txn *model.Transaction, _ *model.Category) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, txn.EmailID)
}
