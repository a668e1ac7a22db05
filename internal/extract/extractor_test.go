package extract

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sajagshrestha/autofin-BE/internal/llm"
	"github.com/sajagshrestha/autofin-BE/internal/model"
	"github.com/sajagshrestha/autofin-BE/internal/service"
)

type fakeClient struct {
	resp   llm.ExtractionResponse
	err    error
	calls  int
	system string
}

func (f *fakeClient) ExtractTransaction(_ context.Context, systemPrompt, _ string) (llm.ExtractionResponse, error) {
	f.calls++
	f.system = systemPrompt
	return f.resp, f.err
}

func testCategories() []model.Category {
	return []model.Category{
		{ID: 1, Name: "Uncategorized", IsDefault: true},
		{ID: 4, Name: "Transport", IsDefault: true},
		{ID: 7, Name: "Groceries", IsDefault: true},
	}
}

func testMessage() service.MailMessage {
	return service.MailMessage{
		ID:         "msg-1",
		From:       "alerts@nicasia.com.np",
		Subject:    "Transaction Alert",
		Body:       "Your account XXXX1234 has been debited by NPR 450.00 at Pathao.",
		ReceivedAt: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC),
	}
}

func TestExtract_EmptyCategoriesShortCircuits(t *testing.T) {
	client := &fakeClient{}
	e := NewExtractor(client, nil)

	result := e.Extract(context.Background(), testMessage(), nil)

	assert.False(t, result.IsTransaction)
	assert.False(t, result.Failed, "short-circuit is a skip, not a failure")
	assert.Zero(t, client.calls, "no LLM call should be spent without a catalogue")
}

func TestExtract_ClientErrorMarksResultFailed(t *testing.T) {
	client := &fakeClient{err: errors.New("upstream timeout")}
	e := NewExtractor(client, nil)

	result := e.Extract(context.Background(), testMessage(), testCategories())

	assert.False(t, result.IsTransaction)
	assert.True(t, result.Failed, "an unjudged message must surface as failed")
	assert.Equal(t, 1, client.calls, "one failed call per message, no retries here")
}

func TestExtract_SuccessfulTransaction(t *testing.T) {
	client := &fakeClient{resp: llm.ExtractionResponse{
		IsTransaction: true,
		Amount:        "450.00",
		Currency:      "NPR",
		Direction:     "debit",
		Merchant:      "Pathao",
		Bank:          "NIC Asia",
		Date:          "2026-03-01",
		Confidence:    0.92,
		Category:      llm.CategoryRef{Action: "select_existing", Reference: "4"},
	}}
	e := NewExtractor(client, nil)

	result := e.Extract(context.Background(), testMessage(), testCategories())

	require.True(t, result.IsTransaction)
	assert.False(t, result.Failed)
	assert.True(t, result.Amount.Equal(decimal.NewFromInt(450)))
	assert.Equal(t, model.DirectionDebit, result.Direction)
	assert.Equal(t, "Pathao", result.Merchant)
	assert.Equal(t, 0.92, result.Confidence)
	require.NotNil(t, result.OccurredAt)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), *result.OccurredAt)
	assert.Equal(t, model.CategorySelectExisting, result.Category.Type)
	assert.Equal(t, "4", result.Category.Reference)

	assert.Contains(t, client.system, "id=4 Transport", "catalogue must reach the model")
}

func TestExtract_NegativeAmountBecomesMagnitude(t *testing.T) {
	client := &fakeClient{resp: llm.ExtractionResponse{
		IsTransaction: true,
		Amount:        "-1250.50",
		Direction:     "debit",
		Confidence:    0.9,
		Category:      llm.CategoryRef{Action: "uncategorized"},
	}}
	e := NewExtractor(client, nil)

	result := e.Extract(context.Background(), testMessage(), testCategories())

	require.True(t, result.IsTransaction)
	assert.True(t, result.Amount.IsPositive())
	assert.Equal(t, model.DirectionDebit, result.Direction)
}

func TestExtract_ConfidenceClamped(t *testing.T) {
	tests := []struct {
		name string
		in   float64
		want float64
	}{
		{"above one", 1.7, 1},
		{"below zero", -0.4, 0},
		{"in range", 0.55, 0.55},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &fakeClient{resp: llm.ExtractionResponse{
				IsTransaction: true,
				Amount:        "10",
				Direction:     "debit",
				Confidence:    tt.in,
				Category:      llm.CategoryRef{Action: "uncategorized"},
			}}
			result := NewExtractor(client, nil).Extract(context.Background(), testMessage(), testCategories())
			require.True(t, result.IsTransaction)
			assert.Equal(t, tt.want, result.Confidence)
		})
	}
}

func TestExtract_MissingAmountDiscardsVerdict(t *testing.T) {
	client := &fakeClient{resp: llm.ExtractionResponse{
		IsTransaction: true,
		Direction:     "debit",
		Confidence:    0.8,
	}}
	result := NewExtractor(client, nil).Extract(context.Background(), testMessage(), testCategories())
	assert.False(t, result.IsTransaction)
}

func TestCategoryDecision(t *testing.T) {
	tests := []struct {
		name string
		ref  llm.CategoryRef
		want model.CategoryDecision
	}{
		{
			name: "select by id",
			ref:  llm.CategoryRef{Action: "select_existing", Reference: "7"},
			want: model.CategoryDecision{Type: model.CategorySelectExisting, Reference: "7"},
		},
		{
			name: "select by name case-insensitively",
			ref:  llm.CategoryRef{Action: "select_existing", Reference: "groceries"},
			want: model.CategoryDecision{Type: model.CategorySelectExisting, Reference: "7"},
		},
		{
			name: "unknown id degrades to uncategorized",
			ref:  llm.CategoryRef{Action: "select_existing", Reference: "9999"},
			want: model.CategoryDecision{Type: model.CategoryUncategorized},
		},
		{
			name: "create new",
			ref:  llm.CategoryRef{Action: "create_new", NewName: "Pet Care", NewIcon: "🐶"},
			want: model.CategoryDecision{Type: model.CategoryCreateNew, NewName: "Pet Care", NewIcon: "🐶"},
		},
		{
			name: "create new with existing name collapses to select",
			ref:  llm.CategoryRef{Action: "create_new", NewName: "Transport"},
			want: model.CategoryDecision{Type: model.CategorySelectExisting, Reference: "4"},
		},
		{
			name: "create new without a name degrades",
			ref:  llm.CategoryRef{Action: "create_new"},
			want: model.CategoryDecision{Type: model.CategoryUncategorized},
		},
		{
			name: "unknown action degrades",
			ref:  llm.CategoryRef{Action: "pick_best"},
			want: model.CategoryDecision{Type: model.CategoryUncategorized},
		},
	}

	e := NewExtractor(&fakeClient{}, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := e.categoryDecision(tt.ref, testCategories(), "msg-1")
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseDate_FallsBackToReceivedAt(t *testing.T) {
	received := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	got := parseDate("not a date", received)
	require.NotNil(t, got)
	assert.Equal(t, received, *got)

	got = parseDate("", time.Time{})
	assert.Nil(t, got)

	got = parseDate("02/03/2026", received)
	require.NotNil(t, got)
	assert.Equal(t, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), *got)
}
