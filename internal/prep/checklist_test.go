package prep

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/vatflow/internal/llm"
	"github.com/Veraticus/vatflow/internal/model"
	"github.com/Veraticus/vatflow/internal/testutil"
)

type fakeGateway struct {
	err      error
	messages []llm.Message
	model    string
}

func (f *fakeGateway) Call(_ context.Context, modelName string, messages []llm.Message, _ int, _ llm.CallOptions) (llm.Response, error) {
	f.model = modelName
	f.messages = messages
	if f.err != nil {
		return llm.Response{}, f.err
	}
	return llm.Response{Content: "현금영수증 발급 내역을 확인하세요"}, nil
}

func TestFormatSignals(t *testing.T) {
	assert.Equal(t, "- NONE", FormatSignals(nil))
	assert.Equal(t,
		"- NO_CASH_RECEIPT: 현금영수증 내역 없음\n- PERIOD_MISMATCH: 선택한 과세기간과 다른 월 자료 포함 가능",
		FormatSignals(DefaultSignals()))
}

func TestChecklist_Generate(t *testing.T) {
	db := testutil.SetupTestDB(t)
	db.Seed(
		testutil.Entry("2025-09-01", "A", "카드", -1000, -100),
		testutil.Entry("2025-08-31", "B", "카드", -1000, -100),
	)
	gw := &fakeGateway{}
	checklist := NewChecklist(NewDetector(db.Storage, ScopeCorpus, nil), db.Storage, gw, nil, ChecklistConfig{UserID: "u1"}, nil)

	res := checklist.Generate(context.Background(), "2025-09", "")

	assert.False(t, res.Fallback)
	assert.Equal(t, 2, res.Generated)
	assert.Equal(t, []string{model.SignalNoCashReceipt, model.SignalPeriodMismatch}, codes(res.Signals))
	assert.Equal(t, "현금영수증 발급 내역을 확인하세요", res.Advice)

	require.Len(t, gw.messages, 2)
	assert.Equal(t, "gpt-4o-mini", gw.model)
	assert.Contains(t, gw.messages[1].Content, "세목: VAT")
	assert.Contains(t, gw.messages[1].Content, "과세기간: 2025-09")
	assert.Contains(t, gw.messages[1].Content, "- NO_CASH_RECEIPT: 현금영수증 내역 없음")

	items, err := db.Storage.ListPrepItems(context.Background(), "2025-09")
	require.NoError(t, err)
	require.Len(t, items, 2)
	for _, item := range items {
		assert.Equal(t, model.PrepStatusOpen, item.Status)
		assert.Equal(t, "u1", item.UserID)
		assert.Equal(t, "", item.TargetRef)
	}
	assert.Equal(t, DescNoCashReceipt, items[0].FixHint)
}

func TestChecklist_CleanPeriodPromptsNone(t *testing.T) {
	db := testutil.SetupTestDB(t)
	db.Seed(testutil.Entry("2025-09-01", "A", "현금영수증", -1000, -100))
	gw := &fakeGateway{}

	res := NewChecklist(NewDetector(db.Storage, "", nil), db.Storage, gw, nil, ChecklistConfig{}, nil).
		Generate(context.Background(), "2025-09", "VAT")

	assert.Zero(t, res.Generated)
	assert.Empty(t, res.Signals)
	assert.Contains(t, gw.messages[1].Content, "- NONE")
}

func TestChecklist_FallbackOnFailure(t *testing.T) {
	t.Run("gateway failure", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		gw := &fakeGateway{err: errors.New("upstream down")}
		res := NewChecklist(NewDetector(db.Storage, "", nil), db.Storage, gw, nil, ChecklistConfig{}, nil).
			Generate(context.Background(), "2025-09", "VAT")

		assert.True(t, res.Fallback)
		assert.Equal(t, 2, res.Generated)
		assert.Equal(t, DefaultSignals(), res.Signals)
	})

	t.Run("detector failure", func(t *testing.T) {
		res := NewChecklist(NewDetector(brokenStore{}, "", nil), brokenStore{}, nil, nil, ChecklistConfig{}, nil).
			Generate(context.Background(), "2025-09", "VAT")

		assert.True(t, res.Fallback)
		assert.Equal(t, 2, res.Generated)
		assert.Len(t, res.Items, 2)
	})
}

func TestChecklist_WithoutGateway(t *testing.T) {
	db := testutil.SetupTestDB(t)
	res := NewChecklist(NewDetector(db.Storage, "", nil), db.Storage, nil, nil, ChecklistConfig{}, nil).
		Generate(context.Background(), "2025-09", "VAT")

	assert.False(t, res.Fallback)
	assert.Empty(t, res.Advice)
	assert.Equal(t, 1, res.Generated)
}
