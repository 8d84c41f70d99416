package transaction_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/MrJamesThe3rd/tally/internal/rules"
	"github.com/MrJamesThe3rd/tally/internal/transaction"
	"github.com/MrJamesThe3rd/tally/internal/transaction/memstore"
)

func row(date, desc string, amount int64) transaction.NormalizedTransaction {
	return transaction.NormalizedTransaction{
		SourceID:    1,
		Date:        date,
		Description: desc,
		Amount:      decimal.NewFromInt(amount),
	}
}

func ptr[T any](v T) *T { return &v }

func TestService_ImportBatch(t *testing.T) {
	type args struct {
		rows []transaction.NormalizedTransaction
	}

	type testCase struct {
		name      string
		args      args
		setupMock func(m *transaction.MockRepository)
		want      func(t *testing.T, out *transaction.ImportOutcome)
	}

	tests := []testCase{
		{
			name: "Persistence failure does not stop the batch",
			args: args{rows: []transaction.NormalizedTransaction{
				row("2024-01-01", "Rent", -900),
				row("2024-01-02", "Salary", 3000),
			}},
			setupMock: func(m *transaction.MockRepository) {
				m.EXPECT().FindByHash(gomock.Any(), gomock.Any()).Return(nil, nil).Times(2)
				gomock.InOrder(
					m.EXPECT().Insert(gomock.Any(), gomock.Any()).Return(errors.New("connection reset by peer")),
					m.EXPECT().Insert(gomock.Any(), gomock.Any()).Return(nil),
				)
			},
			want: func(t *testing.T, out *transaction.ImportOutcome) {
				assert.Equal(t, 1, out.Imported)
				assert.Equal(t, 0, out.Skipped)
				require.Len(t, out.Errors, 1)
				assert.Equal(t, 0, out.Errors[0].Index)
				assert.Equal(t, transaction.ErrorKindPersistence, out.Errors[0].Kind)
				assert.Equal(t, "connection reset by peer", out.Errors[0].Error)
				assert.Equal(t, 2, out.Total())
			},
		},
		{
			name: "Stored hash is skipped",
			args: args{rows: []transaction.NormalizedTransaction{row("2024-01-01", "Rent", -900)}},
			setupMock: func(m *transaction.MockRepository) {
				m.EXPECT().FindByHash(gomock.Any(), gomock.Any()).Return(&transaction.Transaction{ID: 7}, nil)
			},
			want: func(t *testing.T, out *transaction.ImportOutcome) {
				assert.Equal(t, 0, out.Imported)
				assert.Equal(t, 1, out.Skipped)
				assert.Empty(t, out.Errors)
			},
		},
		{
			name: "Concurrent duplicate insert counts as skip",
			args: args{rows: []transaction.NormalizedTransaction{row("2024-01-01", "Rent", -900)}},
			setupMock: func(m *transaction.MockRepository) {
				m.EXPECT().FindByHash(gomock.Any(), gomock.Any()).Return(nil, nil)
				m.EXPECT().Insert(gomock.Any(), gomock.Any()).Return(fmt.Errorf("insert: %w", transaction.ErrDuplicate))
			},
			want: func(t *testing.T, out *transaction.ImportOutcome) {
				assert.Equal(t, 1, out.Skipped)
				assert.Empty(t, out.Errors)
			},
		},
		{
			name: "Invalid row never reaches storage",
			args: args{rows: []transaction.NormalizedTransaction{
				row("15/01/2024", "Rent", -900),
				row("2024-01-02", "", 1),
				row("2024-01-03", "Coffee", -3),
			}},
			setupMock: func(m *transaction.MockRepository) {
				m.EXPECT().FindByHash(gomock.Any(), gomock.Any()).Return(nil, nil)
				m.EXPECT().Insert(gomock.Any(), gomock.Any()).Return(nil)
			},
			want: func(t *testing.T, out *transaction.ImportOutcome) {
				assert.Equal(t, 1, out.Imported)
				require.Len(t, out.Errors, 2)
				assert.Equal(t, 0, out.Errors[0].Index)
				assert.Equal(t, 1, out.Errors[1].Index)
				assert.Equal(t, transaction.ErrorKindValidation, out.Errors[0].Kind)
			},
		},
		{
			name: "Non-positive references are validation errors",
			args: args{rows: []transaction.NormalizedTransaction{
				func() transaction.NormalizedTransaction {
					r := row("2024-01-01", "Rent", -900)
					r.UnitID = ptr(int64(0))

					return r
				}(),
				func() transaction.NormalizedTransaction {
					r := row("2024-01-02", "Rent", -900)
					r.CategoryID = ptr(int64(-4))

					return r
				}(),
			}},
			want: func(t *testing.T, out *transaction.ImportOutcome) {
				assert.Equal(t, 0, out.Imported)
				require.Len(t, out.Errors, 2)
				assert.Equal(t, transaction.ErrorKindValidation, out.Errors[0].Kind)
				assert.Equal(t, transaction.ErrorKindValidation, out.Errors[1].Kind)
			},
		},
		{
			name: "Lookup failure is a persistence error",
			args: args{rows: []transaction.NormalizedTransaction{row("2024-01-01", "Rent", -900)}},
			setupMock: func(m *transaction.MockRepository) {
				m.EXPECT().FindByHash(gomock.Any(), gomock.Any()).Return(nil, errors.New("timeout"))
			},
			want: func(t *testing.T, out *transaction.ImportOutcome) {
				require.Len(t, out.Errors, 1)
				assert.Equal(t, transaction.ErrorKindPersistence, out.Errors[0].Kind)
			},
		},
		{
			name: "Empty batch",
			args: args{rows: nil},
			want: func(t *testing.T, out *transaction.ImportOutcome) {
				assert.Equal(t, 0, out.Total())
				assert.NotNil(t, out.Errors)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			repo := transaction.NewMockRepository(ctrl)
			if tt.setupMock != nil {
				tt.setupMock(repo)
			}

			svc := transaction.NewService(repo, nil)

			out, err := svc.ImportBatch(context.Background(), tt.args.rows, transaction.ImportOptions{})
			require.NoError(t, err)
			tt.want(t, out)
		})
	}
}

func TestService_ImportBatch_RecomputesHashAndStampsBatch(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := transaction.NewMockRepository(ctrl)
	svc := transaction.NewService(repo, nil)

	in := row("2024-01-15", "SALARY PAYMENT", 3000)
	in.Hash = "ffffffffffffffff"
	in.Tags = "Work, work ,Pay Day"

	want := in.Fingerprint()

	var inserted *transaction.Transaction

	repo.EXPECT().FindByHash(gomock.Any(), want).Return(nil, nil)
	repo.EXPECT().Insert(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, tx *transaction.Transaction) error {
		inserted = tx
		return nil
	})

	out, err := svc.ImportBatch(context.Background(), []transaction.NormalizedTransaction{in}, transaction.ImportOptions{})
	require.NoError(t, err)

	require.NotNil(t, inserted)
	assert.Equal(t, want, inserted.Hash)
	assert.Equal(t, "work,pay-day", inserted.Tags)
	assert.Equal(t, out.BatchID, inserted.BatchID)
}

func TestService_ImportBatch_Rules(t *testing.T) {
	snap := &rules.Snapshot{
		Units: []rules.Rule{
			{ID: 1, Kind: rules.KindUnit, Field: rules.FieldSource, MatchType: rules.MatchExact, Pattern: "1", TargetID: 5, Active: true},
		},
		Categories: []rules.Rule{
			{ID: 2, Kind: rules.KindCategory, Field: rules.FieldDescription, MatchType: rules.MatchContains, Pattern: "salary", TargetID: 9, Active: true},
		},
	}

	type testCase struct {
		name         string
		in           transaction.NormalizedTransaction
		opts         transaction.ImportOptions
		wantUnit     *int64
		wantCategory *int64
	}

	explicit := row("2024-01-15", "SALARY PAYMENT", 3000)
	explicit.CategoryID = ptr(int64(3))

	other := row("2024-01-15", "SALARY PAYMENT", 3000)
	other.SourceID = 2

	tests := []testCase{
		{
			name:         "Fills both",
			in:           row("2024-01-15", "SALARY PAYMENT", 3000),
			opts:         transaction.ImportOptions{Rules: snap},
			wantUnit:     ptr(int64(5)),
			wantCategory: ptr(int64(9)),
		},
		{
			name:         "Keeps explicit values",
			in:           explicit,
			opts:         transaction.ImportOptions{Rules: snap},
			wantUnit:     ptr(int64(5)),
			wantCategory: ptr(int64(3)),
		},
		{
			name:         "Source rule ignores other sources",
			in:           other,
			opts:         transaction.ImportOptions{Rules: snap},
			wantCategory: ptr(int64(9)),
		},
		{
			name: "Rules disabled",
			in:   row("2024-01-15", "SALARY PAYMENT", 3000),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := memstore.New()
			svc := transaction.NewService(store, nil)

			out, err := svc.ImportBatch(context.Background(), []transaction.NormalizedTransaction{tt.in}, tt.opts)
			require.NoError(t, err)
			require.Equal(t, 1, out.Imported)

			got, err := store.Get(context.Background(), 1)
			require.NoError(t, err)
			assert.Equal(t, tt.wantUnit, got.UnitID)
			assert.Equal(t, tt.wantCategory, got.CategoryID)
		})
	}
}

func TestService_ImportBatch_Scenario(t *testing.T) {
	svc := transaction.NewService(memstore.New(), nil)
	rows := []transaction.NormalizedTransaction{row("2024-01-15", "SALARY PAYMENT", 3000)}

	first, err := svc.ImportBatch(context.Background(), rows, transaction.ImportOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, first.Imported)
	assert.Equal(t, 0, first.Skipped)

	second, err := svc.ImportBatch(context.Background(), rows, transaction.ImportOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, second.Imported)
	assert.Equal(t, 1, second.Skipped)
	assert.NotEqual(t, first.BatchID, second.BatchID)
}

func TestService_ImportBatch_Idempotent(t *testing.T) {
	svc := transaction.NewService(memstore.New(), nil)

	rows := []transaction.NormalizedTransaction{
		row("2024-01-01", "Rent", -900),
		row("2024-01-02", "Coffee", -3),
		row("2024-01-02", "", -3),
		row("2024-01-03", "Salary", 3000),
	}

	_, err := svc.ImportBatch(context.Background(), rows, transaction.ImportOptions{})
	require.NoError(t, err)

	again, err := svc.ImportBatch(context.Background(), rows, transaction.ImportOptions{})
	require.NoError(t, err)

	assert.Equal(t, 0, again.Imported)
	assert.Equal(t, 3, again.Skipped)
	assert.Len(t, again.Errors, 1)
	assert.Equal(t, len(rows), again.Total())
}

func TestService_ImportBatch_InBatchDuplicates(t *testing.T) {
	store := memstore.New()
	svc := transaction.NewService(store, nil)

	a := row("2024-03-01", "Coffee", -4)
	a.Amount = decimal.RequireFromString("-45.5")
	b := a
	b.Amount = decimal.RequireFromString("-45.50")
	note := "second copy"
	b.Notes = &note

	out, err := svc.ImportBatch(context.Background(), []transaction.NormalizedTransaction{a, b}, transaction.ImportOptions{})
	require.NoError(t, err)

	assert.Equal(t, 1, out.Imported)
	assert.Equal(t, 1, out.Skipped)
	assert.Equal(t, 1, store.Len())
}

func TestService_ImportBatch_ConcurrentBatches(t *testing.T) {
	store := memstore.New()
	svc := transaction.NewService(store, nil)

	rows := make([]transaction.NormalizedTransaction, 50)
	for i := range rows {
		rows[i] = row("2024-04-01", fmt.Sprintf("Purchase %d", i), int64(-i-1))
	}

	var wg sync.WaitGroup

	outcomes := make([]*transaction.ImportOutcome, 4)

	for i := range outcomes {
		wg.Add(1)

		go func(i int) {
			defer wg.Done()

			out, err := svc.ImportBatch(context.Background(), rows, transaction.ImportOptions{})
			assert.NoError(t, err)

			outcomes[i] = out
		}(i)
	}

	wg.Wait()

	imported := 0
	for _, out := range outcomes {
		imported += out.Imported
		assert.Empty(t, out.Errors)
		assert.Equal(t, len(rows), out.Total())
	}

	assert.Equal(t, len(rows), imported)
	assert.Equal(t, len(rows), store.Len())
}

func TestService_ImportBatch_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	svc := transaction.NewService(memstore.New(), nil)

	out, err := svc.ImportBatch(ctx, []transaction.NormalizedTransaction{row("2024-01-01", "Rent", -900)}, transaction.ImportOptions{})
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, out)
	assert.Equal(t, 0, out.Total())
}

func TestService_ImportRows_KeepsValidationErrorsInOrder(t *testing.T) {
	svc := transaction.NewService(memstore.New(), nil)

	rows := []transaction.BatchRow{
		{Index: 0, Tx: row("2024-01-01", "Rent", -900)},
		{Index: 1, Cells: []string{"bad"}, Err: &transaction.ValidationError{Field: "amount", Value: "bad", Reason: "is not a number"}},
		{Index: 2, Tx: row("2024-01-02", "Coffee", -3)},
	}

	out, err := svc.ImportRows(context.Background(), rows, transaction.ImportOptions{})
	require.NoError(t, err)

	assert.Equal(t, 2, out.Imported)
	require.Len(t, out.Errors, 1)
	assert.Equal(t, 1, out.Errors[0].Index)
	assert.Equal(t, []string{"bad"}, out.Errors[0].Cells)
	assert.Equal(t, `amount "bad" is not a number`, out.Errors[0].Error)
}

func TestService_FindExisting(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := transaction.NewMockRepository(ctrl)
	svc := transaction.NewService(repo, nil)

	repo.EXPECT().
		ExistingHashes(gomock.Any(), []string{"0123456789abcdef", "fedcba9876543210"}).
		Return([]string{"fedcba9876543210"}, nil)

	got, err := svc.FindExisting(context.Background(), []string{"0123456789ABCDEF", "not-a-hash", "fedcba9876543210", "0123456789abcdef"})
	require.NoError(t, err)
	assert.Equal(t, []string{"fedcba9876543210"}, got)

	got, err = svc.FindExisting(context.Background(), []string{"xyz"})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestService_Tags(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := transaction.NewMockRepository(ctrl)
	svc := transaction.NewService(repo, nil)

	repo.EXPECT().ListTags(gomock.Any()).Return([]string{"travel,business", "food", "business,bus-pass"}, nil).Times(2)

	all, err := svc.Tags(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"bus-pass", "business", "food", "travel"}, all)

	got, err := svc.SuggestTags(context.Background(), "BUS", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"bus-pass", "business"}, got)
}
