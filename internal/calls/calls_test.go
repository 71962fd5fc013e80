package calls

import (
	"context"
	"testing"
	"time"

	"leadcrm_backend/platform/apperr"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordNumbersNextAttempt(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	created := time.Date(2026, 10, 15, 10, 0, 0, 0, time.UTC)
	mock.ExpectQuery("INSERT INTO cre_call_attempt_history").
		WithArgs("L1", 2, "RNR", "Asha", "", pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id", "attempt", "created_at"}).AddRow(int64(11), 3, created))

	svc := NewService(NewRepository(mock))
	a, err := svc.Record(context.Background(), RecordInput{UID: " L1 ", CallNo: 2, Status: "RNR", CreName: "Asha"})
	require.NoError(t, err)
	assert.Equal(t, 3, a.Attempt)
	assert.Equal(t, int64(11), a.ID)
	assert.Equal(t, "L1", a.UID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordUniqueViolationIsConflict(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("INSERT INTO cre_call_attempt_history").
		WillReturnError(&pgconn.PgError{Code: "23505"})

	_, err = NewService(NewRepository(mock)).Record(context.Background(), RecordInput{UID: "L1", CallNo: 1, Status: "Connected"})
	assert.True(t, apperr.Is(err, apperr.KindConflict))
}

func TestRecordValidation(t *testing.T) {
	svc := NewService(nil)
	cases := []struct {
		name string
		in   RecordInput
	}{
		{"missing uid", RecordInput{CallNo: 1, Status: "RNR"}},
		{"call zero", RecordInput{UID: "L1", CallNo: 0, Status: "RNR"}},
		{"call eight", RecordInput{UID: "L1", CallNo: 8, Status: "RNR"}},
		{"blank status", RecordInput{UID: "L1", CallNo: 1, Status: " <i></i> "}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Record(context.Background(), tc.in)
			assert.True(t, apperr.Is(err, apperr.KindValidation))
		})
	}
}

func TestListOrdersByCall(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Now()
	mock.ExpectQuery("FROM cre_call_attempt_history").WithArgs("L1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "uid", "call_no", "attempt", "status", "cre_name", "remarks", "follow_up_date", "created_at"}).
			AddRow(int64(1), "L1", 1, 1, "Pending", "Asha", "", nil, now).
			AddRow(int64(2), "L1", 1, 2, "RNR", "Asha", "no answer", nil, now))

	attempts, err := NewService(NewRepository(mock)).List(context.Background(), "L1")
	require.NoError(t, err)
	require.Len(t, attempts, 2)
	assert.Equal(t, 2, attempts[1].Attempt)
	assert.Equal(t, "no answer", attempts[1].Remarks)
	assert.NoError(t, mock.ExpectationsWereMet())
}
