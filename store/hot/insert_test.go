package hot

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tt "github.com/openfutures/tickd/internal/testing"
	"github.com/openfutures/tickd/md"
)

// The insert path promises one transaction per batch, table creation
// before the first row of each instrument, and a prepared statement
// per table. sqlmock pins that statement sequence down without a real
// database.

func TestInsertTicksTransactionShape(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS tick_rb2501").
		WillReturnResult(sqlmock.NewResult(0, 0))
	prep := mock.ExpectPrepare("INSERT INTO tick_rb2501")
	prep.ExpectExec().WillReturnResult(sqlmock.NewResult(1, 1))
	prep.ExpectExec().WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	rows := []*md.Tick{
		tt.Tick("rb2501", tt.Day, tt.At(t, "09:00:15"), 3500.0, 10),
		tt.Tick("rb2501", tt.Day, tt.At(t, "09:00:16"), 3501.0, 20),
	}
	require.NoError(t, insertTicks(db, rows))
	assert.NoError(t, mock.ExpectationsWereMet(), "create once, prepare once, one exec per row")
}

func TestInsertTicksCreatesEachInstrumentTableOnce(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS tick_ag2502").
		WillReturnResult(sqlmock.NewResult(0, 0))
	agPrep := mock.ExpectPrepare("INSERT INTO tick_ag2502")
	agPrep.ExpectExec().WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS tick_rb2501").
		WillReturnResult(sqlmock.NewResult(0, 0))
	rbPrep := mock.ExpectPrepare("INSERT INTO tick_rb2501")
	rbPrep.ExpectExec().WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	// Flush pre-sorts by (instrument, timestamp); mirror that here.
	rows := []*md.Tick{
		tt.Tick("ag2502", tt.Day, tt.At(t, "09:00:15"), 8100.0, 5),
		tt.Tick("rb2501", tt.Day, tt.At(t, "09:00:15"), 3500.0, 10),
	}
	require.NoError(t, insertTicks(db, rows))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertTicksRollsBackOnFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS tick_rb2501").
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	rows := []*md.Tick{tt.Tick("rb2501", tt.Day, tt.At(t, "09:00:15"), 3500.0, 10)}
	require.Error(t, insertTicks(db, rows))
	assert.NoError(t, mock.ExpectationsWereMet(), "failed batch rolls the transaction back")
}

func TestInsertBarsTransactionShape(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS kline_rb2501").
		WillReturnResult(sqlmock.NewResult(0, 0))
	prep := mock.ExpectPrepare("INSERT INTO kline_rb2501")
	prep.ExpectExec().WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	rows := []*md.Bar{tt.Bar("rb2501", tt.Day, "1m", tt.At(t, "09:01:00"), 3500.0, 30)}
	require.NoError(t, insertBars(db, rows))
	assert.NoError(t, mock.ExpectationsWereMet())
}
