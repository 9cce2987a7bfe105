package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/weather-station-crawler/internal/crawler"
)

func newMockStore(t *testing.T) (*StationStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	store, err := NewStationStoreWithPool(mock, "", "")
	require.NoError(t, err)
	return store, mock
}

func TestNewStationStoreWithPoolRejectsBadTable(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewStationStoreWithPool(mock, "stations; DROP", "")
	require.Error(t, err)

	_, err = NewStationStoreWithPool(nil, "", "")
	require.Error(t, err)
}

func TestNewStationStoreRequiresDSN(t *testing.T) {
	t.Parallel()

	_, err := NewStationStore(context.Background(), StationStoreConfig{})
	require.Error(t, err)
}

func TestInsertStationIfAbsent(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO weather_stations").
		WithArgs("Berlin", "DE", 52.52, 13.405).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO weather_stations").
		WithArgs("Berlin", "DE", 52.52, 13.405).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	require.NoError(t, store.InsertStationIfAbsent(context.Background(), "Berlin", "DE", 52.52, 13.405))
	require.NoError(t, store.InsertStationIfAbsent(context.Background(), "Berlin", "DE", 52.52, 13.405))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertStationIfAbsentWrapsStoreError(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO weather_stations").
		WithArgs("Berlin", "DE", 52.52, 13.405).
		WillReturnError(errors.New("connection reset"))

	err := store.InsertStationIfAbsent(context.Background(), "Berlin", "DE", 52.52, 13.405)
	require.ErrorIs(t, err, crawler.ErrStore)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindStation(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	rows := pgxmock.NewRows([]string{"id", "name", "country", "latitude", "longitude"}).
		AddRow("0190c8a4-0000-7000-8000-000000000001", "Berlin", "DE", 52.52, 13.405)
	mock.ExpectQuery("SELECT id::text, name, country, latitude, longitude").
		WithArgs("Berlin", "DE").
		WillReturnRows(rows)

	st, ok, err := store.FindStation(context.Background(), "Berlin", "DE")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, crawler.Station{
		ID:        "0190c8a4-0000-7000-8000-000000000001",
		Name:      "Berlin",
		Country:   "DE",
		Latitude:  52.52,
		Longitude: 13.405,
	}, st)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindStationMissing(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT id::text, name, country, latitude, longitude").
		WithArgs("Atlantis", "GR").
		WillReturnError(pgx.ErrNoRows)

	_, ok, err := store.FindStation(context.Background(), "Atlantis", "GR")
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertMeasurement(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	ts := time.Unix(1700000000, 0).UTC()
	payload := json.RawMessage(`{"name":"Berlin","dt":1700000000}`)

	mock.ExpectExec("INSERT INTO weather_measurements").
		WithArgs("station-1", ts, []byte(payload)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.InsertMeasurement(context.Background(), "station-1", ts, payload))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertMeasurementDuplicate(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	ts := time.Unix(1700000000, 0).UTC()
	payload := json.RawMessage(`{"dt":1700000000}`)

	mock.ExpectExec("INSERT INTO weather_measurements").
		WithArgs("station-1", ts, []byte(payload)).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	err := store.InsertMeasurement(context.Background(), "station-1", ts, payload)
	require.ErrorIs(t, err, crawler.ErrDuplicateMeasurement)
	require.NotErrorIs(t, err, crawler.ErrStore)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLatestMeasurement(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	ts := time.Unix(1700000600, 0).UTC()
	rows := pgxmock.NewRows([]string{"station_id", "tstamp", "attr"}).
		AddRow("station-1", ts, []byte(`{"dt":1700000600}`))
	mock.ExpectQuery("FROM weather_measurements").
		WithArgs("station-1").
		WillReturnRows(rows)

	m, ok, err := store.LatestMeasurement(context.Background(), "station-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "station-1", m.StationID)
	require.True(t, ts.Equal(m.Timestamp))
	require.JSONEq(t, `{"dt":1700000600}`, string(m.Payload))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLatestMeasurementEmpty(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	mock.ExpectQuery("FROM weather_measurements").
		WithArgs("station-1").
		WillReturnError(pgx.ErrNoRows)

	_, ok, err := store.LatestMeasurement(context.Background(), "station-1")
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListStations(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	rows := pgxmock.NewRows([]string{"id", "name", "country", "latitude", "longitude"}).
		AddRow("a", "Berlin", "DE", 52.52, 13.405).
		AddRow("b", "Paris", "FR", 48.85, 2.35)
	mock.ExpectQuery("FROM weather_stations").WillReturnRows(rows)

	stations, err := store.ListStations(context.Background())
	require.NoError(t, err)
	require.Len(t, stations, 2)
	require.Equal(t, "Paris", stations[1].Name)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureSchema(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS weather_stations").
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS weather_measurements").
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))

	require.NoError(t, store.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}
