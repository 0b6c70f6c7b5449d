package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/BearBump/ParcelHub/internal/errs"
	"github.com/BearBump/ParcelHub/internal/models"
	"github.com/BearBump/ParcelHub/internal/storage"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestInTx_RollsBackOnError(t *testing.T) {
	s := New()
	p := s.AddPackage(models.Package{TrackingNumber: "A1"})

	err := s.InTx(context.Background(), func(ctx context.Context, tx storage.Tx) error {
		cur, err := tx.LockPackage(ctx, p.ID)
		require.NoError(t, err)
		cur.Status = models.PackageStatusInTransit
		require.NoError(t, tx.SavePackage(ctx, cur))
		return errors.New("boom")
	})
	require.Error(t, err)

	got, err := s.GetPackage(context.Background(), p.ID)
	require.NoError(t, err)
	require.Equal(t, models.PackageStatusAnnounced, got.Status)
	require.Equal(t, 0, s.Writes())
}

func TestInsertTrackingEvents_Dedup(t *testing.T) {
	s := New()
	p := s.AddPackage(models.Package{TrackingNumber: "A1"})
	ts := time.Date(2025, 1, 2, 3, 4, 5, 0, time.FixedZone("MSK", 3*3600))

	ev := &models.TrackingEvent{PackageID: p.ID, Description: "Arrived", Timestamp: ts}
	same := &models.TrackingEvent{PackageID: p.ID, Description: "Arrived", Timestamp: ts.UTC(), EventType: "other"}

	var n int
	require.NoError(t, s.InTx(context.Background(), func(ctx context.Context, tx storage.Tx) error {
		var err error
		n, err = tx.InsertTrackingEvents(ctx, []*models.TrackingEvent{ev, same})
		return err
	}))
	require.Equal(t, 1, n)

	evs, err := s.ListTrackingEvents(context.Background(), p.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, evs, 1)
}

func TestSavePackage_KeepsStamps(t *testing.T) {
	s := New()
	first := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	p := s.AddPackage(models.Package{TrackingNumber: "A1", ReceivedAt: &first})

	require.NoError(t, s.InTx(context.Background(), func(ctx context.Context, tx storage.Tx) error {
		cur, err := tx.LockPackage(ctx, p.ID)
		if err != nil {
			return err
		}
		later := first.Add(time.Hour)
		cur.ReceivedAt = &later
		return tx.SavePackage(ctx, cur)
	}))

	got, err := s.GetPackage(context.Background(), p.ID)
	require.NoError(t, err)
	require.True(t, first.Equal(*got.ReceivedAt))
}

func TestReads(t *testing.T) {
	s := New()
	s.AddPackage(models.Package{TrackingNumber: "A1"})
	s.AddPackage(models.Package{TrackingNumber: "", Status: models.PackageStatusStored})
	s.AddPackage(models.Package{TrackingNumber: "B2", Status: models.PackageStatusDelivered})
	newer := s.AddPackage(models.Package{TrackingNumber: "A1"})

	active, err := s.ListActivePackages(context.Background())
	require.NoError(t, err)
	require.Len(t, active, 2)

	found, err := s.FindPackageByTrackingNumber(context.Background(), " A1 ")
	require.NoError(t, err)
	require.Equal(t, newer.ID, found.ID)

	_, err = s.FindPackageByTrackingNumber(context.Background(), "nope")
	require.ErrorIs(t, err, errs.ErrNotFound)

	ok, err := s.SetCarrierIfEmpty(context.Background(), newer.ID, "100002", "UPS")
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = s.SetCarrierIfEmpty(context.Background(), newer.ID, "3011", "China Post")
	require.NoError(t, err)
	require.False(t, ok)
}
