package packages

import (
	"context"
	"testing"

	"github.com/BearBump/ParcelHub/internal/errs"
	"github.com/BearBump/ParcelHub/internal/lifecycle"
	"github.com/BearBump/ParcelHub/internal/models"
	"github.com/BearBump/ParcelHub/internal/notify"
	"github.com/BearBump/ParcelHub/internal/storage/memstore"
	"github.com/stretchr/testify/require"
)

func TestChangeStatus(t *testing.T) {
	st := memstore.New()
	rec := &notify.Recorder{}
	svc := New(st, rec, nil)
	p := st.AddPackage(models.Package{TrackingNumber: "A", Status: models.PackageStatusDelivered})

	// admin may leave a terminal state
	tr, err := svc.ChangeStatus(context.Background(), p.ID, "returned", "customer refused")
	require.NoError(t, err)
	require.NotNil(t, tr)
	require.Equal(t, lifecycle.SourceAdmin, tr.Source)
	require.Equal(t, models.PackageStatusReturned, tr.To)

	tr, err = svc.ChangeStatus(context.Background(), p.ID, "RETURNED", "")
	require.NoError(t, err)
	require.Nil(t, tr)
	require.Len(t, rec.Packages, 1)
}

func TestChangeStatus_Errors(t *testing.T) {
	st := memstore.New()
	svc := New(st, nil, nil)

	_, err := svc.ChangeStatus(context.Background(), 1, "LOST", "")
	require.ErrorIs(t, err, errs.ErrInvalidStatus)

	_, err = svc.ChangeStatus(context.Background(), 1, "STORED", "")
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestListTrackingEvents_UnknownPackage(t *testing.T) {
	svc := New(memstore.New(), nil, nil)
	_, err := svc.ListTrackingEvents(context.Background(), 5, 10, 0)
	require.ErrorIs(t, err, errs.ErrNotFound)
}
