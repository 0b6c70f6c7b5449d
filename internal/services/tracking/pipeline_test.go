package tracking

import (
	"context"
	"testing"
	"time"

	"github.com/BearBump/ParcelHub/internal/integrations/carrier"
	"github.com/BearBump/ParcelHub/internal/models"
	"github.com/BearBump/ParcelHub/internal/notify"
	"github.com/BearBump/ParcelHub/internal/storage/memstore"
	"github.com/stretchr/testify/require"
)

func TestPipelineApply_SkipsEventsWithoutTime(t *testing.T) {
	st := memstore.New()
	p := st.AddPackage(models.Package{TrackingNumber: "A"})
	pipe := NewPipeline(st, nil, nil)

	res, err := pipe.Apply(context.Background(), p.ID, carrier.TrackingInfo{
		Number:     "A",
		StatusCode: 0,
		Events: []carrier.RawEvent{
			{Description: "no time"},
			{Time: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), Description: "ok", Code: "IT"},
		},
	})
	require.NoError(t, err)
	require.Nil(t, res.Transition)
	require.Equal(t, 1, res.EventsInserted)
	require.Equal(t, 1, res.EventsSkipped)

	evs, _ := st.ListTrackingEvents(context.Background(), p.ID, 10, 0)
	require.Len(t, evs, 1)
	require.Equal(t, "IT", evs[0].EventType)
}

func TestPipelineApply_CarrierNeverOverwritten(t *testing.T) {
	st := memstore.New()
	p := st.AddPackage(models.Package{TrackingNumber: "A", CarrierCode: "3011", CarrierName: "China Post"})
	rec := &notify.Recorder{}
	pipe := NewPipeline(st, rec, nil)

	res, err := pipe.Apply(context.Background(), p.ID, carrier.TrackingInfo{Number: "A", CarrierCode: "100002", StatusCode: 30})
	require.NoError(t, err)
	require.False(t, res.CarrierSet)
	require.NotNil(t, res.Transition)

	got, _ := st.GetPackage(context.Background(), p.ID)
	require.Equal(t, "3011", got.CarrierCode)
	require.Equal(t, models.PackageStatusReceived, got.Status)
	require.NotNil(t, got.ReceivedAt)
	require.Len(t, rec.Packages, 1)
}

func TestPipelineApply_UnknownPackage(t *testing.T) {
	pipe := NewPipeline(memstore.New(), nil, nil)
	_, err := pipe.Apply(context.Background(), 404, carrier.TrackingInfo{Number: "A"})
	require.Error(t, err)
}

func TestToEvent_TypeFallsBackToCheckpoint(t *testing.T) {
	at := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	require.Equal(t, "IT", toEvent(1, carrier.RawEvent{Time: at, Code: "IT"}).EventType)
	require.Equal(t, eventTypeCheckpoint, toEvent(1, carrier.RawEvent{Time: at}).EventType)
}
