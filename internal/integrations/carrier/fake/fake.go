package fake

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/BearBump/ParcelHub/internal/integrations/carrier"
	"github.com/BearBump/ParcelHub/internal/lifecycle"
)

// Gateway имитирует шлюз локально, для демо и разработки.
// Ответы детерминированы по номеру: одинаковый номер даёт одинаковую историю,
// так что повторные синхронизации не плодят события.
type Gateway struct {
	mu         sync.Mutex
	registered map[string]carrier.RegisterItem
	epoch      time.Time
}

var _ carrier.Gateway = (*Gateway)(nil)

func New() *Gateway {
	return &Gateway{
		registered: make(map[string]carrier.RegisterItem),
		epoch:      time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

var detectable = []string{"100002", "100003", "100001", "21051", "190271"}

var stages = []struct {
	status int
	desc   string
	loc    string
}{
	{lifecycle.VendorInTransit, "Shipment information received", "Origin facility"},
	{lifecycle.VendorInTransit, "Departed from origin facility", "Origin hub"},
	{lifecycle.VendorPickupReady, "Arrived at destination facility", "Destination hub"},
	{lifecycle.VendorDelivered, "Delivered", "Forwarding warehouse"},
}

func (g *Gateway) Register(ctx context.Context, items []carrier.RegisterItem) (carrier.RegisterResult, error) {
	numbers := make([]string, 0, len(items))
	for _, it := range items {
		numbers = append(numbers, it.Number)
	}
	if err := carrier.ValidateNumbers(numbers); err != nil {
		return carrier.RegisterResult{}, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	res := carrier.RegisterResult{}
	for _, it := range items {
		g.registered[it.Number] = it
		res.Accepted = append(res.Accepted, it)
	}
	return res, nil
}

func (g *Gateway) GetInfo(ctx context.Context, numbers []string) ([]carrier.TrackingInfo, error) {
	if err := carrier.ValidateNumbers(numbers); err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]carrier.TrackingInfo, 0, len(numbers))
	for _, n := range numbers {
		reg := g.registered[n]
		h := hash(n)
		code := reg.Carrier
		if code == "" {
			code = detectable[h%uint32(len(detectable))]
		}

		// 1..len(stages) checkpoints, 20% of numbers end up delivered
		depth := int(h%uint32(len(stages))) + 1
		base := g.epoch.Add(time.Duration(h%720) * time.Hour)
		item := carrier.TrackItem{
			Number:  n,
			Carrier: json.Number(code),
			Tag:     reg.Tag,
			Track:   &carrier.TrackBody{Status: stages[depth-1].status},
		}
		for i := 0; i < depth; i++ {
			item.Track.Events = append(item.Track.Events, carrier.TrackEvent{
				Time:        base.Add(time.Duration(i*6) * time.Hour).Format(time.RFC3339),
				Code:        fmt.Sprintf("S%d", i+1),
				Description: stages[i].desc,
				Location:    stages[i].loc,
			})
		}
		out = append(out, item.Info())
	}
	return out, nil
}

func (g *Gateway) DetectCarrier(ctx context.Context, number string) ([]string, error) {
	if err := carrier.ValidateNumbers([]string{number}); err != nil {
		return nil, err
	}
	return []string{detectable[hash(number)%uint32(len(detectable))]}, nil
}

func (g *Gateway) DeleteTracking(ctx context.Context, numbers []string) error {
	if err := carrier.ValidateNumbers(numbers); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, n := range numbers {
		delete(g.registered, n)
	}
	return nil
}

// Registered reports whether the number is currently registered.
func (g *Gateway) Registered(number string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.registered[number]
	return ok
}

func hash(s string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return h.Sum32()
}
