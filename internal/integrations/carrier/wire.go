package carrier

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"time"
)

// TrackItem is the gateway's JSON shape of one tracked number. It is shared by
// gettrackinfo responses and by pushed webhook payloads.
type TrackItem struct {
	Number  string      `json:"number"`
	Carrier json.Number `json:"carrier,omitempty"`
	Tag     string      `json:"tag,omitempty"`
	Track   *TrackBody  `json:"track,omitempty"`
}

type TrackBody struct {
	Status      int          `json:"status"`
	CarrierName string       `json:"carrier_name,omitempty"`
	Origin      string       `json:"origin,omitempty"`
	Destination string       `json:"destination,omitempty"`
	Weight      string       `json:"weight,omitempty"`
	Events      []TrackEvent `json:"events,omitempty"`
}

type TrackEvent struct {
	Time        string `json:"time"`
	Code        string `json:"code,omitempty"`
	Description string `json:"description"`
	Location    string `json:"location,omitempty"`
}

var eventTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
}

// ParseEventTime accepts RFC3339 and the gateway's zone-less layouts (treated as UTC).
func ParseEventTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range eventTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// Info converts the wire item. Events with an unparseable time keep a zero
// Time, callers decide what to do with them. Events are ordered oldest first.
func (it TrackItem) Info() TrackingInfo {
	info := TrackingInfo{
		Number:      strings.TrimSpace(it.Number),
		Tag:         it.Tag,
		CarrierCode: carrierCode(it.Carrier),
	}
	if raw, err := json.Marshal(it); err == nil {
		info.Raw = raw
	}
	if it.Track == nil {
		return info
	}

	info.StatusCode = it.Track.Status
	info.Origin = it.Track.Origin
	info.Destination = it.Track.Destination
	info.Weight = it.Track.Weight
	info.CarrierName = it.Track.CarrierName
	if info.CarrierName == "" && info.CarrierCode != "" {
		info.CarrierName = CarrierName(info.CarrierCode)
	}

	for _, e := range it.Track.Events {
		ts, _ := ParseEventTime(e.Time)
		raw, _ := json.Marshal(e)
		info.Events = append(info.Events, RawEvent{
			Time:        ts,
			Code:        e.Code,
			Description: strings.TrimSpace(e.Description),
			Location:    strings.TrimSpace(e.Location),
			Raw:         raw,
		})
	}
	sort.SliceStable(info.Events, func(i, j int) bool {
		return info.Events[i].Time.Before(info.Events[j].Time)
	})
	return info
}

func carrierCode(n json.Number) string {
	s := strings.TrimSpace(n.String())
	if s == "" || s == "0" {
		return ""
	}
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return strconv.FormatInt(v, 10)
	}
	return s
}
