package wialon

import (
	"encoding/json"
	"time"
)

// Device is one vendor-reported tracking unit. Position is absent when the
// unit has never reported a fix.
type Device struct {
	ID       int64     `json:"id"`
	Name     string    `json:"nm"`
	Position *Position `json:"pos,omitempty"`
}

// Position is a unit's last known fix. The vendor encodes it with one-letter
// keys and a unix-seconds timestamp; decoding normalises those into named
// fields and a UTC time.Time.
type Position struct {
	RecordedAt  time.Time
	SensorFlags int
	Latitude    float64
	Longitude   float64
	Course      int
	Altitude    float64
	Speed       int
	Satellites  int
}

type positionWire struct {
	T  int64   `json:"t"`
	F  int     `json:"f"`
	Y  float64 `json:"y"`
	X  float64 `json:"x"`
	C  int     `json:"c"`
	Z  float64 `json:"z"`
	S  int     `json:"s"`
	Sc int     `json:"sc"`
}

func (p *Position) UnmarshalJSON(data []byte) error {
	var w positionWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	p.RecordedAt = time.Unix(w.T, 0).UTC()
	p.SensorFlags = w.F
	p.Latitude = w.Y
	p.Longitude = w.X
	p.Course = w.C
	p.Altitude = w.Z
	p.Speed = w.S
	p.Satellites = w.Sc
	return nil
}

// MarshalJSON keeps the vendor's key set so fetch_samples output matches
// what operators see in the vendor's own tooling, with the timestamp
// rendered as RFC 3339 instead of unix seconds.
func (p Position) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		T  string  `json:"t"`
		F  int     `json:"f"`
		Y  float64 `json:"y"`
		X  float64 `json:"x"`
		C  int     `json:"c"`
		Z  float64 `json:"z"`
		S  int     `json:"s"`
		Sc int     `json:"sc"`
	}{
		T:  p.RecordedAt.Format(time.RFC3339),
		F:  p.SensorFlags,
		Y:  p.Latitude,
		X:  p.Longitude,
		C:  p.Course,
		Z:  p.Altitude,
		S:  p.Speed,
		Sc: p.Satellites,
	})
}

// searchSpec is the fixed query the connector issues: every avl_unit, sorted
// by system name, with name and id properties.
type searchSpec struct {
	ItemsType     string `json:"itemsType"`
	PropName      string `json:"propName"`
	PropValueMask string `json:"propValueMask"`
	SortType      string `json:"sortType"`
}

type searchParams struct {
	Spec  searchSpec `json:"spec"`
	Force int        `json:"force"`
	Flags int        `json:"flags"`
	From  int        `json:"from"`
	To    int        `json:"to"`
}

func defaultSearchParams() searchParams {
	return searchParams{
		Spec: searchSpec{
			ItemsType:     "avl_unit",
			PropName:      "sys_name, sys_id",
			PropValueMask: "*",
			SortType:      "sys_name",
		},
		Force: 1,
		Flags: 1025,
		From:  0,
		To:    0,
	}
}

// loginResponse is the envelope of svc=token/login: eid on success, a
// non-zero error code otherwise.
type loginResponse struct {
	Eid    string `json:"eid"`
	Error  int    `json:"error"`
	Reason string `json:"reason"`
}

// searchResponse is the envelope of svc=core/search_items. Items stays raw
// until the envelope-level error code has been checked.
type searchResponse struct {
	Error  int             `json:"error"`
	Reason string          `json:"reason"`
	Items  json.RawMessage `json:"items"`
}
