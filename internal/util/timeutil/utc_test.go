package timeutil

import (
	"testing"
	"time"
)

func TestUTCTime(t *testing.T) {
	loc := time.FixedZone("X", 3*3600)
	src := time.Date(2024, 5, 1, 12, 0, 0, 0, loc)
	u := FromTime(src)
	if u.UTC().Hour() != 9 {
		t.Fatalf("bad hour: %v", u.UTC())
	}
	data, err := u.MarshalText()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var v UTCTime
	if err := v.UnmarshalText(data); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if v.Compare(u) != 0 {
		t.Fatalf("roundtrip mismatch: %v != %v", v, u)
	}
	later := u.Add(time.Minute)
	if !u.Before(later) || !later.After(u) || later.Sub(u) != time.Minute {
		t.Fatalf("bad ordering")
	}
	var scanned UTCTime
	if err := scanned.Scan(src); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if scanned.Compare(u) != 0 {
		t.Fatalf("scan mismatch")
	}
}
