package domain

import "testing"

func TestTransferMinutes(t *testing.T) {
	cases := []struct {
		from, to HospitalId
		want     float64
	}{
		{Modelo, CHUAC, 8},
		{CHUAC, Modelo, 8},
		{SanRafael, CHUAC, 10},
		{CHUAC, SanRafael, 10},
		{Modelo, SanRafael, 15},
		{SanRafael, Modelo, 15},
		{CHUAC, CHUAC, 0},
		{HospitalId("nope"), CHUAC, 12},
	}
	for _, c := range cases {
		if got := TransferMinutes(c.from, c.to); got != c.want {
			t.Errorf("TransferMinutes(%s, %s) = %v, want %v", c.from, c.to, got, c.want)
		}
	}
}

func TestHospitalIdValid(t *testing.T) {
	for _, h := range AllHospitals() {
		if !h.Valid() {
			t.Errorf("%s should be valid", h)
		}
	}
	if HospitalId("nope").Valid() {
		t.Error("unexpected hospital should not be valid")
	}
}

func TestIsReferenceCenter(t *testing.T) {
	if !CHUAC.IsReferenceCenter() {
		t.Error("CHUAC must be the reference center")
	}
	if Modelo.IsReferenceCenter() || SanRafael.IsReferenceCenter() {
		t.Error("only CHUAC is the reference center")
	}
}
