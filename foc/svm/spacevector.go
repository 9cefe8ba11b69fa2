package svm

import "gofoc/foc/transform"

// sectorOf maps the sign pattern of the projections X=β, Y=(β+√3α)/2,
// Z=(β−√3α)/2 (bit0=X≥0, bit1=Y≥0, bit2=Z≥0) to a sector.
// Patterns that cannot occur geometrically still map to a neighbour so the
// lookup has no gaps.
var sectorOf = [8]Sector{
	0: 5, // X<0 Y<0 Z<0
	1: 5,
	2: 6, // X<0 Y≥0 Z<0
	3: 1, // X≥0 Y≥0 Z<0
	4: 4, // X<0 Y<0 Z≥0
	5: 3, // X≥0 Y<0 Z≥0
	6: 2,
	7: 2, // X≥0 Y≥0 Z≥0
}

// sectorStart holds cos and sin of the sector's starting angle (k-1)·60°
var sectorStart = [7][2]float32{
	{1, 0},
	{1, 0},
	{0.5, transform.Sqrt3 / 2},
	{-0.5, transform.Sqrt3 / 2},
	{-1, 0},
	{-0.5, -transform.Sqrt3 / 2},
	{0.5, -transform.Sqrt3 / 2},
}

// states are the upper-switch patterns of the active vectors V1..V6,
// repeated so V(k+1) is always states[k+1].
var states = [8][3]float32{
	{0, 0, 0},
	{1, 0, 0}, // V1 100
	{1, 1, 0}, // V2 110
	{0, 1, 0}, // V3 010
	{0, 1, 1}, // V4 011
	{0, 0, 1}, // V5 001
	{1, 0, 1}, // V6 101
	{1, 0, 0}, // V1 again
}

// Classify returns the sector containing v. The origin reports sector 0.
func Classify(v transform.Stationary) Sector {
	if v.Alpha == 0 && v.Beta == 0 {
		return 0
	}
	sqrt3Alpha := transform.Sqrt3 * v.Alpha
	x := v.Beta
	y := (v.Beta + sqrt3Alpha) / 2
	z := (v.Beta - sqrt3Alpha) / 2

	var idx uint8
	if x >= 0 {
		idx |= 1
	}
	if y >= 0 {
		idx |= 2
	}
	if z >= 0 {
		idx |= 4
	}
	return sectorOf[idx]
}

// OnTimes returns the normalised dwell times of the first and second active
// vector of sector k and of the null vectors.
func OnTimes(v transform.Stationary, k Sector, vbus float32) (t1, t2, t0 float32) {
	c, s := sectorStart[k][0], sectorStart[k][1]
	// Rotate into the sector frame so the angle is in [0°, 60°)
	x := v.Alpha*c + v.Beta*s
	y := -v.Alpha*s + v.Beta*c

	t1 = (1.5*x - transform.Sqrt3/2*y) / vbus
	t2 = transform.Sqrt3 * y / vbus

	// Rounding at sector edges and the hexagon boundary
	if t1 < 0 {
		t1 = 0
	}
	if t2 < 0 {
		t2 = 0
	}
	if sum := t1 + t2; sum > 1 {
		t1 /= sum
		t2 /= sum
	}
	t0 = 1 - t1 - t2
	return t1, t2, t0
}

func spaceVector(v transform.Stationary, vbus, zero float32) (Duty, Sector) {
	k := Classify(v)
	t1, t2, _ := OnTimes(v, k, vbus)

	first, second := states[k], states[k+1]
	// Centre the null time around the configured zero duty
	base := zero - (t1+t2)/2
	if base < 0 {
		base = 0
	} else if base+t1+t2 > 1 {
		base = 1 - t1 - t2
	}

	d := Duty{
		A: base + t1*first[0] + t2*second[0],
		B: base + t1*first[1] + t2*second[1],
		C: base + t1*first[2] + t2*second[2],
	}
	return d.clamped(), k
}

func sinusoidal(v transform.Stationary, vbus, zero float32) (Duty, Sector) {
	p := transform.InverseClarke(v, transform.AmplitudeInvariant)
	d := Duty{
		A: zero + p.A/vbus,
		B: zero + p.B/vbus,
		C: zero + p.C/vbus,
	}
	return d.clamped(), Classify(v)
}

// block drives a phase high when its inverse Clarke voltage is above dead,
// low when below -dead, and leaves it at the zero duty otherwise. The
// sector uses the unclamped vector so it follows the command.
func block(v transform.Stationary, zero, dead float32) (Duty, Sector) {
	p := transform.InverseClarke(v, transform.AmplitudeInvariant)
	d := Duty{
		A: zero + level(p.A, dead)/2,
		B: zero + level(p.B, dead)/2,
		C: zero + level(p.C, dead)/2,
	}
	return d.clamped(), Classify(v)
}

func level(v, dead float32) float32 {
	switch {
	case v > dead:
		return 1
	case v < -dead:
		return -1
	}
	return 0
}

func (d Duty) clamped() Duty {
	return Duty{A: unit(d.A), B: unit(d.B), C: unit(d.C)}
}

func unit(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Average reconstructs the average stationary voltage produced by a duty
// triple at bus voltage vbus. Common-mode offset cancels out.
func Average(d Duty, vbus float32) transform.Stationary {
	return transform.Clarke(transform.ThreePhase{
		A: d.A * vbus,
		B: d.B * vbus,
		C: d.C * vbus,
	}, transform.AmplitudeInvariant)
}
