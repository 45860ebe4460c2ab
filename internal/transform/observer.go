package transform

import "math"

// WGS-84 ellipsoid.
const (
	wgs84A  = 6378137.0 // meters
	wgs84F  = 1 / 298.257223563
	wgs84E2 = wgs84F * (2 - wgs84F)
)

const (
	deg = math.Pi / 180
	rad = 180 / math.Pi
)

// Geodetic is a WGS-84 position.
type Geodetic struct {
	LatDeg float64
	LonDeg float64
	AltKm  float64
}

// Geodetic converts p to latitude, longitude and height above the ellipsoid
// by fixed-point iteration on the latitude.
func (p PositionECEF) Geodetic() Geodetic {
	lon := math.Atan2(p.Y, p.X)
	rho := math.Hypot(p.X, p.Y)

	lat := math.Atan2(p.Z, rho*(1-wgs84E2))
	var n float64
	for i := 0; i < 6; i++ {
		s := math.Sin(lat)
		n = primeVerticalRadius(s)
		lat = math.Atan2(p.Z+wgs84E2*n*s, rho)
	}

	s, c := math.Sincos(lat)
	n = primeVerticalRadius(s)
	var alt float64
	if math.Abs(c) > 1e-10 {
		alt = rho/c - n
	} else {
		alt = math.Abs(p.Z)/math.Abs(s) - n*(1-wgs84E2)
	}
	return Geodetic{LatDeg: lat * rad, LonDeg: lon * rad, AltKm: alt / 1000}
}

func primeVerticalRadius(sinLat float64) float64 {
	return wgs84A / math.Sqrt(1-wgs84E2*sinLat*sinLat)
}

// Observer is a ground site. Its Earth-fixed position and local frame are
// computed once so it can look at many satellites cheaply.
type Observer struct {
	Site Geodetic
	ecef [3]float64 // meters

	sinLat, cosLat, sinLon, cosLon float64
}

// NewObserver creates an observer at latDeg, lonDeg and altM meters above
// the WGS-84 ellipsoid.
func NewObserver(latDeg, lonDeg, altM float64) Observer {
	sinLat, cosLat := math.Sincos(latDeg * deg)
	sinLon, cosLon := math.Sincos(lonDeg * deg)
	n := primeVerticalRadius(sinLat)

	return Observer{
		Site: Geodetic{LatDeg: latDeg, LonDeg: lonDeg, AltKm: altM / 1000},
		ecef: [3]float64{
			(n + altM) * cosLat * cosLon,
			(n + altM) * cosLat * sinLon,
			(n*(1-wgs84E2) + altM) * sinLat,
		},
		sinLat: sinLat, cosLat: cosLat,
		sinLon: sinLon, cosLon: cosLon,
	}
}

// ECEF returns the observer's Earth-fixed position.
func (o Observer) ECEF() PositionECEF {
	return PositionECEF{X: o.ecef[0], Y: o.ecef[1], Z: o.ecef[2]}
}

// LookAngles locate a satellite in an observer's sky.
type LookAngles struct {
	AzimuthDeg   float64 // from north, clockwise, [0, 360)
	ElevationDeg float64
	RangeKm      float64
}

// Look returns the look angles from o to a satellite at p, using the
// south-east-zenith frame (Vallado §4.4).
func (o Observer) Look(p PositionECEF) LookAngles {
	dx, dy, dz := p.X-o.ecef[0], p.Y-o.ecef[1], p.Z-o.ecef[2]

	south := o.sinLat*o.cosLon*dx + o.sinLat*o.sinLon*dy - o.cosLat*dz
	east := -o.sinLon*dx + o.cosLon*dy
	zenith := o.cosLat*o.cosLon*dx + o.cosLat*o.sinLon*dy + o.sinLat*dz
	r := math.Sqrt(south*south + east*east + zenith*zenith)

	az := math.Atan2(east, -south) * rad
	if az < 0 {
		az += 360
	}
	return LookAngles{
		AzimuthDeg:   az,
		ElevationDeg: math.Asin(zenith/r) * rad,
		RangeKm:      r / 1000,
	}
}
