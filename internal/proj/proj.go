// Package proj converts geographic WGS84 coordinates into the MGI /
// Austria Lambert grid (EPSG:4326 -> EPSG:31287).
package proj

import "math"

// Bessel 1841, the MGI reference ellipsoid.
const (
	besselA  = 6377397.155
	besselRF = 299.1528128
)

// WGS84 ellipsoid.
const (
	wgs84A  = 6378137.0
	wgs84RF = 298.257223563
)

// MGI to WGS84 position-vector Helmert parameters (EPSG:1618).
// Rotations in arc seconds, scale in ppm.
const (
	helmertTX = 577.326
	helmertTY = 90.129
	helmertTZ = 463.919
	helmertRX = 5.137
	helmertRY = 1.474
	helmertRZ = 5.297
	helmertDS = 2.4232
)

// Lambert Conformal Conic 2SP parameters of EPSG:31287.
const (
	lambertLat1    = 49.0
	lambertLat2    = 46.0
	lambertLatO    = 47.5
	lambertLonO    = 13.0 + 20.0/60.0
	lambertFalseE  = 400000.0
	lambertFalseN  = 400000.0
)

const arcSec = math.Pi / 180.0 / 3600.0

// Projector is a fixed geographic-to-projected transform. All derived
// projection constants are computed once in New; Project carries no
// mutable state and is safe for concurrent use.
type Projector struct {
	e2Bessel float64
	eBessel  float64
	e2WGS    float64

	n  float64
	aF float64 // a * F
	r0 float64

	rx, ry, rz, scale float64
}

// New initializes the EPSG:4326 -> EPSG:31287 transform.
func New() *Projector {
	p := &Projector{}

	fB := 1.0 / besselRF
	p.e2Bessel = fB * (2 - fB)
	p.eBessel = math.Sqrt(p.e2Bessel)

	fW := 1.0 / wgs84RF
	p.e2WGS = fW * (2 - fW)

	p.rx = helmertRX * arcSec
	p.ry = helmertRY * arcSec
	p.rz = helmertRZ * arcSec
	p.scale = 1.0 + helmertDS*1e-6

	// EPSG method 9802 constants.
	lat1 := lambertLat1 * math.Pi / 180
	lat2 := lambertLat2 * math.Pi / 180
	latO := lambertLatO * math.Pi / 180

	m1 := p.m(lat1)
	m2 := p.m(lat2)
	t1 := p.t(lat1)
	t2 := p.t(lat2)
	tO := p.t(latO)

	p.n = (math.Log(m1) - math.Log(m2)) / (math.Log(t1) - math.Log(t2))
	p.aF = besselA * m1 / (p.n * math.Pow(t1, p.n))
	p.r0 = p.aF * math.Pow(tO, p.n)

	return p
}

// Project converts a geographic WGS84 coordinate to Austria Lambert
// easting/northing in meters.
func (p *Projector) Project(lat, lon float64) (x, y float64) {
	latMGI, lonMGI := p.toMGI(lat*math.Pi/180, lon*math.Pi/180)
	return p.forward(latMGI, lonMGI)
}

func (p *Projector) m(lat float64) float64 {
	s := math.Sin(lat)
	return math.Cos(lat) / math.Sqrt(1-p.e2Bessel*s*s)
}

func (p *Projector) t(lat float64) float64 {
	s := math.Sin(lat)
	return math.Tan(math.Pi/4-lat/2) /
		math.Pow((1-p.eBessel*s)/(1+p.eBessel*s), p.eBessel/2)
}

// forward applies the Lambert Conformal Conic 2SP projection to an MGI
// geodetic coordinate (radians).
func (p *Projector) forward(lat, lon float64) (x, y float64) {
	r := p.aF * math.Pow(p.t(lat), p.n)
	theta := p.n * (lon - lambertLonO*math.Pi/180)

	x = lambertFalseE + r*math.Sin(theta)
	y = lambertFalseN + p.r0 - r*math.Cos(theta)
	return x, y
}

// toMGI shifts a WGS84 geodetic coordinate (radians) onto the MGI datum
// via the inverted EPSG:1618 Helmert transform in ECEF space.
func (p *Projector) toMGI(lat, lon float64) (latMGI, lonMGI float64) {
	xw, yw, zw := geodeticToECEF(lat, lon, wgs84A, p.e2WGS)

	ux := (xw - helmertTX) / p.scale
	uy := (yw - helmertTY) / p.scale
	uz := (zw - helmertTZ) / p.scale

	xm := ux + p.rz*uy - p.ry*uz
	ym := -p.rz*ux + uy + p.rx*uz
	zm := p.ry*ux - p.rx*uy + uz

	return ecefToGeodetic(xm, ym, zm, besselA, p.e2Bessel)
}

func geodeticToECEF(lat, lon, a, e2 float64) (x, y, z float64) {
	s := math.Sin(lat)
	nu := a / math.Sqrt(1-e2*s*s)

	x = nu * math.Cos(lat) * math.Cos(lon)
	y = nu * math.Cos(lat) * math.Sin(lon)
	z = nu * (1 - e2) * s
	return x, y, z
}

func ecefToGeodetic(x, y, z, a, e2 float64) (lat, lon float64) {
	lon = math.Atan2(y, x)

	rho := math.Hypot(x, y)
	lat = math.Atan2(z, rho*(1-e2))
	for i := 0; i < 8; i++ {
		s := math.Sin(lat)
		nu := a / math.Sqrt(1-e2*s*s)
		lat = math.Atan2(z+e2*nu*s, rho)
	}
	return lat, lon
}
