package propagation

import (
	"math"
	"time"

	"github.com/star/orbitrisk/internal/tle"
)

// WGS-84 gravity model constants used by SGP4.
const (
	muEarth  = 398600.5 // km^3/s^2
	earthRad = 6378.137 // km
	j2       = 0.00108262998905
	j3       = -0.00000253215306
	j4       = -0.00000161098761
	j3oj2    = j3 / j2
	x2o3     = 2.0 / 3.0
	twoPi    = 2 * math.Pi
	deg2rad  = math.Pi / 180
	xpdotp   = 1440.0 / twoPi // rev/day per rad/min

	// reentryRadius is the geocentric radius below which a satellite is
	// treated as decayed: polar radius plus 80 km.
	reentryRadius = 6356.752 + 80.0 // km

	keplerMaxIter = 10
	keplerTol     = 1e-12

	// keplerResidual is the largest final Newton step accepted as converged.
	keplerResidual = 1e-9
)

var (
	xke       = 60.0 / math.Sqrt(earthRad*earthRad*earthRad/muEarth) // sqrt(mu) in earth radii^1.5/min
	vkmpersec = earthRad * xke / 60.0
)

// nativeModel is the near-earth SGP4 theory (Vallado 2006 revision) with
// every epoch-dependent coefficient computed once at initialization.
type nativeModel struct {
	id    int
	epoch time.Time

	// mean elements at epoch, radians and rad/min
	ecco, inclo, nodeo, argpo, mo, bstar float64
	noUnkozai                            float64

	isimp                               bool
	ao, eta, sinmao, delmo              float64
	con41, x1mth2, x7thm1, cosio, sinio float64
	cc1, cc4, cc5, d2, d3, d4           float64
	mdot, argpdot, nodedot, nodecf      float64
	omgcof, xmcof, t2cof, t3cof, t4cof  float64
	t5cof, xlcof, aycof                 float64
}

func newNative(es tle.ElementSet) (*nativeModel, error) {
	m := &nativeModel{
		id:    es.CatalogID,
		epoch: es.Epoch,
		ecco:  es.Eccentricity,
		inclo: es.InclinationDeg * deg2rad,
		nodeo: es.RAANDeg * deg2rad,
		argpo: es.ArgPerigeeDeg * deg2rad,
		mo:    es.MeanAnomalyDeg * deg2rad,
		bstar: es.BStar,
	}
	noKozai := es.MeanMotion / xpdotp

	for _, v := range []float64{m.ecco, m.inclo, m.nodeo, m.argpo, m.mo, m.bstar, noKozai} {
		if !finite(v) {
			return nil, diverged(m.id, 0, "non-finite mean element")
		}
	}
	if noKozai <= 0 {
		return nil, decayed(m.id, 0, "mean motion %g rev/day is not positive", es.MeanMotion)
	}
	if m.ecco < 0 || m.ecco >= 1 {
		return nil, diverged(m.id, 0, "eccentricity %g outside [0, 1)", m.ecco)
	}

	// Recover the original mean motion and semi-major axis from the
	// Kozai mean motion in the element set.
	eccsq := m.ecco * m.ecco
	omeosq := 1 - eccsq
	rteosq := math.Sqrt(omeosq)
	m.cosio = math.Cos(m.inclo)
	cosio2 := m.cosio * m.cosio
	ak := math.Pow(xke/noKozai, x2o3)
	d1 := 0.75 * j2 * (3*cosio2 - 1) / (rteosq * omeosq)
	del := d1 / (ak * ak)
	adel := ak * (1 - del*del - del*(1.0/3.0+134*del*del/81))
	del = d1 / (adel * adel)
	m.noUnkozai = noKozai / (1 + del)

	if twoPi/m.noUnkozai >= deepSpacePeriod {
		return nil, &Error{CatalogID: m.id, Kind: ErrDeepSpace, Detail: "orbital period at or above 225 minutes"}
	}

	m.ao = math.Pow(xke/m.noUnkozai, x2o3)
	m.sinio = math.Sin(m.inclo)
	po := m.ao * omeosq
	con42 := 1 - 5*cosio2
	m.con41 = -con42 - cosio2 - cosio2
	posq := po * po
	rp := m.ao * (1 - m.ecco)

	// Simplified drag for perigee below 220 km.
	m.isimp = rp < 220/earthRad+1

	// Atmospheric density parameters, adjusted for low perigee.
	sfour := 78/earthRad + 1
	qzms24 := math.Pow((120-78)/earthRad, 4)
	perige := (rp - 1) * earthRad
	if perige < 156 {
		s4 := perige - 78
		if perige < 98 {
			s4 = 20
		}
		qzms24 = math.Pow((120-s4)/earthRad, 4)
		sfour = s4/earthRad + 1
	}

	pinvsq := 1 / posq
	tsi := 1 / (m.ao - sfour)
	m.eta = m.ao * m.ecco * tsi
	etasq := m.eta * m.eta
	eeta := m.ecco * m.eta
	psisq := math.Abs(1 - etasq)
	coef := qzms24 * math.Pow(tsi, 4)
	coef1 := coef / math.Pow(psisq, 3.5)
	cc2 := coef1 * m.noUnkozai * (m.ao*(1+1.5*etasq+eeta*(4+etasq)) +
		0.375*j2*tsi/psisq*m.con41*(8+3*etasq*(8+etasq)))
	m.cc1 = m.bstar * cc2
	cc3 := 0.0
	if m.ecco > 1e-4 {
		cc3 = -2 * coef * tsi * j3oj2 * m.noUnkozai * m.sinio / m.ecco
	}
	m.x1mth2 = 1 - cosio2
	m.cc4 = 2 * m.noUnkozai * coef1 * m.ao * omeosq *
		(m.eta*(2+0.5*etasq) + m.ecco*(0.5+2*etasq) -
			j2*tsi/(m.ao*psisq)*(-3*m.con41*(1-2*eeta+etasq*(1.5-0.5*eeta))+
				0.75*m.x1mth2*(2*etasq-eeta*(1+etasq))*math.Cos(2*m.argpo)))
	m.cc5 = 2 * coef1 * m.ao * omeosq * (1 + 2.75*(etasq+eeta) + eeta*etasq)

	// Secular rates.
	cosio4 := cosio2 * cosio2
	temp1 := 1.5 * j2 * pinvsq * m.noUnkozai
	temp2 := 0.5 * temp1 * j2 * pinvsq
	temp3 := -0.46875 * j4 * pinvsq * pinvsq * m.noUnkozai
	m.mdot = m.noUnkozai + 0.5*temp1*rteosq*m.con41 +
		0.0625*temp2*rteosq*(13-78*cosio2+137*cosio4)
	m.argpdot = -0.5*temp1*con42 + 0.0625*temp2*(7-114*cosio2+395*cosio4) +
		temp3*(3-36*cosio2+49*cosio4)
	xhdot1 := -temp1 * m.cosio
	m.nodedot = xhdot1 + (0.5*temp2*(4-19*cosio2)+2*temp3*(3-7*cosio2))*m.cosio

	m.omgcof = m.bstar * cc3 * math.Cos(m.argpo)
	if m.ecco > 1e-4 {
		m.xmcof = -x2o3 * coef * m.bstar / eeta
	}
	m.nodecf = 3.5 * omeosq * xhdot1 * m.cc1
	m.t2cof = 1.5 * m.cc1

	// Guard the division for inclinations near 180 degrees.
	den := 1 + m.cosio
	if math.Abs(den) <= 1.5e-12 {
		den = 1.5e-12
	}
	m.xlcof = -0.25 * j3oj2 * m.sinio * (3 + 5*m.cosio) / den
	m.aycof = -0.5 * j3oj2 * m.sinio
	m.delmo = math.Pow(1+m.eta*math.Cos(m.mo), 3)
	m.sinmao = math.Sin(m.mo)
	m.x7thm1 = 7*cosio2 - 1

	if !m.isimp {
		cc1sq := m.cc1 * m.cc1
		m.d2 = 4 * m.ao * tsi * cc1sq
		temp := m.d2 * tsi * m.cc1 / 3
		m.d3 = (17*m.ao + sfour) * temp
		m.d4 = 0.5 * temp * m.ao * tsi * (221*m.ao + 31*sfour) * m.cc1
		m.t3cof = m.d2 + 2*cc1sq
		m.t4cof = 0.25 * (3*m.d3 + m.cc1*(12*m.d2+10*cc1sq))
		m.t5cof = 0.2 * (3*m.d4 + 12*m.cc1*m.d3 + 6*m.d2*m.d2 + 15*cc1sq*(2*m.d2+cc1sq))
	}

	// An element set that cannot be evaluated at its own epoch is unusable.
	if _, _, err := m.at(0); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *nativeModel) CatalogID() int { return m.id }
func (m *nativeModel) Epoch() time.Time { return m.epoch }

// Propagate evaluates the model at t with nanosecond time resolution.
func (m *nativeModel) Propagate(t time.Time) (StateVector, error) {
	tsince := t.Sub(m.epoch).Minutes()
	r, v, err := m.at(tsince)
	if err != nil {
		return StateVector{}, err
	}
	return StateVector{CatalogID: m.id, Time: t, Position: r, Velocity: v}, nil
}

// at returns TEME position (km) and velocity (km/s) tsince minutes from epoch.
func (m *nativeModel) at(tsince float64) (Vector, Vector, error) {
	// Secular gravity and atmospheric drag.
	xmdf := m.mo + m.mdot*tsince
	argpdf := m.argpo + m.argpdot*tsince
	nodedf := m.nodeo + m.nodedot*tsince
	argpm := argpdf
	mm := xmdf
	t2 := tsince * tsince
	nodem := nodedf + m.nodecf*t2
	tempa := 1 - m.cc1*tsince
	tempe := m.bstar * m.cc4 * tsince
	templ := m.t2cof * t2

	if !m.isimp {
		delomg := m.omgcof * tsince
		delm := m.xmcof * (math.Pow(1+m.eta*math.Cos(xmdf), 3) - m.delmo)
		temp := delomg + delm
		mm = xmdf + temp
		argpm = argpdf - temp
		t3 := t2 * tsince
		t4 := t3 * tsince
		tempa = tempa - m.d2*t2 - m.d3*t3 - m.d4*t4
		tempe += m.bstar * m.cc5 * (math.Sin(mm) - m.sinmao)
		templ += m.t3cof*t3 + t4*(m.t4cof+tsince*m.t5cof)
	}

	if tempa <= 0 {
		return Vector{}, Vector{}, decayed(m.id, tsince, "drag collapsed the semi-major axis")
	}

	am := math.Pow(xke/m.noUnkozai, x2o3) * tempa * tempa
	nm := xke / math.Pow(am, 1.5)
	em := m.ecco - tempe
	if !finite(am) || !finite(em) {
		return Vector{}, Vector{}, diverged(m.id, tsince, "non-finite mean elements")
	}
	if nm <= 0 {
		return Vector{}, Vector{}, decayed(m.id, tsince, "mean motion %g is not positive", nm)
	}
	if em >= 1 || em < -0.001 {
		return Vector{}, Vector{}, diverged(m.id, tsince, "mean eccentricity %g out of range", em)
	}
	if em < 1e-6 {
		em = 1e-6
	}
	mm += m.noUnkozai * templ
	xlm := mm + argpm + nodem
	nodem = math.Mod(nodem, twoPi)
	argpm = math.Mod(argpm, twoPi)
	xlm = math.Mod(xlm, twoPi)
	mm = math.Mod(xlm-argpm-nodem, twoPi)

	// Long-period periodics.
	axnl := em * math.Cos(argpm)
	temp := 1 / (am * (1 - em*em))
	aynl := em*math.Sin(argpm) + temp*m.aycof
	xl := mm + argpm + nodem + temp*m.xlcof*axnl

	// Kepler's equation.
	u := math.Mod(xl-nodem, twoPi)
	eo1 := u
	tem5 := 9999.9
	var sineo1, coseo1 float64
	for ktr := 1; math.Abs(tem5) >= keplerTol && ktr <= keplerMaxIter; ktr++ {
		sineo1 = math.Sin(eo1)
		coseo1 = math.Cos(eo1)
		tem5 = 1 - coseo1*axnl - sineo1*aynl
		tem5 = (u - aynl*coseo1 + axnl*sineo1 - eo1) / tem5
		if math.Abs(tem5) >= 0.95 {
			tem5 = math.Copysign(0.95, tem5)
		}
		eo1 += tem5
	}
	if !(math.Abs(tem5) < keplerResidual) {
		return Vector{}, Vector{}, diverged(m.id, tsince, "kepler solution did not converge in %d iterations (residual %g)", keplerMaxIter, tem5)
	}

	// Short-period periodics.
	ecose := axnl*coseo1 + aynl*sineo1
	esine := axnl*sineo1 - aynl*coseo1
	el2 := axnl*axnl + aynl*aynl
	pl := am * (1 - el2)
	if pl < 0 {
		return Vector{}, Vector{}, diverged(m.id, tsince, "semi-latus rectum %g is negative", pl)
	}
	rl := am * (1 - ecose)
	rdotl := math.Sqrt(am) * esine / rl
	rvdotl := math.Sqrt(pl) / rl
	betal := math.Sqrt(1 - el2)
	temp = esine / (1 + betal)
	sinu := am / rl * (sineo1 - aynl - axnl*temp)
	cosu := am / rl * (coseo1 - axnl + aynl*temp)
	su := math.Atan2(sinu, cosu)
	sin2u := (cosu + cosu) * sinu
	cos2u := 1 - 2*sinu*sinu
	temp = 1 / pl
	temp1 := 0.5 * j2 * temp
	temp2 := temp1 * temp

	mrt := rl*(1-1.5*temp2*betal*m.con41) + 0.5*temp1*m.x1mth2*cos2u
	su -= 0.25 * temp2 * m.x7thm1 * sin2u
	xnode := nodem + 1.5*temp2*m.cosio*sin2u
	xinc := m.inclo + 1.5*temp2*m.cosio*m.sinio*cos2u
	mvt := rdotl - nm*temp1*m.x1mth2*sin2u/xke
	rvdot := rvdotl + nm*temp1*(m.x1mth2*cos2u+1.5*m.con41)/xke

	// Orientation vectors.
	sinsu, cossu := math.Sin(su), math.Cos(su)
	snod, cnod := math.Sin(xnode), math.Cos(xnode)
	sini, cosi := math.Sin(xinc), math.Cos(xinc)
	xmx := -snod * cosi
	xmy := cnod * cosi
	uvec := Vector{xmx*sinsu + cnod*cossu, xmy*sinsu + snod*cossu, sini * sinsu}
	vvec := Vector{xmx*cossu - cnod*sinsu, xmy*cossu - snod*sinsu, sini * cossu}

	r := uvec.Scale(mrt * earthRad)
	v := uvec.Scale(mvt).Add(vvec.Scale(rvdot)).Scale(vkmpersec)
	if !r.finite() || !v.finite() {
		return Vector{}, Vector{}, diverged(m.id, tsince, "non-finite state vector")
	}
	if mrt < 1 || r.Norm() < reentryRadius {
		return Vector{}, Vector{}, decayed(m.id, tsince, "radius %.1f km below reentry altitude", r.Norm())
	}
	return r, v, nil
}
