package tle

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"
)

// lineLen is the fixed width of element lines 1 and 2.
const lineLen = 69

// ParseCatalog reads three-line element records (name, line 1, line 2) from r.
// Records are consumed in fixed groups of three lines. Groups that do not
// decode are logged, counted in the result and skipped; only read errors
// are returned.
func ParseCatalog(r io.Reader, logger *slog.Logger) (*ParseResult, error) {
	lines, err := readLines(r)
	if err != nil {
		return nil, fmt.Errorf("reading TLE data: %w", err)
	}

	for len(lines) > 0 && lines[0] == "" {
		lines = lines[1:]
	}
	for len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}

	res := &ParseResult{}
	for i := 0; i < len(lines); i += 3 {
		group := i / 3
		res.Groups++

		if i+2 >= len(lines) {
			res.skip(logger, &SkipError{Group: group, Name: strings.TrimSpace(lines[i]), Reason: "incomplete record"})
			break
		}

		name := strings.TrimSpace(lines[i])
		set, err := decodeRecord(name, lines[i+1], lines[i+2])
		if err != nil {
			res.skip(logger, &SkipError{Group: group, Name: name, Reason: err.Error()})
			continue
		}
		res.Sets = append(res.Sets, set)
	}
	return res, nil
}

// readLines splits r into right-trimmed lines. There is no line length limit:
// an overlong line is content like any other and fails its group's decode.
func readLines(r io.Reader) ([]string, error) {
	br := bufio.NewReader(r)
	var lines []string
	for {
		line, err := br.ReadString('\n')
		if line != "" {
			lines = append(lines, strings.TrimRight(line, "\r\n\t "))
		}
		if err == io.EOF {
			return lines, nil
		}
		if err != nil {
			return nil, err
		}
	}
}

func (r *ParseResult) skip(logger *slog.Logger, se *SkipError) {
	r.Skipped = append(r.Skipped, se)
	logger.Warn("skipping malformed TLE entry", "group", se.Group, "name", se.Name, "reason", se.Reason)
}

func decodeRecord(name, line1, line2 string) (ElementSet, error) {
	// 3LE feeds prefix the name line with "0 ".
	name = strings.TrimSpace(strings.TrimPrefix(name, "0 "))
	// Columns count from the first non-blank character.
	line1 = strings.TrimLeft(line1, " \t")
	line2 = strings.TrimLeft(line2, " \t")
	if name == "" {
		return ElementSet{}, fmt.Errorf("empty name line")
	}
	if !strings.HasPrefix(line1, "1 ") {
		return ElementSet{}, fmt.Errorf("line 1 does not start with \"1 \"")
	}
	if !strings.HasPrefix(line2, "2 ") {
		return ElementSet{}, fmt.Errorf("line 2 does not start with \"2 \"")
	}
	if len(line1) < lineLen {
		return ElementSet{}, fmt.Errorf("line 1 has %d columns, want %d", len(line1), lineLen)
	}
	if len(line2) < lineLen {
		return ElementSet{}, fmt.Errorf("line 2 has %d columns, want %d", len(line2), lineLen)
	}

	id, err := parseCatalogNumber(line1[2:7])
	if err != nil {
		return ElementSet{}, err
	}
	id2, err := parseCatalogNumber(line2[2:7])
	if err != nil {
		return ElementSet{}, err
	}
	if id != id2 {
		return ElementSet{}, fmt.Errorf("catalog number mismatch: line 1 %d, line 2 %d", id, id2)
	}

	epoch, err := parseEpoch(strings.TrimSpace(line1[18:32]))
	if err != nil {
		return ElementSet{}, err
	}

	es := ElementSet{
		CatalogID:      id,
		Name:           name,
		Classification: line1[7],
		Designator:     strings.TrimSpace(line1[9:17]),
		Epoch:          epoch,
		Line1:          line1[:lineLen],
		Line2:          line2[:lineLen],
	}

	var p fieldParser
	es.MeanMotionDot = p.float("mean motion derivative", line1[33:43])
	es.MeanMotionDDot = p.implied("mean motion second derivative", line1[44:52])
	es.BStar = p.implied("drag term", line1[53:61])
	es.InclinationDeg = p.float("inclination", line2[8:16])
	es.RAANDeg = p.float("right ascension", line2[17:25])
	es.Eccentricity = p.float("eccentricity", "0."+strings.TrimSpace(line2[26:33]))
	es.ArgPerigeeDeg = p.float("argument of perigee", line2[34:42])
	es.MeanAnomalyDeg = p.float("mean anomaly", line2[43:51])
	es.MeanMotion = p.float("mean motion", line2[52:63])
	es.RevNumber = p.int("revolution number", line2[63:68])
	if p.err != nil {
		return ElementSet{}, p.err
	}

	switch {
	case es.MeanMotion <= 0:
		return ElementSet{}, fmt.Errorf("mean motion %g is not positive", es.MeanMotion)
	case es.InclinationDeg < 0 || es.InclinationDeg > 180:
		return ElementSet{}, fmt.Errorf("inclination %g out of range", es.InclinationDeg)
	}
	return es, nil
}

// fieldParser records the first decode failure so a record can be decoded
// field by field without checking every step.
type fieldParser struct {
	err error
}

func (p *fieldParser) float(field, s string) float64 {
	if p.err != nil {
		return 0
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		p.err = fmt.Errorf("invalid %s %q", field, strings.TrimSpace(s))
		return 0
	}
	return v
}

func (p *fieldParser) int(field, s string) int {
	if p.err != nil {
		return 0
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		p.err = fmt.Errorf("invalid %s %q", field, s)
		return 0
	}
	return v
}

// implied decodes the exponential notation used for the drag terms, e.g.
// " 10270-3" = 0.10270e-3 and "-11606-4" = -0.11606e-4.
func (p *fieldParser) implied(field, s string) float64 {
	if p.err != nil {
		return 0
	}
	v, err := parseImplied(s)
	if err != nil {
		p.err = fmt.Errorf("invalid %s %q: %w", field, strings.TrimSpace(s), err)
		return 0
	}
	return v
}

func parseImplied(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	sign := 1.0
	switch s[0] {
	case '-':
		sign = -1
		s = s[1:]
	case '+':
		s = s[1:]
	}
	mantissa, exp := s, 0
	if idx := strings.LastIndexAny(s, "+-"); idx > 0 {
		mantissa = s[:idx]
		e, err := strconv.Atoi(s[idx:])
		if err != nil {
			return 0, err
		}
		exp = e
	}
	m, err := strconv.ParseFloat("0."+strings.TrimSpace(mantissa), 64)
	if err != nil {
		return 0, err
	}
	return sign * m * math.Pow10(exp), nil
}

// parseCatalogNumber accepts plain five-digit numbers and Alpha-5 numbers,
// where a leading letter (I and O excluded) encodes 10..33 ten-thousands.
func parseCatalogNumber(s string) (int, error) {
	raw := s
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty catalog number")
	}
	prefix := 0
	if c := s[0]; c >= 'A' && c <= 'Z' {
		if c == 'I' || c == 'O' {
			return 0, fmt.Errorf("invalid catalog number %q", raw)
		}
		v := int(c-'A') + 10
		if c > 'I' {
			v--
		}
		if c > 'O' {
			v--
		}
		prefix = v * 10000
		s = s[1:]
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid catalog number %q", raw)
	}
	return prefix + n, nil
}

// parseEpoch converts a TLE epoch string in YYDDD.DDDDDDDD format to time.Time.
// Year 00-56 → 2000s, 57-99 → 1900s.
func parseEpoch(s string) (time.Time, error) {
	if len(s) < 5 {
		return time.Time{}, fmt.Errorf("epoch string too short: %q", s)
	}

	yearStr := s[:2]
	dayStr := s[2:]

	year, err := strconv.Atoi(yearStr)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid epoch year %q: %w", yearStr, err)
	}

	if year >= 57 {
		year += 1900
	} else {
		year += 2000
	}

	dayOfYear, err := strconv.ParseFloat(dayStr, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid epoch day %q: %w", dayStr, err)
	}
	if dayOfYear < 1 || dayOfYear >= 367 {
		return time.Time{}, fmt.Errorf("epoch day %g out of range", dayOfYear)
	}

	// dayOfYear is 1-based: day 1 = Jan 1.
	t := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
	return t.Add(time.Duration((dayOfYear - 1) * float64(24*time.Hour))), nil
}
