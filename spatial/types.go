// Copyright 2026 The PipJoin Authors
//
// SPDX-License-Identifier: Apache-2.0
package spatial

import (
	"regexp"
	"strconv"
)

// Point represents a geographical point with longitude and latitude.
type Point struct {
	Lng float64 `json:"lng"`
	Lat float64 `json:"lat"`
}

// String returns the WKT representation of the Point.
func (p Point) String() string {
	return "POINT(" + FormatCoord(p.Lng) + " " + FormatCoord(p.Lat) + ")"
}

// FormatCoord formats a coordinate with the shortest representation that
// round-trips, so a literal extracted from a remote payload is emitted
// back unmodified.
func FormatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Point literals as emitted by WKT-speaking services, e.g. `POINT(147.1 -39.2)'.
var pointPattern = regexp.MustCompile(`POINT\s?\((-?\d+(?:\.\d+)?) (-?\d+(?:\.\d+)?)\)`)

// FindPoint locates the first WKT-like point literal embedded in text.
// The text may be a JSON document, an RDF serialization or anything else
// that happens to carry a `POINT(x y)' token.
func FindPoint(text string) (Point, bool) {
	m := pointPattern.FindStringSubmatch(text)
	if m == nil {
		return Point{}, false
	}

	lng, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return Point{}, false
	}

	lat, err := strconv.ParseFloat(m[2], 64)
	if err != nil {
		return Point{}, false
	}

	return Point{Lng: lng, Lat: lat}, true
}
