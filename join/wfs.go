// Copyright 2026 The PipJoin Authors
// SPDX-License-Identifier: Apache-2.0

package join

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/html/charset"

	"pipjoin/spatial"
)

const (
	gmlNamespace = "http://www.opengis.net/gml"
	wfsNamespace = "http://www.opengis.net/wfs"
)

// WFSOptions configure the polygon layer to search.
type WFSOptions struct {
	// URL of the WFS service endpoint
	URL string

	// Layer is the name of the layer to query, including prefix
	Layer string

	// GeometryField is the name of the geometry attribute used for PIP
	GeometryField string

	// LayerID is the name of the identifier attribute, including prefix
	LayerID string

	// NSShort is the namespace prefix of the layer and its identifier
	NSShort string

	// NSURL is the namespace URL for NSShort
	NSURL string
}

// WFSMatcher searches a WFS polygon layer for the feature containing a
// point, using an OGC GetFeature request with a single-point spatial
// filter.
type WFSMatcher struct {
	opts    WFSOptions
	client  *http.Client
	layer   xml.Name
	layerID xml.Name
}

// NewWFSMatcher creates a matcher for the configured layer. A nil client
// falls back to http.DefaultClient.
func NewWFSMatcher(opts WFSOptions, client *http.Client) *WFSMatcher {
	if client == nil {
		client = http.DefaultClient
	}

	ns := map[string]string{
		"gml":        gmlNamespace,
		"wfs":        wfsNamespace,
		opts.NSShort: opts.NSURL,
	}

	return &WFSMatcher{
		opts:    opts,
		client:  client,
		layer:   resolveQName(opts.Layer, ns),
		layerID: resolveQName(opts.LayerID, ns),
	}
}

// resolveQName turns a `prefix:local' name into an xml.Name with the
// namespace URL the prefix is bound to. Unknown prefixes and unprefixed
// names resolve to a bare local name that matches any namespace.
func resolveQName(name string, ns map[string]string) xml.Name {
	prefix, local, ok := strings.Cut(name, ":")
	if !ok {
		return xml.Name{Local: name}
	}

	return xml.Name{Space: ns[prefix], Local: local}
}

func matchName(got, want xml.Name) bool {
	if got.Local != want.Local {
		return false
	}

	return want.Space == "" || got.Space == want.Space
}

// queryURL renders the GetFeature request for one point. The spatial
// predicate is inserted verbatim; the service is the one that validates
// it.
func (m *WFSMatcher) queryURL(p spatial.Point, predicate string) string {
	filter := fmt.Sprintf(
		`<Filter xmlns="http://www.opengis.net/ogc" xmlns:gml="%s">`+
			`<%s><PropertyName>%s</PropertyName>`+
			`<gml:Point srsName="EPSG:4283"><gml:coordinates>%s,%s</gml:coordinates></gml:Point>`+
			`</%s></Filter>`,
		gmlNamespace,
		predicate,
		m.opts.GeometryField,
		spatial.FormatCoord(p.Lng),
		spatial.FormatCoord(p.Lat),
		predicate,
	)

	q := url.Values{}
	q.Set("service", "WFS")
	q.Set("request", "GetFeature")
	q.Set("version", "1.0.0")
	q.Set("typeName", m.opts.Layer)
	q.Set("outputFormat", "GML2")
	q.Set("FILTER", filter)
	q.Set("PropertyName", m.opts.LayerID)

	return m.opts.URL + "?" + q.Encode()
}

// ObtainID runs the point-in-polygon search and returns the identifier
// of the matching feature. An empty identifier with a nil error means no
// feature contained the point. When several features come back, the last
// one in response order wins: a point usually resolves to one polygon,
// but the pipeline tolerates several.
func (m *WFSMatcher) ObtainID(ctx context.Context, p spatial.Point, predicate string) (id string, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.queryURL(p, predicate), nil)
	if err != nil {
		return "", &PIPError{Err: err}
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return "", &PIPError{Err: err}
	}

	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("closing resp.Body: %w", cerr))
		}
	}()

	id, perr := m.parseFeatureCollection(resp.Body)
	if perr != nil {
		return "", &PIPError{Err: perr}
	}

	return id, err
}

// parseFeatureCollection streams through the GML2 response looking for
// featureMember > layer > identifier elements.
func (m *WFSMatcher) parseFeatureCollection(r io.Reader) (string, error) {
	dec := xml.NewDecoder(r)
	dec.CharsetReader = charset.NewReaderLabel

	var (
		stack     []xml.Name
		text      strings.Builder
		capturing bool
		sawRoot   bool
		id        string
	)

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return "", fmt.Errorf("parsing feature collection: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			sawRoot = true

			stack = append(stack, t.Name)
			if m.atIdentifier(stack) {
				capturing = true

				text.Reset()
			}
		case xml.EndElement:
			if capturing && m.atIdentifier(stack) {
				id = text.String()
				capturing = false
			}

			stack = stack[:len(stack)-1]
		case xml.CharData:
			if capturing {
				text.Write(t)
			}
		}
	}

	if !sawRoot {
		return "", errors.New("empty response, no feature collection")
	}

	return id, nil
}

// atIdentifier reports whether the element path currently open ends in
// gml:featureMember > layer > identifier.
func (m *WFSMatcher) atIdentifier(stack []xml.Name) bool {
	n := len(stack)
	if n < 3 {
		return false
	}

	return matchName(stack[n-3], xml.Name{Space: gmlNamespace, Local: "featureMember"}) &&
		matchName(stack[n-2], m.layer) &&
		matchName(stack[n-1], m.layerID)
}
