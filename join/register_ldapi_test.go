// Copyright 2026 The PipJoin Authors
// SPDX-License-Identifier: Apache-2.0

package join

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pipjoin/spatial"
)

func TestLinkedDataRegisterGetIDs(t *testing.T) {
	var gotQuery string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery

		assert.Equal(t, "application/json", r.Header.Get("Accept"))

		w.Header().Set("Link", `<`+r.Host+`?page=3&per_page=10>; rel="next", <`+r.Host+`?page=1&per_page=10>; rel="prev"`)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"register_items": [
				["http://linked.data.gov.au/dataset/gnaf/address/GAACT714845933", "Address 1"],
				["http://linked.data.gov.au/dataset/gnaf/address/GAACT714845934", "Address 2"]
			]
		}`))
	}))
	defer srv.Close()

	r := NewLinkedDataRegister(srv.URL, srv.Client())

	page, err := r.GetIDs(context.Background(), 2, 10)
	require.NoError(t, err)

	assert.Equal(t, "page=2&per_page=10", gotQuery)

	expected := Page{
		IDs: []string{
			"http://linked.data.gov.au/dataset/gnaf/address/GAACT714845933",
			"http://linked.data.gov.au/dataset/gnaf/address/GAACT714845934",
		},
		HasMore: true,
	}
	if diff := cmp.Diff(expected, page); diff != "" {
		t.Errorf("page mismatch (-expected +got):\n%s", diff)
	}
}

func TestLinkedDataRegisterLastPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// no Link header with rel="next" on the last page
		w.Header().Set("Link", `<`+r.Host+`?page=1&per_page=10>; rel="prev"`)
		_, _ = w.Write([]byte(`{"register_items": [["urn:example:last"]]}`))
	}))
	defer srv.Close()

	r := NewLinkedDataRegister(srv.URL, srv.Client())

	page, err := r.GetIDs(context.Background(), 2, 10)
	require.NoError(t, err)
	assert.False(t, page.HasMore)
	assert.Equal(t, []string{"urn:example:last"}, page.IDs)
}

func TestLinkedDataRegisterGetIDsFailures(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", "<html>service unavailable</html>"},
		{"item not a string", `{"register_items": [[42]]}`},
		{"empty item", `{"register_items": [[]]}`},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(test.body))
			}))
			defer srv.Close()

			r := NewLinkedDataRegister(srv.URL, srv.Client())

			_, err := r.GetIDs(context.Background(), 1, 10)
			require.Error(t, err)

			var batchErr *FetchIDBatchError
			require.ErrorAs(t, err, &batchErr)
			assert.Equal(t, 1, batchErr.Page)
		})
	}
}

func TestLinkedDataRegisterGetPoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{
			"uri": "http://linked.data.gov.au/dataset/gnaf/address/GAACT714845933",
			"geometry": "<http://www.opengis.net/def/crs/EPSG/0/4283> POINT(149.03865 -35.32251)"
		}`))
	}))
	defer srv.Close()

	r := NewLinkedDataRegister(srv.URL, srv.Client())

	p, err := r.GetPoint(context.Background(), srv.URL+"/address/GAACT714845933")
	require.NoError(t, err)
	assert.Equal(t, spatial.Point{Lng: 149.03865, Lat: -35.32251}, p)
}

func TestLinkedDataRegisterGetPointNoLiteral(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"uri": "urn:example:1", "geometry": null}`))
	}))
	defer srv.Close()

	r := NewLinkedDataRegister(srv.URL, srv.Client())

	_, err := r.GetPoint(context.Background(), srv.URL+"/address/GAACT714845933")
	require.Error(t, err)

	var pointErr *FetchPointError
	require.ErrorAs(t, err, &pointErr)
	assert.Equal(t, srv.URL+"/address/GAACT714845933", pointErr.ID)
}

func TestHasNextLink(t *testing.T) {
	tests := []struct {
		name     string
		links    []string
		expected bool
	}{
		{"no headers", nil, false},
		{"next only", []string{`<http://example.org/?page=2>; rel="next"`}, true},
		{"prev only", []string{`<http://example.org/?page=1>; rel="prev"`}, false},
		{"several relations in one header", []string{`<http://example.org/?page=1>; rel="prev", <http://example.org/?page=3>; rel="next"`}, true},
		{"several headers", []string{`<http://example.org/?page=1>; rel="first"`, `<http://example.org/?page=3>; rel="next"`}, true},
		{"unquoted rel", []string{`<http://example.org/?page=3>; rel=next`}, true},
		{"space separated rel list", []string{`<http://example.org/?page=3>; rel="next last"`}, true},
		{"substring does not count", []string{`<http://example.org/?page=3>; rel="nexter"`}, false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.expected, hasNextLink(test.links))
		})
	}
}
