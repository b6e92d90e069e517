package httpapi

import (
	"net/http"
	"sort"
)

// RouteDoc describes one HTTP route so operators and tooling can discover the
// control surface without reading the source.
type RouteDoc struct {
	Method      string `json:"method"`
	Path        string `json:"path"`
	Description string `json:"description"`
	Admin       bool   `json:"admin,omitempty"`
}

var routeDocs = []RouteDoc{
	{Method: http.MethodGet, Path: "/livez", Description: "Liveness probe."},
	{Method: http.MethodGet, Path: "/readyz", Description: "Readiness probe; 503 while the pool cannot supply a viewpoint."},
	{Method: http.MethodGet, Path: "/metrics", Description: "Prometheus text metrics for the loop, controller and capture."},
	{Method: http.MethodGet, Path: "/viewpoint", Description: "Active viewpoint, controller status and counters."},
	{Method: http.MethodGet, Path: "/viewpoints/history", Description: "Recent viewpoint changes, oldest first; ?limit=N bounds the list."},
	{Method: http.MethodPost, Path: "/focus", Description: `Frame an object ({"object":..., "region":...}), an area ({"area":...}) or clear focus ({"clear":true}).`, Admin: true},
	{Method: http.MethodPost, Path: "/visible-area", Description: "Require a sized region to stay in view.", Admin: true},
	{Method: http.MethodDelete, Path: "/visible-area", Description: "Return to tracking the subject position alone.", Admin: true},
	{Method: http.MethodPost, Path: "/activate", Description: `Toggle auto selection ({"enabled":bool}).`, Admin: true},
	{Method: http.MethodPost, Path: "/subject", Description: "Move the tracked subject.", Admin: true},
	{Method: http.MethodPost, Path: "/placements", Description: "Search free resting positions for an object on or inside another.", Admin: true},
	{Method: http.MethodGet, Path: "/ws", Description: "Websocket feed of viewpoint changes; ?auth_token= or a Bearer token when a feed secret is set."},
}

// RouteDocsHandler serves the route catalogue sorted by path then method.
func RouteDocsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		//1.- Work on a copy so concurrent requests never reorder the shared slice.
		docs := append([]RouteDoc(nil), routeDocs...)
		sort.SliceStable(docs, func(i, j int) bool {
			if docs[i].Path == docs[j].Path {
				return docs[i].Method < docs[j].Method
			}
			return docs[i].Path < docs[j].Path
		})
		writeJSON(w, http.StatusOK, docs)
	}
}
