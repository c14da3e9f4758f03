// Package graph builds and queries the network of major stations used
// to propose transfer points. Nodes are major stations (selected by
// name markers), edges carry the minimum observed travel time in
// minutes between two stations adjacent on some trip.
package graph

import (
	"container/heap"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"schiene.dev/railplan/model"
	"schiene.dev/railplan/storage"
)

// ErrUnbuildable indicates the graph could not be constructed from the
// timetable store. Unlike an empty path search result, this is an
// operational fault and must surface to the caller.
var ErrUnbuildable = errors.New("network graph cannot be built")

const (
	DefaultWeightRatio     = 1.20
	DefaultMaxAlternatives = 32
	DefaultCutoff          = 4

	tripChunkSize = 1000
)

type Options struct {
	// Stations whose name contains one of these markers become
	// graph nodes.
	Markers []string

	// Alternative paths must have total weight within this ratio of
	// the shortest path's weight.
	WeightRatio float64

	// At most this many alternative paths are examined.
	MaxAlternatives int

	// Maximum number of edges in an alternative path.
	Cutoff int
}

func (o Options) withDefaults() Options {
	if len(o.Markers) == 0 {
		o.Markers = []string{"Hbf", "Hauptbahnhof"}
	}
	if o.WeightRatio <= 1.0 {
		o.WeightRatio = DefaultWeightRatio
	}
	if o.MaxAlternatives <= 0 {
		o.MaxAlternatives = DefaultMaxAlternatives
	}
	if o.Cutoff <= 0 {
		o.Cutoff = DefaultCutoff
	}
	return o
}

type Node struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Lat   float64 `json:"lat"`
	Lon   float64 `json:"lon"`
	Score float64 `json:"score"`
}

// Network is immutable once built. Concurrent readers need no locking.
type Network struct {
	Nodes map[string]*Node

	// Edges[from][to] is the minimum travel time in minutes.
	Edges map[string]map[string]int

	opts Options
}

// Build constructs the network from the timetable store: every trip's
// stop sequence is restricted to major stations, and each consecutive
// pair contributes a directed edge. Platform children collapse into
// their parent station.
func Build(ctx context.Context, reader storage.TimetableReader, opts Options) (*Network, error) {
	opts = opts.withDefaults()

	stations, err := reader.StationsMatching(ctx, opts.Markers)
	if err != nil {
		return nil, fmt.Errorf("%w: loading major stations: %v", ErrUnbuildable, err)
	}
	if len(stations) == 0 {
		return nil, fmt.Errorf("%w: no stations match markers %v", ErrUnbuildable, opts.Markers)
	}

	n := &Network{
		Nodes: map[string]*Node{},
		Edges: map[string]map[string]int{},
		opts:  opts,
	}

	// Map every matched station (and its platform children's IDs) to
	// a canonical node.
	canonical := map[string]string{}
	stationIDs := make([]string, 0, len(stations))
	for _, st := range stations {
		stationIDs = append(stationIDs, st.ID)

		nodeID := st.ID
		if st.ParentID != "" {
			nodeID = st.ParentID
		}
		canonical[st.ID] = nodeID

		if node, found := n.Nodes[nodeID]; found {
			// The parent's own record wins the name
			if st.ID == nodeID {
				node.Name = st.Name
				node.Lat = st.Lat
				node.Lon = st.Lon
			}
			continue
		}
		n.Nodes[nodeID] = &Node{
			ID:   nodeID,
			Name: st.Name,
			Lat:  st.Lat,
			Lon:  st.Lon,
		}
	}

	tripIDs, err := reader.TripsVia(ctx, stationIDs)
	if err != nil {
		return nil, fmt.Errorf("%w: loading trips: %v", ErrUnbuildable, err)
	}

	for start := 0; start < len(tripIDs); start += tripChunkSize {
		end := start + tripChunkSize
		if end > len(tripIDs) {
			end = len(tripIDs)
		}

		stopTimes, err := reader.StopTimesForTrips(ctx, tripIDs[start:end])
		if err != nil {
			return nil, fmt.Errorf("%w: loading stop times: %v", ErrUnbuildable, err)
		}

		n.addTripEdges(stopTimes, canonical)
	}

	n.computeScores()

	return n, nil
}

// addTripEdges walks stop times (ordered by trip and sequence),
// restricts each trip to major stations and adds an edge per
// consecutive pair.
func (n *Network) addTripEdges(stopTimes []*model.StopTime, canonical map[string]string) {
	var prevTrip string
	var prev *model.StopTime
	var prevNode string

	for _, st := range stopTimes {
		if st.TripID != prevTrip {
			prevTrip = st.TripID
			prev = nil
			prevNode = ""
		}

		nodeID, major := canonical[st.StationID]
		if !major {
			continue
		}

		if prev != nil && nodeID != prevNode {
			depMin, depErr := model.ParseClock(prev.Departure)
			arrMin, arrErr := model.ParseClock(st.Arrival)
			if depErr == nil && arrErr == nil {
				n.addEdge(prevNode, nodeID, model.ClockDiff(depMin, arrMin))
			}
		}

		prev = st
		prevNode = nodeID
	}
}

func (n *Network) addEdge(from, to string, weight int) {
	if n.Edges[from] == nil {
		n.Edges[from] = map[string]int{}
	}
	if existing, found := n.Edges[from][to]; !found || weight < existing {
		n.Edges[from][to] = weight
	}
}

// Degree counts incoming plus outgoing edges.
func (n *Network) Degree(nodeID string) int {
	degree := len(n.Edges[nodeID])
	for _, targets := range n.Edges {
		if _, found := targets[nodeID]; found {
			degree++
		}
	}
	return degree
}

func (n *Network) computeScores() {
	inDegree := map[string]int{}
	for _, targets := range n.Edges {
		for to := range targets {
			inDegree[to]++
		}
	}
	for id, node := range n.Nodes {
		node.Score = float64(len(n.Edges[id]) + inDegree[id])
	}
}

// Node name normalization: lowercase, principal-station synonyms
// unified, "(Main)"-style qualifiers dropped.
func normalizeName(name string) string {
	s := strings.ToLower(name)
	s = strings.ReplaceAll(s, "(main)", " ")
	s = strings.ReplaceAll(s, " hbf", " hauptbahnhof")
	return strings.Join(strings.Fields(s), " ")
}

// ResolveNode finds the graph node best matching a free-text station
// name. Exact normalized match wins; among substring candidates the
// node with the highest degree is preferred.
func (n *Network) ResolveNode(name string) (string, bool) {
	needle := normalizeName(name)
	if needle == "" {
		return "", false
	}

	bestID := ""
	bestDegree := -1
	for id, node := range n.Nodes {
		normalized := normalizeName(node.Name)
		if normalized == needle {
			return id, true
		}
		if strings.Contains(normalized, needle) || strings.Contains(needle, normalized) {
			if d := n.Degree(id); d > bestDegree {
				bestID, bestDegree = id, d
			}
		}
	}

	return bestID, bestID != ""
}

type pqItem struct {
	id   string
	dist int
}

type priorityQueue []pqItem

func (pq priorityQueue) Len() int            { return len(pq) }
func (pq priorityQueue) Less(i, j int) bool  { return pq[i].dist < pq[j].dist }
func (pq priorityQueue) Swap(i, j int)       { pq[i], pq[j] = pq[j], pq[i] }
func (pq *priorityQueue) Push(x interface{}) { *pq = append(*pq, x.(pqItem)) }
func (pq *priorityQueue) Pop() interface{} {
	old := *pq
	item := old[len(old)-1]
	*pq = old[:len(old)-1]
	return item
}

// ShortestPath runs Dijkstra from one node to another. The bool is
// false when no path exists.
func (n *Network) ShortestPath(from, to string) ([]string, int, bool) {
	if _, found := n.Nodes[from]; !found {
		return nil, 0, false
	}
	if _, found := n.Nodes[to]; !found {
		return nil, 0, false
	}

	dist := map[string]int{from: 0}
	prev := map[string]string{}
	done := map[string]bool{}

	pq := &priorityQueue{{id: from, dist: 0}}
	for pq.Len() > 0 {
		item := heap.Pop(pq).(pqItem)
		if done[item.id] {
			continue
		}
		done[item.id] = true

		if item.id == to {
			break
		}

		for next, weight := range n.Edges[item.id] {
			candidate := item.dist + weight
			if existing, found := dist[next]; !found || candidate < existing {
				dist[next] = candidate
				prev[next] = item.id
				heap.Push(pq, pqItem{id: next, dist: candidate})
			}
		}
	}

	total, found := dist[to]
	if !found || !done[to] {
		return nil, 0, false
	}

	path := []string{to}
	for path[len(path)-1] != from {
		path = append(path, prev[path[len(path)-1]])
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}

	return path, total, true
}

// alternativePaths enumerates simple paths from one node to another,
// depth-first, bounded by hop cutoff and a weight budget. At most
// opts.MaxAlternatives paths are collected.
func (n *Network) alternativePaths(from, to string, maxWeight int) [][]string {
	paths := [][]string{}
	onPath := map[string]bool{from: true}
	path := []string{from}

	var walk func(current string, weight int)
	walk = func(current string, weight int) {
		if len(paths) >= n.opts.MaxAlternatives {
			return
		}
		if current == to {
			collected := make([]string, len(path))
			copy(collected, path)
			paths = append(paths, collected)
			return
		}
		if len(path)-1 >= n.opts.Cutoff {
			return
		}

		// Visit cheaper edges first so the collection cap keeps
		// the most promising paths.
		targets := make([]string, 0, len(n.Edges[current]))
		for next := range n.Edges[current] {
			targets = append(targets, next)
		}
		sort.Slice(targets, func(i, j int) bool {
			wi, wj := n.Edges[current][targets[i]], n.Edges[current][targets[j]]
			if wi != wj {
				return wi < wj
			}
			return targets[i] < targets[j]
		})

		for _, next := range targets {
			if onPath[next] {
				continue
			}
			nextWeight := weight + n.Edges[current][next]
			if nextWeight > maxWeight {
				continue
			}

			onPath[next] = true
			path = append(path, next)
			walk(next, nextWeight)
			path = path[:len(path)-1]
			onPath[next] = false
		}
	}
	walk(from, 0)

	return paths
}

// IntermediateStations proposes transfer stations between two named
// endpoints: the interior nodes of the shortest path and of all
// alternative paths within the weight ratio, ranked by importance
// score. An empty result means no resolution or no path, which is a
// normal outcome.
func (n *Network) IntermediateStations(origin, destination string) []string {
	fromID, found := n.ResolveNode(origin)
	if !found {
		return []string{}
	}
	toID, found := n.ResolveNode(destination)
	if !found || fromID == toID {
		return []string{}
	}

	shortest, weight, found := n.ShortestPath(fromID, toID)
	if !found {
		return []string{}
	}

	interior := map[string]bool{}
	for _, id := range shortest[1 : len(shortest)-1] {
		interior[id] = true
	}

	maxWeight := int(float64(weight) * n.opts.WeightRatio)
	for _, path := range n.alternativePaths(fromID, toID, maxWeight) {
		for _, id := range path[1 : len(path)-1] {
			interior[id] = true
		}
	}

	ids := make([]string, 0, len(interior))
	for id := range interior {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		si, sj := n.Nodes[ids[i]].Score, n.Nodes[ids[j]].Score
		if si != sj {
			return si > sj
		}
		return ids[i] < ids[j]
	})

	names := make([]string, 0, len(ids))
	for _, id := range ids {
		names = append(names, n.Nodes[id].Name)
	}

	return names
}

type snapshotEdge struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Weight int    `json:"weight"`
}

type snapshot struct {
	Nodes []*Node        `json:"nodes"`
	Edges []snapshotEdge `json:"edges"`
}

// Save serializes the graph to a JSON snapshot. Node and edge
// attributes round-trip exactly.
func (n *Network) Save(path string) error {
	snap := snapshot{}

	for _, node := range n.Nodes {
		snap.Nodes = append(snap.Nodes, node)
	}
	sort.Slice(snap.Nodes, func(i, j int) bool { return snap.Nodes[i].ID < snap.Nodes[j].ID })

	for from, targets := range n.Edges {
		for to, weight := range targets {
			snap.Edges = append(snap.Edges, snapshotEdge{From: from, To: to, Weight: weight})
		}
	}
	sort.Slice(snap.Edges, func(i, j int) bool {
		if snap.Edges[i].From != snap.Edges[j].From {
			return snap.Edges[i].From < snap.Edges[j].From
		}
		return snap.Edges[i].To < snap.Edges[j].To
	})

	buf, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("serializing graph: %w", err)
	}

	if err := os.WriteFile(path, buf, 0644); err != nil {
		return fmt.Errorf("writing graph snapshot: %w", err)
	}

	return nil
}

// Load reads a JSON snapshot written by Save. A missing or corrupt
// snapshot is an error; the caller decides whether to rebuild.
func Load(path string, opts Options) (*Network, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading graph snapshot: %w", err)
	}

	snap := snapshot{}
	if err := json.Unmarshal(buf, &snap); err != nil {
		return nil, fmt.Errorf("parsing graph snapshot: %w", err)
	}

	n := &Network{
		Nodes: map[string]*Node{},
		Edges: map[string]map[string]int{},
		opts:  opts.withDefaults(),
	}
	for _, node := range snap.Nodes {
		n.Nodes[node.ID] = node
	}
	for _, e := range snap.Edges {
		if _, found := n.Nodes[e.From]; !found {
			return nil, fmt.Errorf("snapshot edge references unknown node '%s'", e.From)
		}
		if _, found := n.Nodes[e.To]; !found {
			return nil, fmt.Errorf("snapshot edge references unknown node '%s'", e.To)
		}
		n.addEdge(e.From, e.To, e.Weight)
	}

	return n, nil
}
