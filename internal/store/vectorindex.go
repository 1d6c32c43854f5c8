package store

import (
	"bufio"
	"encoding/gob"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/coder/hnsw"
)

// vectorIndex wraps a coder/hnsw.Graph, adapted from the teacher's
// HNSWStore: string row IDs are mapped to the uint64 keys the graph
// requires, and deletions are lazy (the node stays in the graph, only the
// id mapping is dropped) since coder/hnsw has a known bug removing the
// last remaining node via Delete.
type vectorIndex struct {
	mu     sync.RWMutex
	graph  *hnsw.Graph[uint64]
	dims   int
	path   string
	idMap  map[string]uint64
	keyMap map[uint64]string
	nextID uint64
}

type vectorIndexMetadata struct {
	IDMap  map[string]uint64
	NextID uint64
	Dims   int
}

func newVectorIndex(path string, dims int) *vectorIndex {
	g := hnsw.NewGraph[uint64]()
	g.Distance = hnsw.CosineDistance
	g.M = 16
	g.EfSearch = 20
	g.Ml = 0.25

	return &vectorIndex{
		graph:  g,
		dims:   dims,
		path:   path,
		idMap:  make(map[string]uint64),
		keyMap: make(map[uint64]string),
	}
}

// loadOrNewVectorIndex loads path+".meta"/path if present, else starts
// empty.
func loadOrNewVectorIndex(path string, dims int) (*vectorIndex, error) {
	v := newVectorIndex(path, dims)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return v, nil
	}

	if err := v.load(); err != nil {
		return nil, fmt.Errorf("load vector index %s: %w", path, err)
	}
	return v, nil
}

// add inserts or replaces the vector for id. Vectors are L2-normalized in
// place since the graph is configured for cosine distance.
func (v *vectorIndex) add(id string, vec []float32) error {
	if len(vec) != v.dims {
		return fmt.Errorf("vector dimension mismatch: want %d, got %d", v.dims, len(vec))
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if existing, ok := v.idMap[id]; ok {
		delete(v.keyMap, existing)
		delete(v.idMap, id)
	}

	normalized := make([]float32, len(vec))
	copy(normalized, vec)
	normalizeInPlace(normalized)

	key := v.nextID
	v.nextID++
	v.graph.Add(hnsw.MakeNode(key, normalized))
	v.idMap[id] = key
	v.keyMap[key] = id
	return nil
}

func (v *vectorIndex) delete(id string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if key, ok := v.idMap[id]; ok {
		delete(v.keyMap, key)
		delete(v.idMap, id)
	}
}

type vectorMatch struct {
	ID       string
	Distance float32
}

func (v *vectorIndex) search(query []float32, k int) ([]vectorMatch, error) {
	if len(query) != v.dims {
		return nil, fmt.Errorf("vector dimension mismatch: want %d, got %d", v.dims, len(query))
	}

	v.mu.RLock()
	defer v.mu.RUnlock()

	if v.graph.Len() == 0 {
		return nil, nil
	}

	normalized := make([]float32, len(query))
	copy(normalized, query)
	normalizeInPlace(normalized)

	nodes := v.graph.Search(normalized, k+orphanSlack(v))
	out := make([]vectorMatch, 0, len(nodes))
	for _, n := range nodes {
		id, ok := v.keyMap[n.Key]
		if !ok {
			continue
		}
		out = append(out, vectorMatch{ID: id, Distance: v.graph.Distance(normalized, n.Value)})
		if len(out) == k {
			break
		}
	}
	return out, nil
}

// orphanSlack asks the graph for a few extra candidates to absorb
// lazily-deleted orphans that would otherwise crowd out live results.
func orphanSlack(v *vectorIndex) int {
	orphans := v.graph.Len() - len(v.idMap)
	if orphans <= 0 {
		return 0
	}
	if orphans > 64 {
		return 64
	}
	return orphans
}

func (v *vectorIndex) count() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.idMap)
}

// save persists the graph and id mappings to path and path+".meta" via an
// atomic temp-file-then-rename, matching the teacher's HNSWStore.Save.
func (v *vectorIndex) save() error {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if len(v.idMap) == 0 && v.graph.Len() == 0 {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(v.path), 0o755); err != nil {
		return fmt.Errorf("create vector index directory: %w", err)
	}

	tmpPath := v.path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create vector index temp file: %w", err)
	}
	if err := v.graph.Export(f); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("export vector graph: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close vector index temp file: %w", err)
	}
	if err := os.Rename(tmpPath, v.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename vector index file: %w", err)
	}

	return v.saveMetadata()
}

func (v *vectorIndex) saveMetadata() error {
	metaPath := v.path + ".meta"
	tmpPath := metaPath + ".tmp"

	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create vector metadata temp file: %w", err)
	}

	meta := vectorIndexMetadata{IDMap: v.idMap, NextID: v.nextID, Dims: v.dims}
	if err := gob.NewEncoder(f).Encode(meta); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("encode vector metadata: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close vector metadata temp file: %w", err)
	}
	return os.Rename(tmpPath, metaPath)
}

func (v *vectorIndex) load() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	metaFile, err := os.Open(v.path + ".meta")
	if err != nil {
		return fmt.Errorf("open vector metadata: %w", err)
	}
	defer metaFile.Close()

	var meta vectorIndexMetadata
	if err := gob.NewDecoder(metaFile).Decode(&meta); err != nil {
		return fmt.Errorf("decode vector metadata: %w", err)
	}
	v.idMap = meta.IDMap
	v.nextID = meta.NextID
	if meta.Dims != 0 {
		v.dims = meta.Dims
	}
	v.keyMap = make(map[uint64]string, len(v.idMap))
	for id, key := range v.idMap {
		v.keyMap[key] = id
	}

	f, err := os.Open(v.path)
	if err != nil {
		return fmt.Errorf("open vector graph file: %w", err)
	}
	defer f.Close()

	return v.graph.Import(bufio.NewReader(f))
}

func normalizeInPlace(vec []float32) {
	var sumSq float64
	for _, x := range vec {
		sumSq += float64(x) * float64(x)
	}
	if sumSq == 0 {
		return
	}
	norm := float32(math.Sqrt(sumSq))
	for i := range vec {
		vec[i] /= norm
	}
}

// distanceToScore converts a cosine distance in [0, 2] to a similarity
// score in [0, 1], matching the teacher's convention.
func distanceToScore(distance float32) float32 {
	return 1 - distance/2
}
