package index

import "time"

// Stats is a diagnostic summary of the index.
type Stats struct {
	TotalFiles        int            `json:"totalFiles"`
	IndexedFiles      int            `json:"indexedFiles"` // files whose content was indexed
	TotalTokens       int            `json:"totalTokens"`
	LastBuild         time.Time      `json:"lastBuild"`
	LastBuildDuration time.Duration  `json:"lastBuildDuration"`
	Building          bool           `json:"building"`
	ByCategory        map[string]int `json:"byCategory"`
	BySpace           map[string]int `json:"bySpace"`
}

// Stats reports file, token and build counters.
func (ix *Indexer) Stats() Stats {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	s := Stats{
		TotalFiles:        len(ix.st.files),
		TotalTokens:       len(ix.st.tokens),
		LastBuild:         ix.lastBuild,
		LastBuildDuration: ix.lastBuildDuration,
		Building:          ix.building.Load(),
		ByCategory:        make(map[string]int),
		BySpace:           make(map[string]int),
	}
	for _, f := range ix.st.files {
		if f.ContentHash != 0 {
			s.IndexedFiles++
		}
		s.ByCategory[string(f.Category)]++
		s.BySpace[f.SpaceName]++
	}
	return s
}
