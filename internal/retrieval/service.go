package retrieval

import (
	"context"
	"sort"
	"time"

	"taskmesh/internal/config"
	"taskmesh/internal/persistence/databases"
)

// Embedder is the narrow slice of Router's surface Retrieval depends on
// (spec.md §9: "Retrieval depends on Router, not vice versa"). Accepting
// an interface here rather than importing the concrete Router type keeps
// the dependency one-directional at compile time too.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Snippet is one relevance-ordered piece of context.
type Snippet struct {
	NodeID     string  `json:"node_id"`
	Content    string  `json:"content"`
	Similarity float64 `json:"similarity"`
	Domain     string  `json:"domain,omitempty"`
	IsStandard bool    `json:"is_standard,omitempty"`
}

// ContextBlock is Retrieval's Context() output (spec.md §4.4).
type ContextBlock struct {
	Snippets  []Snippet `json:"snippets"`
	FromCache bool      `json:"from_cache"`
}

// Service implements spec.md §4.4's Context(goal, precomputedEmbedding?)
// operation, grounded on the teacher's RAG pipeline shape in
// internal/rag, generalized to the cache → primary-vector-search →
// substring-fallback → rerank → snippet pipeline the spec names exactly.
type Service struct {
	knowledge databases.KnowledgeStore
	embedder  Embedder
	cache     ContextCache
	clocks    *StageClocks
	cfg       config.RAGConfig
}

func NewService(cfg config.RAGConfig, knowledge databases.KnowledgeStore, embedder Embedder, cache ContextCache, clocks *StageClocks) *Service {
	return &Service{knowledge: knowledge, embedder: embedder, cache: cache, clocks: clocks, cfg: cfg}
}

// Context runs the full algorithm from spec.md §4.4 steps 1-6.
func (s *Service) Context(ctx context.Context, goal, domain string, precomputed []float32) (ContextBlock, error) {
	if block, ok := s.cache.Get(ctx, goal); ok {
		block.FromCache = true
		return block, nil
	}

	embedding := precomputed
	if len(embedding) == 0 {
		embedStart := time.Now()
		vec, err := s.embedder.Embed(ctx, goal)
		s.clocks.observeEmbed(time.Since(embedStart))
		if err != nil {
			return ContextBlock{}, err
		}
		embedding = vec
	}

	prepareStart := time.Now()
	topK := s.cfg.TopK
	if topK <= 0 {
		topK = 5
	}
	fetchK := topK
	if s.cfg.Rerank {
		fetchK = topK * 2
	}

	primary, err := s.knowledge.Search(ctx, embedding, fetchK, domain)
	if err != nil {
		return ContextBlock{}, err
	}
	threshold := s.cfg.SimThreshold
	if threshold <= 0 {
		threshold = 0.6
	}
	hits := make([]databases.ScoredNode, 0, len(primary))
	for _, sn := range primary {
		if sn.Similarity >= threshold {
			hits = append(hits, sn)
		}
	}

	if len(hits) < topK {
		keywords := extractKeywords(goal, 3)
		remaining := fetchK - len(hits)
		fallback, err := s.knowledge.SearchByKeywords(ctx, keywords, remaining)
		if err == nil {
			hits = append(hits, fallback...)
		}
	}

	if s.cfg.Rerank {
		for i := range hits {
			hits[i].Similarity = hits[i].Similarity * lengthBonus(len(hits[i].Node.Content))
		}
		sort.SliceStable(hits, func(i, j int) bool { return hits[i].Similarity > hits[j].Similarity })
	}
	if len(hits) > topK {
		hits = hits[:topK]
	}

	snippetChars := s.cfg.SnippetChars
	if snippetChars <= 0 {
		snippetChars = 500
	}
	top1Max := s.cfg.Top1FullMaxChars
	if top1Max <= 0 {
		top1Max = 2000
	}
	top1Unique := isTop1SimilarityUnique(hits)

	snippets := make([]Snippet, 0, len(hits))
	for i, sn := range hits {
		snippets = append(snippets, Snippet{
			NodeID:     sn.Node.ID,
			Content:    snippetFor(sn.Node.Content, snippetChars, top1Max, i == 0 && top1Unique),
			Similarity: sn.Similarity,
			Domain:     sn.Node.Metadata.Domain,
			IsStandard: sn.Node.Metadata.IsStandard,
		})
	}
	s.clocks.observePrepare(time.Since(prepareStart))

	block := ContextBlock{Snippets: snippets}
	s.cache.Put(ctx, goal, block)
	for _, sn := range hits {
		_ = s.knowledge.IncrementUsage(ctx, sn.Node.ID)
	}
	return block, nil
}

// ObservePlan records the llm_plan_ms stage clock for the LLM planning step
// Retrieval itself does not perform. No caller in this module invokes it,
// so no llm_plan_ms samples are recorded.
func (s *Service) ObservePlan(d time.Duration) { s.clocks.observePlan(d) }

func (s *Service) Snapshot() Snapshot { return s.clocks.Snapshot() }

// isTop1SimilarityUnique reports whether hits[0]'s similarity is strictly
// greater than every other hit's, per spec.md §4.4 step 6.
func isTop1SimilarityUnique(hits []databases.ScoredNode) bool {
	if len(hits) == 0 {
		return false
	}
	top := hits[0].Similarity
	for _, h := range hits[1:] {
		if h.Similarity >= top {
			return false
		}
	}
	return true
}
