package conductor

import (
	"container/list"
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"taskmesh/internal/config"
	"taskmesh/internal/model"
	"taskmesh/internal/router"
)

// Dispatcher is the narrow slice of Router's surface Conductor depends on.
type Dispatcher interface {
	Dispatch(ctx context.Context, req router.Request) (router.Response, error)
}

// Understanding is UnderstandGoal's output (spec.md §4.1 step 2).
type Understanding struct {
	Restated  string        `json:"restated"`
	Category  model.Category `json:"category"`
	FirstStep string        `json:"first_step,omitempty"`
}

var greetingWords = []string{"hi", "hello", "hey", "good morning", "good afternoon", "good evening", "howdy"}

var whatCanYouDoPhrases = []string{"what can you do", "what do you do", "help me understand what you do", "what are your capabilities"}

// classifyHeuristically recognizes the two categories spec.md §4.1 step 5
// answers from a local template without ever reaching the LLM: this keeps
// the common greeting/capabilities path at in-process latency.
func classifyHeuristically(goal string) (model.Category, bool) {
	g := strings.ToLower(strings.TrimSpace(goal))
	for _, w := range whatCanYouDoPhrases {
		if strings.Contains(g, w) {
			return model.CategoryWhatCanYouDo, true
		}
	}
	for _, w := range greetingWords {
		if g == w || strings.HasPrefix(g, w+" ") || strings.HasPrefix(g, w+",") || strings.HasPrefix(g, w+"!") {
			return model.CategoryGreeting, true
		}
	}
	return "", false
}

type understandEntry struct {
	value     Understanding
	expiresAt time.Time
}

// understandCache is an LRU-with-TTL cache keyed on (goal, sessionSummary),
// matching the shape of retrieval's context cache and router's embedding
// cache (spec.md §4.1 step 2: "keys on (goal, sessionSummary?) with TTL
// UNDERSTAND_TTL and size UNDERSTAND_MAX").
type understandCache struct {
	mu       sync.Mutex
	ttl      time.Duration
	capacity int
	ll       *list.List
	items    map[string]*list.Element
}

type understandCacheNode struct {
	key   string
	entry understandEntry
}

func newUnderstandCache(ttl time.Duration, capacity int) *understandCache {
	if capacity <= 0 {
		capacity = 500
	}
	return &understandCache{ttl: ttl, capacity: capacity, ll: list.New(), items: make(map[string]*list.Element)}
}

func understandKey(goal, sessionSummary string) string {
	sum := md5.Sum([]byte(strings.ToLower(strings.TrimSpace(goal)) + "|" + sessionSummary))
	return hex.EncodeToString(sum[:])
}

func (c *understandCache) get(key string) (Understanding, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[key]
	if !ok {
		return Understanding{}, false
	}
	node := el.Value.(*understandCacheNode)
	if c.ttl > 0 && time.Now().After(node.entry.expiresAt) {
		c.ll.Remove(el)
		delete(c.items, key)
		return Understanding{}, false
	}
	c.ll.MoveToFront(el)
	return node.entry.value, true
}

func (c *understandCache) put(key string, value Understanding) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry := understandEntry{value: value, expiresAt: time.Now().Add(c.ttl)}
	if el, ok := c.items[key]; ok {
		el.Value.(*understandCacheNode).entry = entry
		c.ll.MoveToFront(el)
		return
	}
	el := c.ll.PushFront(&understandCacheNode{key: key, entry: entry})
	c.items[key] = el
	for c.ll.Len() > c.capacity {
		oldest := c.ll.Back()
		if oldest == nil {
			break
		}
		c.ll.Remove(oldest)
		delete(c.items, oldest.Value.(*understandCacheNode).key)
	}
}

// Understander implements spec.md §4.1 step 2's UnderstandGoal operation.
type Understander struct {
	dispatcher Dispatcher
	cache      *understandCache
}

func NewUnderstander(cfg config.ConductorConfig, dispatcher Dispatcher) *Understander {
	return &Understander{dispatcher: dispatcher, cache: newUnderstandCache(cfg.UnderstandTTL, cfg.UnderstandMax)}
}

func (u *Understander) Understand(ctx context.Context, goal, sessionSummary string) (Understanding, error) {
	key := understandKey(goal, sessionSummary)
	if cached, ok := u.cache.get(key); ok {
		return cached, nil
	}

	if category, ok := classifyHeuristically(goal); ok {
		result := Understanding{Restated: goal, Category: category}
		u.cache.put(key, result)
		return result, nil
	}

	prompt := buildUnderstandPrompt(goal, sessionSummary)
	resp, err := u.dispatcher.Dispatch(ctx, router.Request{
		Prompt:          prompt,
		Category:        "understand",
		PreferredFamily: string(model.FamilyFast),
		MaxTokens:       300,
	})
	if err != nil {
		return Understanding{}, err
	}
	result, ok := parseUnderstanding(resp.Text)
	if !ok {
		result = Understanding{Restated: goal, Category: model.CategoryInvestigate}
	}
	u.cache.put(key, result)
	return result, nil
}

func buildUnderstandPrompt(goal, sessionSummary string) string {
	var b strings.Builder
	b.WriteString("Classify the following user goal. Respond with a single JSON object ")
	b.WriteString(`with exactly these keys: restated (string), category (one of `)
	b.WriteString(`"simple","investigate","multi_step","status_query","greeting","what_can_you_do","coding","execution"), `)
	b.WriteString("first_step (string, optional).\n\nGoal: ")
	b.WriteString(goal)
	if sessionSummary != "" {
		b.WriteString("\n\nRecent session context: ")
		b.WriteString(sessionSummary)
	}
	return b.String()
}

func parseUnderstanding(text string) (Understanding, bool) {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end <= start {
		return Understanding{}, false
	}
	var u Understanding
	if err := json.Unmarshal([]byte(text[start:end+1]), &u); err != nil {
		return Understanding{}, false
	}
	if u.Category == "" {
		return Understanding{}, false
	}
	return u, true
}
