// Package retrieval is a small in-memory document store ranked by lexical
// overlap. It supplies supporting context to each chapter request and is
// rebuilt from persisted state on resume rather than persisted itself.
package retrieval

import (
	"regexp"
	"sort"
	"strings"
	"sync"
)

// Document types used by the pipeline.
const (
	TypeStoryBible = "story_bible"
	TypeChapter    = "chapter"
)

// Metadata describes where a document came from. Chapter is 1-based and
// zero for non-chapter documents.
type Metadata struct {
	Type    string `json:"type"`
	Chapter int    `json:"chapter,omitempty"`
}

// Document is one index entry.
type Document struct {
	ID       string
	Text     string
	Metadata Metadata

	tokens map[string]struct{}
}

var wordPattern = regexp.MustCompile(`\w+`)

// Tokenize returns the distinct lower-cased word tokens of text.
func Tokenize(text string) map[string]struct{} {
	words := wordPattern.FindAllString(strings.ToLower(text), -1)
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

// Index holds documents in insertion order.
type Index struct {
	mu   sync.RWMutex
	docs []*Document
	pos  map[string]int
}

func NewIndex() *Index {
	return &Index{pos: make(map[string]int)}
}

// Upsert adds a document, or replaces the text and metadata of an existing
// id in place so it keeps its original insertion slot.
func (ix *Index) Upsert(id, text string, meta Metadata) {
	doc := &Document{ID: id, Text: text, Metadata: meta, tokens: Tokenize(text)}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	if i, ok := ix.pos[id]; ok {
		ix.docs[i] = doc
		return
	}
	ix.pos[id] = len(ix.docs)
	ix.docs = append(ix.docs, doc)
}

// Get returns the document stored under id.
func (ix *Index) Get(id string) (Document, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	i, ok := ix.pos[id]
	if !ok {
		return Document{}, false
	}
	return *ix.docs[i], true
}

// Len reports the number of documents.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.docs)
}

// Clear drops every document.
func (ix *Index) Clear() {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.docs = nil
	ix.pos = make(map[string]int)
}

// Query ranks documents by the number of distinct query tokens they
// contain. Ties keep insertion order. A query with no tokens returns the
// topK most recently inserted documents instead.
func (ix *Index) Query(text string, topK int) []Document {
	if topK <= 0 {
		return nil
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	terms := Tokenize(text)
	if len(terms) == 0 {
		start := len(ix.docs) - topK
		if start < 0 {
			start = 0
		}
		return copyDocs(ix.docs[start:])
	}

	type scored struct {
		doc   *Document
		score int
	}
	ranked := make([]scored, len(ix.docs))
	for i, d := range ix.docs {
		n := 0
		for term := range terms {
			if _, ok := d.tokens[term]; ok {
				n++
			}
		}
		ranked[i] = scored{doc: d, score: n}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].score > ranked[j].score
	})

	if topK > len(ranked) {
		topK = len(ranked)
	}
	out := make([]Document, 0, topK)
	for _, r := range ranked[:topK] {
		out = append(out, *r.doc)
	}
	return out
}

func copyDocs(docs []*Document) []Document {
	out := make([]Document, 0, len(docs))
	for _, d := range docs {
		out = append(out, *d)
	}
	return out
}
