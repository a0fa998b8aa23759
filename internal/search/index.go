package search

import (
	"math"
	"sort"
	"strings"
	"sync"
	"unicode"
)

// Document is one searchable site: its name plus whatever describes it.
type Document struct {
	ID   string
	Text string
}

// prefixWeight scales matches where a query term is only a prefix of an
// indexed term ("git" against "github").
const prefixWeight = 0.5

// Index ranks registry sites for the site picker and GET /sites?q=. Each
// site is one document holding its name and category, keyed by site name,
// so "git" finds "GitHub" by prefix and "coding" finds the whole category.
type Index struct {
	mu        sync.RWMutex
	entries   map[string]map[string]int // term -> document ID -> count
	docLen    map[string]int            // document ID -> total token count
	totalDocs int                       // number of documents indexed
}

func NewIndex() *Index {
	return &Index{
		entries: make(map[string]map[string]int),
		docLen:  make(map[string]int),
	}
}

// Tokenize lowercases text and splits it on spaces, punctuation and symbols,
// so "Stack.Overflow" and "stack overflow" index alike. Short names such as
// "X" are kept as one-letter terms.
func (i *Index) Tokenize(text string) []string {
	var tokens []string
	f := func(c rune) bool {
		return unicode.IsSpace(c) || unicode.IsPunct(c) || unicode.IsSymbol(c)
	}
	for _, token := range strings.FieldsFunc(text, f) {
		t := strings.ToLower(strings.TrimSpace(token))
		if t != "" {
			tokens = append(tokens, t)
		}
	}
	return tokens
}

func (i *Index) BuildFromDocuments(documents []Document) {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.entries = make(map[string]map[string]int)
	i.docLen = make(map[string]int)
	i.totalDocs = 0

	for _, doc := range documents {
		i.addLocked(doc)
	}
}

type SearchResult struct {
	DocumentID string
	Score      float64
}

// Search scores documents by TF-IDF over the query terms, best first.
func (i *Index) Search(query string) []SearchResult {
	i.mu.RLock()
	defer i.mu.RUnlock()

	terms := i.Tokenize(query)
	if len(terms) == 0 || i.totalDocs == 0 {
		return nil
	}

	scores := map[string]float64{}
	N := float64(i.totalDocs)

	for _, term := range terms {
		for indexed, postings := range i.entries {
			weight := 1.0
			switch {
			case indexed == term:
			case strings.HasPrefix(indexed, term):
				weight = prefixWeight
			default:
				continue
			}
			df := float64(len(postings))
			idf := math.Log((N+1)/(df+1)) + 1

			for docID, count := range postings {
				dl := i.docLen[docID]
				if dl == 0 {
					continue
				}
				tf := float64(count) / float64(dl)
				scores[docID] += weight * tf * idf
			}
		}
	}

	results := make([]SearchResult, 0, len(scores))
	for docID, score := range scores {
		results = append(results, SearchResult{
			DocumentID: docID,
			Score:      score,
		})
	}
	sort.Slice(results, func(a, b int) bool {
		if results[a].Score == results[b].Score {
			return results[a].DocumentID < results[b].DocumentID
		}
		return results[a].Score > results[b].Score
	})
	return results
}

func (i *Index) AddDocument(document Document) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.addLocked(document)
}

func (i *Index) addLocked(document Document) {
	if _, isReplace := i.docLen[document.ID]; isReplace {
		delete(i.docLen, document.ID)
		for term, postings := range i.entries {
			delete(postings, document.ID)
			if len(postings) == 0 {
				delete(i.entries, term)
			}
		}
	} else {
		i.totalDocs++
	}
	terms := i.Tokenize(document.Text)
	i.docLen[document.ID] = len(terms)
	for _, term := range terms {
		if _, ok := i.entries[term]; !ok {
			i.entries[term] = make(map[string]int)
		}
		i.entries[term][document.ID]++
	}
}

func (i *Index) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.totalDocs
}
