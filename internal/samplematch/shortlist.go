package samplematch

import (
	"math"
	"sort"
	"strings"
	"unicode"

	"productmatch/internal/textnorm"
)

type sparseVec = map[int]float64

// tfidfIndex ranks the known products of one category against a sample
// title so large categories can be trimmed before prompting.
type tfidfIndex struct {
	vocab    map[string]int
	idf      []float64
	docs     []sparseVec
	products []string
}

func tokenize(s string) []string {
	s = strings.ToLower(textnorm.Fold(s))
	var tokens []string
	var cur strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			cur.WriteRune(r)
		} else {
			if cur.Len() > 0 {
				tokens = append(tokens, cur.String())
				cur.Reset()
			}
		}
	}
	if cur.Len() > 0 {
		tokens = append(tokens, cur.String())
	}
	return tokens
}

func buildTFIDFIndex(products []string) *tfidfIndex {
	vocab := make(map[string]int)
	for _, p := range products {
		for _, tok := range tokenize(p) {
			if _, ok := vocab[tok]; !ok {
				vocab[tok] = len(vocab)
			}
		}
	}

	df := make([]int, len(vocab))
	docs := make([]sparseVec, len(products))
	n := float64(len(products))

	for i, p := range products {
		tf := make(map[int]int)
		for _, tok := range tokenize(p) {
			tf[vocab[tok]]++
		}
		vec := make(sparseVec, len(tf))
		for idx, count := range tf {
			vec[idx] = float64(count)
			df[idx]++
		}
		docs[i] = vec
	}

	idf := make([]float64, len(vocab))
	for i, d := range df {
		if d > 0 {
			idf[i] = math.Log(n/float64(d)) + 1.0
		}
	}
	for _, vec := range docs {
		for idx := range vec {
			vec[idx] *= idf[idx]
		}
	}

	return &tfidfIndex{vocab: vocab, idf: idf, docs: docs, products: products}
}

func (idx *tfidfIndex) queryVec(query string) sparseVec {
	tf := make(map[int]int)
	for _, tok := range tokenize(query) {
		if i, ok := idx.vocab[tok]; ok {
			tf[i]++
		}
	}
	vec := make(sparseVec, len(tf))
	for i, count := range tf {
		vec[i] = float64(count) * idx.idf[i]
	}
	return vec
}

// shortlist returns at most k products, most similar to query first. When
// fewer than k products share a token with query the rest is filled in
// table order.
func (idx *tfidfIndex) shortlist(query string, k int) []string {
	if k <= 0 || len(idx.products) <= k {
		return idx.products
	}

	type scored struct {
		index int
		score float64
	}
	qvec := idx.queryVec(query)
	var results []scored
	if len(qvec) > 0 {
		for i, dvec := range idx.docs {
			if sim := cosineSim(qvec, dvec); sim > 0 {
				results = append(results, scored{i, sim})
			}
		}
	}
	sort.SliceStable(results, func(a, b int) bool {
		return results[a].score > results[b].score
	})
	if len(results) > k {
		results = results[:k]
	}

	out := make([]string, 0, k)
	taken := make(map[int]bool, k)
	for _, r := range results {
		out = append(out, idx.products[r.index])
		taken[r.index] = true
	}
	for i := 0; i < len(idx.products) && len(out) < k; i++ {
		if !taken[i] {
			out = append(out, idx.products[i])
		}
	}
	return out
}

func cosineSim(a, b sparseVec) float64 {
	var dot, normA, normB float64
	for i, va := range a {
		if vb, ok := b[i]; ok {
			dot += va * vb
		}
		normA += va * va
	}
	for _, vb := range b {
		normB += vb * vb
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
