package miner

import "container/list"

// cluster is one leaf's template plus its occurrence count and its
// position in both the leaf-local and process-wide LRU lists.
type cluster struct {
	id     string
	tokens []string
	count  int64

	leaf       *leafNode
	leafElem   *list.Element
	globalElem *list.Element
}

// leafNode is a parse-tree leaf: a bounded bucket of clusters sharing the
// same token-count and (if deep enough) the same prefix tokens.
type leafNode struct {
	lru         *list.List // of *cluster, front = most recently matched
	maxChildren int
}

func newLeaf(maxChildren int) *leafNode {
	return &leafNode{lru: list.New(), maxChildren: maxChildren}
}

func (lf *leafNode) touch(c *cluster) {
	lf.lru.MoveToFront(c.leafElem)
}

func (lf *leafNode) add(c *cluster) (evicted *cluster) {
	if lf.lru.Len() >= lf.maxChildren && lf.maxChildren > 0 {
		evicted = lf.evictLRU()
	}
	c.leaf = lf
	c.leafElem = lf.lru.PushFront(c)
	return evicted
}

func (lf *leafNode) evictLRU() *cluster {
	back := lf.lru.Back()
	if back == nil {
		return nil
	}
	lf.lru.Remove(back)
	return back.Value.(*cluster)
}

func (lf *leafNode) remove(c *cluster) {
	if c.leafElem != nil {
		lf.lru.Remove(c.leafElem)
		c.leafElem = nil
	}
}

// treeNode is an internal parse-tree node, keyed at each level by the
// literal token at that position (or the wildcard marker, which is simply
// another literal key from the tree's point of view).
type treeNode struct {
	children map[string]*treeNode
	leaf     *leafNode
}

func newTreeNode() *treeNode {
	return &treeNode{children: map[string]*treeNode{}}
}

// similarity computes the fraction of non-wildcard cluster-template
// positions that literally equal the candidate tokens at the same
// position. A zero-length or all-wildcard template always matches (the
// degenerate all-delimiters boundary case).
func similarity(templateTokens, candidate []string) float64 {
	matched, nonWildcard := 0, 0
	for i, t := range templateTokens {
		if t == Wildcard {
			continue
		}
		nonWildcard++
		if t == candidate[i] {
			matched++
		}
	}
	if nonWildcard == 0 {
		return 1.0
	}
	return float64(matched) / float64(nonWildcard)
}

// generalize merges candidate into the cluster's template in place: any
// disagreeing position is generalized to the wildcard marker.
func generalize(templateTokens, candidate []string) {
	for i, t := range templateTokens {
		if t != Wildcard && t != candidate[i] {
			templateTokens[i] = Wildcard
		}
	}
}
