package objectmap

import "github.com/transparency-dev/merkle/rfc6962"

var hasher = rfc6962.DefaultHasher

// merkleRoot computes the RFC 6962 Merkle Tree Hash over leafHashes, using
// the standard "largest power of two less than n" split so the root is
// stable regardless of how the leaves were produced — only their sorted
// order and content matter. Hashing leaves in key-sorted order (rather
// than insertion order) is what makes an object map's root hash a pure
// function of its contents, matching the spec's order-independence
// requirement.
func merkleRoot(leafHashes [][]byte) []byte {
	if len(leafHashes) == 0 {
		return hasher.EmptyRoot()
	}
	return mth(leafHashes)
}

func mth(leaves [][]byte) []byte {
	if len(leaves) == 1 {
		return leaves[0]
	}
	split := largestPowerOfTwoLessThan(len(leaves))
	left := mth(leaves[:split])
	right := mth(leaves[split:])
	return hasher.HashChildren(left, right)
}

func largestPowerOfTwoLessThan(n int) int {
	k := 1
	for k*2 < n {
		k *= 2
	}
	return k
}
