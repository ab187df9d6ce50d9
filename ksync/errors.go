package ksync

import "github.com/go-argentum/kernel/internal/kpanic"

const callChainDepth = 4

// contractViolation reports a programming error per spec.md §7 class 1:
// unrecoverable, reported by panic with source location and call-chain.
func contractViolation(msg string) {
	kpanic.Contract(msg, callChainDepth)
}
