package stt

import "github.com/corvidlabs/voxcore/pkg/types"

// Transcript, WordDetail, and KeywordBoost are aliases of the shared
// pkg/types definitions. Keeping them as package-local names lets call sites
// read stt.Transcript while remaining interface-compatible with the
// types.Transcript used in SessionHandle's channel signatures.
type (
	Transcript   = types.Transcript
	WordDetail   = types.WordDetail
	KeywordBoost = types.KeywordBoost
)
