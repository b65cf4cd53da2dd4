// Package textutil provides token-fingerprint cosine similarity used for
// narrator and title matching, plus display-name normalization.
package textutil
