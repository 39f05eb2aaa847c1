// Copyright 2026 Slipway contributors
// SPDX-License-Identifier: Apache-2.0

package registry

// revisionTagLength is the number of leading revision characters used as
// the image tag.
const revisionTagLength = 7

// DeriveTag derives the image tag for a pipeline run: the first seven
// characters of the source revision identifier when one is available,
// otherwise the build identifier verbatim.
func DeriveTag(revision, buildID string) string {
	if revision == "" {
		return buildID
	}
	if len(revision) > revisionTagLength {
		return revision[:revisionTagLength]
	}
	return revision
}
