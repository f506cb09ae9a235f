package model

// identityKeys are field names a client could use to forge record identity.
// They are removed from every patch before merging.
var identityKeys = map[string]struct{}{
	"recordId": {},
	"id":       {},
	"_id":      {},
}

// StripIdentity returns a copy of patch with identity keys removed. A nil
// patch yields an empty field set.
func StripIdentity(patch Fields) Fields {
	out := make(Fields, len(patch))
	for k, v := range patch {
		if _, forbidden := identityKeys[k]; forbidden {
			continue
		}
		out[k] = v
	}
	return out
}

// MergeLayers overlays the given patches onto base in order. Later layers win
// on key collision. The inputs are not mutated; the result is a fresh map.
// Precedence for the review flow is base < editor patch < admin patch.
func MergeLayers(base Fields, patches ...Fields) Fields {
	merged := base.Clone()
	for _, patch := range patches {
		for k, v := range patch {
			merged[k] = v
		}
	}
	return merged
}
