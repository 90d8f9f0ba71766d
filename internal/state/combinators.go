package state

import "maps"

// TakeFirstNonEmpty keeps old unless old is empty, preventing child
// pipelines that re-declare an empty default from clobbering the input
// list a parent already populated.
func TakeFirstNonEmpty[E any](old, new []E) []E {
	if len(old) == 0 {
		return new
	}
	return old
}

// Max resolves progress counters: concurrent increments never regress and
// re-delivery of the same proposal is idempotent.
func Max(old, new int) int {
	if new > old {
		return new
	}
	return old
}

// LatestNonNull takes the newer proposal for a current-item pointer unless
// the proposal is unset, in which case the old value survives concurrent
// (re)initialization.
func LatestNonNull[T any](old, new Option[T]) Option[T] {
	if !new.IsSet() {
		return old
	}
	return new
}

// Replace unconditionally takes the new value. In the streaming style the
// aggregation maps are only ever written by one branch at a time, but the
// batch style still requires a declared rule for every field.
func Replace[T any](old, new T) T {
	_ = old
	return new
}

// Append concatenates list proposals. Used for the error accumulator:
// items are never deduplicated, so a retried step may surface duplicates.
func Append[E any](old, new []E) []E {
	if len(new) == 0 {
		return old
	}
	merged := make([]E, 0, len(old)+len(new))
	merged = append(merged, old...)
	return append(merged, new...)
}

// MergeRegions unions {file: [page]} region maps. A file's page list is
// written once by the branch that detected it; a re-delivered proposal for
// the same file replaces the list wholesale.
func MergeRegions(old, new map[string][]int) map[string][]int {
	if len(old) == 0 {
		return new
	}
	if len(new) == 0 {
		return old
	}

	merged := maps.Clone(old)
	maps.Copy(merged, new)
	return merged
}

// MergeIdentifiers unions {file: {page: value}} maps, replacing per page.
// Each page-level value (identifier list, rendered image path) is produced
// by exactly one pass, so replacement never loses a concurrent write.
func MergeIdentifiers[V any](old, new map[string]map[int]V) map[string]map[int]V {
	if len(old) == 0 {
		return new
	}
	if len(new) == 0 {
		return old
	}

	merged := make(map[string]map[int]V, len(old))
	for file, pages := range old {
		merged[file] = maps.Clone(pages)
	}
	for file, pages := range new {
		if _, ok := merged[file]; !ok {
			merged[file] = maps.Clone(pages)
			continue
		}
		maps.Copy(merged[file], pages)
	}
	return merged
}

// MergeByGroup unions {group: records} maps, replacing per group. Each
// group's records are committed exactly once, by the branch that persisted
// that group, so replacement never loses a concurrent write.
func MergeByGroup[V any](old, new map[string]V) map[string]V {
	if len(old) == 0 {
		return new
	}
	if len(new) == 0 {
		return old
	}

	merged := maps.Clone(old)
	maps.Copy(merged, new)
	return merged
}

// MergeOCRResults deep-merges {group: {file: folder}} maps key-by-key.
// Overlapping file entries take the newer folder path; in practice each
// file is recognized by exactly one worker.
func MergeOCRResults(old, new map[string]map[string]string) map[string]map[string]string {
	if len(old) == 0 {
		return new
	}
	if len(new) == 0 {
		return old
	}

	merged := make(map[string]map[string]string, len(old))
	for group, files := range old {
		merged[group] = maps.Clone(files)
	}
	for group, files := range new {
		if _, ok := merged[group]; !ok {
			merged[group] = maps.Clone(files)
			continue
		}
		maps.Copy(merged[group], files)
	}
	return merged
}

// MergeExtractions deep-merges {file: {result key: payload}} maps.
// Branches for the same document type write disjoint result keys per file,
// so leaf entries never collide and no ordering is imposed on branches.
func MergeExtractions(old, new map[string]map[string]any) map[string]map[string]any {
	if len(old) == 0 {
		return new
	}
	if len(new) == 0 {
		return old
	}

	merged := make(map[string]map[string]any, len(old))
	for file, results := range old {
		merged[file] = maps.Clone(results)
	}
	for file, results := range new {
		if _, ok := merged[file]; !ok {
			merged[file] = maps.Clone(results)
			continue
		}
		maps.Copy(merged[file], results)
	}
	return merged
}
