package util

// CacheKey namespaces an entity id: <prefix>:<id>.
func CacheKey(prefix, id string) string {
	return prefix + ":" + id
}

// LockKey names the rebuild lock for an entity: lock:<prefix>:<id>.
func LockKey(prefix, id string) string {
	return "lock:" + prefix + ":" + id
}
