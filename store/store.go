// Package store 提供 core.Store 的 KV 实现（内存 / Redis），
// 以及在任意 core.Store 之上实现 core.RecommendDataStore 的 KVRepository。
//
// 关系型实现见 store/sqlstore。
//
// 示例：
//
//	kv := store.NewMemoryStore()
//	repo := store.NewKVRepository(kv)
//	var _ core.RecommendDataStore = repo
package store
