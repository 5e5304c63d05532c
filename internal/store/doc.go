// Package store persists the scheduler's state in a single sqlite database:
// the pending_articles table driving the promotion loop, and the published
// article/category/media tables the promotion writes into atomically.
package store
