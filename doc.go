/*
Package kmem implements the memory core of a small multi-core kernel in pure Go: a fixed-size
disk-block cache whose buckets are locked independently and evicted without circular wait, and a
physical-page allocator with copy-on-write reference counting.
*/
package kmem
