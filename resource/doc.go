// Package resource bounds the process-wide resources the cache consumes.
//
// A Controller governs three things:
//
//   - Memory: bytes held by in-process cache stores (non-blocking, fail-fast)
//   - Reload slots: concurrent block reloads issued by batch reads and warmups
//   - IO: throughput of snapshot transfers to and from blob storage
//
// All methods are safe on a nil *Controller, which imposes no limits:
//
//	rc := resource.NewController(resource.Config{
//	    MemoryLimitBytes:   256 << 20,
//	    MaxReloads:         8,
//	    IOLimitBytesPerSec: 32 << 20,
//	})
//
//	if !rc.TryAcquireMemory(int64(len(buf))) {
//	    // skip caching
//	}
package resource
